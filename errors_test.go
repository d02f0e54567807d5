// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package fatcatdb

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorKindsUnwrap(t *testing.T) {
	cause := errors.New("disk full")

	io := &IoFailure{Path: "/x/y.tsv.gz", Phase: "write", Err: cause}
	require.ErrorIs(t, io, cause)
	require.Contains(t, io.Error(), "write")

	corrupt := &PacketCorrupt{Path: "/x/y.tsv.gz", Line: 3, Err: cause}
	require.ErrorIs(t, corrupt, cause)
	require.Contains(t, corrupt.Error(), "line 3")

	bookmark := &InvalidBookmark{Reason: "malformed token", Err: cause}
	require.ErrorIs(t, bookmark, cause)
	require.Contains(t, bookmark.Error(), "malformed token")

	aborted := &Aborted{Cause: cause}
	require.ErrorIs(t, aborted, cause)
}

func TestErrorKindsWithoutCause(t *testing.T) {
	schemaErr := &SchemaInvalidError{Table: "impressions", Reason: "no columns declared"}
	require.Contains(t, schemaErr.Error(), "impressions")
	require.Contains(t, schemaErr.Error(), "no columns declared")

	illegal := &IllegalUpdate{Table: "impressions", Reason: "changed account"}
	require.Contains(t, illegal.Error(), "changed account")

	infeasible := &QueryInfeasible{
		RequestedSort:      []string{"account", "impressions"},
		AdmissiblePrefixes: map[string][]string{"account_date": {"account", "date"}},
	}
	require.Contains(t, infeasible.Error(), "account")

	bookmark := &InvalidBookmark{Reason: "no fragment"}
	require.Equal(t, "fatcatdb: invalid bookmark: no fragment", bookmark.Error())
}
