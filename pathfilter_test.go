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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathFilterEquals(t *testing.T) {
	f := Equals("acme")
	require.True(t, f.IsStrict())
	require.Equal(t, "acme", f.StrictStringValue())
	require.True(t, f.Evaluate("acme"))
	require.False(t, f.Evaluate("other"))
}

func TestPathFilterRange(t *testing.T) {
	f := GreaterOrEqual("2020-01-01")
	require.False(t, f.IsStrict())
	require.True(t, f.Evaluate("2020-06-01"))
	require.True(t, f.Evaluate("2020-01-01"))
	require.False(t, f.Evaluate("2019-12-31"))

	f2 := LessOrEqual("2020-12-31")
	require.True(t, f2.Evaluate("2020-12-31"))
	require.False(t, f2.Evaluate("2021-01-01"))
}

func TestPathFilterBetween(t *testing.T) {
	lo, hi := "2020-01-01", "2020-12-31"
	f := Between(&lo, &hi)
	require.True(t, f.Evaluate("2020-06-15"))
	require.False(t, f.Evaluate("2021-01-01"))

	sameDay := "2020-06-01"
	degenerate := Between(&sameDay, &sameDay)
	require.True(t, degenerate.IsStrict())
	require.Equal(t, sameDay, degenerate.StrictStringValue())

	openLow := Between(nil, &hi)
	require.True(t, openLow.Evaluate("1900-01-01"))
	require.False(t, openLow.Evaluate("2021-01-01"))
}

func TestPathFilterRegex(t *testing.T) {
	f := GreaterOrEqual("a").WithRegex(`^acme-\d+$`)
	require.True(t, f.Evaluate("acme-42"))
	require.False(t, f.Evaluate("acme-xy"))
}

func TestNilPathFilterMatchesEverything(t *testing.T) {
	var f *PathFilter
	require.True(t, f.Evaluate("anything"))
	require.False(t, f.IsStrict())
}
