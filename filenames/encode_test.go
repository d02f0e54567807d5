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

package filenames

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := []string{
		"",
		" ",
		".",
		"~",
		"hello",
		"Hello World",
		"a/b\\c?d*e|f:g\"h<i>j%k",
		"con", "CON", "lpt1", "LPT9", "nul",
		"file.name.tsv",
		"trailing.",
		"_underscore_",
		"a,b",
		"tab\tnewline\ncr\r",
		"unicode-\u00e9\u00e8",
		"UPPER_lower_MiXeD",
	}
	for _, c := range cases {
		enc := Encode(c)
		got := Decode(enc)
		require.Equalf(t, c, got, "round trip for %q via %q", c, enc)
	}
}

func TestEncodeAvoidsReservedChars(t *testing.T) {
	const reservedChars = `/\?*|:"<>%` + "\x00\t\r\n"
	for _, c := range []string{"a/b", "c:\\d", "e\"f", reservedChars} {
		enc := Encode(c)
		for _, r := range reservedChars {
			require.NotContains(t, enc, string(r))
		}
	}
}

func TestEncodeAvoidsReservedNames(t *testing.T) {
	for _, name := range []string{"con", "CON", "PRN", "aux", "nul", "com1", "COM9", "lpt1", "LPT9"} {
		enc := Encode(name)
		lower := name
		require.NotEqualf(t, lower, enc, "encoding of reserved name %q must not equal itself", name)
	}
}

func TestEmptySentinelDistinct(t *testing.T) {
	require.NotEqual(t, Encode(""), Encode("_"))
	require.NotEqual(t, Encode(""), Encode(" "))
	require.NotEqual(t, Encode(""), Encode("~"))
}
