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

// Package filenames implements a reversible encoding of arbitrary column
// values into path-component-safe names, so that any string value can be
// used as a directory or file name component on POSIX and Windows
// file systems, including case-insensitive ones.
package filenames

import "strings"

// escChar is the escape introducer. Any reserved byte is rewritten as
// escChar followed by a single code byte from escAlphabet.
const escChar = '~'

// upperMarker precedes an upper-case letter so that case-insensitive
// file systems still round-trip the original case on decode.
const upperMarker = '^'

// emptySentinel is what the empty string encodes to. A bare escChar can
// never be produced by encoding anything else (escChar is always emitted
// with a code byte after it), so it is unambiguous.
const emptySentinel = "~"

// spaceShorthand and dotShorthand are single-character stand-ins for
// the two most common non-alphanumeric bytes in practice.
const (
	spaceShorthand = '_'
	dotShorthand   = ','
)

// reserved maps each byte that is unsafe to place literally into a path
// component to a single code byte used after escChar. The set covers
// POSIX/Windows path separators, shell/quoting metacharacters, the
// characters Windows forbids in file names, control bytes commonly
// mishandled by tools (TAB/CR/LF/NUL), and the encoder's own
// meta-characters (escChar, upperMarker, and the two shorthand bytes).
var reserved = map[byte]byte{
	'/':  '0',
	'\\': '1',
	'?':  '2',
	'*':  '3',
	'|':  '4',
	':':  '5',
	'"':  '6',
	'<':  '7',
	'>':  '8',
	'%':  '9',
	0:    'a',
	'\t': 'b',
	'\r': 'c',
	'\n': 'd',
	escChar:        'e',
	upperMarker:    'f',
	spaceShorthand: 'g',
	dotShorthand:   'h',
}

var unescape = func() map[byte]byte {
	m := make(map[byte]byte, len(reserved))
	for raw, code := range reserved {
		m[code] = raw
	}
	return m
}()

// reservedNames is the set of whole (case-insensitive) base names that
// are unsafe on Windows regardless of extension.
var reservedNames = func() map[string]struct{} {
	names := []string{"con", "prn", "aux", "nul"}
	for i := 1; i <= 9; i++ {
		names = append(names, "com"+string(rune('0'+i)), "lpt"+string(rune('0'+i)))
	}
	m := make(map[string]struct{}, len(names))
	for _, n := range names {
		m[n] = struct{}{}
	}
	return m
}()

// Encode reversibly transforms s into a string that is safe to use as a
// single path component (directory or file name, sans extension) on
// POSIX and Windows file systems, including case-insensitive ones.
// Decode(Encode(s)) == s for every input s.
func Encode(s string) string {
	if s == "" {
		return emptySentinel
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ':
			b.WriteByte(spaceShorthand)
		case c == '.':
			b.WriteByte(dotShorthand)
		default:
			if code, ok := reserved[c]; ok {
				b.WriteByte(escChar)
				b.WriteByte(code)
				continue
			}
			if c >= 'A' && c <= 'Z' {
				b.WriteByte(upperMarker)
			}
			b.WriteByte(c)
		}
	}
	out := b.String()
	if _, bad := reservedNames[strings.ToLower(out)]; bad {
		out += string(upperMarker)
	}
	return out
}

// Decode inverts Encode. Decode is defined only on strings produced by
// Encode; passing arbitrary strings may produce unspecified results but
// will not panic.
func Decode(s string) string {
	if s == emptySentinel {
		return ""
	}
	s = strings.TrimSuffix(s, string(upperMarker))
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case escChar:
			if i+1 < len(s) {
				i++
				if raw, ok := unescape[s[i]]; ok {
					b.WriteByte(raw)
					continue
				}
			}
		case upperMarker:
			if i+1 < len(s) {
				i++
				b.WriteByte(s[i])
				continue
			}
		case spaceShorthand:
			b.WriteByte(' ')
			continue
		case dotShorthand:
			b.WriteByte('.')
			continue
		}
		if c != escChar && c != upperMarker {
			b.WriteByte(c)
		}
	}
	return b.String()
}
