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

import "regexp"

// PathFilter is a per-column predicate evaluated against a column's
// string form. It is used both to prune directory traversal (when
// strict) and to filter materialized records (as a free filter).
//
// The zero value matches everything.
type PathFilter struct {
	hasEquals bool
	equals    string

	hasGE bool
	ge    string
	hasLE bool
	le    string

	regexes []*regexp.Regexp
}

// Equals restricts the filter to exactly one accepted string value.
// v may be the schema's null sentinel.
func Equals(v string) *PathFilter {
	return &PathFilter{hasEquals: true, equals: v}
}

// GreaterOrEqual restricts the filter to values >= v.
func GreaterOrEqual(v string) *PathFilter {
	return &PathFilter{hasGE: true, ge: v}
}

// LessOrEqual restricts the filter to values <= v.
func LessOrEqual(v string) *PathFilter {
	return &PathFilter{hasLE: true, le: v}
}

// Between restricts the filter to the closed interval [lo, hi]. A nil
// endpoint leaves that side of the interval open. A non-nil lo equal
// to a non-nil hi degrades to Equals.
func Between(lo, hi *string) *PathFilter {
	if lo != nil && hi != nil && *lo == *hi {
		return Equals(*lo)
	}
	f := &PathFilter{}
	if lo != nil {
		f.hasGE, f.ge = true, *lo
	}
	if hi != nil {
		f.hasLE, f.le = true, *hi
	}
	return f
}

// WithRegex adds a regular expression the value's string form must
// match, in addition to whatever range/equality constraint is
// already set. Panics if pattern fails to compile, matching the
// package's "build once at query-construction time" usage pattern.
func (f *PathFilter) WithRegex(pattern string) *PathFilter {
	f.regexes = append(f.regexes, regexp.MustCompile(pattern))
	return f
}

// Evaluate reports whether value satisfies every constraint on f.
func (f *PathFilter) Evaluate(value string) bool {
	if f == nil {
		return true
	}
	if f.hasEquals {
		if value != f.equals {
			return false
		}
	}
	if f.hasGE && value < f.ge {
		return false
	}
	if f.hasLE && value > f.le {
		return false
	}
	for _, re := range f.regexes {
		if !re.MatchString(value) {
			return false
		}
	}
	return true
}

// IsStrict reports whether f reduces to exactly one accepted value.
func (f *PathFilter) IsStrict() bool {
	return f != nil && f.hasEquals
}

// StrictStringValue returns the single accepted value of a strict
// filter. Only valid when IsStrict returns true.
func (f *PathFilter) StrictStringValue() string {
	return f.equals
}
