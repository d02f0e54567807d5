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

import "fmt"

// SchemaInvalidError is raised during table initialization: a missing or
// duplicated column name, a unique column out of range, a missing,
// unnamed, duplicated or empty index, or an index column that is unknown
// or also a unique column. BuildPlan also raises it for a hinted index
// the table does not declare. Column orderability is not checked.
type SchemaInvalidError struct {
	Table  string
	Reason string
}

func (e *SchemaInvalidError) Error() string {
	return fmt.Sprintf("fatcatdb: schema invalid for table %q: %s", e.Table, e.Reason)
}

// IoFailure wraps any filesystem error encountered while reading or
// writing a packet, carrying the absolute path and the phase in which
// the error occurred.
type IoFailure struct {
	Path  string
	Phase string // create-dir, write, delete, rename, read
	Err   error
}

func (e *IoFailure) Error() string {
	return fmt.Sprintf("fatcatdb: io failure during %s of %q: %v", e.Phase, e.Path, e.Err)
}

func (e *IoFailure) Unwrap() error { return e.Err }

// PacketCorrupt is raised when a packet file cannot be decoded: a
// header/row column-count mismatch or some other malformed row.
type PacketCorrupt struct {
	Path string
	Line int // 1-based
	Err  error
}

func (e *PacketCorrupt) Error() string {
	return fmt.Sprintf("fatcatdb: packet %q corrupt at line %d: %v", e.Path, e.Line, e.Err)
}

func (e *PacketCorrupt) Unwrap() error { return e.Err }

// IllegalUpdate is raised when an onUpdate hook or a query-style
// updater changes one of a table's indexed columns.
type IllegalUpdate struct {
	Table  string
	Reason string
}

func (e *IllegalUpdate) Error() string {
	return fmt.Sprintf("fatcatdb: illegal update on table %q: %s", e.Table, e.Reason)
}

// QueryInfeasible is raised when a query's requested sort cannot be
// satisfied by any path through the chosen index. AdmissiblePrefixes
// lists, for every index declared on the table, the column names that
// would need to prefix the sort list for that index to work.
type QueryInfeasible struct {
	RequestedSort      []string
	AdmissiblePrefixes map[string][]string // index name -> column names
}

func (e *QueryInfeasible) Error() string {
	return fmt.Sprintf(
		"fatcatdb: sort %v is not feasible with any declared index; admissible prefixes: %v",
		e.RequestedSort, e.AdmissiblePrefixes,
	)
}

// InvalidBookmark is raised when a bookmark fails to decode, names a
// table/index that doesn't match the query's plan, is missing a level
// the plan requires, or names a record that no longer exists.
type InvalidBookmark struct {
	Reason string
	Err    error
}

func (e *InvalidBookmark) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fatcatdb: invalid bookmark: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("fatcatdb: invalid bookmark: %s", e.Reason)
}

func (e *InvalidBookmark) Unwrap() error { return e.Err }

// Aborted reports a commit abandoned because of an earlier failure in
// the same transaction. Transaction.Commit does not construct it: every
// dispatched worker runs to completion and Commit returns the first
// error itself.
type Aborted struct {
	Cause error
}

func (e *Aborted) Error() string {
	return fmt.Sprintf("fatcatdb: commit aborted: %v", e.Cause)
}

func (e *Aborted) Unwrap() error { return e.Cause }
