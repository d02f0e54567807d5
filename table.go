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

import "github.com/fatcatdb/fatcatdb/locks"

// Database is the embedded engine's entry point: one Database owns one
// lock table, shared across every Table opened against it so that a
// single packet is never touched by two goroutines at once, regardless
// of which Table reached it. The table is striped, so unrelated packets
// can occasionally share a lock.
type Database struct {
	cfg       *Config
	lockTable *locks.Table
}

// Open returns a Database rooted at cfg.DatabasePath (or its default,
// "./var/data", if cfg is nil or the field is unset). Open performs no
// I/O: directories are created lazily as packets are written.
func Open(cfg *Config) *Database {
	return &Database{cfg: cfg, lockTable: &locks.Table{}}
}

// Table binds a Schema to its owning Database. Every operation a host
// program performs against one record type goes through its Table.
type Table[R any] struct {
	db     *Database
	schema Schema[R]
}

// OpenTable validates schema and returns a Table bound to db. An
// invalid schema (see Schema's field docs) is reported once here
// rather than resurfacing on every later query or commit.
func OpenTable[R any](db *Database, schema Schema[R]) (*Table[R], error) {
	if err := validateSchema(schema); err != nil {
		return nil, err
	}
	return &Table[R]{db: db, schema: schema}, nil
}

// NewTransaction starts a new transaction against t. Transactions are
// not safe for concurrent use by multiple goroutines; open one per
// writer.
func (t *Table[R]) NewTransaction() *Transaction[R] {
	return NewTransaction(t.schema, t.db.lockTable, t.db.cfg)
}

// Query starts building a query against t. The returned builder is a
// thin, chainable wrapper around PlanInput; call Run to execute it.
func (t *Table[R]) Query() *QueryBuilder[R] {
	return &QueryBuilder[R]{table: t}
}

// QueryBuilder accumulates a PlanInput via chained calls and executes
// it with Run.
type QueryBuilder[R any] struct {
	table *Table[R]
	in    PlanInput[R]
}

// Where adds a PathFilter on column col. Calling Where twice for the
// same column replaces the earlier filter.
func (q *QueryBuilder[R]) Where(col int, f *PathFilter) *QueryBuilder[R] {
	if q.in.PathFilters == nil {
		q.in.PathFilters = make(map[int]*PathFilter)
	}
	q.in.PathFilters[col] = f
	return q
}

// Filter adds a FlexFilter evaluated against each materialized record
// that survives the path filters.
func (q *QueryBuilder[R]) Filter(f func(R) bool) *QueryBuilder[R] {
	q.in.FlexFilters = append(q.in.FlexFilters, f)
	return q
}

// OrderByAsc appends an ascending sort directive on col.
func (q *QueryBuilder[R]) OrderByAsc(col int) *QueryBuilder[R] {
	q.in.Sorting = append(q.in.Sorting, SortDirective{Column: col})
	return q
}

// OrderByDesc appends a descending sort directive on col.
func (q *QueryBuilder[R]) OrderByDesc(col int) *QueryBuilder[R] {
	q.in.Sorting = append(q.in.Sorting, SortDirective{Column: col, Desc: true})
	return q
}

// Limit caps the number of records the query returns.
func (q *QueryBuilder[R]) Limit(n int64) *QueryBuilder[R] {
	q.in.Limit = n
	return q
}

// After resumes the query from a bookmark returned by an earlier
// Cursor, for paging.
func (q *QueryBuilder[R]) After(bookmark *Bookmark) *QueryBuilder[R] {
	q.in.Bookmark = bookmark
	return q
}

// UseIndex pins the query to a declared index by name, bypassing the
// planner's own heuristic.
func (q *QueryBuilder[R]) UseIndex(name string) *QueryBuilder[R] {
	q.in.HintedIndex = name
	return q
}

// PreferSorting tells the planner to break index-selection ties in
// favor of the index that matches the requested sort order, instead
// of the default preference for strict filter coverage.
func (q *QueryBuilder[R]) PreferSorting() *QueryBuilder[R] {
	q.in.Priority = PrioritySorting
	return q
}

// Run plans and executes the accumulated query, returning a Cursor
// over its result records.
func (q *QueryBuilder[R]) Run() (*Cursor[R], error) {
	plan, err := BuildPlan(q.table.schema, q.in)
	if err != nil {
		return nil, err
	}
	return RunQuery(q.table.schema, q.table.db.lockTable, q.table.db.cfg, plan)
}
