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
	"sort"
	"strings"

	"golang.org/x/exp/slices"
)

// Schema is the accessor table a host program supplies in place of
// reflecting over an annotated record type. It is the one interface
// every other component in this package goes through to read or
// write a column by position, so a record type never needs to be
// known by this package beyond its column count.
type Schema[R any] interface {
	// TableName identifies the table for filesystem and bookmark
	// purposes.
	TableName() string
	// ColumnCount returns the number of declared columns.
	ColumnCount() int
	// ColumnName returns the declared name of column i.
	ColumnName(i int) string
	// NullValue is the sentinel string form stored for a null
	// column. Defaults to "" when a Schema implementation returns "".
	NullValue() string
	// UniqueColumns returns the ordered column positions whose
	// string-joined value is a record's unique key within a packet.
	UniqueColumns() []int
	// Indexes returns the table's declared indexes. Must contain at
	// least one entry.
	Indexes() []Index
	// New returns a fresh zero-value record to populate via
	// SetColumn.
	New() R
	// GetColumn returns the value of column i on r.
	GetColumn(r R, i int) any
	// SetColumn sets column i on r to v.
	SetColumn(r R, i int, v any)
	// CompareColumn orders two values of column i. Every column type
	// must be orderable.
	CompareColumn(i int, a, b any) int
	// ColumnToString renders the value of column i as its string
	// form, used both as packet path components and as the on-disk
	// TSV field.
	ColumnToString(i int, v any) string
	// ColumnFromString parses the string form of column i back into
	// a value.
	ColumnFromString(i int, s string) (any, error)
}

func validateSchema[R any](schema Schema[R]) error {
	table := schema.TableName()
	n := schema.ColumnCount()
	if n <= 0 {
		return &SchemaInvalidError{Table: table, Reason: "no columns declared"}
	}
	names := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		name := schema.ColumnName(i)
		if name == "" {
			return &SchemaInvalidError{Table: table, Reason: "column has empty name"}
		}
		if names[name] {
			return &SchemaInvalidError{Table: table, Reason: "duplicated column name " + name}
		}
		names[name] = true
	}
	for _, u := range schema.UniqueColumns() {
		if u < 0 || u >= n {
			return &SchemaInvalidError{Table: table, Reason: "unique column position out of range"}
		}
	}
	unique := schema.UniqueColumns()
	indexes := schema.Indexes()
	if len(indexes) == 0 {
		return &SchemaInvalidError{Table: table, Reason: "no indexes declared"}
	}
	indexNames := make(map[string]bool, len(indexes))
	for _, idx := range indexes {
		if idx.Name == "" {
			return &SchemaInvalidError{Table: table, Reason: "index has empty name"}
		}
		if indexNames[idx.Name] {
			return &SchemaInvalidError{Table: table, Reason: "duplicated index name " + idx.Name}
		}
		indexNames[idx.Name] = true
		if len(idx.Columns) == 0 {
			return &SchemaInvalidError{Table: table, Reason: "index " + idx.Name + " has no columns"}
		}
		for _, col := range idx.Columns {
			if col < 0 || col >= n {
				return &SchemaInvalidError{Table: table, Reason: "index " + idx.Name + " references unknown column"}
			}
			if slices.Contains(unique, col) {
				return &SchemaInvalidError{Table: table, Reason: "index " + idx.Name + " column coincides with a unique column"}
			}
		}
	}
	return nil
}

// uniqueKey returns the NUL-separated join of r's unique column
// string forms: the primary key within a packet.
func uniqueKey[R any](schema Schema[R], r R) string {
	unique := schema.UniqueColumns()
	parts := make([]string, len(unique))
	for i, col := range unique {
		parts[i] = schema.ColumnToString(col, schema.GetColumn(r, col))
	}
	return strings.Join(parts, "\x00")
}

// indexPathValues returns the string form of r's columns at idx's
// positions, in order: the packet path for r under idx.
func indexPathValues[R any](schema Schema[R], idx Index, r R) []string {
	out := make([]string, len(idx.Columns))
	for i, col := range idx.Columns {
		out[i] = schema.ColumnToString(col, schema.GetColumn(r, col))
	}
	return out
}

func indexPathString(values []string) string {
	return strings.Join(values, "\x00")
}

func strictColumnSet(pathFilters map[int]*PathFilter) map[int]bool {
	out := make(map[int]bool, len(pathFilters))
	for col, f := range pathFilters {
		if f.IsStrict() {
			out[col] = true
		}
	}
	return out
}

func sortedUniqueKeys[R any](records map[string]R) []string {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
