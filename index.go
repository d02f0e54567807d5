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

// Index is an ordered tuple of column positions defining one way the
// table's records are partitioned into packets. Every record is
// stored once per declared index, under that index's own directory
// tree.
type Index struct {
	// Name identifies the index; it becomes a path component under
	// the table's root directory.
	Name string
	// Columns lists, in order, the schema column positions that make
	// up this index's packet path. Must be non-empty and disjoint
	// from the table's unique columns.
	Columns []int
}

func (idx Index) columnAt(level int) (int, bool) {
	if level < 0 || level >= len(idx.Columns) {
		return 0, false
	}
	return idx.Columns[level], true
}
