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

// Package fatcatdb is an embedded, zero-configuration, append-and-upsert
// columnar storage engine for ETL-shaped workloads. Records are grouped
// into "packets" — one gzip-compressed TSV file per distinct value of a
// table's declared index columns — which are the unit of read, write,
// and locking throughout the package.
//
// A Database owns a shared lock table; a Table binds a Schema (the
// generic accessor interface a host record type implements in place of
// reflection) to a Database. Writes go through a Transaction, which
// batches upserts, removals, and bulk query-driven updates/deletes into
// a single commit. Reads go through a QueryBuilder, which plans a query
// against the table's declared indexes and returns a Cursor; cursors
// page via opaque Bookmark tokens rather than numeric offsets.
package fatcatdb
