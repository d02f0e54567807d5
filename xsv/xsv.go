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

// Package xsv implements the delimited-text row codec used to read and
// write packet files: splitting a row into fields (TsvChopper) and
// writing fields back out as a row (TsvWriter). MapHeader resolves a
// packet's header row against a schema's column names once per packet,
// the step that sits between chopping a row and parsing its values.
package xsv

import "io"

// RowChopper fetches records row-by-row, splitting each into its
// individual fields, until the reader is exhausted (io.EOF).
type RowChopper interface {
	GetNext(r io.Reader) ([]string, error)
}

var _ RowChopper = (*TsvChopper)(nil)
