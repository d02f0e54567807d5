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

// Package fsutil enumerates one level of a packet directory tree at a
// time. A level's entries are either subdirectories (intermediate
// index columns) or packet files (the last index column); both carry
// an encoded column value as their name, which this package decodes
// before handing entries to the caller. The query engine keeps its own
// stack of open levels, so nothing here ever descends on its own.
package fsutil

import (
	"io/fs"
	"strings"

	"github.com/fatcatdb/fatcatdb/filenames"
)

// PacketSuffix is the file-name suffix every packet file carries. Only
// names ending in it are treated as packets; anything else at the leaf
// level (editor droppings, an interrupted durable write's temp file)
// is skipped rather than misread as data.
const PacketSuffix = ".tsv.gz"

// LevelEntry is one child of an index level.
type LevelEntry struct {
	// Encoded is the on-disk name, with PacketSuffix already stripped
	// at the leaf level.
	Encoded string
	// Value is the column string value the name encodes.
	Value string
}

// LevelFS can be implemented by a file system that lists an index
// level without a full directory read, e.g. one backed by a sorted
// name index.
type LevelFS interface {
	fs.FS
	ListLevel(leaf bool, fn func(e LevelEntry) error) error
}

// ListLevel calls fn for each entry of the index level rooted at
// fsys. When leaf is true only packet files are visited, otherwise
// only directories. Entry names are decoded before fn sees them; the
// visit order is unspecified (callers sort by the column's own value
// type, which encoded names do not preserve the order of).
//
// A missing level directory is the caller's signal that no packet has
// ever been written below it; the fs.ErrNotExist from the underlying
// read is returned as-is so callers can treat it as an empty level.
func ListLevel(fsys fs.FS, leaf bool, fn func(e LevelEntry) error) error {
	if lfs, ok := fsys.(LevelFS); ok {
		return lfs.ListLevel(leaf, fn)
	}
	list, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return err
	}
	for _, d := range list {
		name, ok := levelName(d.Name(), d.IsDir(), leaf)
		if !ok {
			continue
		}
		if err := fn(LevelEntry{Encoded: name, Value: filenames.Decode(name)}); err != nil {
			return err
		}
	}
	return nil
}

// levelName reports whether a directory entry belongs to the level
// being listed and, for packet files, strips the suffix.
func levelName(name string, isDir, leaf bool) (string, bool) {
	if !leaf {
		return name, isDir
	}
	if isDir || !strings.HasSuffix(name, PacketSuffix) {
		return "", false
	}
	return strings.TrimSuffix(name, PacketSuffix), true
}
