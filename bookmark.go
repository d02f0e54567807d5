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
	"encoding/base64"
	"encoding/json"
)

// bookmarkFragment pins a query's position within one table/index:
// path is the concatenation of the emitted packet's indexPath values
// followed by the last served record's unique-key column values, in
// the order those columns appear on the index and on the table's
// unique key respectively.
type bookmarkFragment struct {
	TableName string   `json:"tableName"`
	IndexName string   `json:"indexName"`
	Path      []string `json:"path"`
}

type bookmarkDoc struct {
	Fragments []bookmarkFragment `json:"Fragments"`
}

// Bookmark is an opaque, self-describing paging cursor. The only
// operations a host program performs on one are obtaining it from a
// query result and passing it back into a later query.
type Bookmark struct {
	doc bookmarkDoc
}

// String renders the bookmark as the base64 token a host program
// stores and later passes back in.
func (b *Bookmark) String() string {
	if b == nil {
		return ""
	}
	raw, err := json.Marshal(b.doc)
	if err != nil {
		// bookmarkDoc is built entirely from strings; Marshal cannot
		// fail on it.
		panic(err)
	}
	return base64.URLEncoding.EncodeToString(raw)
}

// ParseBookmark decodes a bookmark token previously produced by
// Bookmark.String. Decoding failure is always surfaced as
// InvalidBookmark, never as a lower-level base64/JSON error.
func ParseBookmark(token string) (*Bookmark, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, &InvalidBookmark{Reason: "malformed token", Err: err}
	}
	var doc bookmarkDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &InvalidBookmark{Reason: "malformed token", Err: err}
	}
	return &Bookmark{doc: doc}, nil
}

// fragmentFor returns the fragment matching (tableName, indexName), or
// nil if none matches.
func (b *Bookmark) fragmentFor(tableName, indexName string) *bookmarkFragment {
	if b == nil {
		return nil
	}
	for i := range b.doc.Fragments {
		f := &b.doc.Fragments[i]
		if f.TableName == tableName && f.IndexName == indexName {
			return f
		}
	}
	return nil
}

// newBookmark builds the bookmark produced by a query's
// lastRecordFetched: the packet's indexPath values followed by the
// record's unique-key string values.
func newBookmark[R any](schema Schema[R], idx Index, indexPath []string, r R) *Bookmark {
	unique := schema.UniqueColumns()
	path := make([]string, 0, len(indexPath)+len(unique))
	path = append(path, indexPath...)
	for _, col := range unique {
		path = append(path, schema.ColumnToString(col, schema.GetColumn(r, col)))
	}
	return &Bookmark{doc: bookmarkDoc{Fragments: []bookmarkFragment{{
		TableName: schema.TableName(),
		IndexName: idx.Name,
		Path:      path,
	}}}}
}
