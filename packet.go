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
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/fatcatdb/fatcatdb/compr"
	"github.com/fatcatdb/fatcatdb/filenames"
	"github.com/fatcatdb/fatcatdb/fsutil"
	"github.com/fatcatdb/fatcatdb/xsv"
)

// Packet is the in-memory image of one <table>/<index>/<path>.tsv.gz
// file: the smallest unit of read, write, and locking. Loading and
// decoding are separate steps so a caller can read a packet's bytes
// while holding its lock and then decode them off-lock.
type Packet[R any] struct {
	schema     Schema[R]
	table      string
	index      Index
	pathValues []string
	codec      string

	path    string
	raw     []byte
	present bool

	records map[string]R
	list    []R
}

func newPacket[R any](schema Schema[R], table string, index Index, pathValues []string) *Packet[R] {
	return &Packet[R]{
		schema:     schema,
		table:      table,
		index:      index,
		pathValues: pathValues,
		codec:      compr.Default,
		records:    make(map[string]R),
	}
}

// Path returns the packet's on-disk file path rooted at dbRoot.
func (p *Packet[R]) Path(dbRoot string) string {
	parts := make([]string, 0, 3+len(p.pathValues))
	parts = append(parts, dbRoot, p.table, p.index.Name)
	for _, v := range p.pathValues {
		parts = append(parts, filenames.Encode(v))
	}
	last := len(parts) - 1
	parts[last] = parts[last] + fsutil.PacketSuffix
	return filepath.Join(parts...)
}

// Load reads the packet's compressed bytes into memory, if the file
// exists. A missing file is not an error; present will be false and
// Decode will produce an empty packet.
func (p *Packet[R]) Load(dbRoot string) error {
	p.path = p.Path(dbRoot)
	raw, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		p.present = false
		return nil
	}
	if err != nil {
		return &IoFailure{Path: p.path, Phase: "read", Err: err}
	}
	p.raw = raw
	p.present = true
	return nil
}

// DecodeOptions controls how Decode filters and orders the records it
// produces. The zero value decodes every record in declaration order,
// which is what the transaction engine wants before mutating a
// packet; the query engine supplies BoundFilters/FlexFilters/Sort.
type DecodeOptions[R any] struct {
	// BoundFilters are evaluated against each row's own on-disk
	// string columns, before a record is even materialized. Keyed by
	// schema column position. These are the query plan's
	// FreePathFilters: filters the directory walk could not absorb.
	BoundFilters map[int]*PathFilter
	// FlexFilters are evaluated against the fully materialized
	// record; all must return true for the row to survive.
	FlexFilters []func(R) bool
	// Sort stably reorders the decoded result list. Null comparisons
	// follow CompareColumn's own ordering; this package does not
	// special-case nulls beyond what the schema reports.
	Sort []SortDirective
}

// Decode parses the packet's loaded bytes (a no-op if Load found
// nothing) and populates both the packet's unique-key map and an
// ordered result list honoring opts.
func (p *Packet[R]) Decode(opts DecodeOptions[R]) error {
	p.records = make(map[string]R)
	p.list = nil
	if !p.present {
		return nil
	}

	reader, err := compr.Get(p.codec).NewReader(bytes.NewReader(p.raw))
	if err != nil {
		return &PacketCorrupt{Path: p.path, Line: 0, Err: err}
	}
	defer reader.Close()

	var chopper xsv.TsvChopper
	header, err := chopper.GetNext(reader)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return &PacketCorrupt{Path: p.path, Line: chopper.Line(), Err: err}
	}

	schemaColByName := make(map[string]int, p.schema.ColumnCount())
	for i := 0; i < p.schema.ColumnCount(); i++ {
		schemaColByName[p.schema.ColumnName(i)] = i
	}
	hm := xsv.MapHeader(header, p.schema.ColumnCount(), func(name string) (int, bool) {
		col, ok := schemaColByName[name]
		return col, ok
	})
	mapping, present := hm.FieldColumn, hm.Present

	for {
		fields, err := chopper.GetNext(reader)
		if err == io.EOF {
			break
		}
		if err != nil {
			return &PacketCorrupt{Path: p.path, Line: chopper.Line(), Err: err}
		}
		if len(fields) != len(header) {
			return &PacketCorrupt{
				Path: p.path, Line: chopper.Line(),
				Err: fmt.Errorf("expected %d columns, got %d", len(header), len(fields)),
			}
		}

		skip := false
		for i, col := range mapping {
			if col < 0 {
				continue
			}
			if f, ok := opts.BoundFilters[col]; ok && !f.Evaluate(fields[i]) {
				skip = true
				break
			}
		}
		if skip {
			continue
		}

		rec := p.schema.New()
		for i, col := range mapping {
			if col < 0 {
				continue
			}
			v, err := p.schema.ColumnFromString(col, fields[i])
			if err != nil {
				return &PacketCorrupt{Path: p.path, Line: chopper.Line(), Err: err}
			}
			p.schema.SetColumn(rec, col, v)
		}
		for col := 0; col < p.schema.ColumnCount(); col++ {
			if present[col] {
				continue
			}
			v, err := p.schema.ColumnFromString(col, p.schema.NullValue())
			if err != nil {
				return &PacketCorrupt{Path: p.path, Line: chopper.Line(), Err: err}
			}
			p.schema.SetColumn(rec, col, v)
		}

		ok := true
		for _, ff := range opts.FlexFilters {
			if !ff(rec) {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}

		key := uniqueKey(p.schema, rec)
		p.records[key] = rec
		p.list = append(p.list, rec)
	}

	if len(opts.Sort) > 0 {
		sort.SliceStable(p.list, func(i, j int) bool {
			for _, d := range opts.Sort {
				c := p.schema.CompareColumn(d.Column,
					p.schema.GetColumn(p.list[i], d.Column),
					p.schema.GetColumn(p.list[j], d.Column))
				if d.Desc {
					c = -c
				}
				if c != 0 {
					return c < 0
				}
			}
			return false
		})
	}
	return nil
}

// Get returns the record stored under unique, if any.
func (p *Packet[R]) Get(unique string) (R, bool) {
	r, ok := p.records[unique]
	return r, ok
}

// Set stores r under unique, replacing any existing record.
func (p *Packet[R]) Set(unique string, r R) {
	p.records[unique] = r
}

// Remove deletes the record stored under unique, if any.
func (p *Packet[R]) Remove(unique string) {
	delete(p.records, unique)
}

// Empty reports whether the packet currently holds no records.
func (p *Packet[R]) Empty() bool {
	return len(p.records) == 0
}

// Records returns every currently stored record, ordered by unique
// key for determinism.
func (p *Packet[R]) Records() []R {
	keys := sortedUniqueKeys(p.records)
	out := make([]R, len(keys))
	for i, k := range keys {
		out[i] = p.records[k]
	}
	return out
}

// List returns the decoded, filtered, and (if requested) sorted
// result list produced by the most recent Decode call. This is what
// the query engine drains; transaction commits use Records/Get/Set
// instead.
func (p *Packet[R]) List() []R {
	return p.list
}

// Encode renders the packet's current records as the compressed byte
// stream its Save writes out: a header row of the schema's column
// names followed by one row per record, ordered by unique key.
func (p *Packet[R]) Encode() ([]byte, error) {
	var buf bytes.Buffer
	w, err := compr.Get(p.codec).NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	tw := xsv.NewTsvWriter(w)

	header := make([]string, p.schema.ColumnCount())
	for i := range header {
		header[i] = p.schema.ColumnName(i)
	}
	if err := tw.WriteRow(header); err != nil {
		return nil, err
	}
	for _, key := range sortedUniqueKeys(p.records) {
		rec := p.records[key]
		row := make([]string, p.schema.ColumnCount())
		for i := range row {
			row[i] = p.schema.ColumnToString(i, p.schema.GetColumn(rec, i))
		}
		if err := tw.WriteRow(row); err != nil {
			return nil, err
		}
	}
	if err := tw.Flush(); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the packet's current records to dbRoot, honoring
// cfg's durability setting. A packet left with no records is
// unlinked rather than written as an empty file, keeping the
// directory tree free of tombstones that would otherwise need to be
// told apart from "never written" at every level of a query's walk.
func (p *Packet[R]) Save(dbRoot string, cfg *Config) error {
	path := p.Path(dbRoot)
	if p.Empty() {
		err := os.Remove(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &IoFailure{Path: path, Phase: "delete", Err: err}
		}
		cfg.logf("fatcatdb: unlinked empty packet %s", path)
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &IoFailure{Path: dir, Phase: "create-dir", Err: err}
	}

	data, err := p.Encode()
	if err != nil {
		return err
	}

	if cfg.durability() == DurabilityOn {
		tmp := path + "." + uuid.NewString() + ".tmp"
		if err := writeFileFsync(tmp, data); err != nil {
			return &IoFailure{Path: tmp, Phase: "write", Err: err}
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &IoFailure{Path: path, Phase: "delete", Err: fmt.Errorf(
				"data safely written to %s but old file could not be removed (%w); recover manually by renaming %s to %s",
				tmp, err, tmp, path)}
		}
		if err := os.Rename(tmp, path); err != nil {
			return &IoFailure{Path: path, Phase: "rename", Err: fmt.Errorf(
				"data safely written to %s but rename failed (%w); recover manually by renaming %s to %s",
				tmp, err, tmp, path)}
		}
	} else {
		if err := writeFileFsync(path, data); err != nil {
			return &IoFailure{Path: path, Phase: "write", Err: err}
		}
	}
	cfg.logf("fatcatdb: wrote packet %s (%d records)", path, len(p.records))
	return nil
}

func writeFileFsync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
