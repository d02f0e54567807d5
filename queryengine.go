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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/fatcatdb/fatcatdb/filenames"
	"github.com/fatcatdb/fatcatdb/fsutil"
	"github.com/fatcatdb/fatcatdb/locks"
)

// levelEntry is one decoded, typed directory entry at a given index
// level, carried alongside its string form for re-encoding into the
// next level's path.
type levelEntry struct {
	str string
	val any
}

// collectIndexPaths walks index's directory tree under dbRoot and
// returns, in the order the query must emit them, every packet path
// (one []string per packet, one entry per index column) that survives
// pathFilters and the bookmark's afterValues pruning.
//
// The whole tree is walked up front rather than lazily as the deepest
// level is drained; packet loading still happens in a separate,
// bounded-concurrency stage in loadPacketsParallel. A table's
// directory fan-out is expected to be small relative to its record
// volume, so materializing the surviving path list is cheap next to
// loading the packets themselves.
func collectIndexPaths[R any](dbRoot string, schema Schema[R], index Index, pathFilters map[int]*PathFilter, directions map[int]bool, afterValues []string) ([][]string, error) {
	var out [][]string
	var walk func(dir string, level int, acc []string, onBoundary bool) error
	walk = func(dir string, level int, acc []string, onBoundary bool) error {
		if level == len(index.Columns) {
			out = append(out, acc)
			return nil
		}
		col := index.Columns[level]
		isLast := level == len(index.Columns)-1

		if f := pathFilters[col]; f != nil && f.IsStrict() {
			v := f.StrictStringValue()
			next := append(append([]string{}, acc...), v)
			stillBoundary := onBoundary && level < len(afterValues) && v == afterValues[level]
			return walk(filepath.Join(dir, filenames.Encode(v)), level+1, next, stillBoundary)
		}

		var entries []levelEntry
		err := fsutil.ListLevel(os.DirFS(dir), isLast, func(e fsutil.LevelEntry) error {
			if f := pathFilters[col]; f != nil && !f.Evaluate(e.Value) {
				return nil
			}
			val, err := schema.ColumnFromString(col, e.Value)
			if err != nil {
				return nil
			}
			entries = append(entries, levelEntry{str: e.Value, val: val})
			return nil
		})
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return &IoFailure{Path: dir, Phase: "read", Err: err}
		}

		desc := directions[col]
		sort.SliceStable(entries, func(i, j int) bool {
			c := schema.CompareColumn(col, entries[i].val, entries[j].val)
			if desc {
				c = -c
			}
			return c < 0
		})

		// The bookmark's afterValue for this level only prunes while the
		// accumulated path still equals the bookmark's own prefix: a
		// subtree that already diverged at an earlier level sorts
		// entirely after the bookmarked record, so every entry in it
		// must survive.
		if onBoundary && level < len(afterValues) {
			if afterVal, err := schema.ColumnFromString(col, afterValues[level]); err == nil {
				kept := entries[:0]
				for _, e := range entries {
					c := schema.CompareColumn(col, e.val, afterVal)
					if (desc && c <= 0) || (!desc && c >= 0) {
						kept = append(kept, e)
					}
				}
				entries = kept
			}
		}

		for _, e := range entries {
			next := append(append([]string{}, acc...), e.str)
			stillBoundary := onBoundary && level < len(afterValues) && e.str == afterValues[level]
			if err := walk(filepath.Join(dir, filenames.Encode(e.str)), level+1, next, stillBoundary); err != nil {
				return err
			}
		}
		return nil
	}
	err := walk(filepath.Join(dbRoot, schema.TableName(), index.Name), 0, nil, len(afterValues) > 0)
	return out, err
}

// loadPacketsParallel loads and decodes every packet named by paths,
// bounded to parallelism in-flight loads at once. Every packet's
// bytes are read under its lock; the lock is released before the
// CPU-bound decode. The first error from any worker is returned only
// after every worker has run to completion.
func loadPacketsParallel[R any](schema Schema[R], lockTable *locks.Table, dbRoot, table string, index Index, paths [][]string, opts DecodeOptions[R], parallelism int) ([]*Packet[R], error) {
	results := make([]*Packet[R], len(paths))
	g := new(errgroup.Group)
	g.SetLimit(parallelism)
	for i, pv := range paths {
		i, pv := i, pv
		g.Go(func() error {
			pk := newPacket(schema, table, index, pv)
			guard := lockTable.Acquire(pk.Path(dbRoot))
			err := pk.Load(dbRoot)
			guard.Release()
			if err != nil {
				return err
			}
			if err := pk.Decode(opts); err != nil {
				return err
			}
			results[i] = pk
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// recordItem is one record emitted by a Cursor, tagged with the
// packet it came from so the cursor can produce a bookmark.
type recordItem[R any] struct {
	record    R
	index     Index
	indexPath []string
}

// Cursor streams a query's result records in the order prescribed by
// its Plan, honoring Limit.
type Cursor[R any] struct {
	schema Schema[R]
	ch     <-chan recordItem[R]
	stop   chan struct{}
	once   sync.Once

	limit  int64
	served int64

	lastFetched   *R
	lastIndex     Index
	lastIndexPath []string
}

// Next returns the next record in the query's result order. The
// second return value is false once the query is exhausted (or the
// limit has been reached); a non-nil error means the query failed
// and no further calls should be made.
func (c *Cursor[R]) Next() (R, bool, error) {
	var zero R
	if c.limit > 0 && c.served >= c.limit {
		c.Close()
		return zero, false, nil
	}
	item, ok := <-c.ch
	if !ok {
		return zero, false, nil
	}
	c.served++
	rec := item.record
	c.lastFetched = &rec
	c.lastIndex = item.index
	c.lastIndexPath = item.indexPath
	return item.record, true, nil
}

// Close releases the cursor's producer. It is called automatically
// when Next reaches the query's limit; callers abandoning a cursor
// early should call it themselves. Close is idempotent.
func (c *Cursor[R]) Close() {
	c.once.Do(func() { close(c.stop) })
}

// Bookmark returns a continuation token for the last record served by
// Next, or nil if Next has not yet returned a record.
func (c *Cursor[R]) Bookmark() *Bookmark {
	if c.lastFetched == nil {
		return nil
	}
	return newBookmark(c.schema, c.lastIndex, c.lastIndexPath, *c.lastFetched)
}

// RunQuery executes plan against the table rooted at cfg's database
// path, returning a Cursor over the matching records.
func RunQuery[R any](schema Schema[R], lockTable *locks.Table, cfg *Config, plan *Plan[R]) (*Cursor[R], error) {
	dbRoot := cfg.databasePath()
	table := schema.TableName()

	directions := make(map[int]bool, len(plan.BoundSort))
	for _, d := range plan.BoundSort {
		directions[d.Column] = d.Desc
	}

	boundFilters := make(map[int]*PathFilter, len(plan.Input.PathFilters))
	for col, f := range plan.Input.PathFilters {
		if slices.Contains(plan.BestIndex.Columns, col) {
			boundFilters[col] = f
		}
	}

	var afterValues []string
	var cursorUnique string
	haveCursor := false
	if plan.Input.Bookmark != nil {
		frag := plan.Input.Bookmark.fragmentFor(table, plan.BestIndex.Name)
		if frag == nil {
			return nil, &InvalidBookmark{Reason: fmt.Sprintf("no fragment for table %q index %q", table, plan.BestIndex.Name)}
		}
		arity := len(plan.BestIndex.Columns)
		unique := schema.UniqueColumns()
		if len(frag.Path) != arity+len(unique) {
			return nil, &InvalidBookmark{Reason: "fragment path does not match this index"}
		}
		afterValues = frag.Path[:arity]
		cursorUnique = indexPathString(frag.Path[arity:])
		haveCursor = true

		verify := newPacket(schema, table, plan.BestIndex, afterValues)
		guard := lockTable.Acquire(verify.Path(dbRoot))
		lerr := verify.Load(dbRoot)
		guard.Release()
		if lerr != nil {
			return nil, lerr
		}
		if derr := verify.Decode(DecodeOptions[R]{}); derr != nil {
			return nil, derr
		}
		if _, ok := verify.Get(cursorUnique); !ok {
			return nil, &InvalidBookmark{Reason: "bookmarked record no longer exists"}
		}
	}

	paths, err := collectIndexPaths(dbRoot, schema, plan.BestIndex, boundFilters, directions, afterValues)
	if err != nil {
		return nil, err
	}

	decodeOpts := DecodeOptions[R]{
		BoundFilters: plan.FreePathFilters,
		FlexFilters:  plan.Input.FlexFilters,
		Sort:         plan.FreeSort,
	}
	packets, err := loadPacketsParallel(schema, lockTable, dbRoot, table, plan.BestIndex, paths, decodeOpts, cfg.queryParallelism())
	if err != nil {
		return nil, err
	}

	ch := make(chan recordItem[R])
	stop := make(chan struct{})
	go func() {
		defer close(ch)
		skipping := haveCursor
		for pi, pk := range packets {
			pv := paths[pi]
			for _, rec := range pk.List() {
				if skipping {
					if uniqueKey(schema, rec) == cursorUnique {
						skipping = false
					}
					continue
				}
				select {
				case ch <- recordItem[R]{record: rec, index: plan.BestIndex, indexPath: pv}:
				case <-stop:
					return
				}
			}
		}
	}()

	return &Cursor[R]{schema: schema, ch: ch, stop: stop, limit: plan.Input.Limit}, nil
}
