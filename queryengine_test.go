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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fatcatdb/fatcatdb/locks"
)

func savePacket(t *testing.T, dbRoot string, schema Schema[*impressionRecord], idx Index, pathValues []string, cfg *Config, recs ...*impressionRecord) {
	t.Helper()
	p := newPacket[*impressionRecord](schema, schema.TableName(), idx, pathValues)
	for _, r := range recs {
		p.Set(uniqueKey[*impressionRecord](schema, r), r)
	}
	require.NoError(t, p.Save(dbRoot, cfg))
}

func seedDatabase(t *testing.T) (string, impressionSchema) {
	t.Helper()
	dbRoot := t.TempDir()
	schema := impressionSchema{}
	cfg := &Config{}
	idx := schema.Indexes()[0] // account_date

	savePacket(t, dbRoot, schema, idx, []string{"acme", "2020-01-01"}, cfg,
		newImpression("2020-01-01", "acme", "ad1", 10),
		newImpression("2020-01-01", "acme", "ad2", 20))
	savePacket(t, dbRoot, schema, idx, []string{"acme", "2020-01-02"}, cfg,
		newImpression("2020-01-02", "acme", "ad1", 30))
	savePacket(t, dbRoot, schema, idx, []string{"globex", "2020-01-01"}, cfg,
		newImpression("2020-01-01", "globex", "ad3", 40))

	return dbRoot, schema
}

func TestCollectIndexPathsOrdersAndFilters(t *testing.T) {
	dbRoot, schema := seedDatabase(t)
	idx := schema.Indexes()[0]

	paths, err := collectIndexPaths[*impressionRecord](dbRoot, schema, idx, nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, paths, 3)

	strict := map[int]*PathFilter{colAccount: Equals("acme")}
	paths, err = collectIndexPaths[*impressionRecord](dbRoot, schema, idx, strict, nil, nil)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	for _, p := range paths {
		require.Equal(t, "acme", p[0])
	}
}

func TestCollectIndexPathsMissingDirectoryIsNotAnError(t *testing.T) {
	dbRoot := t.TempDir()
	schema := impressionSchema{}
	idx := schema.Indexes()[0]
	paths, err := collectIndexPaths[*impressionRecord](dbRoot, schema, idx, nil, nil, nil)
	require.NoError(t, err)
	require.Empty(t, paths)
}

func TestLoadPacketsParallelDecodesEveryPath(t *testing.T) {
	dbRoot, schema := seedDatabase(t)
	idx := schema.Indexes()[0]
	lockTable := &locks.Table{}

	paths, err := collectIndexPaths[*impressionRecord](dbRoot, schema, idx, nil, nil, nil)
	require.NoError(t, err)

	packets, err := loadPacketsParallel[*impressionRecord](schema, lockTable, dbRoot, schema.TableName(), idx, paths, DecodeOptions[*impressionRecord]{}, 2)
	require.NoError(t, err)
	require.Len(t, packets, len(paths))

	total := 0
	for _, p := range packets {
		total += len(p.List())
	}
	require.Equal(t, 4, total)
}

func TestRunQueryHonorsLimitWithPathFilterAndSort(t *testing.T) {
	dbRoot, schema := seedDatabase(t)
	cfg := &Config{DatabasePath: dbRoot}
	lockTable := &locks.Table{}

	plan, err := BuildPlan[*impressionRecord](schema, PlanInput[*impressionRecord]{
		PathFilters: map[int]*PathFilter{colAccount: Equals("acme")},
		Sorting:     []SortDirective{{Column: colDate}},
		Limit:       1,
	})
	require.NoError(t, err)

	cursor, err := RunQuery[*impressionRecord](schema, lockTable, cfg, plan)
	require.NoError(t, err)

	rec, ok, err := cursor.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2020-01-01", rec.date)

	_, ok, err = cursor.Next()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRunQueryBookmarkResumesAfterLastRecord(t *testing.T) {
	dbRoot, schema := seedDatabase(t)
	cfg := &Config{DatabasePath: dbRoot}
	lockTable := &locks.Table{}

	plan, err := BuildPlan[*impressionRecord](schema, PlanInput[*impressionRecord]{
		PathFilters: map[int]*PathFilter{colAccount: Equals("acme")},
	})
	require.NoError(t, err)

	cursor, err := RunQuery[*impressionRecord](schema, lockTable, cfg, plan)
	require.NoError(t, err)

	var last *impressionRecord
	for {
		rec, ok, err := cursor.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		last = rec
	}
	require.NotNil(t, last)
	bm := cursor.Bookmark()
	require.NotNil(t, bm)

	plan2, err := BuildPlan[*impressionRecord](schema, PlanInput[*impressionRecord]{
		PathFilters: map[int]*PathFilter{colAccount: Equals("acme")},
		Bookmark:    bm,
	})
	require.NoError(t, err)
	cursor2, err := RunQuery[*impressionRecord](schema, lockTable, cfg, plan2)
	require.NoError(t, err)
	_, ok, err := cursor2.Next()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRunQueryInvalidBookmarkWhenRecordRemoved(t *testing.T) {
	dbRoot, schema := seedDatabase(t)
	cfg := &Config{DatabasePath: dbRoot}
	lockTable := &locks.Table{}
	idx := schema.Indexes()[0]

	rec := newImpression("2020-01-01", "acme", "ad1", 10)
	bm := newBookmark[*impressionRecord](schema, idx, []string{"acme", "2020-01-01"}, rec)

	removed := newPacket[*impressionRecord](schema, schema.TableName(), idx, []string{"acme", "2020-01-01"})
	require.NoError(t, removed.Load(dbRoot))
	require.NoError(t, removed.Decode(DecodeOptions[*impressionRecord]{}))
	removed.Remove(uniqueKey[*impressionRecord](schema, rec))
	require.NoError(t, removed.Save(dbRoot, &Config{}))

	plan, err := BuildPlan[*impressionRecord](schema, PlanInput[*impressionRecord]{Bookmark: bm})
	require.NoError(t, err)

	_, err = RunQuery[*impressionRecord](schema, lockTable, cfg, plan)
	require.Error(t, err)
	var invalid *InvalidBookmark
	require.ErrorAs(t, err, &invalid)
}
