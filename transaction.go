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
	"sync"

	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/fatcatdb/fatcatdb/locks"
)

// packetPlanKey identifies one PacketPlan: a single packet, addressed
// by the index that produced it and the string form of its path.
type packetPlanKey struct {
	indexName string
	pathStr   string
}

// packetPlan accumulates the upserts and removes a transaction has
// queued for one packet. It is committed as a single unit under one
// packet lock.
type packetPlan[R any] struct {
	index      Index
	pathValues []string
	upserts    map[string]R
	removes    map[string]bool
}

type queryMutation[R any] struct {
	pathFilters map[int]*PathFilter
	flexFilters []func(R) bool
	hintedIndex string
}

// packetCollector gathers the distinct (index, indexPath) pairs a
// query-style update or delete touches in indexes other than the one
// it walked, so the mutation can be fanned out to every redundant
// copy of the affected records.
type packetCollector[R any] struct {
	mu      sync.Mutex
	entries map[string]*collectorEntry
}

type collectorEntry struct {
	index      Index
	pathValues []string
	uniques    map[string]bool
}

func newPacketCollector[R any]() *packetCollector[R] {
	return &packetCollector[R]{entries: make(map[string]*collectorEntry)}
}

func (c *packetCollector[R]) add(index Index, pathValues []string, unique string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := index.Name + "\x00" + indexPathString(pathValues)
	e, ok := c.entries[key]
	if !ok {
		e = &collectorEntry{index: index, pathValues: pathValues, uniques: make(map[string]bool)}
		c.entries[key] = e
	}
	e.uniques[unique] = true
}

// Transaction batches add/remove/query-update/query-delete operations
// and commits them as a single unit: every index's copy of every
// touched record is kept in sync, with per-packet mutual exclusion
// provided by the shared lock table.
type Transaction[R any] struct {
	schema    Schema[R]
	lockTable *locks.Table
	cfg       *Config

	plans map[packetPlanKey]*packetPlan[R]

	onUpdate func(old, new R) (result R, keep bool)

	queryDelete *queryMutation[R]
	queryUpdate *queryMutation[R]
	updater     func(r *R)
}

// NewTransaction starts a new, empty transaction against a table.
func NewTransaction[R any](schema Schema[R], lockTable *locks.Table, cfg *Config) *Transaction[R] {
	return &Transaction[R]{
		schema:    schema,
		lockTable: lockTable,
		cfg:       cfg,
		plans:     make(map[packetPlanKey]*packetPlan[R]),
	}
}

// SetOnUpdate registers the hook invoked, under the packet lock, for
// every upsert that replaces an existing record. hook returns the
// record to store; keep=false discards the upsert entirely.
func (tx *Transaction[R]) SetOnUpdate(hook func(old, new R) (result R, keep bool)) {
	tx.onUpdate = hook
}

// Add queues an upsert of r, expanded across every index the table
// declares.
func (tx *Transaction[R]) Add(r R) {
	u := uniqueKey(tx.schema, r)
	for _, idx := range tx.schema.Indexes() {
		p := tx.planFor(idx, indexPathValues(tx.schema, idx, r))
		delete(p.removes, u)
		p.upserts[u] = r
	}
}

// Remove queues removal of the record whose unique and indexed
// columns match r (the caller need not supply every column, only
// enough to compute each index's path and r's unique key).
func (tx *Transaction[R]) Remove(r R) {
	u := uniqueKey(tx.schema, r)
	for _, idx := range tx.schema.Indexes() {
		p := tx.planFor(idx, indexPathValues(tx.schema, idx, r))
		delete(p.upserts, u)
		p.removes[u] = true
	}
}

// QueryDelete registers a bulk delete executed as Commit's first
// phase: every record in the hinted (or heuristically chosen) index
// matching pathFilters and flexFilters is removed, and the removal is
// fanned out to that record's copies under every other index.
func (tx *Transaction[R]) QueryDelete(pathFilters map[int]*PathFilter, flexFilters []func(R) bool, hintedIndex string) {
	tx.queryDelete = &queryMutation[R]{pathFilters: pathFilters, flexFilters: flexFilters, hintedIndex: hintedIndex}
}

// QueryUpdate registers a bulk update executed as Commit's second
// phase: updater is invoked for every matching record; it must not
// change any of the table's indexed columns, or the commit fails with
// IllegalUpdate.
func (tx *Transaction[R]) QueryUpdate(pathFilters map[int]*PathFilter, flexFilters []func(R) bool, hintedIndex string, updater func(r *R)) {
	tx.queryUpdate = &queryMutation[R]{pathFilters: pathFilters, flexFilters: flexFilters, hintedIndex: hintedIndex}
	tx.updater = updater
}

func (tx *Transaction[R]) planFor(idx Index, pathValues []string) *packetPlan[R] {
	key := packetPlanKey{indexName: idx.Name, pathStr: indexPathString(pathValues)}
	p, ok := tx.plans[key]
	if !ok {
		p = &packetPlan[R]{index: idx, pathValues: pathValues, upserts: make(map[string]R), removes: make(map[string]bool)}
		tx.plans[key] = p
	}
	return p
}

func (tx *Transaction[R]) dbRoot() string { return tx.cfg.databasePath() }

// withPacket loads the packet at (index, pathValues) under its lock,
// runs fn against it (fn is responsible for decoding with whatever
// options it needs), and saves the result before releasing the lock.
// The lock is held across the entire read-modify-write cycle, never
// released between load and save.
func (tx *Transaction[R]) withPacket(index Index, pathValues []string, fn func(pk *Packet[R]) error) error {
	pk := newPacket(tx.schema, tx.schema.TableName(), index, pathValues)
	guard := tx.lockTable.Acquire(pk.Path(tx.dbRoot()))
	defer guard.Release()
	if err := pk.Load(tx.dbRoot()); err != nil {
		return err
	}
	if err := fn(pk); err != nil {
		return err
	}
	return pk.Save(tx.dbRoot(), tx.cfg)
}

func bestIndexFilters[R any](plan *Plan[R]) map[int]*PathFilter {
	out := make(map[int]*PathFilter, len(plan.Input.PathFilters))
	for col, f := range plan.Input.PathFilters {
		if slices.Contains(plan.BestIndex.Columns, col) {
			out[col] = f
		}
	}
	return out
}

// Commit executes the transaction's three phases in order, each
// bounded by TransactionParallelism: query-delete, query-update, then
// every queued upsert/remove packet plan. The transaction is left
// empty afterward regardless of outcome.
func (tx *Transaction[R]) Commit() error {
	defer func() {
		tx.plans = make(map[packetPlanKey]*packetPlan[R])
		tx.queryDelete = nil
		tx.queryUpdate = nil
		tx.updater = nil
	}()

	if err := tx.runQueryDelete(); err != nil {
		return err
	}
	if err := tx.runQueryUpdate(); err != nil {
		return err
	}
	return tx.runPacketPlans()
}

func (tx *Transaction[R]) runQueryDelete() error {
	if tx.queryDelete == nil {
		return nil
	}
	qd := tx.queryDelete
	plan, err := BuildPlan(tx.schema, PlanInput[R]{PathFilters: qd.pathFilters, FlexFilters: qd.flexFilters, HintedIndex: qd.hintedIndex})
	if err != nil {
		return err
	}
	paths, err := collectIndexPaths(tx.dbRoot(), tx.schema, plan.BestIndex, bestIndexFilters(plan), nil, nil)
	if err != nil {
		return err
	}

	collector := newPacketCollector[R]()
	g := new(errgroup.Group)
	g.SetLimit(tx.cfg.transactionParallelism())
	for _, pv := range paths {
		pv := pv
		g.Go(func() error {
			return tx.withPacket(plan.BestIndex, pv, func(pk *Packet[R]) error {
				// Decode unfiltered so records the delete does not match are
				// saved back unchanged.
				if err := pk.Decode(DecodeOptions[R]{}); err != nil {
					return err
				}
				for _, rec := range pk.Records() {
					matched := true
					for col, f := range plan.FreePathFilters {
						matched = matched && f.Evaluate(tx.schema.ColumnToString(col, tx.schema.GetColumn(rec, col)))
					}
					for _, ff := range qd.flexFilters {
						matched = matched && ff(rec)
					}
					if !matched {
						continue
					}
					u := uniqueKey(tx.schema, rec)
					pk.Remove(u)
					for _, idx := range tx.schema.Indexes() {
						if idx.Name == plan.BestIndex.Name {
							continue
						}
						collector.add(idx, indexPathValues(tx.schema, idx, rec), u)
					}
				}
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	g2 := new(errgroup.Group)
	g2.SetLimit(tx.cfg.transactionParallelism())
	for _, e := range collector.entries {
		e := e
		g2.Go(func() error {
			return tx.withPacket(e.index, e.pathValues, func(pk *Packet[R]) error {
				if err := pk.Decode(DecodeOptions[R]{}); err != nil {
					return err
				}
				for u := range e.uniques {
					pk.Remove(u)
				}
				return nil
			})
		})
	}
	return g2.Wait()
}

func (tx *Transaction[R]) runQueryUpdate() error {
	if tx.queryUpdate == nil {
		return nil
	}
	qu := tx.queryUpdate
	plan, err := BuildPlan(tx.schema, PlanInput[R]{PathFilters: qu.pathFilters, FlexFilters: qu.flexFilters, HintedIndex: qu.hintedIndex})
	if err != nil {
		return err
	}
	paths, err := collectIndexPaths(tx.dbRoot(), tx.schema, plan.BestIndex, bestIndexFilters(plan), nil, nil)
	if err != nil {
		return err
	}

	collector := newPacketCollector[R]()
	var mu sync.Mutex
	updatedByUnique := make(map[string]R)

	g := new(errgroup.Group)
	g.SetLimit(tx.cfg.transactionParallelism())
	for _, pv := range paths {
		pv := pv
		g.Go(func() error {
			return tx.withPacket(plan.BestIndex, pv, func(pk *Packet[R]) error {
				// Decode unfiltered so records the update does not match are
				// saved back unchanged.
				if err := pk.Decode(DecodeOptions[R]{}); err != nil {
					return err
				}
				for _, old := range pk.Records() {
					matched := true
					for col, f := range plan.FreePathFilters {
						matched = matched && f.Evaluate(tx.schema.ColumnToString(col, tx.schema.GetColumn(old, col)))
					}
					for _, ff := range qu.flexFilters {
						matched = matched && ff(old)
					}
					if !matched {
						continue
					}
					u := uniqueKey(tx.schema, old)
					oldPath := indexPathString(indexPathValues(tx.schema, plan.BestIndex, old))
					newRec := old
					tx.updater(&newRec)
					if oldPath != indexPathString(indexPathValues(tx.schema, plan.BestIndex, newRec)) {
						return &IllegalUpdate{Table: tx.schema.TableName(), Reason: "query update changed an indexed column on index " + plan.BestIndex.Name}
					}
					pk.Set(u, newRec)

					mu.Lock()
					updatedByUnique[u] = newRec
					mu.Unlock()

					for _, idx := range tx.schema.Indexes() {
						if idx.Name == plan.BestIndex.Name {
							continue
						}
						collector.add(idx, indexPathValues(tx.schema, idx, newRec), u)
					}
				}
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	g2 := new(errgroup.Group)
	g2.SetLimit(tx.cfg.transactionParallelism())
	for _, e := range collector.entries {
		e := e
		g2.Go(func() error {
			return tx.withPacket(e.index, e.pathValues, func(pk *Packet[R]) error {
				if err := pk.Decode(DecodeOptions[R]{}); err != nil {
					return err
				}
				for u := range e.uniques {
					newRec, ok := updatedByUnique[u]
					if !ok {
						continue
					}
					if indexPathString(indexPathValues(tx.schema, e.index, newRec)) != indexPathString(e.pathValues) {
						return &IllegalUpdate{Table: tx.schema.TableName(), Reason: "query update changed an indexed column on index " + e.index.Name}
					}
					pk.Set(u, newRec)
				}
				return nil
			})
		})
	}
	return g2.Wait()
}

func (tx *Transaction[R]) runPacketPlans() error {
	g := new(errgroup.Group)
	g.SetLimit(tx.cfg.transactionParallelism())
	for _, p := range tx.plans {
		p := p
		g.Go(func() error {
			return tx.withPacket(p.index, p.pathValues, func(pk *Packet[R]) error {
				if err := pk.Decode(DecodeOptions[R]{}); err != nil {
					return err
				}
				for u, newRec := range p.upserts {
					if tx.onUpdate != nil {
						if old, ok := pk.Get(u); ok {
							result, keep := tx.onUpdate(old, newRec)
							if !keep {
								continue
							}
							if indexPathString(indexPathValues(tx.schema, p.index, result)) != indexPathString(p.pathValues) {
								return &IllegalUpdate{Table: tx.schema.TableName(), Reason: "onUpdate hook changed an indexed column on index " + p.index.Name}
							}
							newU := uniqueKey(tx.schema, result)
							if newU != u {
								pk.Remove(u)
							}
							pk.Set(newU, result)
							continue
						}
					}
					pk.Set(u, newRec)
				}
				for u := range p.removes {
					pk.Remove(u)
				}
				return nil
			})
		})
	}
	return g.Wait()
}
