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

// Package locks implements a process-wide striped lock table keyed by
// packet path. A packet, while owned by a worker holding its lock, is
// the sole authoritative image of its records.
package locks

import (
	"context"
	"hash/maphash"
	"runtime"
	"sync"
)

// Buckets is the number of stripes in the lock table. It should be
// large enough relative to the configured parallelism that collisions
// between unrelated packets are rare.
const Buckets = 4096

// Table is a striped set of mutexes keyed by an arbitrary string path.
// The zero value is ready to use.
//
// Acquisitions must not be nested: a goroutine holding a guard for one
// path must release it before acquiring a guard for another path, since
// the fixed stripe count means two unrelated paths can map to the same
// bucket and a nested acquire would deadlock against itself.
type Table struct {
	seed    maphash.Seed
	once    sync.Once
	buckets [Buckets]sync.Mutex
}

func (t *Table) init() {
	t.once.Do(func() {
		t.seed = maphash.MakeSeed()
	})
}

func (t *Table) bucket(path string) *sync.Mutex {
	t.init()
	h := maphash.String(t.seed, path)
	return &t.buckets[h%Buckets]
}

// Guard releases the lock acquired by Acquire or AcquireContext. Release
// is idempotent: calling it more than once has no additional effect.
type Guard struct {
	mu       *sync.Mutex
	released bool
}

// Release unlocks the stripe this guard holds. It is safe to call
// Release multiple times or via defer alongside an explicit call.
func (g *Guard) Release() {
	if g == nil || g.released {
		return
	}
	g.released = true
	g.mu.Unlock()
}

// Acquire blocks the calling goroutine until the stripe for path is
// available, for use by synchronous workers.
func (t *Table) Acquire(path string) *Guard {
	mu := t.bucket(path)
	mu.Lock()
	return &Guard{mu: mu}
}

// AcquireContext acquires the stripe for path cooperatively: it yields
// to the scheduler while waiting rather than blocking an OS thread, and
// returns ctx.Err() if ctx is canceled before the lock becomes
// available. This is the entry point asynchronous workers should use.
func (t *Table) AcquireContext(ctx context.Context) func(path string) (*Guard, error) {
	return func(path string) (*Guard, error) {
		mu := t.bucket(path)
		for {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			if mu.TryLock() {
				return &Guard{mu: mu}, nil
			}
			runtime.Gosched()
		}
	}
}

// TryAcquire attempts to acquire the stripe for path without blocking,
// returning (nil, false) if it is currently held by another caller.
func (t *Table) TryAcquire(path string) (*Guard, bool) {
	mu := t.bucket(path)
	if mu.TryLock() {
		return &Guard{mu: mu}, true
	}
	return nil, false
}
