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

const (
	defaultTransactionParallelism = 4
	defaultQueryParallelism       = 4
	defaultDatabasePath           = "./var/data"
)

// Durability selects how a packet save() durably commits its bytes to
// disk.
type Durability int

const (
	// DurabilityOff overwrites the packet file in place.
	DurabilityOff Durability = iota
	// DurabilityOn writes to a temp file, flushes it, removes the old
	// file, then renames the temp file into place.
	DurabilityOn
)

// Config holds every tunable of a Database. The zero value is usable:
// every field defaults when left unset, following the same "if <= 0,
// use default" convention as Sneller's own QueueRunner.
type Config struct {
	// TransactionParallelism bounds how many packet plans a single
	// commit processes concurrently. Defaults to 4.
	TransactionParallelism int
	// QueryParallelism bounds how many packets a single query keeps
	// in flight at once. Defaults to 4.
	QueryParallelism int
	// DatabasePath is the root directory under which every table's
	// index trees live. Defaults to "./var/data".
	DatabasePath string
	// Durability selects the packet write strategy. Defaults to
	// DurabilityOff.
	Durability Durability
	// Logf, if non-nil, receives operational log lines (packet
	// written, empty packet unlinked). Skipped silently when nil.
	Logf func(format string, args ...any)
}

func (c *Config) transactionParallelism() int {
	if c == nil || c.TransactionParallelism <= 0 {
		return defaultTransactionParallelism
	}
	return c.TransactionParallelism
}

func (c *Config) queryParallelism() int {
	if c == nil || c.QueryParallelism <= 0 {
		return defaultQueryParallelism
	}
	return c.QueryParallelism
}

func (c *Config) databasePath() string {
	if c == nil || c.DatabasePath == "" {
		return defaultDatabasePath
	}
	return c.DatabasePath
}

func (c *Config) durability() Durability {
	if c == nil {
		return DurabilityOff
	}
	return c.Durability
}

func (c *Config) logf(format string, args ...any) {
	if c == nil || c.Logf == nil {
		return
	}
	c.Logf(format, args...)
}
