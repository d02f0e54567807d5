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

import "golang.org/x/exp/slices"

// IndexPriority controls how the planner breaks ties between
// candidate indexes when more than one could serve a query.
type IndexPriority int

const (
	// PriorityFiltering prefers the index whose columns are pinned
	// by strict equals filters over one that merely matches the
	// requested sort order. This is the default.
	PriorityFiltering IndexPriority = iota
	// PrioritySorting prefers the index that matches the requested
	// sort order over one pinned by strict filters.
	PrioritySorting
)

// SortDirective names one column of a requested sort order.
type SortDirective struct {
	Column int
	Desc   bool
}

// PlanInput is everything a query builder supplies to construct a
// Plan.
type PlanInput[R any] struct {
	PathFilters map[int]*PathFilter
	FlexFilters []func(R) bool
	Sorting     []SortDirective
	Limit       int64
	Bookmark    *Bookmark
	// HintedIndex, if non-empty, bypasses index selection entirely
	// and pins the plan to the named index.
	HintedIndex string
	// Priority controls index selection when HintedIndex is empty.
	// Defaults to PriorityFiltering.
	Priority IndexPriority
}

// Plan is the result of binding a PlanInput against a table's schema:
// the chosen index plus the partition of the requested filters and
// sort into the part absorbed by the directory path (bound) and the
// part applied after a packet is loaded (free).
type Plan[R any] struct {
	Input PlanInput[R]

	BestIndex       Index
	FreePathFilters map[int]*PathFilter
	FreeSort        []SortDirective
	BoundSort       []SortDirective
}

// BuildPlan selects the best index for in and computes its bound/free
// filter and sort partition. Returns QueryInfeasible if the requested
// sort cannot be satisfied by any path through the chosen index.
func BuildPlan[R any](schema Schema[R], in PlanInput[R]) (*Plan[R], error) {
	indexes := schema.Indexes()
	best, err := chooseIndex(indexes, in)
	if err != nil {
		return nil, err
	}

	strict := strictColumnSet(in.PathFilters)
	boundSort, freeSort, infeasibleAt := partitionSort(best, in.Sorting, strict)
	if infeasibleAt {
		return nil, infeasibleError(indexes, schema, in.Sorting)
	}

	freeFilters := make(map[int]*PathFilter, len(in.PathFilters))
	for col, f := range in.PathFilters {
		if !slices.Contains(best.Columns, col) {
			freeFilters[col] = f
		}
	}

	return &Plan[R]{
		Input:           in,
		BestIndex:       best,
		FreePathFilters: freeFilters,
		FreeSort:        freeSort,
		BoundSort:       boundSort,
	}, nil
}

func chooseIndex[R any](indexes []Index, in PlanInput[R]) (Index, error) {
	if in.HintedIndex != "" {
		for _, idx := range indexes {
			if idx.Name == in.HintedIndex {
				return idx, nil
			}
		}
		return Index{}, &SchemaInvalidError{Reason: "hinted index " + in.HintedIndex + " is not declared on this table"}
	}
	strict := strictColumnSet(in.PathFilters)
	sortCols := sortColumns(in.Sorting)
	priority := in.Priority

	best := indexes[0]
	for _, candidate := range indexes[1:] {
		best = betterIndex(best, candidate, strict, sortCols, priority)
	}
	return best, nil
}

func sortColumns(sorting []SortDirective) []int {
	out := make([]int, len(sorting))
	for i, s := range sorting {
		out[i] = s.Column
	}
	return out
}

// betterIndex performs level-by-level index selection: descend while
// both candidates agree on the column at the
// current level; at the first level they disagree, the candidate
// whose primary criterion (strict filter under PriorityFiltering,
// sort match under PrioritySorting) wins, the secondary criterion
// breaks a primary tie, and a full tie (including both candidates
// running out of columns) keeps a (the declaration-order incumbent).
func betterIndex(a, b Index, strict map[int]bool, sortCols []int, priority IndexPriority) Index {
	for level := 0; ; level++ {
		colA, okA := a.columnAt(level)
		colB, okB := b.columnAt(level)
		if okA && okB && colA == colB {
			continue
		}
		rankA, rankB := 0, 0
		if okA {
			rankA = criterionRank(strict[colA], sortPosAt(a, level, strict, sortCols) < len(sortCols) && sortCols[sortPosAt(a, level, strict, sortCols)] == colA, priority)
		}
		if okB {
			rankB = criterionRank(strict[colB], sortPosAt(b, level, strict, sortCols) < len(sortCols) && sortCols[sortPosAt(b, level, strict, sortCols)] == colB, priority)
		}
		switch {
		case rankA > rankB:
			return a
		case rankB > rankA:
			return b
		default:
			// full tie at this level (including both exhausted):
			// declaration order wins, i.e. keep the incumbent.
			return a
		}
	}
}

func criterionRank(isStrict, matchesSort bool, priority IndexPriority) int {
	primary, secondary := isStrict, matchesSort
	if priority == PrioritySorting {
		primary, secondary = matchesSort, isStrict
	}
	rank := 0
	if primary {
		rank += 2
	}
	if secondary {
		rank++
	}
	return rank
}

// sortPosAt returns how many leading sort directives are already
// consumed (bound) by idx's columns before level, simulating the same
// bound/free accounting partitionSort performs for the finally chosen
// index.
func sortPosAt(idx Index, level int, strict map[int]bool, sortCols []int) int {
	pos := 0
	for j := 0; j < level && j < len(idx.Columns); j++ {
		col := idx.Columns[j]
		if strict[col] {
			continue
		}
		if pos < len(sortCols) && sortCols[pos] == col {
			pos++
		}
	}
	return pos
}

// partitionSort walks best's columns in order, consuming bound slots
// (strict filters) and sort slots (sorting directives) to check the
// requested sort is feasible. Once a column neither binds to a
// strict filter nor to the next unresolved sort directive, it becomes
// an unconstrained partition level of the directory tree: if any sort
// directive is still unresolved at that point, free-sorting within
// the eventual leaf packet can no longer reproduce the requested
// global order across the now-fragmented ties, so the plan is
// infeasible.
func partitionSort(best Index, sorting []SortDirective, strict map[int]bool) (bound, free []SortDirective, infeasible bool) {
	sortPos := 0
	for _, col := range best.Columns {
		if strict[col] {
			continue
		}
		if sortPos < len(sorting) && sorting[sortPos].Column == col {
			bound = append(bound, sorting[sortPos])
			sortPos++
			continue
		}
		if sortPos < len(sorting) {
			return nil, nil, true
		}
	}
	free = append(free, sorting[sortPos:]...)
	return bound, free, false
}

func infeasibleError[R any](indexes []Index, schema Schema[R], sorting []SortDirective) *QueryInfeasible {
	requested := make([]string, len(sorting))
	for i, s := range sorting {
		requested[i] = schema.ColumnName(s.Column)
	}
	prefixes := make(map[string][]string, len(indexes))
	for _, idx := range indexes {
		cols := make([]string, len(idx.Columns))
		for i, c := range idx.Columns {
			cols[i] = schema.ColumnName(c)
		}
		prefixes[idx.Name] = cols
	}
	return &QueryInfeasible{RequestedSort: requested, AdmissiblePrefixes: prefixes}
}
