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
)

// TestBuildPlanChoosesIndexMatchingSort: a sort of [account, date]
// should bind entirely to account_date, and a sort of [date, account]
// should bind entirely to date_account.
func TestBuildPlanChoosesIndexMatchingSort(t *testing.T) {
	schema := impressionSchema{}

	plan, err := BuildPlan[*impressionRecord](schema, PlanInput[*impressionRecord]{
		Sorting: []SortDirective{{Column: colAccount}, {Column: colDate}},
	})
	require.NoError(t, err)
	require.Equal(t, "account_date", plan.BestIndex.Name)
	require.Len(t, plan.BoundSort, 2)
	require.Empty(t, plan.FreeSort)

	plan2, err := BuildPlan[*impressionRecord](schema, PlanInput[*impressionRecord]{
		Sorting: []SortDirective{{Column: colDate}, {Column: colAccount}},
	})
	require.NoError(t, err)
	require.Equal(t, "date_account", plan2.BestIndex.Name)
	require.Len(t, plan2.BoundSort, 2)
}

// TestBuildPlanInfeasibleSort: impressions is not an index column on
// either declared index, so sorting by account then impressions cannot
// be satisfied.
func TestBuildPlanInfeasibleSort(t *testing.T) {
	schema := impressionSchema{}
	_, err := BuildPlan[*impressionRecord](schema, PlanInput[*impressionRecord]{
		Sorting: []SortDirective{{Column: colAccount}, {Column: colImpressions, Desc: true}},
	})
	require.Error(t, err)
	var infeasible *QueryInfeasible
	require.ErrorAs(t, err, &infeasible)
	require.Contains(t, infeasible.RequestedSort, "account")
	require.Contains(t, infeasible.RequestedSort, "impressions")
}

func TestBuildPlanStrictFilterPrefersMatchingIndex(t *testing.T) {
	schema := impressionSchema{}
	plan, err := BuildPlan[*impressionRecord](schema, PlanInput[*impressionRecord]{
		PathFilters: map[int]*PathFilter{colDate: Equals("2020-01-02")},
	})
	require.NoError(t, err)
	require.Equal(t, "date_account", plan.BestIndex.Name)
	require.Empty(t, plan.FreePathFilters)
}

func TestBuildPlanHintedIndex(t *testing.T) {
	schema := impressionSchema{}
	plan, err := BuildPlan[*impressionRecord](schema, PlanInput[*impressionRecord]{HintedIndex: "date_account"})
	require.NoError(t, err)
	require.Equal(t, "date_account", plan.BestIndex.Name)

	_, err = BuildPlan[*impressionRecord](schema, PlanInput[*impressionRecord]{HintedIndex: "nope"})
	require.Error(t, err)
	var schemaErr *SchemaInvalidError
	require.ErrorAs(t, err, &schemaErr)
}

func TestBuildPlanFreeFiltersExcludeBoundColumns(t *testing.T) {
	schema := impressionSchema{}
	plan, err := BuildPlan[*impressionRecord](schema, PlanInput[*impressionRecord]{
		PathFilters: map[int]*PathFilter{
			colAccount:     Equals("acme"),
			colImpressions: GreaterOrEqual("10"),
		},
	})
	require.NoError(t, err)
	require.Equal(t, "account_date", plan.BestIndex.Name)
	require.Contains(t, plan.FreePathFilters, colImpressions)
	require.NotContains(t, plan.FreePathFilters, colAccount)
}
