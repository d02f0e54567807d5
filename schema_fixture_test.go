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

import "strconv"

// impressionRecord and impressionSchema are the fixture used across this
// package's tests: an ad-impression fact table with unique key
// (ad, date) and two indexes, account_date and date_account.
type impressionRecord struct {
	date        string
	account     string
	ad          string
	impressions int
}

const (
	colDate = iota
	colAccount
	colAd
	colImpressions
)

type impressionSchema struct{}

func (impressionSchema) TableName() string { return "impressions" }
func (impressionSchema) ColumnCount() int  { return 4 }

func (impressionSchema) ColumnName(i int) string {
	return [...]string{"date", "account", "ad", "impressions"}[i]
}

func (impressionSchema) NullValue() string { return "" }

func (impressionSchema) UniqueColumns() []int { return []int{colAd, colDate} }

func (impressionSchema) Indexes() []Index {
	return []Index{
		{Name: "account_date", Columns: []int{colAccount, colDate}},
		{Name: "date_account", Columns: []int{colDate, colAccount}},
	}
}

func (impressionSchema) New() *impressionRecord { return &impressionRecord{} }

func (impressionSchema) GetColumn(r *impressionRecord, i int) any {
	switch i {
	case colDate:
		return r.date
	case colAccount:
		return r.account
	case colAd:
		return r.ad
	case colImpressions:
		return r.impressions
	default:
		panic("impressionSchema: bad column")
	}
}

func (impressionSchema) SetColumn(r *impressionRecord, i int, v any) {
	switch i {
	case colDate:
		r.date = v.(string)
	case colAccount:
		r.account = v.(string)
	case colAd:
		r.ad = v.(string)
	case colImpressions:
		r.impressions = v.(int)
	default:
		panic("impressionSchema: bad column")
	}
}

func (impressionSchema) CompareColumn(i int, a, b any) int {
	if i == colImpressions {
		x, y := a.(int), b.(int)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	}
	x, y := a.(string), b.(string)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func (impressionSchema) ColumnToString(i int, v any) string {
	if i == colImpressions {
		return strconv.Itoa(v.(int))
	}
	return v.(string)
}

func (impressionSchema) ColumnFromString(i int, s string) (any, error) {
	if i == colImpressions {
		if s == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, err
		}
		return n, nil
	}
	return s, nil
}

func newImpression(date, account, ad string, impressions int) *impressionRecord {
	return &impressionRecord{date: date, account: account, ad: ad, impressions: impressions}
}
