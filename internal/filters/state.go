// Package filters holds the dashboard's user-editable transaction filters.
//
// Filters live in two immutable snapshots: Draft, edited live by the filter
// UI, and Applied, the committed copy used for data fetches. The Store moves
// between them through explicit transitions; see Store.
package filters

import (
	"strconv"
	"strings"
	"time"

	"flynance/internal/core"
	"flynance/internal/period"
)

// State is one filter snapshot. Treat it as a value: Store hands out copies.
type State struct {
	Categories []core.CategoryRef `json:"selectedCategories"`
	DateRange  int                `json:"dateRange"`
	SearchTerm string             `json:"searchTerm"`
	Mode       period.Mode        `json:"mode"`
	Month      string             `json:"selectedMonth"`
	Year       string             `json:"selectedYear"`
	RangeStart string             `json:"rangeStart"`
	RangeEnd   string             `json:"rangeEnd"`
	Type       core.TypeFilter    `json:"typeFilter"`
}

// DefaultState builds the cleared filter set around a days-mode window: 30
// days, no categories, ALL types, the window's month selected and the window
// itself as the default range.
func DefaultState(window period.Resolved) State {
	loc, err := time.LoadLocation(window.Timezone)
	if err != nil {
		loc = time.UTC
	}
	from := window.DateFrom.In(loc)
	to := window.DateTo.In(loc)
	return State{
		DateRange:  period.DefaultDays,
		Mode:       period.ModeDays,
		Month:      strconv.Itoa(int(to.Month())),
		Year:       strconv.Itoa(to.Year()),
		RangeStart: from.Format(period.ISODate),
		RangeEnd:   to.Format(period.ISODate),
		Type:       core.TypeAll,
	}
}

// CategoryIDs returns the selected ids in selection order.
func (s State) CategoryIDs() []string {
	ids := make([]string, 0, len(s.Categories))
	for _, c := range s.Categories {
		ids = append(ids, c.ID)
	}
	return ids
}

// Equal compares categories as id sets and every other field by value.
func (s State) Equal(o State) bool {
	return s.DateRange == o.DateRange &&
		s.SearchTerm == o.SearchTerm &&
		s.Mode == o.Mode &&
		s.Month == o.Month &&
		s.Year == o.Year &&
		s.RangeStart == o.RangeStart &&
		s.RangeEnd == o.RangeEnd &&
		s.Type == o.Type &&
		sameIDSet(s.Categories, o.Categories)
}

// Input converts the snapshot into a resolver intent. Unparseable month or
// year strings become zero and make the resolver fall back.
func (s State) Input() period.Input {
	month, _ := strconv.Atoi(strings.TrimSpace(s.Month))
	year, _ := strconv.Atoi(strings.TrimSpace(s.Year))
	return period.Input{
		Mode:       s.Mode,
		Days:       s.DateRange,
		Month:      month,
		Year:       year,
		RangeStart: s.RangeStart,
		RangeEnd:   s.RangeEnd,
	}
}

func (s State) clone() State {
	s.Categories = cloneRefs(s.Categories)
	return s
}

func cloneRefs(in []core.CategoryRef) []core.CategoryRef {
	if len(in) == 0 {
		return nil
	}
	out := make([]core.CategoryRef, len(in))
	copy(out, in)
	return out
}

func sameIDSet(a, b []core.CategoryRef) bool {
	left := make(map[string]struct{}, len(a))
	for _, c := range a {
		left[c.ID] = struct{}{}
	}
	right := make(map[string]struct{}, len(b))
	for _, c := range b {
		right[c.ID] = struct{}{}
	}
	if len(left) != len(right) {
		return false
	}
	for id := range left {
		if _, ok := right[id]; !ok {
			return false
		}
	}
	return true
}
