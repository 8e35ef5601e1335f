package filters

import (
	"strings"

	"flynance/internal/core"
	"flynance/internal/period"
)

// Patch is a partial State update. Nil fields are left untouched. Values are
// stored as given; validation belongs to whoever built the patch.
type Patch struct {
	Categories *[]core.CategoryRef `json:"selectedCategories,omitempty"`
	DateRange  *int                `json:"dateRange,omitempty"`
	SearchTerm *string             `json:"searchTerm,omitempty"`
	Mode       *period.Mode        `json:"mode,omitempty"`
	Month      *string             `json:"selectedMonth,omitempty"`
	Year       *string             `json:"selectedYear,omitempty"`
	RangeStart *string             `json:"rangeStart,omitempty"`
	RangeEnd   *string             `json:"rangeEnd,omitempty"`
	Type       *core.TypeFilter    `json:"typeFilter,omitempty"`
}

// Empty reports whether the patch sets nothing.
func (p Patch) Empty() bool {
	return p.Categories == nil && p.DateRange == nil && p.SearchTerm == nil &&
		p.Mode == nil && p.Month == nil && p.Year == nil &&
		p.RangeStart == nil && p.RangeEnd == nil && p.Type == nil
}

// Fields lists the json names of the fields the patch sets.
func (p Patch) Fields() []string {
	var out []string
	add := func(set bool, name string) {
		if set {
			out = append(out, name)
		}
	}
	add(p.Categories != nil, "selectedCategories")
	add(p.DateRange != nil, "dateRange")
	add(p.SearchTerm != nil, "searchTerm")
	add(p.Mode != nil, "mode")
	add(p.Month != nil, "selectedMonth")
	add(p.Year != nil, "selectedYear")
	add(p.RangeStart != nil, "rangeStart")
	add(p.RangeEnd != nil, "rangeEnd")
	add(p.Type != nil, "typeFilter")
	return out
}

func (p Patch) String() string {
	return strings.Join(p.Fields(), ",")
}

// Apply returns s with the patch's fields overwritten.
func (p Patch) Apply(s State) State {
	if p.Categories != nil {
		s.Categories = cloneRefs(*p.Categories)
	}
	if p.DateRange != nil {
		s.DateRange = *p.DateRange
	}
	if p.SearchTerm != nil {
		s.SearchTerm = *p.SearchTerm
	}
	if p.Mode != nil {
		s.Mode = *p.Mode
	}
	if p.Month != nil {
		s.Month = *p.Month
	}
	if p.Year != nil {
		s.Year = *p.Year
	}
	if p.RangeStart != nil {
		s.RangeStart = *p.RangeStart
	}
	if p.RangeEnd != nil {
		s.RangeEnd = *p.RangeEnd
	}
	if p.Type != nil {
		s.Type = *p.Type
	}
	return s
}
