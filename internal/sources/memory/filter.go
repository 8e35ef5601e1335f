package memory

import (
	"sort"
	"strings"

	"flynance/internal/core"
	"flynance/internal/period"
	"flynance/internal/query"
)

// Filter applies the listing contract to items: period, type, categories and
// search, newest first, then paginates. Sources that cannot filter upstream
// (memory, Sheets) share it.
func Filter(items []core.Transaction, p query.Params, r *period.Resolver) core.TransactionPage {
	req := p.Parse()
	window := req.Period(r).Period
	search := strings.ToLower(req.Search)

	matched := make([]core.Transaction, 0, len(items))
	for _, t := range items {
		if !window.Contains(t.Date) {
			continue
		}
		if !req.Type.Matches(t.Type) {
			continue
		}
		if !req.HasCategory(t.Category.ID) {
			continue
		}
		if search != "" && !matchesSearch(t, search) {
			continue
		}
		matched = append(matched, t)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[i].Date.After(matched[j].Date)
		}
		return matched[i].ID < matched[j].ID
	})

	page := core.TransactionPage{Page: req.Page, Limit: req.Limit, Total: len(matched)}
	start := req.Offset()
	if start >= len(matched) {
		page.Items = []core.Transaction{}
		return page
	}
	end := start + req.Limit
	if end > len(matched) {
		end = len(matched)
	}
	page.Items = append([]core.Transaction(nil), matched[start:end]...)
	return page
}

func matchesSearch(t core.Transaction, lowered string) bool {
	return strings.Contains(strings.ToLower(t.Description), lowered) ||
		strings.Contains(strings.ToLower(t.Category.Name), lowered)
}
