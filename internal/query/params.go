// Package query binds applied filters to the transaction listing contract.
//
// The contract is the query string of GET /transactions:
// page, limit, mode, days, month, year, search, categoryIds (csv), type.
package query

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"flynance/internal/core"
	"flynance/internal/filters"
	"flynance/internal/period"
)

// Query parameter names.
const (
	KeyPage        = "page"
	KeyLimit       = "limit"
	KeyMode        = "mode"
	KeyDays        = "days"
	KeyMonth       = "month"
	KeyYear        = "year"
	KeySearch      = "search"
	KeyCategoryIDs = "categoryIds"
	KeyType        = "type"
)

// Params is a flat set of listing parameters. A missing key means "not sent".
type Params map[string]string

// FromState maps an applied snapshot to listing parameters. Month mode stays
// month; every other mode is sent as days.
func FromState(s filters.State) Params {
	p := Params{}
	if s.Mode == period.ModeMonth {
		p[KeyMode] = string(period.ModeMonth)
		p[KeyMonth] = s.Month
		p[KeyYear] = s.Year
	} else {
		p[KeyMode] = string(period.ModeDays)
		p[KeyDays] = strconv.Itoa(s.DateRange)
	}
	if term := strings.TrimSpace(s.SearchTerm); term != "" {
		p[KeySearch] = term
	}
	if ids := s.CategoryIDs(); len(ids) > 0 {
		p[KeyCategoryIDs] = strings.Join(ids, ",")
	}
	if s.Type != core.TypeAll && s.Type != "" {
		p[KeyType] = string(s.Type)
	}
	return p
}

// Merge overlays global on caller. Keys present in global always win so that
// no caller can bypass the active filter selection.
func Merge(caller, global Params) Params {
	out := make(Params, len(caller)+len(global))
	for k, v := range caller {
		out[k] = v
	}
	for k, v := range global {
		out[k] = v
	}
	return out
}

// With returns a copy of p with key set to value.
func (p Params) With(key, value string) Params {
	out := make(Params, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	out[key] = value
	return out
}

// Values converts p to url.Values.
func (p Params) Values() url.Values {
	v := make(url.Values, len(p))
	for k, val := range p {
		v.Set(k, val)
	}
	return v
}

// Encode returns the query string with keys sorted.
func (p Params) Encode() string {
	return p.Values().Encode()
}

// Key is the canonical cache identity of p. Equal param sets always yield the
// same key; any differing value yields a different one.
func (p Params) Key() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("transactions")
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p[k]))
	}
	return b.String()
}

// WithoutPaging drops page and limit. Used to key results that span pages.
func (p Params) WithoutPaging() Params {
	out := make(Params, len(p))
	for k, v := range p {
		if k == KeyPage || k == KeyLimit {
			continue
		}
		out[k] = v
	}
	return out
}
