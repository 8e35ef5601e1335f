package query

import (
	"net/url"
	"strconv"
	"strings"

	"flynance/internal/core"
	"flynance/internal/period"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
	// MaxPage bounds page so that offsets stay far from int overflow.
	MaxPage = 1_000_000
)

// Request is a decoded listing query, as seen by a source serving the
// contract.
type Request struct {
	Page        int
	Limit       int
	Mode        period.Mode
	Days        int
	Month       int
	Year        int
	Search      string
	CategoryIDs []string
	Type        core.TypeFilter
}

// ParseRequest decodes listing parameters. Malformed numbers fall back to
// their defaults; it never fails.
func ParseRequest(v url.Values) Request {
	r := Request{
		Page:   atoiDefault(v.Get(KeyPage), DefaultPage),
		Limit:  atoiDefault(v.Get(KeyLimit), DefaultLimit),
		Mode:   period.ParseMode(v.Get(KeyMode)),
		Days:   atoiDefault(v.Get(KeyDays), 0),
		Month:  atoiDefault(v.Get(KeyMonth), 0),
		Year:   atoiDefault(v.Get(KeyYear), 0),
		Search: strings.TrimSpace(v.Get(KeySearch)),
		Type:   core.ParseTypeFilter(v.Get(KeyType)),
	}
	if r.Page < 1 {
		r.Page = DefaultPage
	}
	if r.Page > MaxPage {
		r.Page = MaxPage
	}
	if r.Limit < 1 {
		r.Limit = DefaultLimit
	}
	if r.Limit > MaxLimit {
		r.Limit = MaxLimit
	}
	for _, id := range strings.Split(v.Get(KeyCategoryIDs), ",") {
		if id = strings.TrimSpace(id); id != "" {
			r.CategoryIDs = append(r.CategoryIDs, id)
		}
	}
	return r
}

// Parse decodes p. See ParseRequest.
func (p Params) Parse() Request {
	return ParseRequest(p.Values())
}

// Period resolves the request window with r.
func (q Request) Period(r *period.Resolver) period.Result {
	if r == nil {
		return period.Resolve(q.Input())
	}
	return r.Resolve(q.Input())
}

// Input is the resolver intent carried by the request.
func (q Request) Input() period.Input {
	return period.Input{
		Mode:  q.Mode,
		Days:  q.Days,
		Month: q.Month,
		Year:  q.Year,
	}
}

// Offset is the number of items before the requested page.
func (q Request) Offset() int {
	return (q.Page - 1) * q.Limit
}

// HasCategory reports whether id passes the category filter. An empty filter
// matches everything.
func (q Request) HasCategory(id string) bool {
	if len(q.CategoryIDs) == 0 {
		return true
	}
	for _, c := range q.CategoryIDs {
		if c == id {
			return true
		}
	}
	return false
}

func atoiDefault(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
