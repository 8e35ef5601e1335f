package http

// This file decodes and validates filter patches and listing queries.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"flynance/internal/core"
	"flynance/internal/filters"
	"flynance/internal/period"
	"flynance/internal/query"
)

const (
	maxBodyBytes    = 16 << 10
	maxSearchLength = 200
	maxCategories   = 100
)

// RequestError carries the status a malformed request should be answered
// with.
type RequestError struct {
	Status  int
	Message string
	Fields  []string
}

func (e *RequestError) Error() string {
	return e.Message
}

// Response converts the error to its JSON response.
func (e *RequestError) Response() *JSONResponseBuilder {
	if e.Status == http.StatusUnprocessableEntity {
		return UnprocessableEntityError(e.Message, e.Fields...)
	}
	return ErrorResponse(e.Status, e.Message)
}

func badRequest(format string, args ...any) *RequestError {
	return &RequestError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

func invalidField(field, format string, args ...any) *RequestError {
	return &RequestError{
		Status:  http.StatusUnprocessableEntity,
		Message: fmt.Sprintf(format, args...),
		Fields:  []string{field},
	}
}

// ParsePatch reads a JSON filter patch from the request body. Unknown fields
// are rejected, as are patches that set nothing.
func ParsePatch(w http.ResponseWriter, r *http.Request) (filters.Patch, error) {
	var p filters.Patch

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return p, &RequestError{Status: http.StatusRequestEntityTooLarge, Message: "request body too large"}
		case errors.Is(err, io.EOF):
			return p, badRequest("request body is empty")
		default:
			return p, badRequest("invalid filter patch: %v", err)
		}
	}
	if dec.More() {
		return p, badRequest("request body must hold a single JSON object")
	}
	if p.Empty() {
		return p, badRequest("filter patch sets no fields")
	}
	if err := normalizePatch(&p); err != nil {
		return p, err
	}
	return p, nil
}

// normalizePatch trims and validates the fields a patch sets. Mode and type
// must be known values; dates and numbers are kept as given and left to the
// resolver, which falls back on anything it cannot use.
func normalizePatch(p *filters.Patch) error {
	if p.Mode != nil {
		m := period.ParseMode(string(*p.Mode))
		switch m {
		case period.ModeDays, period.ModeMonth, period.ModeRange:
		default:
			return invalidField("mode", "unknown mode %q", string(*p.Mode))
		}
		p.Mode = &m
	}
	if p.Type != nil {
		t := core.TypeFilter(strings.ToUpper(strings.TrimSpace(string(*p.Type))))
		switch t {
		case core.TypeAll, core.TypeIncome, core.TypeExpense:
		default:
			return invalidField("typeFilter", "unknown type filter %q", string(*p.Type))
		}
		p.Type = &t
	}
	if p.SearchTerm != nil {
		term := truncateRunes(sanitizeInput(*p.SearchTerm), maxSearchLength)
		p.SearchTerm = &term
	}
	if p.Categories != nil {
		refs := *p.Categories
		if len(refs) > maxCategories {
			return invalidField("selectedCategories", "at most %d categories can be selected", maxCategories)
		}
		out := make([]core.CategoryRef, 0, len(refs))
		for _, c := range refs {
			c.ID = strings.TrimSpace(c.ID)
			if c.ID == "" {
				return invalidField("selectedCategories", "category id cannot be empty")
			}
			c.Name = sanitizeInput(c.Name)
			out = append(out, c)
		}
		p.Categories = &out
	}
	for _, f := range []*string{p.Month, p.Year, p.RangeStart, p.RangeEnd} {
		if f != nil {
			*f = strings.TrimSpace(*f)
		}
	}
	return nil
}

// CallerParams picks the listing contract keys out of a query string. The
// global filter selection is merged over them later, so only paging and
// keys the filters leave unset survive.
func CallerParams(v url.Values) query.Params {
	p := query.Params{}
	for _, key := range []string{
		query.KeyPage, query.KeyLimit, query.KeyMode, query.KeyDays, query.KeyMonth,
		query.KeyYear, query.KeySearch, query.KeyCategoryIDs, query.KeyType,
	} {
		if val := strings.TrimSpace(v.Get(key)); val != "" {
			p[key] = sanitizeInput(val)
		}
	}
	return p
}

// PeriodInput decodes an ad-hoc resolver intent from query parameters.
// Malformed numbers are passed through as zero and resolved as unset.
func PeriodInput(v url.Values) period.Input {
	q := query.ParseRequest(v)
	in := q.Input()
	in.RangeStart = strings.TrimSpace(v.Get("rangeStart"))
	in.RangeEnd = strings.TrimSpace(v.Get("rangeEnd"))
	in.Timezone = strings.TrimSpace(v.Get("timezone"))
	switch strings.ToLower(strings.TrimSpace(v.Get("includeFuture"))) {
	case "1", "true", "yes":
		in.IncludeFuture = true
	}
	return in
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
