// Package period resolves dashboard filter intents into concrete time windows.
//
// A filter intent is one of three modes: a trailing (or forward) window of N
// days, a calendar month, or an explicit date range. Resolution never fails:
// invalid month or range input degrades to the days-mode window, and the
// returned Result says so through its Kind and Reason so callers can tell a
// requested window from a guessed one.
package period

import (
	"strings"
	"time"
)

// Mode is the period-selection strategy.
type Mode string

const (
	ModeDays  Mode = "days"
	ModeMonth Mode = "month"
	ModeRange Mode = "range"
)

// DefaultDays is the trailing window used when no day count is given.
const DefaultDays = 30

// ISODate is the layout of range bounds.
const ISODate = "2006-01-02"

const labelLayout = "02/01/2006"

// Kind tells a requested window apart from a fallback.
type Kind string

const (
	KindResolved Kind = "resolved"
	KindFallback Kind = "fallback"
)

// ParseMode normalises user input; unknown values stay as given so the
// resolver can report them.
func ParseMode(s string) Mode {
	return Mode(strings.ToLower(strings.TrimSpace(s)))
}

// Input is a filter intent. Only the fields of the selected mode are read.
type Input struct {
	Mode Mode

	// Days is the window length in days mode. Zero means unset (DefaultDays);
	// negative values are floored to 1.
	Days          int
	IncludeFuture bool

	Month int // 1-12
	Year  int

	RangeStart string // ISO date
	RangeEnd   string // ISO date

	// Timezone is an IANA name. Empty selects the resolver default.
	Timezone string
	// Now overrides the resolver clock for a single call.
	Now time.Time
}

// Resolved is a concrete, unambiguous window. DateFrom and DateTo are UTC
// instants of the local-calendar boundaries in Timezone.
type Resolved struct {
	Mode              Mode      `json:"mode"`
	DateFrom          time.Time `json:"dateFrom"`
	DateTo            time.Time `json:"dateTo"`
	Timezone          string    `json:"timezone"`
	IncludeFutureDays int       `json:"includeFutureDays"`
	Label             string    `json:"label"`
}

// Days is the number of calendar days the window spans.
func (r Resolved) Days() int {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		loc = time.UTC
	}
	from := r.DateFrom.In(loc)
	to := r.DateTo.In(loc)
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours()/24) + 1
}

// Contains reports whether t falls inside the window, bounds inclusive.
func (r Resolved) Contains(t time.Time) bool {
	return !t.Before(r.DateFrom) && !t.After(r.DateTo)
}

// Result is the tagged outcome of a resolution.
type Result struct {
	Kind   Kind     `json:"kind"`
	Reason string   `json:"reason,omitempty"`
	Period Resolved `json:"period"`
}

// Fallback reports whether the input was bad and the default window was used.
func (r Result) Fallback() bool {
	return r.Kind == KindFallback
}
