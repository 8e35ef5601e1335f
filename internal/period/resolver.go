package period

import (
	"fmt"
	"strings"
	"time"
)

// Resolver turns Inputs into Results. The zero value uses the wall clock and
// the process local timezone.
type Resolver struct {
	// Now is the clock; nil means time.Now.
	Now func() time.Time
	// DefaultTimezone is used when an Input carries none.
	DefaultTimezone string
}

// New returns a Resolver bound to the given default timezone.
func New(defaultTimezone string) *Resolver {
	return &Resolver{DefaultTimezone: defaultTimezone}
}

var std = &Resolver{}

// Resolve resolves in with the package default resolver.
func Resolve(in Input) Result {
	return std.Resolve(in)
}

// Resolve converts a filter intent into a concrete window. It never fails.
func (r *Resolver) Resolve(in Input) Result {
	loc, reasons := r.location(in.Timezone)

	now := in.Now
	if now.IsZero() {
		now = r.now()
	}
	now = now.In(loc)

	switch in.Mode {
	case ModeRange:
		p, why := resolveRange(in.RangeStart, in.RangeEnd, loc)
		if why == "" {
			return finish(reasons, p)
		}
		reasons = append(reasons, why)
	case ModeMonth:
		p, why := resolveMonth(in.Month, in.Year, loc)
		if why == "" {
			return finish(reasons, p)
		}
		reasons = append(reasons, why)
	case ModeDays, "":
	default:
		reasons = append(reasons, fmt.Sprintf("unknown mode %q", string(in.Mode)))
	}

	return finish(reasons, resolveDays(in.Days, in.IncludeFuture, now, loc))
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Resolver) location(name string) (*time.Location, []string) {
	name = strings.TrimSpace(name)
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc, nil
		}
		return r.defaultLocation(), []string{fmt.Sprintf("unknown timezone %q", name)}
	}
	return r.defaultLocation(), nil
}

func (r *Resolver) defaultLocation() *time.Location {
	if r.DefaultTimezone != "" {
		if loc, err := time.LoadLocation(r.DefaultTimezone); err == nil {
			return loc
		}
	}
	return time.Local
}

func finish(reasons []string, p Resolved) Result {
	p.Label = label(p)
	p.Timezone = timezoneName(p.DateFrom.Location())
	p.DateFrom = p.DateFrom.UTC()
	p.DateTo = p.DateTo.UTC()
	if len(reasons) > 0 {
		return Result{Kind: KindFallback, Reason: strings.Join(reasons, "; "), Period: p}
	}
	return Result{Kind: KindResolved, Period: p}
}

func resolveDays(days int, includeFuture bool, now time.Time, loc *time.Location) Resolved {
	if days == 0 {
		days = DefaultDays
	}
	if days < 1 {
		days = 1
	}
	y, m, d := now.Date()
	if includeFuture {
		return Resolved{
			Mode:              ModeDays,
			DateFrom:          startOfDay(y, m, d, loc),
			DateTo:            endOfDay(y, m, d+days-1, loc),
			IncludeFutureDays: days - 1,
		}
	}
	return Resolved{
		Mode:     ModeDays,
		DateFrom: startOfDay(y, m, d-(days-1), loc),
		DateTo:   endOfDay(y, m, d, loc),
	}
}

func resolveMonth(month, year int, loc *time.Location) (Resolved, string) {
	if month < 1 || month > 12 {
		return Resolved{}, fmt.Sprintf("month %d out of range", month)
	}
	if year < 1 {
		return Resolved{}, fmt.Sprintf("year %d out of range", year)
	}
	return Resolved{
		Mode:     ModeMonth,
		DateFrom: startOfDay(year, time.Month(month), 1, loc),
		// day 0 of the next month is the last day of this one
		DateTo: endOfDay(year, time.Month(month)+1, 0, loc),
	}, ""
}

func resolveRange(rawStart, rawEnd string, loc *time.Location) (Resolved, string) {
	if strings.TrimSpace(rawStart) == "" || strings.TrimSpace(rawEnd) == "" {
		return Resolved{}, "range requires both start and end"
	}
	start, ok := parseDate(rawStart, loc)
	if !ok {
		return Resolved{}, fmt.Sprintf("malformed range start %q", rawStart)
	}
	end, ok := parseDate(rawEnd, loc)
	if !ok {
		return Resolved{}, fmt.Sprintf("malformed range end %q", rawEnd)
	}
	if start.After(end) {
		return Resolved{}, "range start is after range end"
	}
	sy, sm, sd := start.Date()
	ey, em, ed := end.Date()
	return Resolved{
		Mode:     ModeRange,
		DateFrom: startOfDay(sy, sm, sd, loc),
		DateTo:   endOfDay(ey, em, ed, loc),
	}, ""
}

// parseDate reads an ISO date, or an RFC 3339 timestamp whose calendar date in
// loc is used.
func parseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(ISODate, s, loc); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		y, m, d := t.In(loc).Date()
		return startOfDay(y, m, d, loc), true
	}
	return time.Time{}, false
}

func startOfDay(y int, m time.Month, d int, loc *time.Location) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func endOfDay(y int, m time.Month, d int, loc *time.Location) time.Time {
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), loc)
}

func label(p Resolved) string {
	return p.DateFrom.Format(labelLayout) + " - " + p.DateTo.Format(labelLayout)
}

func timezoneName(loc *time.Location) string {
	if loc == nil {
		return "UTC"
	}
	return loc.String()
}
