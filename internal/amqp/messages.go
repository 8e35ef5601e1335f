package amqp

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"flynance/internal/filters"
	"flynance/internal/period"
)

// EventFilterApplied names the event published when a session commits filters.
const EventFilterApplied = "filter.applied"

// FilterAppliedEvent describes the shape of a committed filter selection.
// The search text is never carried, only whether one was set.
type FilterAppliedEvent struct {
	EventID       string    `json:"eventId"`
	Event         string    `json:"event"`
	SessionID     string    `json:"sessionId"`
	Mode          string    `json:"mode"`
	Days          int       `json:"days,omitempty"`
	Month         string    `json:"month,omitempty"`
	Year          string    `json:"year,omitempty"`
	TypeFilter    string    `json:"type"`
	CategoryCount int       `json:"categoryCount"`
	HasSearch     bool      `json:"hasSearch"`
	Fallback      bool      `json:"fallback"`
	AppliedAt     time.Time `json:"appliedAt"`
}

// NewFilterAppliedEvent builds an event for the applied state of a session.
func NewFilterAppliedEvent(sessionID string, applied filters.State, res period.Result, at time.Time) *FilterAppliedEvent {
	ev := &FilterAppliedEvent{
		EventID:       uuid.NewString(),
		Event:         EventFilterApplied,
		SessionID:     sessionID,
		Mode:          string(applied.Mode),
		TypeFilter:    string(applied.Type),
		CategoryCount: len(applied.Categories),
		HasSearch:     strings.TrimSpace(applied.SearchTerm) != "",
		Fallback:      res.Fallback(),
		AppliedAt:     at.UTC(),
	}
	switch applied.Mode {
	case period.ModeMonth:
		ev.Month = applied.Month
		ev.Year = applied.Year
	case period.ModeRange:
	default:
		ev.Days = applied.DateRange
	}
	return ev
}

// Validate checks the fields the recorder relies on.
func (m *FilterAppliedEvent) Validate() error {
	var errs []error
	if m.EventID == "" {
		errs = append(errs, errors.New("missing event id"))
	}
	if m.SessionID == "" {
		errs = append(errs, errors.New("missing session id"))
	}
	if m.Mode == "" {
		errs = append(errs, errors.New("missing mode"))
	}
	if m.AppliedAt.IsZero() {
		errs = append(errs, errors.New("missing applied time"))
	}
	return errors.Join(errs...)
}

// ToJSON converts the message to JSON bytes
func (m *FilterAppliedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// FilterAppliedEventFromJSON decodes and validates an event.
func FilterAppliedEventFromJSON(data []byte) (*FilterAppliedEvent, error) {
	var msg FilterAppliedEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
