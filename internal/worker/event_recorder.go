package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"flynance/internal/amqp"
	"flynance/internal/log"
	"flynance/internal/storage"
)

// EventStore persists filter analytics events.
type EventStore interface {
	RecordFilterEvent(ctx context.Context, e storage.FilterEvent) (bool, error)
	FilterModeUsage(ctx context.Context) (map[string]int64, error)
}

// EventRecorder writes consumed filter.applied events to SQLite.
type EventRecorder struct {
	store      EventStore
	now        func() time.Time
	recorded   atomic.Int64
	duplicates atomic.Int64
}

func NewEventRecorder(store EventStore) *EventRecorder {
	return &EventRecorder{store: store, now: time.Now}
}

// HandleFilterApplied stores one event. Redelivered events are acknowledged
// without writing twice.
func (w *EventRecorder) HandleFilterApplied(ctx context.Context, msg *amqp.FilterAppliedEvent) error {
	row := storage.FilterEvent{
		EventID:       msg.EventID,
		SessionID:     msg.SessionID,
		Mode:          msg.Mode,
		Days:          int64(msg.Days),
		Month:         msg.Month,
		Year:          msg.Year,
		TypeFilter:    msg.TypeFilter,
		CategoryCount: int64(msg.CategoryCount),
		HasSearch:     msg.HasSearch,
		Fallback:      msg.Fallback,
		AppliedAt:     msg.AppliedAt.UnixMilli(),
		RecordedAt:    w.now().UnixMilli(),
	}

	inserted, err := w.store.RecordFilterEvent(ctx, row)
	if err != nil {
		return fmt.Errorf("record filter event: %w", err)
	}
	if !inserted {
		w.duplicates.Add(1)
		slog.InfoContext(ctx, "Skipping duplicate filter event", log.FieldEventID, msg.EventID)
		return nil
	}

	w.recorded.Add(1)
	slog.DebugContext(ctx, "Recorded filter event",
		log.FieldOperation, log.OpRecord,
		log.FieldEventID, msg.EventID,
		log.FieldSessionID, msg.SessionID,
		log.FieldMode, msg.Mode,
		log.FieldFallback, msg.Fallback)
	return nil
}

// Counts returns how many events were written and how many were duplicates.
func (w *EventRecorder) Counts() (recorded, duplicates int64) {
	return w.recorded.Load(), w.duplicates.Load()
}

// LogUsage logs the per-mode event totals.
func (w *EventRecorder) LogUsage(ctx context.Context) error {
	usage, err := w.store.FilterModeUsage(ctx)
	if err != nil {
		return fmt.Errorf("filter mode usage: %w", err)
	}
	args := make([]any, 0, len(usage)*2+4)
	for mode, n := range usage {
		args = append(args, "mode_"+mode, n)
	}
	recorded, duplicates := w.Counts()
	args = append(args, "recorded", recorded, "duplicates", duplicates)
	slog.InfoContext(ctx, "Filter usage", args...)
	return nil
}

// RunUsageReporter calls LogUsage every interval until ctx is done.
func (w *EventRecorder) RunUsageReporter(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.LogUsage(ctx); err != nil {
				slog.ErrorContext(ctx, "Failed to report filter usage", "error", err)
			}
		}
	}
}
