package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"flynance/internal/amqp"
	"flynance/internal/core"
	"flynance/internal/filters"
	"flynance/internal/log"
	"flynance/internal/middleware/trace"
	"flynance/internal/period"
)

// FiltersView is the JSON form of a session's filter store.
type FiltersView struct {
	Draft             filters.State `json:"draft"`
	Applied           filters.State `json:"applied"`
	HasPendingChanges bool          `json:"hasPendingChanges"`
	Version           uint64        `json:"version"`
	Period            period.Result `json:"period"`
}

func newFiltersView(store *filters.Store) FiltersView {
	snap := store.Snapshot()
	return FiltersView{
		Draft:             withCategories(snap.Draft),
		Applied:           withCategories(snap.Applied),
		HasPendingChanges: snap.HasPendingChanges(),
		Version:           snap.Version,
		Period:            store.Period(),
	}
}

// withCategories makes an empty selection encode as [] rather than null.
func withCategories(s filters.State) filters.State {
	if s.Categories == nil {
		s.Categories = []core.CategoryRef{}
	}
	return s
}

func (s *Server) handleGetFilters(w http.ResponseWriter, r *http.Request) {
	_, store := s.sessions.Load(w, r)
	NewJSONResponse().Body(newFiltersView(store)).Write(w)
}

func (s *Server) handlePatchDraft(w http.ResponseWriter, r *http.Request) {
	s.patchFilters(w, r, (*filters.Store).UpdateDraft)
}

func (s *Server) handlePatchApplied(w http.ResponseWriter, r *http.Request) {
	s.patchFilters(w, r, (*filters.Store).UpdateApplied)
}

func (s *Server) patchFilters(w http.ResponseWriter, r *http.Request, update func(*filters.Store, filters.Patch)) {
	ctx := r.Context()
	sessionID, store := s.sessions.Load(w, r)

	patch, err := ParsePatch(w, r)
	if err != nil {
		s.requestError(w, r, err)
		return
	}

	update(store, patch)
	s.logger.DebugContext(ctx, "Filters updated",
		log.FieldSessionID, sessionID,
		log.FieldPath, r.URL.Path,
		"fields", patch.String())

	NewJSONResponse().Body(newFiltersView(store)).Write(w)
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, store := s.sessions.Load(w, r)

	before := store.Snapshot().Version
	store.Apply()
	after := store.Snapshot()

	if after.Version != before {
		res := store.Period()
		a := after.Applied
		fields := log.NewFields().WithFilters(string(a.Mode), a.DateRange, a.Month, a.Year,
			string(a.Type), len(a.Categories), a.SearchTerm != "")
		s.sl.LogFiltersApplied(ctx, sessionID, fields, after.Version, res.Fallback())
		s.publishApplied(ctx, sessionID, a, res)
	}

	NewJSONResponse().Body(newFiltersView(store)).Write(w)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	sessionID, store := s.sessions.Load(w, r)
	store.Clear()
	s.logger.InfoContext(r.Context(), "Filters cleared",
		log.FieldSessionID, sessionID,
		log.FieldOperation, log.OpClear)
	NewJSONResponse().Body(newFiltersView(store)).Write(w)
}

func (s *Server) handlePeriod(w http.ResponseWriter, r *http.Request) {
	in := PeriodInput(r.URL.Query())
	var res period.Result
	if s.resolver != nil {
		res = s.resolver.Resolve(in)
	} else {
		res = period.Resolve(in)
	}
	if res.Fallback() {
		s.logger.DebugContext(r.Context(), "Period fell back to default",
			log.FieldMode, string(in.Mode),
			log.FieldReason, res.Reason)
	}
	NewJSONResponse().Body(res).Write(w)
}

// publishApplied announces a committed selection. Failures are logged and do
// not fail the request.
func (s *Server) publishApplied(ctx context.Context, sessionID string, applied filters.State, res period.Result) {
	if s.publisher == nil {
		return
	}
	ev := amqp.NewFilterAppliedEvent(sessionID, applied, res, time.Now())
	if err := s.publisher.PublishFilterApplied(context.WithoutCancel(ctx), ev); err != nil {
		fields := log.NewFields().WithSession(sessionID)
		fields[log.FieldEventID] = ev.EventID
		s.sl.LogError(ctx, "Failed to publish filter event", err, log.ComponentAMQP, log.OpPublish, fields)
	}
}

func (s *Server) requestError(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		reqErr = badRequest("%v", err)
	}
	s.logger.WarnContext(r.Context(), "Rejected request",
		log.FieldPath, r.URL.Path,
		log.FieldStatusCode, reqErr.Status,
		log.FieldError, reqErr.Message)
	reqErr.Response().RequestID(trace.GetRequestID(r.Context())).Write(w)
}
