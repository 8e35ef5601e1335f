package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"flynance/internal/core"
	"flynance/internal/log"
	"flynance/internal/middleware/trace"
	"flynance/internal/period"
	"flynance/internal/services"
	"flynance/internal/sources"
)

type transactionsResponse struct {
	sources.PageJSON
	HasMore bool          `json:"hasMore"`
	Period  period.Result `json:"period"`
}

type categoryAmountJSON struct {
	Category core.CategoryRef `json:"category"`
	Amount   decimal.Decimal  `json:"amount"`
}

type summaryResponse struct {
	Label      string               `json:"label"`
	Income     decimal.Decimal      `json:"income"`
	Expense    decimal.Decimal      `json:"expense"`
	Balance    decimal.Decimal      `json:"balance"`
	Formatted  map[string]string    `json:"formatted"`
	Count      int                  `json:"count"`
	ByCategory []categoryAmountJSON `json:"byCategory"`
	Period     period.Result        `json:"period"`
	Truncated  bool                 `json:"truncated"`
}

func newSummaryResponse(r services.Report) summaryResponse {
	sum := r.Summary
	out := summaryResponse{
		Label:   sum.Label,
		Income:  sum.Income.Decimal(),
		Expense: sum.Expense.Decimal(),
		Balance: decimal.New(sum.Balance(), -2),
		Formatted: map[string]string{
			"income":  core.Format(sum.Income.Cents),
			"expense": core.Format(sum.Expense.Cents),
			"balance": core.Format(sum.Balance()),
		},
		Count:      sum.Count,
		ByCategory: make([]categoryAmountJSON, 0, len(sum.ByCategory)),
		Period:     r.Period,
		Truncated:  r.Truncated,
	}
	for _, ca := range sum.ByCategory {
		out.ByCategory = append(out.ByCategory, categoryAmountJSON{
			Category: ca.Category,
			Amount:   ca.Amount.Decimal(),
		})
	}
	return out
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, store := s.sessions.Load(w, r)

	listing, err := s.transactions.List(ctx, store, CallerParams(r.URL.Query()))
	if err != nil {
		s.upstreamError(w, r, sessionID, log.OpList, err, "failed to load transactions")
		return
	}

	NewJSONResponse().Body(transactionsResponse{
		PageJSON: sources.NewPageJSON(listing.TransactionPage),
		HasMore:  listing.HasMore(),
		Period:   listing.Period,
	}).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sessionID, store := s.sessions.Load(w, r)

	report, err := s.transactions.Summary(r.Context(), store)
	if err != nil {
		s.upstreamError(w, r, sessionID, log.OpSummary, err, "failed to load summary")
		return
	}

	NewJSONResponse().Body(newSummaryResponse(report)).Write(w)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.transactions.Categories(r.Context())
	if err != nil {
		s.upstreamError(w, r, "", log.OpList, err, "failed to load categories")
		return
	}

	out := make([]sources.CategoryJSON, 0, len(cats))
	for _, c := range cats {
		out = append(out, sources.NewCategoryJSON(c))
	}
	NewJSONResponse().Body(map[string]any{"items": out}).Write(w)
}

func (s *Server) upstreamError(w http.ResponseWriter, r *http.Request, sessionID, op string, err error, msg string) {
	fields := log.NewFields().WithRequestID(trace.GetRequestID(r.Context()))
	if sessionID != "" {
		fields = fields.WithSession(sessionID)
	}
	s.sl.LogError(r.Context(), msg, err, log.ComponentSources, op, fields)
	BadGatewayError(msg).RequestID(trace.GetRequestID(r.Context())).Write(w)
}
