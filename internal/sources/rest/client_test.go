package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flynance/internal/core"
	"flynance/internal/query"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := New(Config{
		BaseURL:      url,
		Token:        "secret",
		RetryMax:     2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 2 * time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestListTransactionsSendsContract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transactions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "days", q.Get("mode"))
		assert.Equal(t, "7", q.Get("days"))
		assert.Equal(t, "a,b", q.Get("categoryIds"))
		assert.Equal(t, "2", q.Get("page"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"items": [{"id": "t1", "date": "2024-03-09T10:00:00Z", "description": "Pizza",
			           "amount": "45.90", "type": "EXPENSE", "category": {"id": "a", "name": "Food", "color": "#f00"}}],
			"page": 2, "limit": 20, "total": 21
		}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL+"/v1/")
	page, err := c.ListTransactions(context.Background(), query.Params{
		"mode": "days", "days": "7", "categoryIds": "a,b", "page": "2",
	})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(4590), page.Items[0].Amount.Cents)
	assert.Equal(t, core.Expense, page.Items[0].Type)
	assert.Equal(t, "Food", page.Items[0].Category.Name)
	assert.Equal(t, 21, page.Total)
	assert.False(t, page.HasMore())
}

func TestListTransactionsRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"items": [], "page": 1, "limit": 20, "total": 0}`))
	}))
	defer srv.Close()

	page, err := newTestClient(t, srv.URL).ListTransactions(context.Background(), query.Params{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).ListCategories(context.Background())
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.Contains(t, err.Error(), "nope")
}

func TestStatusErrorAfterRetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).ListTransactions(context.Background(), query.Params{})
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusBadGateway), "got %v", err)
}

func TestListCategories(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/categories", r.URL.Path)
		_, _ = w.Write([]byte(`[{"id": "food", "name": "Food", "color": "#f00", "type": "expense"}]`))
	}))
	defer srv.Close()

	cats, err := newTestClient(t, srv.URL).ListCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "food", cats[0].ID)
	assert.Equal(t, core.Expense, cats[0].Type)
}

func TestInvalidTransactionFailsPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items": [{"id": "x", "date": "yesterday", "description": "d", "amount": 1, "type": "EXPENSE"}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).ListTransactions(context.Background(), query.Params{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid date")
}

func TestNewValidatesBaseURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
	_, err = New(Config{BaseURL: "not a url"})
	assert.Error(t, err)
}
