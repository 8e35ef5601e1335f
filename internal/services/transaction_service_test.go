package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"flynance/internal/cache"
	"flynance/internal/core"
	"flynance/internal/filters"
	"flynance/internal/period"
	"flynance/internal/query"
	"flynance/internal/sources/memory"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func testResolver() *period.Resolver {
	return &period.Resolver{Now: func() time.Time { return testNow }, DefaultTimezone: "UTC"}
}

// countingSource wraps a memory store and counts upstream calls.
type countingSource struct {
	*memory.Store
	txCalls  atomic.Int32
	catCalls atomic.Int32
	gate     chan struct{}
	fail     atomic.Bool
}

func (c *countingSource) ListTransactions(ctx context.Context, p query.Params) (core.TransactionPage, error) {
	c.txCalls.Add(1)
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return core.TransactionPage{}, ctx.Err()
		}
	}
	if c.fail.Load() {
		return core.TransactionPage{}, errors.New("upstream down")
	}
	return c.Store.ListTransactions(ctx, p)
}

func (c *countingSource) ListCategories(ctx context.Context) ([]core.Category, error) {
	c.catCalls.Add(1)
	if c.fail.Load() {
		return nil, errors.New("upstream down")
	}
	return c.Store.ListCategories(ctx)
}

func newFixture(t *testing.T, n int) (*countingSource, *filters.Store) {
	t.Helper()
	r := testResolver()
	cats := []core.Category{
		{CategoryRef: core.CategoryRef{ID: "food", Name: "Food"}, Type: core.Expense},
		{CategoryRef: core.CategoryRef{ID: "salary", Name: "Salary"}, Type: core.Income},
	}
	mem := memory.New(r, cats)
	for i := 0; i < n; i++ {
		tx := core.Transaction{
			Date:        testNow.AddDate(0, 0, -(i % 20)),
			Description: fmt.Sprintf("item %d", i),
			Amount:      core.Money{Cents: 1000},
			Type:        core.Expense,
			Category:    core.CategoryRef{ID: "food"},
		}
		if i%10 == 0 {
			tx.Type = core.Income
			tx.Amount = core.Money{Cents: 5000}
			tx.Category = core.CategoryRef{ID: "salary"}
		}
		if err := mem.Add(tx); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return &countingSource{Store: mem}, filters.NewStore(filters.WithResolver(r))
}

func TestList_CachesByBoundParams(t *testing.T) {
	src, store := newFixture(t, 30)
	svc := NewTransactionService(src, Options{Resolver: testResolver()})
	ctx := context.Background()

	first, err := svc.List(ctx, store, query.Params{"page": "1", "limit": "10"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if first.Total != 30 || len(first.Items) != 10 {
		t.Fatalf("unexpected page %+v", first)
	}
	if _, err := svc.List(ctx, store, query.Params{"limit": "10", "page": "1"}); err != nil {
		t.Fatal(err)
	}
	if got := src.txCalls.Load(); got != 1 {
		t.Fatalf("upstream calls = %d, want 1", got)
	}

	// Draft edits do not change what is fetched.
	store.SetType(core.TypeIncome)
	if _, err := svc.List(ctx, store, query.Params{"page": "1", "limit": "10"}); err != nil {
		t.Fatal(err)
	}
	if got := src.txCalls.Load(); got != 1 {
		t.Fatalf("draft edit triggered a fetch, calls = %d", got)
	}

	store.Apply()
	page, err := svc.List(ctx, store, query.Params{"page": "1", "limit": "10"})
	if err != nil {
		t.Fatal(err)
	}
	if got := src.txCalls.Load(); got != 2 {
		t.Fatalf("apply must produce a new key, calls = %d", got)
	}
	if page.Total != 3 {
		t.Fatalf("income total = %d, want 3", page.Total)
	}
}

func TestList_GlobalFiltersWin(t *testing.T) {
	src, store := newFixture(t, 30)
	svc := NewTransactionService(src, Options{Resolver: testResolver()})
	ctx := context.Background()

	// type is unset while ALL, so the caller may narrow it
	page, err := svc.List(ctx, store, query.Params{"type": "INCOME"})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 3 {
		t.Fatalf("caller narrowing ignored, total = %d", page.Total)
	}

	store.SetAppliedType(core.TypeExpense)
	page, err = svc.List(ctx, store, query.Params{"type": "INCOME", "days": "1"})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 27 {
		t.Fatalf("applied filters must win, total = %d", page.Total)
	}
}

func TestList_SingleFlight(t *testing.T) {
	src, store := newFixture(t, 5)
	src.gate = make(chan struct{})
	svc := NewTransactionService(src, Options{Resolver: testResolver()})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.List(context.Background(), store, nil)
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(src.gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
	}
	if got := src.txCalls.Load(); got != 1 {
		t.Fatalf("upstream calls = %d, want 1", got)
	}
}

func TestList_Timeout(t *testing.T) {
	src, store := newFixture(t, 1)
	src.gate = make(chan struct{})
	defer close(src.gate)
	svc := NewTransactionService(src, Options{Resolver: testResolver(), FetchTimeout: 20 * time.Millisecond})

	_, err := svc.List(context.Background(), store, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestList_ErrorsAreNotCached(t *testing.T) {
	src, store := newFixture(t, 3)
	svc := NewTransactionService(src, Options{Resolver: testResolver()})
	ctx := context.Background()

	src.fail.Store(true)
	if _, err := svc.List(ctx, store, nil); err == nil {
		t.Fatal("expected error")
	}
	src.fail.Store(false)
	page, err := svc.List(ctx, store, nil)
	if err != nil || page.Total != 3 {
		t.Fatalf("List() = %+v, %v", page, err)
	}
}

func TestCategories_CachedAndInvalidated(t *testing.T) {
	src, _ := newFixture(t, 0)
	svc := NewTransactionService(src, Options{Resolver: testResolver()})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		cats, err := svc.Categories(ctx)
		if err != nil || len(cats) != 2 {
			t.Fatalf("Categories() = %v, %v", cats, err)
		}
	}
	if got := src.catCalls.Load(); got != 1 {
		t.Fatalf("category calls = %d, want 1", got)
	}
	svc.Invalidate()
	if _, err := svc.Categories(ctx); err != nil {
		t.Fatal(err)
	}
	if got := src.catCalls.Load(); got != 2 {
		t.Fatalf("category calls after invalidate = %d, want 2", got)
	}
}

func TestSummary_WalksPages(t *testing.T) {
	src, store := newFixture(t, 250)
	svc := NewTransactionService(src, Options{Resolver: testResolver()})

	r, err := svc.Summary(context.Background(), store)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if r.Summary.Count != 250 {
		t.Fatalf("Count = %d, want 250", r.Summary.Count)
	}
	if r.Summary.Income.Cents != 25*5000 || r.Summary.Expense.Cents != 225*1000 {
		t.Fatalf("unexpected totals %+v", r.Summary)
	}
	if r.Summary.Balance() != 125000-225000 {
		t.Fatalf("Balance() = %d", r.Summary.Balance())
	}
	if len(r.Summary.ByCategory) != 1 || r.Summary.ByCategory[0].Category.ID != "food" {
		t.Fatalf("ByCategory = %+v", r.Summary.ByCategory)
	}
	if r.Summary.Label != r.Period.Period.Label || r.Truncated {
		t.Fatalf("label %q, period %q, truncated %v", r.Summary.Label, r.Period.Period.Label, r.Truncated)
	}
	if got := src.txCalls.Load(); got != 3 {
		t.Fatalf("page fetches = %d, want 3", got)
	}

	if _, err := svc.Summary(context.Background(), store); err != nil {
		t.Fatal(err)
	}
	if got := src.txCalls.Load(); got != 3 {
		t.Fatalf("summary should be cached, fetches = %d", got)
	}
}

func TestSummary_Truncates(t *testing.T) {
	src, store := newFixture(t, 250)
	svc := NewTransactionService(src, Options{Resolver: testResolver(), SummaryMaxPages: 2})

	r, err := svc.Summary(context.Background(), store)
	if err != nil {
		t.Fatal(err)
	}
	if !r.Truncated || r.Summary.Count != 200 {
		t.Fatalf("truncated=%v count=%d", r.Truncated, r.Summary.Count)
	}
}

func TestReadyAndCaches(t *testing.T) {
	src, store := newFixture(t, 2)
	svc := NewTransactionService(src, Options{Resolver: testResolver(), CacheTTL: time.Millisecond})
	if err := svc.Ready(context.Background()); err != nil {
		t.Fatalf("Ready() error = %v", err)
	}
	src.fail.Store(true)
	if err := svc.Ready(context.Background()); err == nil {
		t.Fatal("expected not ready")
	}
	src.fail.Store(false)

	if _, err := svc.List(context.Background(), store, nil); err != nil {
		t.Fatal(err)
	}
	m := cache.NewManager(nil)
	svc.RegisterCaches(m)
	time.Sleep(5 * time.Millisecond)
	if n := m.Sweep(); n < 1 {
		t.Fatalf("Sweep() = %d, want expired pages", n)
	}
	if s := svc.CacheStats(); s.Size != 0 || s.Misses != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestSummary_RangeIsLabelledWithBoundWindow(t *testing.T) {
	src, store := newFixture(t, 20) // one transaction per day, Feb 20 to Mar 10
	svc := NewTransactionService(src, Options{Resolver: testResolver()})

	store.SetAppliedMode(period.ModeRange)
	store.SetAppliedRangeStart("2024-02-20")
	store.SetAppliedRangeEnd("2024-02-22")
	store.SetAppliedDateRange(7)

	r, err := svc.Summary(context.Background(), store)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if r.Summary.Label != "04/03/2024 - 10/03/2024" {
		t.Fatalf("Label = %q, want the bound 7 day window", r.Summary.Label)
	}
	if r.Summary.Count != 7 {
		t.Fatalf("Count = %d, want the 7 transactions inside the label", r.Summary.Count)
	}
	if !r.Period.Fallback() || r.Period.Reason != rangeAsDays {
		t.Fatalf("Period = %+v, want a tagged fallback", r.Period)
	}

	l, err := svc.List(context.Background(), store, nil)
	if err != nil {
		t.Fatal(err)
	}
	if l.Period.Period.Label != r.Summary.Label || l.Total != 7 {
		t.Fatalf("listing window %q total %d", l.Period.Period.Label, l.Total)
	}
}

func TestList_DaysWindowRollsOverAtMidnight(t *testing.T) {
	src, store := newFixture(t, 5)
	clock := testNow
	r := &period.Resolver{Now: func() time.Time { return clock }, DefaultTimezone: "UTC"}
	svc := NewTransactionService(src, Options{Resolver: r, CacheTTL: time.Hour})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.List(ctx, store, nil); err != nil {
			t.Fatal(err)
		}
	}
	if got := src.txCalls.Load(); got != 1 {
		t.Fatalf("same day fetches = %d, want 1", got)
	}

	clock = time.Date(2024, 3, 11, 0, 1, 0, 0, time.UTC)
	l, err := svc.List(ctx, store, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := src.txCalls.Load(); got != 2 {
		t.Fatalf("fetches after midnight = %d, want 2", got)
	}
	if l.Period.Period.Label != "11/02/2024 - 11/03/2024" {
		t.Fatalf("Label = %q", l.Period.Period.Label)
	}
}
