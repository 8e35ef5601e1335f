package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"flynance/internal/cache"
	"flynance/internal/core"
	"flynance/internal/filters"
	"flynance/internal/log"
	"flynance/internal/period"
	"flynance/internal/query"
	"flynance/internal/sources"
)

const (
	DefaultFetchTimeout    = 7 * time.Second
	DefaultSummaryMaxPages = 50
	categoriesKey          = "categories"
)

// AppliedFilters is the read side of a filter store.
type AppliedFilters interface {
	Applied() filters.State
}

// rangeAsDays is the fallback reason for range selections, which the listing
// contract can only express as a days window.
const rangeAsDays = "range mode is listed as a days window"

var _ AppliedFilters = (*filters.Store)(nil)

// Options tunes a TransactionService. Zero values select defaults.
type Options struct {
	CacheSize       int
	CacheTTL        time.Duration
	FetchTimeout    time.Duration
	SummaryMaxPages int
	// Resolver resolves the bound window for labels and cache keys. It
	// should match the resolver of the source.
	Resolver *period.Resolver
	Logger   *slog.Logger
}

// TransactionService fetches listings for the applied filters of a store.
// Results are cached by their bound parameters and concurrent fetches of the
// same parameters share one upstream call.
type TransactionService struct {
	source    sources.Source
	pages     *cache.LRUCache[core.TransactionPage]
	summaries *cache.LRUCache[Report]
	cats      *cache.LRUCache[[]core.Category]
	group     singleflight.Group
	timeout   time.Duration
	maxPages  int
	resolver  *period.Resolver
	logger    *slog.Logger
}

// Listing is one page together with the window it was fetched for.
type Listing struct {
	core.TransactionPage
	Period period.Result
}

// Report is a Summary together with the window it was computed for.
type Report struct {
	Summary   core.Summary
	Period    period.Result
	Truncated bool // page walk stopped at the limit
}

func NewTransactionService(source sources.Source, opts Options) *TransactionService {
	if opts.CacheSize < 1 {
		opts.CacheSize = 500
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Minute
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.SummaryMaxPages < 1 {
		opts.SummaryMaxPages = DefaultSummaryMaxPages
	}
	if opts.Resolver == nil {
		opts.Resolver = &period.Resolver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &TransactionService{
		source:    source,
		pages:     cache.NewLRUCache[core.TransactionPage](opts.CacheSize, opts.CacheTTL),
		summaries: cache.NewLRUCache[Report](opts.CacheSize, opts.CacheTTL),
		cats:      cache.NewLRUCache[[]core.Category](1, opts.CacheTTL),
		timeout:   opts.FetchTimeout,
		maxPages:  opts.SummaryMaxPages,
		resolver:  opts.Resolver,
		logger:    opts.Logger,
	}
}

// RegisterCaches adds the service caches to a cleanup manager.
func (s *TransactionService) RegisterCaches(m *cache.Manager) {
	m.Register("pages", s.pages)
	m.Register("summaries", s.summaries)
	m.Register("categories", s.cats)
}

// List returns one page for the applied filters. Caller params fill in paging
// and anything else the filters leave unset; they never override a filter.
func (s *TransactionService) List(ctx context.Context, store AppliedFilters, caller query.Params) (Listing, error) {
	applied := store.Applied()
	params := query.Merge(caller, query.FromState(applied))
	res := s.window(applied, params)

	page, err := s.list(ctx, params, res)
	if err != nil {
		return Listing{}, err
	}
	return Listing{TransactionPage: page, Period: res}, nil
}

// window resolves the period that params actually select.
func (s *TransactionService) window(applied filters.State, params query.Params) period.Result {
	res := params.Parse().Period(s.resolver)
	if applied.Mode == period.ModeRange {
		res.Kind = period.KindFallback
		res.Reason = rangeAsDays
	}
	return res
}

// cacheKey ties params to the resolved window so that a days window is not
// served past the day it was resolved on.
func cacheKey(params query.Params, res period.Result) string {
	return params.Key() + "|" + res.Period.DateFrom.UTC().Format(time.RFC3339) +
		"/" + res.Period.DateTo.UTC().Format(time.RFC3339)
}

func (s *TransactionService) list(ctx context.Context, params query.Params, res period.Result) (core.TransactionPage, error) {
	key := cacheKey(params, res)
	if page, ok := s.pages.Get(key); ok {
		return page, nil
	}

	v, err, shared := s.group.Do(key, func() (any, error) {
		fctx, cancel := s.fetchContext(ctx)
		defer cancel()

		start := time.Now()
		page, err := s.source.ListTransactions(fctx, params)
		if err != nil {
			return core.TransactionPage{}, err
		}
		s.pages.Set(key, page)
		s.logger.DebugContext(ctx, "Fetched transactions",
			log.FieldCacheKey, key,
			"items", len(page.Items),
			"total", page.Total,
			"duration_ms", time.Since(start).Milliseconds())
		return page, nil
	})
	if err != nil {
		return core.TransactionPage{}, fmt.Errorf("list transactions: %w", err)
	}
	if shared {
		s.logger.DebugContext(ctx, "Shared in-flight fetch", log.FieldCacheKey, key)
	}
	return v.(core.TransactionPage), nil
}

// Categories returns the category list, cached.
func (s *TransactionService) Categories(ctx context.Context) ([]core.Category, error) {
	if cats, ok := s.cats.Get(categoriesKey); ok {
		return cats, nil
	}
	v, err, _ := s.group.Do(categoriesKey, func() (any, error) {
		fctx, cancel := s.fetchContext(ctx)
		defer cancel()
		cats, err := s.source.ListCategories(fctx)
		if err != nil {
			return nil, err
		}
		s.cats.Set(categoriesKey, cats)
		return cats, nil
	})
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return v.([]core.Category), nil
}

// Summary aggregates every page for the applied filters, up to the page limit.
// The label is the window the pages were fetched for.
func (s *TransactionService) Summary(ctx context.Context, store AppliedFilters) (Report, error) {
	applied := store.Applied()
	base := query.FromState(applied).WithoutPaging()
	res := s.window(applied, base)
	key := "summary|" + cacheKey(base, res)
	if r, ok := s.summaries.Get(key); ok {
		return r, nil
	}

	var (
		items     []core.Transaction
		truncated bool
	)
	base = base.With(query.KeyLimit, strconv.Itoa(query.MaxLimit))
	for n := 1; ; n++ {
		if n > s.maxPages {
			truncated = true
			s.logger.WarnContext(ctx, "Summary page walk truncated", "max_pages", s.maxPages, log.FieldCacheKey, key)
			break
		}
		page, err := s.list(ctx, base.With(query.KeyPage, strconv.Itoa(n)), res)
		if err != nil {
			return Report{}, fmt.Errorf("summary page %d: %w", n, err)
		}
		items = append(items, page.Items...)
		if !page.HasMore() || len(page.Items) == 0 {
			break
		}
	}

	r := Report{
		Summary:   core.Summarize(res.Period.Label, items),
		Period:    res,
		Truncated: truncated,
	}
	s.summaries.Set(key, r)
	return r, nil
}

// Invalidate drops every cached result.
func (s *TransactionService) Invalidate() {
	s.pages.Purge()
	s.summaries.Purge()
	s.cats.Purge()
}

// Ready checks the source by listing categories, bypassing the cache.
func (s *TransactionService) Ready(ctx context.Context) error {
	fctx, cancel := s.fetchContext(ctx)
	defer cancel()
	if _, err := s.source.ListCategories(fctx); err != nil {
		return fmt.Errorf("source not ready: %w", err)
	}
	return nil
}

// CacheStats reports usage of the page cache.
func (s *TransactionService) CacheStats() cache.Stats {
	return s.pages.Stats()
}

// fetchContext detaches from the caller's cancellation since a fetch may be
// shared by several callers, then applies the fetch timeout.
func (s *TransactionService) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
}
