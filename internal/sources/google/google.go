// Package google reads transactions and categories from a Google Sheets
// workbook and serves them through the listing contract.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"flynance/internal/core"
	"flynance/internal/period"
	"flynance/internal/query"
	"flynance/internal/sources"
	"flynance/internal/sources/memory"
)

var _ sources.Source = (*Client)(nil)

type Config struct {
	SpreadsheetID     string
	TransactionsSheet string // default "Transactions"
	CategoriesSheet   string // default "Categories"
	// CredentialsJSON or CredentialsFile hold a service account key. When both
	// are empty GOOGLE_APPLICATION_CREDENTIALS is used.
	CredentialsJSON string
	CredentialsFile string
	// RowCacheTTL is how long sheet rows are reused between listings.
	RowCacheTTL time.Duration
}

type Client struct {
	svc               *gsheet.Service
	spreadsheetID     string
	transactionsSheet string
	categoriesSheet   string
	resolver          *period.Resolver

	mu                 sync.Mutex
	cachedRows         []core.Transaction
	cachedCats         []core.Category
	cacheExpiresAt     time.Time
	cacheValidDuration time.Duration
}

// New creates a Sheets-backed source using service account credentials.
func New(ctx context.Context, cfg Config, r *period.Resolver, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if len(opts) == 0 {
		creds, err := credentials(ctx, cfg)
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsReadonlyScope),
		}
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return newClient(svc, cfg, r), nil
}

func newClient(svc *gsheet.Service, cfg Config, r *period.Resolver) *Client {
	if r == nil {
		r = &period.Resolver{}
	}
	txSheet := strings.TrimSpace(cfg.TransactionsSheet)
	if txSheet == "" {
		txSheet = "Transactions"
	}
	catSheet := strings.TrimSpace(cfg.CategoriesSheet)
	if catSheet == "" {
		catSheet = "Categories"
	}
	ttl := cfg.RowCacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Client{
		svc:                svc,
		spreadsheetID:      strings.TrimSpace(cfg.SpreadsheetID),
		transactionsSheet:  txSheet,
		categoriesSheet:    catSheet,
		resolver:           r,
		cacheValidDuration: ttl,
	}
}

// credentials resolves the service account key from inline JSON, a file, or
// GOOGLE_APPLICATION_CREDENTIALS.
func credentials(ctx context.Context, cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.CredentialsJSON)
	file := strings.TrimSpace(cfg.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	switch {
	case inline != "":
		slog.DebugContext(ctx, "Using inline service account credentials")
		return []byte(inline), nil
	case file != "":
		slog.DebugContext(ctx, "Reading service account credentials", "path", file)
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return raw, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// ListTransactions reads the workbook (or the cached rows) and filters in
// process with memory.Filter.
func (c *Client) ListTransactions(ctx context.Context, p query.Params) (core.TransactionPage, error) {
	rows, _, err := c.load(ctx)
	if err != nil {
		return core.TransactionPage{}, err
	}
	return memory.Filter(rows, p, c.resolver), nil
}

func (c *Client) ListCategories(ctx context.Context) ([]core.Category, error) {
	_, cats, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	return append([]core.Category(nil), cats...), nil
}

// InvalidateRowCache forces the next call to re-read the workbook.
func (c *Client) InvalidateRowCache() {
	c.mu.Lock()
	c.cacheExpiresAt = time.Time{}
	c.mu.Unlock()
}

func (c *Client) load(ctx context.Context) ([]core.Transaction, []core.Category, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Now().Before(c.cacheExpiresAt) {
		return c.cachedRows, c.cachedCats, nil
	}
	if c.svc == nil {
		return nil, nil, errors.New("sheets service not initialized")
	}

	catRng := fmt.Sprintf("%s!A:D", c.categoriesSheet)
	catResp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, catRng).Context(ctx).Do()
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", catRng, err)
	}
	cats := parseCategories(catResp.Values)

	txRng := fmt.Sprintf("%s!A:F", c.transactionsSheet)
	txResp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, txRng).Context(ctx).Do()
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", txRng, err)
	}
	rows, skipped := parseTransactions(txResp.Values, cats)
	if skipped > 0 {
		slog.WarnContext(ctx, "Skipped unparseable transaction rows", "sheet", c.transactionsSheet, "skipped", skipped)
	}

	c.cachedRows = rows
	c.cachedCats = cats
	c.cacheExpiresAt = time.Now().Add(c.cacheValidDuration)
	return rows, cats, nil
}
