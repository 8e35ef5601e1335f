// Package storage is the SQLite mirror of transactions and categories, and
// the store for filter analytics events.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"flynance/internal/core"
	"flynance/internal/period"
	"flynance/internal/query"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db       *sql.DB
	queries  *Queries
	resolver *period.Resolver
}

func NewSQLiteRepository(dbPath string, r *period.Resolver) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("SQLite schema ready", "path", dbPath, "version", version)

	if r == nil {
		r = &period.Resolver{}
	}
	return &SQLiteRepository{db: db, queries: New(db), resolver: r}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveCategory inserts or updates a category.
func (r *SQLiteRepository) SaveCategory(ctx context.Context, c core.Category) error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("category id is required")
	}
	err := r.queries.UpsertCategory(ctx, Category{ID: c.ID, Name: c.Name, Color: c.Color, Type: string(c.Type)})
	if err != nil {
		return fmt.Errorf("upsert category %s: %w", c.ID, err)
	}
	return nil
}

// SaveTransactions upserts a batch in one transaction.
func (r *SQLiteRepository) SaveTransactions(ctx context.Context, txs []core.Transaction) error {
	for _, t := range txs {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("transaction %s: %w", t.ID, err)
		}
		if t.ID == "" {
			return fmt.Errorf("transaction id is required")
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	for _, t := range txs {
		err := q.UpsertTransaction(ctx, Transaction{
			ID:          t.ID,
			OccurredAt:  t.Date.UTC().UnixMilli(),
			Description: t.Description,
			AmountCents: t.Amount.Cents,
			Type:        string(t.Type),
			CategoryID:  t.Category.ID,
		})
		if err != nil {
			return fmt.Errorf("upsert transaction %s: %w", t.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Transactions saved to SQLite", "count", len(txs))
	return nil
}

// ListTransactions resolves the requested window and filters in SQL.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, p query.Params) (core.TransactionPage, error) {
	req := p.Parse()
	window := req.Period(r.resolver).Period

	arg := ListTransactionsParams{
		From:        window.DateFrom.UnixMilli(),
		To:          window.DateTo.UnixMilli(),
		CategoryIDs: req.CategoryIDs,
		Search:      strings.ToLower(req.Search),
		Limit:       int64(req.Limit),
		Offset:      int64(req.Offset()),
	}
	if req.Type != core.TypeAll {
		arg.Type = string(req.Type)
	}

	total, err := r.queries.CountTransactions(ctx, arg)
	if err != nil {
		return core.TransactionPage{}, fmt.Errorf("count transactions: %w", err)
	}
	rows, err := r.queries.ListTransactions(ctx, arg)
	if err != nil {
		return core.TransactionPage{}, fmt.Errorf("list transactions: %w", err)
	}

	items := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		items = append(items, core.Transaction{
			ID:          row.ID,
			Date:        time.UnixMilli(row.OccurredAt).UTC(),
			Description: row.Description,
			Amount:      core.Money{Cents: row.AmountCents},
			Type:        core.TransactionType(row.Type),
			Category: core.CategoryRef{
				ID:    row.CategoryID,
				Name:  row.CategoryName.String,
				Color: row.CategoryColor.String,
			},
		})
	}
	return core.TransactionPage{Items: items, Page: req.Page, Limit: req.Limit, Total: int(total)}, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.queries.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	out := make([]core.Category, 0, len(rows))
	for _, c := range rows {
		out = append(out, core.Category{
			CategoryRef: core.CategoryRef{ID: c.ID, Name: c.Name, Color: c.Color},
			Type:        core.TransactionType(c.Type),
		})
	}
	return out, nil
}

// RecordFilterEvent stores an analytics event. Duplicate event ids are
// ignored and reported as not inserted.
func (r *SQLiteRepository) RecordFilterEvent(ctx context.Context, e FilterEvent) (bool, error) {
	if e.RecordedAt == 0 {
		e.RecordedAt = time.Now().UnixMilli()
	}
	inserted, err := r.queries.InsertFilterEvent(ctx, e)
	if err != nil {
		return false, fmt.Errorf("insert filter event %s: %w", e.EventID, err)
	}
	return inserted, nil
}

// RecentFilterEvents returns the newest events first.
func (r *SQLiteRepository) RecentFilterEvents(ctx context.Context, limit int) ([]FilterEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	events, err := r.queries.ListFilterEvents(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list filter events: %w", err)
	}
	return events, nil
}

// FilterModeUsage counts recorded events per period mode.
func (r *SQLiteRepository) FilterModeUsage(ctx context.Context) (map[string]int64, error) {
	counts, err := r.queries.CountFilterEventsByMode(ctx)
	if err != nil {
		return nil, fmt.Errorf("count filter events: %w", err)
	}
	return counts, nil
}
