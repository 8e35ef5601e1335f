package storage

import (
	"context"
	"database/sql"
	"strings"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns queries bound to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Category struct {
	ID    string
	Name  string
	Color string
	Type  string
}

type Transaction struct {
	ID            string
	OccurredAt    int64
	Description   string
	AmountCents   int64
	Type          string
	CategoryID    string
	CategoryName  sql.NullString
	CategoryColor sql.NullString
}

type FilterEvent struct {
	ID            int64
	EventID       string
	SessionID     string
	Mode          string
	Days          int64
	Month         string
	Year          string
	TypeFilter    string
	CategoryCount int64
	HasSearch     bool
	Fallback      bool
	AppliedAt     int64
	RecordedAt    int64
}

const upsertCategory = `
INSERT INTO categories (id, name, color, type) VALUES (?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET name = excluded.name, color = excluded.color, type = excluded.type`

func (q *Queries) UpsertCategory(ctx context.Context, arg Category) error {
	_, err := q.db.ExecContext(ctx, upsertCategory, arg.ID, arg.Name, arg.Color, arg.Type)
	return err
}

const listCategories = `SELECT id, name, color, type FROM categories ORDER BY name, id`

func (q *Queries) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Color, &c.Type); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const upsertTransaction = `
INSERT INTO transactions (id, occurred_at, description, amount_cents, type, category_id)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    occurred_at = excluded.occurred_at,
    description = excluded.description,
    amount_cents = excluded.amount_cents,
    type = excluded.type,
    category_id = excluded.category_id`

func (q *Queries) UpsertTransaction(ctx context.Context, arg Transaction) error {
	_, err := q.db.ExecContext(ctx, upsertTransaction,
		arg.ID, arg.OccurredAt, arg.Description, arg.AmountCents, arg.Type, arg.CategoryID)
	return err
}

// ListTransactionsParams mirrors the listing contract after resolution.
type ListTransactionsParams struct {
	From        int64
	To          int64
	Type        string // empty for all
	CategoryIDs []string
	Search      string // lowercased, empty for none
	Limit       int64
	Offset      int64
}

func (p ListTransactionsParams) where() (string, []interface{}) {
	clauses := []string{"t.occurred_at BETWEEN ? AND ?"}
	args := []interface{}{p.From, p.To}
	if p.Type != "" {
		clauses = append(clauses, "t.type = ?")
		args = append(args, p.Type)
	}
	if len(p.CategoryIDs) > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?,", len(p.CategoryIDs)), ",")
		clauses = append(clauses, "t.category_id IN ("+marks+")")
		for _, id := range p.CategoryIDs {
			args = append(args, id)
		}
	}
	if p.Search != "" {
		like := "%" + escapeLike(p.Search) + "%"
		clauses = append(clauses, `(LOWER(t.description) LIKE ? ESCAPE '\' OR LOWER(COALESCE(c.name, '')) LIKE ? ESCAPE '\')`)
		args = append(args, like, like)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

const transactionsFrom = `
FROM transactions t
LEFT JOIN categories c ON c.id = t.category_id`

func (q *Queries) CountTransactions(ctx context.Context, arg ListTransactionsParams) (int64, error) {
	where, args := arg.where()
	var n int64
	err := q.db.QueryRowContext(ctx, "SELECT COUNT(*)"+transactionsFrom+where, args...).Scan(&n)
	return n, err
}

func (q *Queries) ListTransactions(ctx context.Context, arg ListTransactionsParams) ([]Transaction, error) {
	where, args := arg.where()
	stmt := `SELECT t.id, t.occurred_at, t.description, t.amount_cents, t.type, t.category_id, c.name, c.color` +
		transactionsFrom + where + ` ORDER BY t.occurred_at DESC, t.id LIMIT ? OFFSET ?`
	args = append(args, arg.Limit, arg.Offset)

	rows, err := q.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.OccurredAt, &t.Description, &t.AmountCents, &t.Type,
			&t.CategoryID, &t.CategoryName, &t.CategoryColor); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

const insertFilterEvent = `
INSERT INTO filter_events (event_id, session_id, mode, days, month, year, type_filter,
    category_count, has_search, fallback, applied_at, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (event_id) DO NOTHING`

// InsertFilterEvent stores an event once; redeliveries of the same event id
// are ignored. It reports whether a row was written.
func (q *Queries) InsertFilterEvent(ctx context.Context, arg FilterEvent) (bool, error) {
	res, err := q.db.ExecContext(ctx, insertFilterEvent,
		arg.EventID, arg.SessionID, arg.Mode, arg.Days, arg.Month, arg.Year, arg.TypeFilter,
		arg.CategoryCount, arg.HasSearch, arg.Fallback, arg.AppliedAt, arg.RecordedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const listFilterEvents = `
SELECT id, event_id, session_id, mode, days, month, year, type_filter,
    category_count, has_search, fallback, applied_at, recorded_at
FROM filter_events ORDER BY applied_at DESC, id DESC LIMIT ?`

func (q *Queries) ListFilterEvents(ctx context.Context, limit int64) ([]FilterEvent, error) {
	rows, err := q.db.QueryContext(ctx, listFilterEvents, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []FilterEvent
	for rows.Next() {
		var e FilterEvent
		if err := rows.Scan(&e.ID, &e.EventID, &e.SessionID, &e.Mode, &e.Days, &e.Month, &e.Year,
			&e.TypeFilter, &e.CategoryCount, &e.HasSearch, &e.Fallback, &e.AppliedAt, &e.RecordedAt); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

const countFilterEventsByMode = `SELECT mode, COUNT(*) FROM filter_events GROUP BY mode ORDER BY mode`

func (q *Queries) CountFilterEventsByMode(ctx context.Context) (map[string]int64, error) {
	rows, err := q.db.QueryContext(ctx, countFilterEventsByMode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var mode string
		var n int64
		if err := rows.Scan(&mode, &n); err != nil {
			return nil, err
		}
		out[mode] = n
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
