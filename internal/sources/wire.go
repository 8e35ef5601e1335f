package sources

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"flynance/internal/core"
	"flynance/internal/period"
)

// TransactionJSON is the wire form of a transaction. Amount accepts a JSON
// number or a decimal string.
type TransactionJSON struct {
	ID          string           `json:"id"`
	Date        string           `json:"date"`
	Description string           `json:"description"`
	Amount      decimal.Decimal  `json:"amount"`
	Type        string           `json:"type"`
	Category    core.CategoryRef `json:"category"`
	CategoryID  string           `json:"categoryId,omitempty"`
}

// PageJSON is the wire form of one listing page.
type PageJSON struct {
	Items []TransactionJSON `json:"items"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
	Total int               `json:"total"`
}

// CategoryJSON is the wire form of a category.
type CategoryJSON struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
	Type  string `json:"type,omitempty"`
}

// ToCore converts and validates a wire transaction.
func (t TransactionJSON) ToCore() (core.Transaction, error) {
	date, err := ParseDate(t.Date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", t.ID, err)
	}
	cat := t.Category
	if cat.ID == "" {
		cat.ID = t.CategoryID
	}
	tx := core.Transaction{
		ID:          t.ID,
		Date:        date,
		Description: strings.TrimSpace(t.Description),
		Amount:      core.MoneyFromDecimal(t.Amount),
		Type:        core.TransactionType(strings.ToUpper(strings.TrimSpace(t.Type))),
		Category:    cat,
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", t.ID, err)
	}
	return tx, nil
}

// NewTransactionJSON converts a core transaction to its wire form.
func NewTransactionJSON(t core.Transaction) TransactionJSON {
	return TransactionJSON{
		ID:          t.ID,
		Date:        t.Date.UTC().Format(time.RFC3339),
		Description: t.Description,
		Amount:      t.Amount.Decimal(),
		Type:        string(t.Type),
		Category:    t.Category,
	}
}

// ToCore converts a wire page. One invalid item fails the whole page.
func (p PageJSON) ToCore() (core.TransactionPage, error) {
	items := make([]core.Transaction, 0, len(p.Items))
	for _, it := range p.Items {
		tx, err := it.ToCore()
		if err != nil {
			return core.TransactionPage{}, err
		}
		items = append(items, tx)
	}
	return core.TransactionPage{Items: items, Page: p.Page, Limit: p.Limit, Total: p.Total}, nil
}

// NewPageJSON converts a core page to its wire form.
func NewPageJSON(p core.TransactionPage) PageJSON {
	items := make([]TransactionJSON, 0, len(p.Items))
	for _, t := range p.Items {
		items = append(items, NewTransactionJSON(t))
	}
	return PageJSON{Items: items, Page: p.Page, Limit: p.Limit, Total: p.Total}
}

func (c CategoryJSON) ToCore() core.Category {
	return core.Category{
		CategoryRef: core.CategoryRef{ID: c.ID, Name: c.Name, Color: c.Color},
		Type:        core.TransactionType(strings.ToUpper(strings.TrimSpace(c.Type))),
	}
}

func NewCategoryJSON(c core.Category) CategoryJSON {
	return CategoryJSON{ID: c.ID, Name: c.Name, Color: c.Color, Type: string(c.Type)}
}

// ParseDate accepts an RFC 3339 timestamp or an ISO date (midnight UTC).
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(period.ISODate, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}
