package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  TransactionType = "INCOME"
	Expense TransactionType = "EXPENSE"
)

const (
	TypeAll     TypeFilter = "ALL"
	TypeIncome  TypeFilter = "INCOME"
	TypeExpense TypeFilter = "EXPENSE"
)

type (
	// TransactionType is the direction of a single transaction.
	TransactionType string

	// TypeFilter narrows a listing by transaction direction. ALL disables it.
	TypeFilter string

	Money struct {
		Cents int64
	}

	// CategoryRef identifies a category owned by the backend category service.
	CategoryRef struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Color string `json:"color,omitempty"`
	}

	Category struct {
		CategoryRef
		Type TransactionType `json:"type,omitempty"`
	}

	Transaction struct {
		ID          string
		Date        time.Time
		Description string
		Amount      Money // always positive, direction lives in Type
		Type        TransactionType
		Category    CategoryRef
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrEmptyDescription = errors.New("empty description")
	ErrZeroDate         = errors.New("date cannot be zero")
)

// IsValid reports whether t is one of the known directions.
func (t TransactionType) IsValid() bool {
	return t == Income || t == Expense
}

// ParseTypeFilter maps loose input ("income", " EXPENSE ") to a TypeFilter.
// Anything unrecognised widens to ALL.
func ParseTypeFilter(s string) TypeFilter {
	switch TypeFilter(strings.ToUpper(strings.TrimSpace(s))) {
	case TypeIncome:
		return TypeIncome
	case TypeExpense:
		return TypeExpense
	default:
		return TypeAll
	}
}

// Matches reports whether a transaction of type t passes the filter.
func (f TypeFilter) Matches(t TransactionType) bool {
	switch f {
	case TypeIncome:
		return t == Income
	case TypeExpense:
		return t == Expense
	default:
		return true
	}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t Transaction) Validate() error {
	if t.Date.IsZero() {
		return ErrZeroDate
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !t.Type.IsValid() {
		return ErrInvalidType
	}
	return nil
}

// Signed returns the amount with expenses negated, for balance arithmetic.
func (t Transaction) Signed() int64 {
	if t.Type == Expense {
		return -t.Amount.Cents
	}
	return t.Amount.Cents
}

// TransactionPage is one page of a paginated listing.
type TransactionPage struct {
	Items []Transaction
	Page  int
	Limit int
	Total int
}

// HasMore reports whether pages exist after this one.
func (p TransactionPage) HasMore() bool {
	if p.Page < 1 || p.Limit < 1 {
		return false
	}
	pages := p.Total / p.Limit
	if p.Total%p.Limit != 0 {
		pages++
	}
	return p.Page < pages
}
