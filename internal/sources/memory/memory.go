// Package memory is an in-process transaction source, used for local
// development and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"flynance/internal/core"
	"flynance/internal/period"
	"flynance/internal/query"
	"flynance/internal/sources"
)

var _ sources.Source = (*Store)(nil)

type Store struct {
	mu       sync.RWMutex
	cats     []core.Category
	items    []core.Transaction
	resolver *period.Resolver
}

// Seed is the JSON layout of a seed file.
type Seed struct {
	Categories   []sources.CategoryJSON    `json:"categories"`
	Transactions []sources.TransactionJSON `json:"transactions"`
}

func New(r *period.Resolver, cats []core.Category) *Store {
	if r == nil {
		r = &period.Resolver{}
	}
	return &Store{cats: dedupeCategories(cats), resolver: r}
}

// NewFromFile loads a seed file. A missing path yields the default
// categories and no transactions.
func NewFromFile(r *period.Resolver, path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return New(r, defaultCategories()), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(r, defaultCategories()), nil
		}
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("decode seed %s: %w", path, err)
	}

	cats := make([]core.Category, 0, len(seed.Categories))
	for _, c := range seed.Categories {
		cats = append(cats, c.ToCore())
	}
	if len(cats) == 0 {
		cats = defaultCategories()
	}
	s := New(r, cats)
	for _, t := range seed.Transactions {
		tx, err := t.ToCore()
		if err != nil {
			return nil, fmt.Errorf("seed %s: %w", path, err)
		}
		if err := s.Add(tx); err != nil {
			return nil, fmt.Errorf("seed %s: %w", path, err)
		}
	}
	return s, nil
}

// Add stores a transaction. A category known to the store fills in the
// reference's name and color.
func (s *Store) Add(t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cats {
		if c.ID == t.Category.ID {
			t.Category = c.CategoryRef
			break
		}
	}
	if t.ID == "" {
		t.ID = fmt.Sprintf("mem:%d", len(s.items)+1)
	}
	s.items = append(s.items, t)
	return nil
}

func (s *Store) ListTransactions(_ context.Context, p query.Params) (core.TransactionPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Filter(s.items, p, s.resolver), nil
}

func (s *Store) ListCategories(_ context.Context) ([]core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Category(nil), s.cats...), nil
}

func defaultCategories() []core.Category {
	return []core.Category{
		{CategoryRef: core.CategoryRef{ID: "salario", Name: "Salário", Color: "#22c55e"}, Type: core.Income},
		{CategoryRef: core.CategoryRef{ID: "moradia", Name: "Moradia", Color: "#6366f1"}, Type: core.Expense},
		{CategoryRef: core.CategoryRef{ID: "alimentacao", Name: "Alimentação", Color: "#f97316"}, Type: core.Expense},
		{CategoryRef: core.CategoryRef{ID: "transporte", Name: "Transporte", Color: "#0ea5e9"}, Type: core.Expense},
	}
}

func dedupeCategories(in []core.Category) []core.Category {
	seen := map[string]struct{}{}
	out := make([]core.Category, 0, len(in))
	for _, c := range in {
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			continue
		}
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
