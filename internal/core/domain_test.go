package core

import (
	"math"
	"testing"
	"time"
)

func TestTransactionValidate(t *testing.T) {
	good := Transaction{
		Date:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Description: "ok",
		Amount:      Money{Cents: 100},
		Type:        Expense,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	bads := []Transaction{
		{Description: "a", Amount: Money{Cents: 1}, Type: Income}, // zero date
		{Date: day, Description: "", Amount: Money{Cents: 1}, Type: Income},
		{Date: day, Description: "a", Amount: Money{Cents: 0}, Type: Income},
		{Date: day, Description: "a", Amount: Money{Cents: 1}, Type: "TRANSFER"},
	}
	for i, tx := range bads {
		if err := tx.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseTypeFilter(t *testing.T) {
	cases := map[string]TypeFilter{
		"":         TypeAll,
		"all":      TypeAll,
		" income ": TypeIncome,
		"EXPENSE":  TypeExpense,
		"transfer": TypeAll,
	}
	for in, want := range cases {
		if got := ParseTypeFilter(in); got != want {
			t.Errorf("ParseTypeFilter(%q) = %q, want %q", in, got, want)
		}
	}
	if !TypeAll.Matches(Income) || !TypeExpense.Matches(Expense) || TypeIncome.Matches(Expense) {
		t.Fatal("unexpected Matches result")
	}
}

func TestTransactionPageHasMore(t *testing.T) {
	if !(TransactionPage{Page: 1, Limit: 20, Total: 21}).HasMore() {
		t.Fatal("expected more pages")
	}
	if (TransactionPage{Page: 2, Limit: 20, Total: 40}).HasMore() {
		t.Fatal("expected last page")
	}
	if (TransactionPage{Page: math.MaxInt, Limit: 100, Total: 5}).HasMore() {
		t.Fatal("a page far past the end has no more")
	}
	if (TransactionPage{Page: 0, Limit: 0, Total: 5}).HasMore() {
		t.Fatal("an unpaged result has no more")
	}
}

func TestSummarize(t *testing.T) {
	food := CategoryRef{ID: "food", Name: "Alimentação"}
	rent := CategoryRef{ID: "rent", Name: "Moradia"}
	s := Summarize("label", []Transaction{
		{Type: Income, Amount: Money{Cents: 500000}},
		{Type: Expense, Amount: Money{Cents: 3000}, Category: food},
		{Type: Expense, Amount: Money{Cents: 150000}, Category: rent},
		{Type: Expense, Amount: Money{Cents: 2000}, Category: food},
	})
	if s.Count != 4 || s.Income.Cents != 500000 || s.Expense.Cents != 155000 {
		t.Fatalf("unexpected totals: %+v", s)
	}
	if s.Balance() != 345000 {
		t.Fatalf("unexpected balance %d", s.Balance())
	}
	if len(s.ByCategory) != 2 || s.ByCategory[0].Category.ID != "rent" || s.ByCategory[1].Amount.Cents != 5000 {
		t.Fatalf("unexpected breakdown: %+v", s.ByCategory)
	}
}
