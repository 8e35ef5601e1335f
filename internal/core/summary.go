package core

import "sort"

// CategoryAmount represents an amount aggregated by category.
type CategoryAmount struct {
	Category CategoryRef
	Amount   Money
}

// Summary aggregates a set of transactions for a resolved period.
type Summary struct {
	Label      string
	Income     Money
	Expense    Money
	Count      int
	ByCategory []CategoryAmount // expenses only, largest first
}

// Balance is income minus expense, in cents.
func (s Summary) Balance() int64 {
	return s.Income.Cents - s.Expense.Cents
}

// Summarize folds transactions into a Summary.
func Summarize(label string, items []Transaction) Summary {
	s := Summary{Label: label}
	byCat := map[string]*CategoryAmount{}
	order := make([]string, 0)
	for _, t := range items {
		s.Count++
		if t.Type == Income {
			s.Income.Cents += t.Amount.Cents
			continue
		}
		s.Expense.Cents += t.Amount.Cents
		ca, ok := byCat[t.Category.ID]
		if !ok {
			ca = &CategoryAmount{Category: t.Category}
			byCat[t.Category.ID] = ca
			order = append(order, t.Category.ID)
		}
		ca.Amount.Cents += t.Amount.Cents
	}
	for _, id := range order {
		s.ByCategory = append(s.ByCategory, *byCat[id])
	}
	sort.SliceStable(s.ByCategory, func(i, j int) bool {
		return s.ByCategory[i].Amount.Cents > s.ByCategory[j].Amount.Cents
	})
	return s
}
