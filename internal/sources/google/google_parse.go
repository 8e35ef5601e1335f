package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"flynance/internal/core"
	"flynance/internal/period"
	"flynance/internal/sources"
)

// Sheet layouts (first row is a header):
//
//	Categories:   A id | B name | C color | D type
//	Transactions: A id | B date | C description | D amount | E type | F category id

// parseCategories reads the categories sheet, skipping the header and blank
// or duplicate ids.
func parseCategories(values [][]interface{}) []core.Category {
	var out []core.Category
	seen := map[string]struct{}{}
	for i, row := range values {
		cols := toStrings(row)
		id := safeGet(cols, 0)
		if i == 0 && strings.EqualFold(id, "id") {
			continue
		}
		if id == "" || strings.HasPrefix(id, "#") {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, core.Category{
			CategoryRef: core.CategoryRef{ID: id, Name: safeGet(cols, 1), Color: safeGet(cols, 2)},
			Type:        core.TransactionType(strings.ToUpper(safeGet(cols, 3))),
		})
	}
	return out
}

// parseTransactions reads the transactions sheet. Rows that fail to parse are
// counted and skipped; listing is best-effort.
func parseTransactions(values [][]interface{}, cats []core.Category) ([]core.Transaction, int) {
	byID := make(map[string]core.CategoryRef, len(cats))
	for _, c := range cats {
		byID[c.ID] = c.CategoryRef
	}
	var out []core.Transaction
	skipped := 0
	for i, row := range values {
		cols := toStrings(row)
		if len(cols) == 0 || strings.Join(cols, "") == "" {
			continue
		}
		if i == 0 && strings.EqualFold(safeGet(cols, 0), "id") {
			continue
		}
		tx, err := parseRow(cols, i+1)
		if err != nil {
			skipped++
			continue
		}
		if ref, ok := byID[tx.Category.ID]; ok {
			tx.Category = ref
		}
		out = append(out, tx)
	}
	return out, skipped
}

func parseRow(cols []string, rowNum int) (core.Transaction, error) {
	date, err := parseSheetDate(safeGet(cols, 1))
	if err != nil {
		return core.Transaction{}, err
	}
	amount, err := core.ParseMoney(safeGet(cols, 3))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("row %d: %w", rowNum, err)
	}
	id := safeGet(cols, 0)
	if id == "" {
		id = fmt.Sprintf("row:%d", rowNum)
	}
	tx := core.Transaction{
		ID:          id,
		Date:        date,
		Description: safeGet(cols, 2),
		Amount:      amount,
		Type:        core.TransactionType(strings.ToUpper(safeGet(cols, 4))),
		Category:    core.CategoryRef{ID: safeGet(cols, 5)},
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("row %d: %w", rowNum, err)
	}
	return tx, nil
}

// parseSheetDate accepts ISO dates, RFC 3339 and the dd/mm/yyyy form a
// pt-BR locale sheet displays.
func parseSheetDate(s string) (time.Time, error) {
	if t, err := sources.ParseDate(s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("02/01/2006", strings.TrimSpace(s)); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q (want %s or dd/mm/yyyy)", s, period.ISODate)
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		switch n := v.(type) {
		case float64:
			out[i] = strconv.FormatFloat(n, 'f', -1, 64)
		default:
			out[i] = strings.TrimSpace(fmt.Sprint(v))
		}
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
