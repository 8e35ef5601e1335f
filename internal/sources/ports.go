// Package sources defines the ports implemented by transaction backends and
// the JSON shapes they share.
package sources

import (
	"context"

	"flynance/internal/core"
	"flynance/internal/query"
)

// Ports for outbound adapters.
type (
	// TransactionLister serves the paginated listing contract.
	TransactionLister interface {
		ListTransactions(ctx context.Context, p query.Params) (core.TransactionPage, error)
	}

	// CategoryLister returns every category, used for filter chips.
	CategoryLister interface {
		ListCategories(ctx context.Context) ([]core.Category, error)
	}

	Source interface {
		TransactionLister
		CategoryLister
	}
)
