package orders

import (
	"context"
	"time"
)

// Store is the order store contract used by reconciliation. Implementations return
// *remote.Error values so callers can tell transport, remote and data failures apart.
type Store interface {
	List(ctx context.Context, f Filter) ([]Order, error)
	// GetProduct returns a Data failure matching remote.ErrNotFound when the product is missing.
	GetProduct(ctx context.Context, productID string) (*Product, error)
	// UpdateOrder applies a partial update. There is no optimistic-concurrency guard:
	// the last writer wins.
	UpdateOrder(ctx context.Context, orderID string, p Patch) (*Order, error)
	CreateTransactionLog(ctx context.Context, entry TransactionLog) error
}

// StatusPtr returns a pointer to s for Filter and Patch fields.
func StatusPtr(s OrderStatus) *OrderStatus { return &s }

// TransactionPtr returns a pointer to s for Filter and Patch fields.
func TransactionPtr(s TransactionStatus) *TransactionStatus { return &s }

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool { return &b }

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time { return &t }
