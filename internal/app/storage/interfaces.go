// Package storage defines the persistence interfaces of the marketplace.
package storage

import (
	"context"
	"errors"

	"github.com/dexlabs/simpledex/internal/app/domain/order"
	"github.com/dexlabs/simpledex/internal/app/domain/payment"
	"github.com/dexlabs/simpledex/internal/app/events"
)

// ErrNotFound is reported by stores when a record does not exist.
var ErrNotFound = errors.New("storage: record not found")

// OrderStore persists marketplace orders. Orders are never deleted; closed
// orders remain available for audit queries.
type OrderStore interface {
	// CreateOrder stores a new order, assigning a fresh identifier when the
	// order carries none. Identifiers are monotonically increasing and never
	// reused.
	CreateOrder(ctx context.Context, ord order.Order) (order.Order, error)
	UpdateOrder(ctx context.Context, ord order.Order) (order.Order, error)
	GetOrder(ctx context.Context, id string) (order.Order, error)
	// ListOrders filters by seller (empty matches all) and, when openOnly is
	// set, by open status.
	ListOrders(ctx context.Context, seller string, openOnly bool) ([]order.Order, error)
}

// LedgerStore persists native-currency accounts and entries.
type LedgerStore interface {
	CreateLedgerAccount(ctx context.Context, acct payment.Account) (payment.Account, error)
	UpdateLedgerAccount(ctx context.Context, acct payment.Account) (payment.Account, error)
	GetLedgerAccount(ctx context.Context, address string) (payment.Account, error)
	ListLedgerAccounts(ctx context.Context) ([]payment.Account, error)

	CreateLedgerEntry(ctx context.Context, entry payment.Entry) (payment.Entry, error)
	ListLedgerEntries(ctx context.Context, address string) ([]payment.Entry, error)
}

// OperatorStore persists the escrow broker allowlist.
type OperatorStore interface {
	// AddOperator is idempotent: adding a present operator is a no-op.
	AddOperator(ctx context.Context, address string) error
	IsOperator(ctx context.Context, address string) (bool, error)
	ListOperators(ctx context.Context) ([]string, error)
}

// EventStore persists emitted marketplace events.
type EventStore interface {
	events.Sink
	ListEvents(ctx context.Context, orderID string, limit int) ([]events.Event, error)
}
