// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dexlabs/simpledex/internal/app/domain/order"
	"github.com/dexlabs/simpledex/internal/app/domain/payment"
	"github.com/dexlabs/simpledex/internal/app/events"
	"github.com/dexlabs/simpledex/internal/app/storage"
)

// Store is the in-memory persistence layer.
type Store struct {
	mu             sync.RWMutex
	nextOrderID    int64
	nextEntryID    int64
	nextEventID    int64
	orders         map[string]order.Order
	ledgerAccounts map[string]payment.Account
	ledgerEntries  map[string][]payment.Entry
	operators      map[string]bool
	eventLog       []events.Event
}

var _ storage.OrderStore = (*Store)(nil)
var _ storage.LedgerStore = (*Store)(nil)
var _ storage.OperatorStore = (*Store)(nil)
var _ storage.EventStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextOrderID:    1,
		nextEntryID:    1,
		nextEventID:    1,
		orders:         make(map[string]order.Order),
		ledgerAccounts: make(map[string]payment.Account),
		ledgerEntries:  make(map[string][]payment.Entry),
		operators:      make(map[string]bool),
	}
}

// OrderStore implementation --------------------------------------------------

func (s *Store) CreateOrder(_ context.Context, ord order.Order) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ord.ID == "" {
		ord.ID = fmt.Sprintf("%d", s.nextOrderID)
		s.nextOrderID++
	} else if _, exists := s.orders[ord.ID]; exists {
		return order.Order{}, fmt.Errorf("order %s already exists", ord.ID)
	}

	now := time.Now().UTC()
	ord.CreatedAt = now
	ord.UpdatedAt = now
	ord.UnitPrice = payment.Clone(ord.UnitPrice)

	s.orders[ord.ID] = ord
	return cloneOrder(ord), nil
}

func (s *Store) UpdateOrder(_ context.Context, ord order.Order) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.orders[ord.ID]
	if !ok {
		return order.Order{}, fmt.Errorf("order %s: %w", ord.ID, storage.ErrNotFound)
	}

	ord.CreatedAt = original.CreatedAt
	ord.UpdatedAt = time.Now().UTC()
	ord.UnitPrice = payment.Clone(ord.UnitPrice)

	s.orders[ord.ID] = ord
	return cloneOrder(ord), nil
}

func (s *Store) GetOrder(_ context.Context, id string) (order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ord, ok := s.orders[id]
	if !ok {
		return order.Order{}, fmt.Errorf("order %s: %w", id, storage.ErrNotFound)
	}
	return cloneOrder(ord), nil
}

func (s *Store) ListOrders(_ context.Context, seller string, openOnly bool) ([]order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]order.Order, 0)
	for _, ord := range s.orders {
		if seller != "" && ord.Seller != seller {
			continue
		}
		if openOnly && !ord.Open() {
			continue
		}
		result = append(result, cloneOrder(ord))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// LedgerStore implementation -------------------------------------------------

func (s *Store) CreateLedgerAccount(_ context.Context, acct payment.Account) (payment.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acct.Address == "" {
		return payment.Account{}, fmt.Errorf("ledger account address is required")
	}
	if _, exists := s.ledgerAccounts[acct.Address]; exists {
		return payment.Account{}, fmt.Errorf("ledger account %s already exists", acct.Address)
	}

	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	s.ledgerAccounts[acct.Address] = cloneAccount(acct)
	return cloneAccount(acct), nil
}

func (s *Store) UpdateLedgerAccount(_ context.Context, acct payment.Account) (payment.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.ledgerAccounts[acct.Address]
	if !ok {
		return payment.Account{}, fmt.Errorf("ledger account %s: %w", acct.Address, storage.ErrNotFound)
	}

	acct.CreatedAt = original.CreatedAt
	acct.UpdatedAt = time.Now().UTC()

	s.ledgerAccounts[acct.Address] = cloneAccount(acct)
	return cloneAccount(acct), nil
}

func (s *Store) GetLedgerAccount(_ context.Context, address string) (payment.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.ledgerAccounts[address]
	if !ok {
		return payment.Account{}, fmt.Errorf("ledger account %s: %w", address, storage.ErrNotFound)
	}
	return cloneAccount(acct), nil
}

func (s *Store) ListLedgerAccounts(_ context.Context) ([]payment.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]payment.Account, 0, len(s.ledgerAccounts))
	for _, acct := range s.ledgerAccounts {
		result = append(result, cloneAccount(acct))
	}
	return result, nil
}

func (s *Store) CreateLedgerEntry(_ context.Context, entry payment.Entry) (payment.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = fmt.Sprintf("entry-%d", s.nextEntryID)
		s.nextEntryID++
	}
	entry.CreatedAt = time.Now().UTC()
	entry.Amount = payment.Clone(entry.Amount)

	s.ledgerEntries[entry.Address] = append(s.ledgerEntries[entry.Address], entry)
	return cloneEntry(entry), nil
}

func (s *Store) ListLedgerEntries(_ context.Context, address string) ([]payment.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.ledgerEntries[address]
	result := make([]payment.Entry, 0, len(entries))
	for _, entry := range entries {
		result = append(result, cloneEntry(entry))
	}
	return result, nil
}

// OperatorStore implementation -----------------------------------------------

func (s *Store) AddOperator(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if address == "" {
		return fmt.Errorf("operator address is required")
	}
	s.operators[address] = true
	return nil
}

func (s *Store) IsOperator(_ context.Context, address string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.operators[address], nil
}

func (s *Store) ListOperators(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]string, 0, len(s.operators))
	for op := range s.operators {
		result = append(result, op)
	}
	sort.Strings(result)
	return result, nil
}

// EventStore implementation --------------------------------------------------

func (s *Store) AppendEvent(_ context.Context, evt events.Event) (events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evt.ID = fmt.Sprintf("evt-%d", s.nextEventID)
	s.nextEventID++
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.eventLog = append(s.eventLog, evt)
	return evt, nil
}

func (s *Store) ListEvents(_ context.Context, orderID string, limit int) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]events.Event, 0)
	for _, evt := range s.eventLog {
		if orderID != "" && evt.OrderID != orderID {
			continue
		}
		result = append(result, evt)
	}
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

// Helpers ---------------------------------------------------------------------

func cloneOrder(ord order.Order) order.Order {
	ord.UnitPrice = payment.Clone(ord.UnitPrice)
	return ord
}

func cloneAccount(acct payment.Account) payment.Account {
	acct.Balance = payment.Clone(acct.Balance)
	acct.TotalDeposited = payment.Clone(acct.TotalDeposited)
	acct.TotalSpent = payment.Clone(acct.TotalSpent)
	return acct
}

func cloneEntry(entry payment.Entry) payment.Entry {
	entry.Amount = payment.Clone(entry.Amount)
	return entry
}
