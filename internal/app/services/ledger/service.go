// Package ledger manages native-currency balances. It is the stand-in for the
// value attached to a chain transaction: buyers deposit funds, a purchase
// debits the exact required amount and credits seller and fee beneficiary.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/dexlabs/simpledex/internal/app/domain/payment"
	"github.com/dexlabs/simpledex/internal/app/storage"
	"github.com/dexlabs/simpledex/pkg/logger"
)

// ErrInsufficientFunds is reported when an account cannot cover a debit.
var ErrInsufficientFunds = errors.New("ledger: insufficient funds")

// ErrInvalidAmount is reported for nil, zero or negative amounts.
var ErrInvalidAmount = errors.New("ledger: amount must be positive")

// Service manages ledger accounts and settlement movements. All mutations are
// serialized by a single mutex so a settlement is never observed half-applied.
type Service struct {
	mu    sync.Mutex
	store storage.LedgerStore
	log   *logger.Logger
}

// New constructs a ledger service.
func New(store storage.LedgerStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("ledger")
	}
	return &Service{store: store, log: log}
}

// EnsureAccount returns the account for an address, creating it when absent.
func (s *Service) EnsureAccount(ctx context.Context, address string) (payment.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ensureAccountLocked(ctx, address)
}

func (s *Service) ensureAccountLocked(ctx context.Context, address string) (payment.Account, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return payment.Account{}, fmt.Errorf("address is required")
	}

	acct, err := s.store.GetLedgerAccount(ctx, address)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return payment.Account{}, fmt.Errorf("get ledger account: %w", err)
	}

	acct = payment.Account{
		Address:        address,
		Balance:        payment.Zero(),
		TotalDeposited: payment.Zero(),
		TotalSpent:     payment.Zero(),
	}
	created, err := s.store.CreateLedgerAccount(ctx, acct)
	if err != nil {
		return payment.Account{}, fmt.Errorf("create ledger account: %w", err)
	}
	return created, nil
}

// Deposit adds external funds to an account.
func (s *Service) Deposit(ctx context.Context, address string, amount *big.Int, reference string) (payment.Account, payment.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount == nil || amount.Sign() <= 0 {
		return payment.Account{}, payment.Entry{}, ErrInvalidAmount
	}

	acct, err := s.ensureAccountLocked(ctx, address)
	if err != nil {
		return payment.Account{}, payment.Entry{}, err
	}

	acct.Balance = new(big.Int).Add(acct.Balance, amount)
	acct.TotalDeposited = new(big.Int).Add(acct.TotalDeposited, amount)

	updated, err := s.store.UpdateLedgerAccount(ctx, acct)
	if err != nil {
		return payment.Account{}, payment.Entry{}, fmt.Errorf("update ledger account: %w", err)
	}

	entry, err := s.store.CreateLedgerEntry(ctx, payment.Entry{
		Address:   updated.Address,
		Type:      payment.EntryDeposit,
		Amount:    payment.Clone(amount),
		Reference: reference,
	})
	if err != nil {
		return payment.Account{}, payment.Entry{}, fmt.Errorf("record deposit: %w", err)
	}

	s.log.WithField("address", updated.Address).
		WithField("amount", amount.String()).
		Info("ledger deposit")
	return updated, entry, nil
}

// Account retrieves a ledger account.
func (s *Service) Account(ctx context.Context, address string) (payment.Account, error) {
	return s.store.GetLedgerAccount(ctx, address)
}

// Balance returns the current balance of an address; unknown addresses hold
// zero.
func (s *Service) Balance(ctx context.Context, address string) (*big.Int, error) {
	acct, err := s.store.GetLedgerAccount(ctx, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return payment.Zero(), nil
		}
		return nil, err
	}
	return acct.Balance, nil
}

// Entries lists the movement history of an address.
func (s *Service) Entries(ctx context.Context, address string) ([]payment.Entry, error) {
	return s.store.ListLedgerEntries(ctx, address)
}

// Settlement describes the money legs of a purchase: the buyer pays
// base + fee, the seller receives the base, the beneficiary the fee.
type Settlement struct {
	OrderID     string
	Buyer       string
	Seller      string
	Beneficiary string
	Base        *big.Int
	Fee         *big.Int
}

func (st Settlement) total() *big.Int {
	return new(big.Int).Add(st.Base, st.Fee)
}

// Settle applies all legs of a purchase as one unit. The buyer account must
// cover base + fee. On a mid-flight store failure the already-applied legs are
// compensated before the error is returned.
func (s *Service) Settle(ctx context.Context, st Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.applyLocked(ctx, st, false)
}

// Reverse undoes a previously applied settlement. Used as the compensating
// action when the item transfer fails after the money legs committed.
func (s *Service) Reverse(ctx context.Context, st Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.applyLocked(ctx, st, true)
}

type leg struct {
	address string
	amount  *big.Int // signed delta
	spent   *big.Int // signed delta applied to TotalSpent
	kind    payment.EntryType
}

func (s *Service) applyLocked(ctx context.Context, st Settlement, reverse bool) error {
	if st.Base == nil || st.Fee == nil || st.Base.Sign() < 0 || st.Fee.Sign() < 0 {
		return ErrInvalidAmount
	}

	total := st.total()
	legs := []leg{
		{address: st.Buyer, amount: new(big.Int).Neg(total), spent: payment.Clone(total), kind: payment.EntryPurchase},
		{address: st.Seller, amount: payment.Clone(st.Base), spent: payment.Zero(), kind: payment.EntryProceeds},
	}
	if st.Fee.Sign() > 0 {
		legs = append(legs, leg{address: st.Beneficiary, amount: payment.Clone(st.Fee), spent: payment.Zero(), kind: payment.EntryFee})
	}
	if reverse {
		for i := range legs {
			legs[i].amount.Neg(legs[i].amount)
			legs[i].spent.Neg(legs[i].spent)
			legs[i].kind = payment.EntryReversal
		}
	}

	if !reverse {
		buyer, err := s.ensureAccountLocked(ctx, st.Buyer)
		if err != nil {
			return err
		}
		if buyer.Balance.Cmp(total) < 0 {
			return ErrInsufficientFunds
		}
	}

	applied := make([]leg, 0, len(legs))
	for _, l := range legs {
		if err := s.applyLegLocked(ctx, l, st.OrderID); err != nil {
			s.compensateLocked(ctx, applied, st.OrderID)
			return fmt.Errorf("apply settlement leg for %s: %w", l.address, err)
		}
		applied = append(applied, l)
	}
	return nil
}

func (s *Service) applyLegLocked(ctx context.Context, l leg, orderID string) error {
	acct, err := s.ensureAccountLocked(ctx, l.address)
	if err != nil {
		return err
	}

	acct.Balance = new(big.Int).Add(acct.Balance, l.amount)
	acct.TotalSpent = new(big.Int).Add(acct.TotalSpent, l.spent)
	if _, err := s.store.UpdateLedgerAccount(ctx, acct); err != nil {
		return err
	}

	_, err = s.store.CreateLedgerEntry(ctx, payment.Entry{
		Address: l.address,
		Type:    l.kind,
		Amount:  payment.Clone(l.amount),
		OrderID: orderID,
	})
	return err
}

func (s *Service) compensateLocked(ctx context.Context, applied []leg, orderID string) {
	for _, l := range applied {
		undo := leg{
			address: l.address,
			amount:  new(big.Int).Neg(l.amount),
			spent:   new(big.Int).Neg(l.spent),
			kind:    payment.EntryReversal,
		}
		if err := s.applyLegLocked(ctx, undo, orderID); err != nil {
			// Nothing further can be done without the store; flag loudly.
			s.log.WithError(err).
				WithField("address", l.address).
				WithField("order_id", orderID).
				Error("settlement compensation failed; ledger requires manual reconciliation")
		}
	}
}
