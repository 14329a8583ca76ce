// Package broker implements the escrow broker: the single approval gateway
// asset owners trust once. Registered operators (marketplace engines) instruct
// it to move items; the broker itself never initiates a transfer and keeps no
// state beyond the operator allowlist.
package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dexlabs/simpledex/internal/app/domain/order"
	"github.com/dexlabs/simpledex/internal/app/registry"
	"github.com/dexlabs/simpledex/internal/app/storage"
	"github.com/dexlabs/simpledex/pkg/logger"
)

var (
	// ErrUnauthorizedOperator is reported when the caller is not allowlisted.
	ErrUnauthorizedOperator = errors.New("broker: operator not authorized")
	// ErrTransferRejected wraps registry transfer failures (ownership,
	// balance or approval).
	ErrTransferRejected = errors.New("broker: transfer rejected by registry")
	// ErrNotAdmin is reported when a non-administrator mutates the allowlist.
	ErrNotAdmin = errors.New("broker: caller is not the administrator")
)

// Service is the escrow broker.
type Service struct {
	mu         sync.RWMutex
	address    string
	admin      string
	operators  storage.OperatorStore
	registries registry.Resolver
	log        *logger.Logger
}

// New constructs a broker. The address identifies the broker to registries:
// asset owners approve this address, and the broker presents it as the
// operator on every registry transfer.
func New(address, admin string, operators storage.OperatorStore, registries registry.Resolver, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("broker")
	}
	return &Service{
		address:    address,
		admin:      admin,
		operators:  operators,
		registries: registries,
		log:        log,
	}
}

// Address returns the identity asset owners approve.
func (s *Service) Address() string { return s.address }

// AddOperators appends addresses to the allowlist. Administrator-only and
// idempotent: re-adding a present operator is a no-op.
func (s *Service) AddOperators(ctx context.Context, caller string, addrs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != s.admin {
		return ErrNotAdmin
	}

	for _, addr := range addrs {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			return fmt.Errorf("operator address is required")
		}
		if err := s.operators.AddOperator(ctx, addr); err != nil {
			return fmt.Errorf("add operator %s: %w", addr, err)
		}
		s.log.WithField("operator", addr).Info("operator registered")
	}
	return nil
}

// IsOperator reports whether an address is allowlisted.
func (s *Service) IsOperator(ctx context.Context, address string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.operators.IsOperator(ctx, address)
}

// ListOperators returns the allowlist.
func (s *Service) ListOperators(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.operators.ListOperators(ctx)
}

// TransferItem moves quantity units of an item from one owner to another on
// behalf of an allowlisted operator. Single-unit transfers move exactly one
// instance; quantity must be 1. The broker holds no item state: failures from
// the registry (ownership, balance, approval) propagate as ErrTransferRejected
// and nothing is recorded.
func (s *Service) TransferItem(ctx context.Context, operator string, class order.AssetClass, contract, from, to, itemID string, quantity uint64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ok, err := s.operators.IsOperator(ctx, operator)
	if err != nil {
		return fmt.Errorf("check operator: %w", err)
	}
	if !ok {
		return ErrUnauthorizedOperator
	}

	switch class {
	case order.ClassSingleUnit:
		if quantity != 1 {
			return fmt.Errorf("%w: single-unit transfer quantity must be 1", ErrTransferRejected)
		}
		reg, err := s.registries.SingleUnit(contract)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransferRejected, err)
		}
		if err := reg.TransferFrom(ctx, s.address, from, to, itemID); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferRejected, err)
		}
	case order.ClassMultiUnit:
		reg, err := s.registries.MultiUnit(contract)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransferRejected, err)
		}
		if err := reg.SafeTransferFrom(ctx, s.address, from, to, itemID, quantity); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferRejected, err)
		}
	default:
		return fmt.Errorf("%w: unknown asset class %q", ErrTransferRejected, class)
	}

	s.log.WithField("operator", operator).
		WithField("contract", contract).
		WithField("item_id", itemID).
		WithField("quantity", quantity).
		Debugf("item transferred %s -> %s", from, to)
	return nil
}
