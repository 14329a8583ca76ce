package registry

import (
	"context"
	"fmt"
	"sync"
)

// MemorySingleUnit is an in-memory single-unit registry. It is safe for
// concurrent use and enforces the owner-or-approved transfer rule the same way
// a chain registry would.
type MemorySingleUnit struct {
	mu        sync.RWMutex
	owners    map[string]string          // itemID -> owner
	approvals map[string]map[string]bool // owner -> operator -> approved
}

// NewMemorySingleUnit creates an empty single-unit registry.
func NewMemorySingleUnit() *MemorySingleUnit {
	return &MemorySingleUnit{
		owners:    make(map[string]string),
		approvals: make(map[string]map[string]bool),
	}
}

// Mint assigns a fresh item to an owner.
func (r *MemorySingleUnit) Mint(owner, itemID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.owners[itemID]; exists {
		return fmt.Errorf("registry: item %s already minted", itemID)
	}
	r.owners[itemID] = owner
	return nil
}

// SetApprovalForAll grants or revokes operator rights over all of the owner's
// items.
func (r *MemorySingleUnit) SetApprovalForAll(owner, operator string, approved bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.approvals[owner] == nil {
		r.approvals[owner] = make(map[string]bool)
	}
	r.approvals[owner][operator] = approved
}

func (r *MemorySingleUnit) OwnerOf(_ context.Context, itemID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	owner, ok := r.owners[itemID]
	if !ok {
		return "", ErrUnknownItem
	}
	return owner, nil
}

func (r *MemorySingleUnit) IsApprovedForAll(_ context.Context, owner, operator string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.approvals[owner][operator], nil
}

func (r *MemorySingleUnit) TransferFrom(_ context.Context, operator, from, to, itemID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.owners[itemID]
	if !ok {
		return ErrUnknownItem
	}
	if owner != from {
		return ErrNotOwner
	}
	if operator != from && !r.approvals[from][operator] {
		return ErrNotAuthorized
	}
	r.owners[itemID] = to
	return nil
}

// MemoryMultiUnit is an in-memory multi-unit registry.
type MemoryMultiUnit struct {
	mu        sync.RWMutex
	balances  map[string]map[string]uint64 // itemID -> owner -> balance
	approvals map[string]map[string]bool   // owner -> operator -> approved
}

// NewMemoryMultiUnit creates an empty multi-unit registry.
func NewMemoryMultiUnit() *MemoryMultiUnit {
	return &MemoryMultiUnit{
		balances:  make(map[string]map[string]uint64),
		approvals: make(map[string]map[string]bool),
	}
}

// Mint credits an owner with quantity units of an item type.
func (r *MemoryMultiUnit) Mint(owner, itemID string, quantity uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.balances[itemID] == nil {
		r.balances[itemID] = make(map[string]uint64)
	}
	r.balances[itemID][owner] += quantity
}

// SetApprovalForAll grants or revokes operator rights over all of the owner's
// balances.
func (r *MemoryMultiUnit) SetApprovalForAll(owner, operator string, approved bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.approvals[owner] == nil {
		r.approvals[owner] = make(map[string]bool)
	}
	r.approvals[owner][operator] = approved
}

func (r *MemoryMultiUnit) BalanceOf(_ context.Context, owner, itemID string) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.balances[itemID][owner], nil
}

func (r *MemoryMultiUnit) IsApprovedForAll(_ context.Context, owner, operator string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.approvals[owner][operator], nil
}

func (r *MemoryMultiUnit) SafeTransferFrom(_ context.Context, operator, from, to, itemID string, quantity uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if operator != from && !r.approvals[from][operator] {
		return ErrNotAuthorized
	}
	if r.balances[itemID][from] < quantity {
		return ErrInsufficientBalance
	}
	if r.balances[itemID] == nil {
		r.balances[itemID] = make(map[string]uint64)
	}
	r.balances[itemID][from] -= quantity
	r.balances[itemID][to] += quantity
	return nil
}

// MemoryResolver resolves contract addresses to in-memory registries.
type MemoryResolver struct {
	mu    sync.RWMutex
	one   map[string]SingleUnitRegistry
	multi map[string]MultiUnitRegistry
}

// NewMemoryResolver creates an empty resolver.
func NewMemoryResolver() *MemoryResolver {
	return &MemoryResolver{
		one:   make(map[string]SingleUnitRegistry),
		multi: make(map[string]MultiUnitRegistry),
	}
}

// RegisterSingleUnit binds a single-unit registry to a contract address.
func (r *MemoryResolver) RegisterSingleUnit(contract string, reg SingleUnitRegistry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.one[contract] = reg
}

// RegisterMultiUnit binds a multi-unit registry to a contract address.
func (r *MemoryResolver) RegisterMultiUnit(contract string, reg MultiUnitRegistry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.multi[contract] = reg
}

func (r *MemoryResolver) SingleUnit(contract string) (SingleUnitRegistry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.one[contract]
	if !ok {
		return nil, ErrUnknownContract
	}
	return reg, nil
}

func (r *MemoryResolver) MultiUnit(contract string) (MultiUnitRegistry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.multi[contract]
	if !ok {
		return nil, ErrUnknownContract
	}
	return reg, nil
}
