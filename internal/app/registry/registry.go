// Package registry defines the asset registry collaborators the marketplace
// trades against. Registries are external systems; this package specifies the
// interface they expose and ships in-memory implementations for tests and
// local development.
//
// Chain registries resolve the acting party from the transaction sender; here
// the operator is passed explicitly on every transfer and the registry
// enforces the same owner-or-approved rule.
package registry

import (
	"context"
	"errors"
)

// Transfer failures surfaced by registries.
var (
	ErrNotOwner            = errors.New("registry: sender not owner of item")
	ErrInsufficientBalance = errors.New("registry: insufficient balance")
	ErrNotAuthorized       = errors.New("registry: operator not authorized")
	ErrUnknownItem         = errors.New("registry: unknown item")
	ErrUnknownContract     = errors.New("registry: unknown contract address")
)

// SingleUnitRegistry tracks items with exactly one indivisible instance.
type SingleUnitRegistry interface {
	OwnerOf(ctx context.Context, itemID string) (string, error)
	IsApprovedForAll(ctx context.Context, owner, operator string) (bool, error)
	TransferFrom(ctx context.Context, operator, from, to, itemID string) error
}

// MultiUnitRegistry tracks item types with a fungible per-owner balance.
type MultiUnitRegistry interface {
	BalanceOf(ctx context.Context, owner, itemID string) (uint64, error)
	IsApprovedForAll(ctx context.Context, owner, operator string) (bool, error)
	SafeTransferFrom(ctx context.Context, operator, from, to, itemID string, quantity uint64) error
}

// Resolver maps asset contract addresses to registry instances.
type Resolver interface {
	SingleUnit(contract string) (SingleUnitRegistry, error)
	MultiUnit(contract string) (MultiUnitRegistry, error)
}
