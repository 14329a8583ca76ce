// Package order defines the marketplace order model.
package order

import (
	"math/big"
	"time"
)

// AssetClass selects the transfer semantics of the traded item.
type AssetClass string

const (
	// ClassSingleUnit identifies items with exactly one indivisible instance.
	ClassSingleUnit AssetClass = "single_unit"
	// ClassMultiUnit identifies item types with a fungible per-owner balance.
	ClassMultiUnit AssetClass = "multi_unit"
)

// Valid reports whether the class is one of the supported values.
func (c AssetClass) Valid() bool {
	return c == ClassSingleUnit || c == ClassMultiUnit
}

// Status tracks the order lifecycle. Orders are append-only: a closed order is
// never reopened and its identifier is never reused.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Params carries the seller-supplied fields of a new order.
type Params struct {
	AssetClass      AssetClass
	AssetContract   string
	ItemID          string
	Quantity        uint64
	UnitPrice       *big.Int
	PaymentToken    string // reserved; must be empty (native currency only)
	DesignatedBuyer string // empty means any buyer
	MaxPerPurchase  uint64 // 0 keeps the sentinel semantics of the chain contract
}

// Order is a fixed-price listing. Quantity is the remaining amount available
// for purchase; AssetClass, AssetContract and ItemID never change after
// creation.
type Order struct {
	ID              string
	Seller          string
	AssetClass      AssetClass
	AssetContract   string
	ItemID          string
	Quantity        uint64
	UnitPrice       *big.Int
	PaymentToken    string
	DesignatedBuyer string
	MaxPerPurchase  uint64
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Open reports whether the order can still be bought from.
func (o Order) Open() bool {
	return o.Status == StatusOpen
}
