// Package payment defines the native-currency ledger model. Balances stand in
// for the attached value of a chain transaction: buyers deposit first, then a
// purchase debits the exact required amount.
package payment

import (
	"math/big"
	"time"
)

// Account holds the native-currency balance of an address.
type Account struct {
	Address        string
	Balance        *big.Int
	TotalDeposited *big.Int
	TotalSpent     *big.Int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EntryType classifies ledger entries.
type EntryType string

const (
	EntryDeposit  EntryType = "deposit"  // external funds added to an account
	EntryPurchase EntryType = "purchase" // buyer debit for a settled purchase
	EntryProceeds EntryType = "proceeds" // seller credit, base amount
	EntryFee      EntryType = "fee"      // beneficiary credit, service fee
	EntryReversal EntryType = "reversal" // compensation for a failed settlement
)

// Entry records a single balance movement.
type Entry struct {
	ID        string
	Address   string
	Type      EntryType
	Amount    *big.Int
	OrderID   string // empty for deposits
	Reference string
	CreatedAt time.Time
}

// Zero returns a new zero-valued amount. Amounts are never shared between
// records; stores copy on read and write.
func Zero() *big.Int { return new(big.Int) }

// Clone copies an amount, mapping nil to zero.
func Clone(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
