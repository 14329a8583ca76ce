package order

import "errors"

// Rejection errors reported to callers. Every failure leaves state untouched;
// the reason strings are part of the observable surface and stay fixed.
var (
	// CreateOrder rejections, checked in this order.
	ErrNotOwner                  = errors.New("dex: user not owner of token")
	ErrNotApproved               = errors.New("dex: broker not approved to transfer")
	ErrInvalidSingleUnitQuantity = errors.New("dex: quantity must be 1 for single-unit asset")
	ErrInsufficientBalance       = errors.New("dex: user has not enough balance")
	ErrUnsupportedPaymentToken   = errors.New("dex: payment token not supported")

	// Buy rejections, checked in this order.
	ErrOrderNotOpen          = errors.New("dex: order not currently open")
	ErrInvalidQuantity       = errors.New("dex: quantity must be > 0")
	ErrNotDesignatedBuyer    = errors.New("dex: order not for this user")
	ErrInsufficientRemaining = errors.New("dex: not enough remaining")
	ErrQuantityExceedsLimit  = errors.New("dex: quantity exceeds purchase limit")
	ErrIncorrectPaymentValue = errors.New("dex: sent value is incorrect")

	// Administrative rejections.
	ErrNotAdmin     = errors.New("dex: caller is not the administrator")
	ErrInvalidFee   = errors.New("dex: fee basis points out of range")
	ErrInvalidPrice = errors.New("dex: unit price must not be negative")
)
