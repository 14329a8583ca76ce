// Package market implements the marketplace engine: order creation and
// validation against registry state, and atomic purchase settlement through
// the escrow broker and the native-currency ledger.
package market

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/dexlabs/simpledex/internal/app/domain/order"
	"github.com/dexlabs/simpledex/internal/app/events"
	"github.com/dexlabs/simpledex/internal/app/metrics"
	"github.com/dexlabs/simpledex/internal/app/registry"
	"github.com/dexlabs/simpledex/internal/app/services/broker"
	"github.com/dexlabs/simpledex/internal/app/services/ledger"
	"github.com/dexlabs/simpledex/internal/app/storage"
	"github.com/dexlabs/simpledex/pkg/logger"
)

// BasisPointDenominator is the fee scale: 250 basis points = 2.5%.
const BasisPointDenominator = 10000

// Config carries the engine identity and fee configuration.
type Config struct {
	// Address identifies the engine as an operator towards the broker.
	Address string
	// Admin is the only identity allowed to change fee configuration.
	Admin          string
	FeeBeneficiary string
	FeeBasisPoints uint32
}

// Receipt summarises a settled purchase.
type Receipt struct {
	OrderID    string
	Buyer      string
	Quantity   uint64
	AmountPaid *big.Int // base + fee, the exact attached payment
	FeePaid    *big.Int
	Closed     bool
}

// Service is the marketplace engine. A single mutex serializes all
// state-mutating calls, so every settlement is atomic and two purchases are
// never interleaved mid-execution.
type Service struct {
	mu         sync.Mutex
	cfg        Config
	orders     storage.OrderStore
	registries registry.Resolver
	broker     *broker.Service
	ledger     *ledger.Service
	feed       *events.Feed
	log        *logger.Logger
}

// New constructs a marketplace engine.
func New(cfg Config, orders storage.OrderStore, registries registry.Resolver, brk *broker.Service, led *ledger.Service, feed *events.Feed, log *logger.Logger) (*Service, error) {
	if log == nil {
		log = logger.NewDefault("market")
	}
	if cfg.FeeBasisPoints > BasisPointDenominator {
		return nil, order.ErrInvalidFee
	}
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, fmt.Errorf("engine address is required")
	}
	return &Service{
		cfg:        cfg,
		orders:     orders,
		registries: registries,
		broker:     brk,
		ledger:     led,
		feed:       feed,
		log:        log,
	}, nil
}

// Address returns the engine's operator identity.
func (s *Service) Address() string { return s.cfg.Address }

// FeeInfo returns the current fee configuration.
func (s *Service) FeeInfo() (beneficiary string, basisPoints uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.FeeBeneficiary, s.cfg.FeeBasisPoints
}

// SetServiceFee updates the fee basis points. Administrator-only.
func (s *Service) SetServiceFee(_ context.Context, caller string, basisPoints uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != s.cfg.Admin {
		return order.ErrNotAdmin
	}
	if basisPoints > BasisPointDenominator {
		return order.ErrInvalidFee
	}
	s.cfg.FeeBasisPoints = basisPoints
	s.log.Infof("service fee set to %d bp", basisPoints)
	return nil
}

// SetFeeBeneficiary updates the fee recipient. Administrator-only.
func (s *Service) SetFeeBeneficiary(_ context.Context, caller, beneficiary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if caller != s.cfg.Admin {
		return order.ErrNotAdmin
	}
	beneficiary = strings.TrimSpace(beneficiary)
	if beneficiary == "" {
		return fmt.Errorf("beneficiary address is required")
	}
	s.cfg.FeeBeneficiary = beneficiary
	s.log.Infof("fee beneficiary set to %s", beneficiary)
	return nil
}

// RequiredPayment computes the exact value a buyer must attach: the base
// (unit price times quantity) plus the service fee, floor(base * bp / 10000).
// All arithmetic is integer; there is no rounding up and no refund path.
func RequiredPayment(unitPrice *big.Int, quantity uint64, feeBasisPoints uint32) (base, fee, required *big.Int) {
	base = new(big.Int).Mul(unitPrice, new(big.Int).SetUint64(quantity))
	fee = new(big.Int).Mul(base, big.NewInt(int64(feeBasisPoints)))
	fee.Div(fee, big.NewInt(BasisPointDenominator))
	required = new(big.Int).Add(base, fee)
	return base, fee, required
}

// CreateOrder validates the seller's registry state and records a new open
// order. Nothing is escrowed: the item stays with the seller, protected only
// by the standing approval to the broker.
func (s *Service) CreateOrder(ctx context.Context, seller string, params order.Params) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seller = strings.TrimSpace(seller)
	if seller == "" {
		return order.Order{}, fmt.Errorf("seller is required")
	}
	if !params.AssetClass.Valid() {
		return order.Order{}, fmt.Errorf("unknown asset class %q", params.AssetClass)
	}
	// Zero is a valid price: a giveaway listing settles against a payment of
	// exactly zero. Only negative or absent prices are malformed.
	if params.UnitPrice == nil || params.UnitPrice.Sign() < 0 {
		return order.Order{}, order.ErrInvalidPrice
	}

	if err := s.validateSellerState(ctx, seller, params); err != nil {
		return order.Order{}, err
	}
	if params.PaymentToken != "" {
		// Reserved for future payment currencies; native only today.
		return order.Order{}, order.ErrUnsupportedPaymentToken
	}

	ord := order.Order{
		Seller:          seller,
		AssetClass:      params.AssetClass,
		AssetContract:   params.AssetContract,
		ItemID:          params.ItemID,
		Quantity:        params.Quantity,
		UnitPrice:       params.UnitPrice,
		PaymentToken:    params.PaymentToken,
		DesignatedBuyer: strings.TrimSpace(params.DesignatedBuyer),
		MaxPerPurchase:  params.MaxPerPurchase,
		Status:          order.StatusOpen,
	}
	created, err := s.orders.CreateOrder(ctx, ord)
	if err != nil {
		return order.Order{}, fmt.Errorf("store order: %w", err)
	}

	s.feed.Emit(ctx, events.Event{
		Type:            events.TypeOrderCreated,
		OrderID:         created.ID,
		Seller:          created.Seller,
		AssetClass:      string(created.AssetClass),
		AssetContract:   created.AssetContract,
		ItemID:          created.ItemID,
		Quantity:        created.Quantity,
		UnitPrice:       created.UnitPrice.String(),
		DesignatedBuyer: created.DesignatedBuyer,
		MaxPerPurchase:  created.MaxPerPurchase,
	})
	metrics.RecordOrderCreated(string(created.AssetClass))

	s.log.WithField("order_id", created.ID).
		WithField("seller", created.Seller).
		WithField("item_id", created.ItemID).
		Info("order created")
	return created, nil
}

// validateSellerState checks ownership and broker approval against the
// registries, in the order callers observe the failures.
func (s *Service) validateSellerState(ctx context.Context, seller string, params order.Params) error {
	switch params.AssetClass {
	case order.ClassSingleUnit:
		reg, err := s.registries.SingleUnit(params.AssetContract)
		if err != nil {
			return fmt.Errorf("resolve registry: %w", err)
		}
		owner, err := reg.OwnerOf(ctx, params.ItemID)
		if err != nil || owner != seller {
			return order.ErrNotOwner
		}
		approved, err := reg.IsApprovedForAll(ctx, seller, s.broker.Address())
		if err != nil {
			return fmt.Errorf("check approval: %w", err)
		}
		if !approved {
			return order.ErrNotApproved
		}
		if params.Quantity != 1 {
			return order.ErrInvalidSingleUnitQuantity
		}
	case order.ClassMultiUnit:
		reg, err := s.registries.MultiUnit(params.AssetContract)
		if err != nil {
			return fmt.Errorf("resolve registry: %w", err)
		}
		balance, err := reg.BalanceOf(ctx, seller, params.ItemID)
		if err != nil {
			return fmt.Errorf("check balance: %w", err)
		}
		if balance < params.Quantity {
			return order.ErrInsufficientBalance
		}
		approved, err := reg.IsApprovedForAll(ctx, seller, s.broker.Address())
		if err != nil {
			return fmt.Errorf("check approval: %w", err)
		}
		if !approved {
			return order.ErrNotApproved
		}
		if params.Quantity == 0 {
			return order.ErrInvalidQuantity
		}
	}
	return nil
}

// Buy purchases quantity units from an open order. The attached payment must
// equal exactly the required value for the requested quantity; any mismatch,
// over or under, is rejected. The call either settles fully (item moved,
// money split, order updated, events emitted) or has no effect at all.
func (s *Service) Buy(ctx context.Context, buyer, orderID string, quantity uint64, pay *big.Int) (Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	receipt, err := s.buyLocked(ctx, buyer, orderID, quantity, pay)
	if err != nil {
		metrics.RecordPurchase("rejected", time.Since(start))
		return Receipt{}, err
	}
	metrics.RecordPurchase("settled", time.Since(start))
	return receipt, nil
}

func (s *Service) buyLocked(ctx context.Context, buyer, orderID string, quantity uint64, pay *big.Int) (Receipt, error) {
	ord, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Receipt{}, order.ErrOrderNotOpen
		}
		return Receipt{}, fmt.Errorf("load order: %w", err)
	}
	if !ord.Open() {
		return Receipt{}, order.ErrOrderNotOpen
	}
	if quantity == 0 {
		return Receipt{}, order.ErrInvalidQuantity
	}
	if ord.DesignatedBuyer != "" && buyer != ord.DesignatedBuyer {
		return Receipt{}, order.ErrNotDesignatedBuyer
	}
	if quantity > ord.Quantity {
		return Receipt{}, order.ErrInsufficientRemaining
	}
	// MaxPerPurchase == 0 means no per-purchase cap. Single-unit orders need no
	// extra rule: with a remaining quantity of 1 the checks above already force
	// the one full purchase.
	if ord.MaxPerPurchase > 0 && quantity > ord.MaxPerPurchase {
		return Receipt{}, order.ErrQuantityExceedsLimit
	}

	base, fee, required := RequiredPayment(ord.UnitPrice, quantity, s.cfg.FeeBasisPoints)
	if pay == nil || pay.Cmp(required) != 0 {
		return Receipt{}, order.ErrIncorrectPaymentValue
	}

	// Bookkeeping commits before the external registry transfer, so a
	// re-entrant call observes the already-updated remaining quantity.
	remaining := ord.Quantity - quantity
	closed := remaining == 0
	updated := ord
	updated.Quantity = remaining
	if closed {
		updated.Status = order.StatusClosed
	}
	if _, err := s.orders.UpdateOrder(ctx, updated); err != nil {
		return Receipt{}, fmt.Errorf("update order: %w", err)
	}

	settlement := ledger.Settlement{
		OrderID:     ord.ID,
		Buyer:       buyer,
		Seller:      ord.Seller,
		Beneficiary: s.cfg.FeeBeneficiary,
		Base:        base,
		Fee:         fee,
	}
	if err := s.ledger.Settle(ctx, settlement); err != nil {
		s.restoreOrder(ctx, ord)
		return Receipt{}, err
	}

	if err := s.broker.TransferItem(ctx, s.cfg.Address, ord.AssetClass, ord.AssetContract, ord.Seller, buyer, ord.ItemID, quantity); err != nil {
		if rerr := s.ledger.Reverse(ctx, settlement); rerr != nil {
			s.log.WithError(rerr).WithField("order_id", ord.ID).Error("settlement reversal failed")
		}
		s.restoreOrder(ctx, ord)
		return Receipt{}, err
	}

	s.feed.Emit(ctx, events.Event{
		Type:       events.TypeBuy,
		OrderID:    ord.ID,
		Buyer:      buyer,
		Quantity:   quantity,
		AmountPaid: required.String(),
		FeePaid:    fee.String(),
	})
	if closed {
		s.feed.Emit(ctx, events.Event{Type: events.TypeOrderClosed, OrderID: ord.ID})
		metrics.RecordOrderClosed()
	}

	s.log.WithField("order_id", ord.ID).
		WithField("buyer", buyer).
		WithField("quantity", quantity).
		WithField("amount", required.String()).
		Info("purchase settled")
	return Receipt{
		OrderID:    ord.ID,
		Buyer:      buyer,
		Quantity:   quantity,
		AmountPaid: required,
		FeePaid:    fee,
		Closed:     closed,
	}, nil
}

func (s *Service) restoreOrder(ctx context.Context, ord order.Order) {
	if _, err := s.orders.UpdateOrder(ctx, ord); err != nil {
		s.log.WithError(err).WithField("order_id", ord.ID).Error("order rollback failed")
	}
}

// GetOrder retrieves an order by identifier, open or closed.
func (s *Service) GetOrder(ctx context.Context, id string) (order.Order, error) {
	return s.orders.GetOrder(ctx, id)
}

// ListOrders lists orders, optionally filtered by seller and open status.
func (s *Service) ListOrders(ctx context.Context, seller string, openOnly bool) ([]order.Order, error) {
	return s.orders.ListOrders(ctx, seller, openOnly)
}
