// Package events provides the observable boundary of the marketplace. Every
// order transition emits a structured event; consumers read them through the
// feed or the persisted event log.
package events

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/dexlabs/simpledex/pkg/logger"
)

// Type classifies marketplace events.
type Type string

const (
	TypeOrderCreated Type = "order.created"
	TypeBuy          Type = "order.buy"
	TypeOrderClosed  Type = "order.closed"
)

// Event is a single marketplace occurrence. Field presence depends on the
// type: creation events carry the full order parameters, purchase events the
// buyer and amounts, close events only the order identifier.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	OrderID   string    `json:"order_id"`
	Timestamp time.Time `json:"timestamp"`

	// OrderCreated fields, in the order consumers expect them.
	Seller          string `json:"seller,omitempty"`
	AssetClass      string `json:"asset_class,omitempty"`
	AssetContract   string `json:"asset_contract,omitempty"`
	ItemID          string `json:"item_id,omitempty"`
	Quantity        uint64 `json:"quantity,omitempty"`
	UnitPrice       string `json:"unit_price,omitempty"`
	DesignatedBuyer string `json:"designated_buyer,omitempty"`
	MaxPerPurchase  uint64 `json:"max_per_purchase,omitempty"`

	// Buy fields.
	Buyer      string `json:"buyer,omitempty"`
	AmountPaid string `json:"amount_paid,omitempty"`
	FeePaid    string `json:"fee_paid,omitempty"`
}

// Sink persists events. The feed treats persistence as best-effort: a sink
// failure is logged and never blocks settlement.
type Sink interface {
	AppendEvent(ctx context.Context, evt Event) (Event, error)
}

// Feed is a bounded in-memory event buffer with optional persistence.
type Feed struct {
	mu      sync.Mutex
	entries []Event
	max     int
	nextSeq int64
	sink    Sink
	log     *logger.Logger
}

// NewFeed creates a feed retaining at most max events in memory.
func NewFeed(max int, sink Sink, log *logger.Logger) *Feed {
	if max <= 0 {
		max = 1000
	}
	if log == nil {
		log = logger.NewDefault("events")
	}
	return &Feed{max: max, nextSeq: 1, sink: sink, log: log}
}

// Emit records an event, stamping its identifier and timestamp.
func (f *Feed) Emit(ctx context.Context, evt Event) Event {
	f.mu.Lock()
	evt.ID = fmtSeq(f.nextSeq)
	f.nextSeq++
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	f.entries = append(f.entries, evt)
	if len(f.entries) > f.max {
		f.entries = f.entries[len(f.entries)-f.max:]
	}
	sink := f.sink
	f.mu.Unlock()

	if sink != nil {
		if _, err := sink.AppendEvent(ctx, evt); err != nil {
			f.log.WithError(err).Warn("persist event failed")
		}
	}
	return evt
}

// List returns buffered events, newest last, optionally filtered by order.
func (f *Feed) List(orderID string, limit int) []Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Event, 0, len(f.entries))
	for _, evt := range f.entries {
		if orderID != "" && evt.OrderID != orderID {
			continue
		}
		out = append(out, evt)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Sequence numbers are feed-local; persisted events get store identifiers.
func fmtSeq(seq int64) string {
	return strconv.FormatInt(seq, 10)
}
