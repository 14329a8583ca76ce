package memory

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/dexlabs/simpledex/internal/app/domain/order"
	"github.com/dexlabs/simpledex/internal/app/domain/payment"
	"github.com/dexlabs/simpledex/internal/app/events"
	"github.com/dexlabs/simpledex/internal/app/storage"
)

func TestCreateOrderAssignsSequentialIDs(t *testing.T) {
	store := New()
	ctx := context.Background()

	for i, want := range []string{"1", "2", "3"} {
		ord, err := store.CreateOrder(ctx, order.Order{
			Seller:    "alice",
			UnitPrice: big.NewInt(100),
			Status:    order.StatusOpen,
		})
		if err != nil {
			t.Fatalf("create %d: %v", i+1, err)
		}
		if ord.ID != want {
			t.Fatalf("order id = %q, want %q", ord.ID, want)
		}
		if ord.CreatedAt.IsZero() || ord.UpdatedAt.IsZero() {
			t.Fatalf("timestamps not set: %+v", ord)
		}
	}
}

func TestUpdateOrderPreservesCreatedAt(t *testing.T) {
	store := New()
	ctx := context.Background()

	ord, err := store.CreateOrder(ctx, order.Order{
		Seller: "alice", Quantity: 5, UnitPrice: big.NewInt(100), Status: order.StatusOpen,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ord.Quantity = 2
	updated, err := store.UpdateOrder(ctx, ord)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Quantity != 2 {
		t.Fatalf("quantity = %d, want 2", updated.Quantity)
	}
	if !updated.CreatedAt.Equal(ord.CreatedAt) {
		t.Fatalf("created at changed on update")
	}

	missing := order.Order{ID: "999"}
	if _, err := store.UpdateOrder(ctx, missing); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("update missing = %v, want ErrNotFound", err)
	}
	if _, err := store.GetOrder(ctx, "999"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get missing = %v, want ErrNotFound", err)
	}
}

func TestListOrdersFilters(t *testing.T) {
	store := New()
	ctx := context.Background()

	seed := []order.Order{
		{Seller: "alice", UnitPrice: big.NewInt(1), Status: order.StatusOpen},
		{Seller: "alice", UnitPrice: big.NewInt(1), Status: order.StatusClosed},
		{Seller: "bob", UnitPrice: big.NewInt(1), Status: order.StatusOpen},
	}
	for _, ord := range seed {
		if _, err := store.CreateOrder(ctx, ord); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	all, err := store.ListOrders(ctx, "", false)
	if err != nil || len(all) != 3 {
		t.Fatalf("all orders = %d (%v), want 3", len(all), err)
	}
	alice, err := store.ListOrders(ctx, "alice", false)
	if err != nil || len(alice) != 2 {
		t.Fatalf("alice orders = %d (%v), want 2", len(alice), err)
	}
	aliceOpen, err := store.ListOrders(ctx, "alice", true)
	if err != nil || len(aliceOpen) != 1 {
		t.Fatalf("alice open orders = %d (%v), want 1", len(aliceOpen), err)
	}
}

func TestOrdersAreClonedOnReadAndWrite(t *testing.T) {
	store := New()
	ctx := context.Background()

	price := big.NewInt(100)
	ord, err := store.CreateOrder(ctx, order.Order{Seller: "alice", UnitPrice: price, Status: order.StatusOpen})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Mutating the caller's big.Int must not corrupt the stored order.
	price.SetInt64(-1)
	ord.UnitPrice.SetInt64(-2)

	stored, err := store.GetOrder(ctx, ord.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.UnitPrice.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("stored price = %s, want 100", stored.UnitPrice)
	}
}

func TestLedgerAccountLifecycle(t *testing.T) {
	store := New()
	ctx := context.Background()

	acct := payment.Account{
		Address:        "alice",
		Balance:        big.NewInt(0),
		TotalDeposited: big.NewInt(0),
		TotalSpent:     big.NewInt(0),
	}
	if _, err := store.CreateLedgerAccount(ctx, acct); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.CreateLedgerAccount(ctx, acct); err == nil {
		t.Fatalf("expected duplicate create to fail")
	}

	acct.Balance = big.NewInt(500)
	if _, err := store.UpdateLedgerAccount(ctx, acct); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.GetLedgerAccount(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Balance.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("balance = %s, want 500", got.Balance)
	}

	if _, err := store.GetLedgerAccount(ctx, "nobody"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get missing = %v, want ErrNotFound", err)
	}
}

func TestLedgerEntriesPerAddress(t *testing.T) {
	store := New()
	ctx := context.Background()

	for _, addr := range []string{"alice", "alice", "bob"} {
		if _, err := store.CreateLedgerEntry(ctx, payment.Entry{
			Address: addr, Type: payment.EntryDeposit, Amount: big.NewInt(10),
		}); err != nil {
			t.Fatalf("create entry: %v", err)
		}
	}

	alice, err := store.ListLedgerEntries(ctx, "alice")
	if err != nil || len(alice) != 2 {
		t.Fatalf("alice entries = %d (%v), want 2", len(alice), err)
	}
	if alice[0].ID == alice[1].ID {
		t.Fatalf("entry ids not unique: %q", alice[0].ID)
	}
}

func TestEventLogFilterAndLimit(t *testing.T) {
	store := New()
	ctx := context.Background()

	seed := []events.Event{
		{Type: events.TypeOrderCreated, OrderID: "1"},
		{Type: events.TypeBuy, OrderID: "1"},
		{Type: events.TypeOrderCreated, OrderID: "2"},
		{Type: events.TypeOrderClosed, OrderID: "1"},
	}
	for _, evt := range seed {
		if _, err := store.AppendEvent(ctx, evt); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	forOrder, err := store.ListEvents(ctx, "1", 0)
	if err != nil || len(forOrder) != 3 {
		t.Fatalf("order 1 events = %d (%v), want 3", len(forOrder), err)
	}
	limited, err := store.ListEvents(ctx, "", 2)
	if err != nil || len(limited) != 2 {
		t.Fatalf("limited events = %d (%v), want 2", len(limited), err)
	}
	// The limit keeps the most recent events.
	if limited[1].Type != events.TypeOrderClosed {
		t.Fatalf("last event = %s, want order.closed", limited[1].Type)
	}
}
