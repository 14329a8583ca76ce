package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/dexlabs/simpledex/internal/app/domain/order"
	"github.com/dexlabs/simpledex/internal/app/registry"
	"github.com/dexlabs/simpledex/internal/app/storage/memory"
)

func newTestBroker(t *testing.T) (*Service, *registry.MemoryResolver) {
	t.Helper()
	resolver := registry.NewMemoryResolver()
	return New("broker", "admin", memory.New(), resolver, nil), resolver
}

func TestAddOperatorsAdminOnly(t *testing.T) {
	brk, _ := newTestBroker(t)
	ctx := context.Background()

	if err := brk.AddOperators(ctx, "mallory", []string{"engine"}); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("non-admin add = %v, want ErrNotAdmin", err)
	}
	if ok, _ := brk.IsOperator(ctx, "engine"); ok {
		t.Fatalf("operator registered despite rejected call")
	}

	if err := brk.AddOperators(ctx, "admin", []string{"engine"}); err != nil {
		t.Fatalf("admin add: %v", err)
	}
	if ok, _ := brk.IsOperator(ctx, "engine"); !ok {
		t.Fatalf("operator not registered")
	}
}

func TestAddOperatorsIdempotent(t *testing.T) {
	brk, _ := newTestBroker(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := brk.AddOperators(ctx, "admin", []string{"engine"}); err != nil {
			t.Fatalf("add %d: %v", i+1, err)
		}
	}

	operators, err := brk.ListOperators(ctx)
	if err != nil {
		t.Fatalf("list operators: %v", err)
	}
	if len(operators) != 1 || operators[0] != "engine" {
		t.Fatalf("operators = %v, want exactly [engine]", operators)
	}
}

func TestTransferItemRequiresAllowlistedOperator(t *testing.T) {
	brk, resolver := newTestBroker(t)
	ctx := context.Background()

	single := registry.NewMemorySingleUnit()
	resolver.RegisterSingleUnit("c1", single)
	if err := single.Mint("alice", "nft-1"); err != nil {
		t.Fatalf("mint: %v", err)
	}
	single.SetApprovalForAll("alice", "broker", true)

	err := brk.TransferItem(ctx, "rogue", order.ClassSingleUnit, "c1", "alice", "bob", "nft-1", 1)
	if !errors.Is(err, ErrUnauthorizedOperator) {
		t.Fatalf("rogue transfer = %v, want ErrUnauthorizedOperator", err)
	}

	if err := brk.AddOperators(ctx, "admin", []string{"engine"}); err != nil {
		t.Fatalf("add operator: %v", err)
	}
	if err := brk.TransferItem(ctx, "engine", order.ClassSingleUnit, "c1", "alice", "bob", "nft-1", 1); err != nil {
		t.Fatalf("authorized transfer: %v", err)
	}
	owner, err := single.OwnerOf(ctx, "nft-1")
	if err != nil || owner != "bob" {
		t.Fatalf("owner = %q (%v), want bob", owner, err)
	}
}

func TestTransferItemWrapsRegistryRejections(t *testing.T) {
	brk, resolver := newTestBroker(t)
	ctx := context.Background()

	single := registry.NewMemorySingleUnit()
	resolver.RegisterSingleUnit("c1", single)
	if err := single.Mint("alice", "nft-1"); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := brk.AddOperators(ctx, "admin", []string{"engine"}); err != nil {
		t.Fatalf("add operator: %v", err)
	}

	// No approval granted to the broker; the registry refuses.
	err := brk.TransferItem(ctx, "engine", order.ClassSingleUnit, "c1", "alice", "bob", "nft-1", 1)
	if !errors.Is(err, ErrTransferRejected) {
		t.Fatalf("unapproved transfer = %v, want ErrTransferRejected", err)
	}

	// Single-unit transfers move exactly one instance.
	single.SetApprovalForAll("alice", "broker", true)
	err = brk.TransferItem(ctx, "engine", order.ClassSingleUnit, "c1", "alice", "bob", "nft-1", 2)
	if !errors.Is(err, ErrTransferRejected) {
		t.Fatalf("quantity 2 single-unit transfer = %v, want ErrTransferRejected", err)
	}

	// Unknown contract.
	err = brk.TransferItem(ctx, "engine", order.ClassMultiUnit, "unknown", "alice", "bob", "x", 1)
	if !errors.Is(err, ErrTransferRejected) {
		t.Fatalf("unknown contract transfer = %v, want ErrTransferRejected", err)
	}
}

func TestMultiUnitTransferMovesBalances(t *testing.T) {
	brk, resolver := newTestBroker(t)
	ctx := context.Background()

	multi := registry.NewMemoryMultiUnit()
	resolver.RegisterMultiUnit("c2", multi)
	multi.Mint("alice", "token-1", 10)
	multi.SetApprovalForAll("alice", "broker", true)

	if err := brk.AddOperators(ctx, "admin", []string{"engine"}); err != nil {
		t.Fatalf("add operator: %v", err)
	}
	if err := brk.TransferItem(ctx, "engine", order.ClassMultiUnit, "c2", "alice", "bob", "token-1", 4); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if got, _ := multi.BalanceOf(ctx, "alice", "token-1"); got != 6 {
		t.Fatalf("alice balance = %d, want 6", got)
	}
	if got, _ := multi.BalanceOf(ctx, "bob", "token-1"); got != 4 {
		t.Fatalf("bob balance = %d, want 4", got)
	}

	err := brk.TransferItem(ctx, "engine", order.ClassMultiUnit, "c2", "alice", "bob", "token-1", 7)
	if !errors.Is(err, ErrTransferRejected) {
		t.Fatalf("over-balance transfer = %v, want ErrTransferRejected", err)
	}
}
