package registry

import (
	"context"
	"errors"
	"testing"
)

func TestSingleUnitTransferRules(t *testing.T) {
	reg := NewMemorySingleUnit()
	ctx := context.Background()

	if err := reg.Mint("alice", "nft-1"); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := reg.Mint("alice", "nft-1"); err == nil {
		t.Fatalf("expected duplicate mint to fail")
	}

	if _, err := reg.OwnerOf(ctx, "missing"); !errors.Is(err, ErrUnknownItem) {
		t.Fatalf("owner of missing = %v, want ErrUnknownItem", err)
	}

	// A stranger cannot move the item.
	if err := reg.TransferFrom(ctx, "broker", "alice", "bob", "nft-1"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("unapproved transfer = %v, want ErrNotAuthorized", err)
	}

	// The from side must actually be the owner.
	if err := reg.TransferFrom(ctx, "mallory", "mallory", "bob", "nft-1"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("wrong-owner transfer = %v, want ErrNotOwner", err)
	}

	// The owner moves it directly.
	if err := reg.TransferFrom(ctx, "alice", "alice", "bob", "nft-1"); err != nil {
		t.Fatalf("owner transfer: %v", err)
	}

	// And an approved operator moves it back.
	reg.SetApprovalForAll("bob", "broker", true)
	if err := reg.TransferFrom(ctx, "broker", "bob", "alice", "nft-1"); err != nil {
		t.Fatalf("operator transfer: %v", err)
	}
	owner, err := reg.OwnerOf(ctx, "nft-1")
	if err != nil || owner != "alice" {
		t.Fatalf("owner = %q (%v), want alice", owner, err)
	}
}

func TestApprovalRevocation(t *testing.T) {
	reg := NewMemorySingleUnit()
	ctx := context.Background()

	if err := reg.Mint("alice", "nft-1"); err != nil {
		t.Fatalf("mint: %v", err)
	}
	reg.SetApprovalForAll("alice", "broker", true)
	reg.SetApprovalForAll("alice", "broker", false)

	if err := reg.TransferFrom(ctx, "broker", "alice", "bob", "nft-1"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("revoked transfer = %v, want ErrNotAuthorized", err)
	}
}

func TestMultiUnitBalancesAndTransfers(t *testing.T) {
	reg := NewMemoryMultiUnit()
	ctx := context.Background()

	reg.Mint("alice", "token-1", 10)
	if bal, _ := reg.BalanceOf(ctx, "alice", "token-1"); bal != 10 {
		t.Fatalf("balance = %d, want 10", bal)
	}
	if bal, _ := reg.BalanceOf(ctx, "bob", "token-1"); bal != 0 {
		t.Fatalf("bob balance = %d, want 0", bal)
	}

	if err := reg.SafeTransferFrom(ctx, "broker", "alice", "bob", "token-1", 4); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("unapproved transfer = %v, want ErrNotAuthorized", err)
	}

	reg.SetApprovalForAll("alice", "broker", true)
	if err := reg.SafeTransferFrom(ctx, "broker", "alice", "bob", "token-1", 4); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := reg.SafeTransferFrom(ctx, "broker", "alice", "bob", "token-1", 7); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("over-balance transfer = %v, want ErrInsufficientBalance", err)
	}

	if bal, _ := reg.BalanceOf(ctx, "alice", "token-1"); bal != 6 {
		t.Fatalf("alice balance = %d, want 6", bal)
	}
	if bal, _ := reg.BalanceOf(ctx, "bob", "token-1"); bal != 4 {
		t.Fatalf("bob balance = %d, want 4", bal)
	}
}

func TestResolverUnknownContract(t *testing.T) {
	resolver := NewMemoryResolver()

	if _, err := resolver.SingleUnit("missing"); !errors.Is(err, ErrUnknownContract) {
		t.Fatalf("single unit = %v, want ErrUnknownContract", err)
	}
	if _, err := resolver.MultiUnit("missing"); !errors.Is(err, ErrUnknownContract) {
		t.Fatalf("multi unit = %v, want ErrUnknownContract", err)
	}

	resolver.RegisterSingleUnit("c1", NewMemorySingleUnit())
	if _, err := resolver.SingleUnit("c1"); err != nil {
		t.Fatalf("registered single unit: %v", err)
	}
}
