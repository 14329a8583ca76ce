package app

import (
	"context"
	"testing"

	"github.com/dexlabs/simpledex/internal/app/domain/order"
	"github.com/dexlabs/simpledex/internal/app/registry"
)

func TestNewRequiresAdmin(t *testing.T) {
	if _, err := New(Config{}, Stores{}, nil); err == nil {
		t.Fatalf("expected missing admin to fail")
	}
}

func TestNewRegistersEngineAsOperator(t *testing.T) {
	core, err := New(Config{Admin: "admin"}, Stores{}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ok, err := core.Broker.IsOperator(context.Background(), core.Market.Address())
	if err != nil {
		t.Fatalf("is operator: %v", err)
	}
	if !ok {
		t.Fatalf("engine %q not registered as broker operator", core.Market.Address())
	}
}

func TestLifecycleStartStop(t *testing.T) {
	core, err := New(Config{Admin: "admin"}, Stores{}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx := context.Background()
	if err := core.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := core.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestDevRegistryHelpers(t *testing.T) {
	core, err := New(Config{Admin: "admin"}, Stores{}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if core.Dev == nil {
		t.Fatalf("expected dev registries when none injected")
	}

	if err := core.RegisterDevRegistry(order.ClassSingleUnit, "c1"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := core.RegisterDevRegistry("bogus", "c2"); err == nil {
		t.Fatalf("expected unknown class to fail")
	}

	if err := core.DevMint("c1", "alice", "nft-1", 1); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := core.DevMint("c1", "alice", "nft-2", 3); err == nil {
		t.Fatalf("expected single-unit mint with quantity 3 to fail")
	}
	if err := core.DevApprove("c1", "alice", "broker", true); err != nil {
		t.Fatalf("approve: %v", err)
	}
}

func TestInjectedRegistriesDisableDevHelpers(t *testing.T) {
	resolver := registry.NewMemoryResolver()
	core, err := New(Config{Admin: "admin", Registries: resolver}, Stores{}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if core.Dev != nil {
		t.Fatalf("dev registries should be nil with injected resolver")
	}
	if err := core.RegisterDevRegistry(order.ClassSingleUnit, "c1"); err != ErrNoDevRegistries {
		t.Fatalf("register = %v, want ErrNoDevRegistries", err)
	}
}
