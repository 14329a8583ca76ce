// Package app wires the marketplace services together: registries, escrow
// broker, native-currency ledger and the marketplace engine.
package app

import (
	"context"
	"fmt"

	"github.com/dexlabs/simpledex/internal/app/domain/order"
	"github.com/dexlabs/simpledex/internal/app/events"
	"github.com/dexlabs/simpledex/internal/app/registry"
	brokersvc "github.com/dexlabs/simpledex/internal/app/services/broker"
	ledgersvc "github.com/dexlabs/simpledex/internal/app/services/ledger"
	marketsvc "github.com/dexlabs/simpledex/internal/app/services/market"
	"github.com/dexlabs/simpledex/internal/app/storage"
	"github.com/dexlabs/simpledex/internal/app/storage/memory"
	"github.com/dexlabs/simpledex/internal/app/system"
	"github.com/dexlabs/simpledex/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Orders    storage.OrderStore
	Ledger    storage.LedgerStore
	Operators storage.OperatorStore
	Events    storage.EventStore
}

// Config carries the identities and fee settings the application is deployed
// with. Admin is the single identity allowed to mutate the operator allowlist
// and fee configuration.
type Config struct {
	Admin          string
	BrokerAddress  string
	EngineAddress  string
	FeeBeneficiary string
	FeeBasisPoints uint32
	EventBuffer    int

	// Registries overrides the asset registry resolver. When nil the
	// application wires in-memory registries suitable for development and
	// tests, exposed through Dev.
	Registries registry.Resolver
}

// Application ties the marketplace services together and manages their
// lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Registries registry.Resolver
	// Dev holds the in-memory resolver when no external registries were
	// injected; nil otherwise.
	Dev    *registry.MemoryResolver
	Broker *brokersvc.Service
	Ledger *ledgersvc.Service
	Market *marketsvc.Service
	Feed   *events.Feed
	Events storage.EventStore
}

// New builds a fully initialised application. The marketplace engine is
// registered as a broker operator before the application is returned; without
// that wiring no purchase can settle.
func New(cfg Config, stores Stores, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if cfg.Admin == "" {
		return nil, fmt.Errorf("admin identity is required")
	}
	if cfg.BrokerAddress == "" {
		cfg.BrokerAddress = "broker"
	}
	if cfg.EngineAddress == "" {
		cfg.EngineAddress = "market-engine"
	}

	mem := memory.New()
	if stores.Orders == nil {
		stores.Orders = mem
	}
	if stores.Ledger == nil {
		stores.Ledger = mem
	}
	if stores.Operators == nil {
		stores.Operators = mem
	}
	if stores.Events == nil {
		stores.Events = mem
	}

	var dev *registry.MemoryResolver
	registries := cfg.Registries
	if registries == nil {
		dev = registry.NewMemoryResolver()
		registries = dev
	}
	feed := events.NewFeed(cfg.EventBuffer, stores.Events, log)

	brk := brokersvc.New(cfg.BrokerAddress, cfg.Admin, stores.Operators, registries, log)
	led := ledgersvc.New(stores.Ledger, log)

	engine, err := marketsvc.New(marketsvc.Config{
		Address:        cfg.EngineAddress,
		Admin:          cfg.Admin,
		FeeBeneficiary: cfg.FeeBeneficiary,
		FeeBasisPoints: cfg.FeeBasisPoints,
	}, stores.Orders, registries, brk, led, feed, log)
	if err != nil {
		return nil, fmt.Errorf("build market engine: %w", err)
	}

	if err := brk.AddOperators(context.Background(), cfg.Admin, []string{cfg.EngineAddress}); err != nil {
		return nil, fmt.Errorf("register engine as broker operator: %w", err)
	}

	manager := system.NewManager()
	for _, name := range []string{"broker", "ledger", "market"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	return &Application{
		manager:    manager,
		log:        log,
		Registries: registries,
		Dev:        dev,
		Broker:     brk,
		Ledger:     led,
		Market:     engine,
		Feed:       feed,
		Events:     stores.Events,
	}, nil
}

// ErrNoDevRegistries is returned by the Dev helpers when external registries
// were injected and the in-memory resolver is unavailable.
var ErrNoDevRegistries = fmt.Errorf("app: in-memory registries not enabled")

// RegisterDevRegistry creates an in-memory registry for a contract address.
// Available only when the application runs on its own in-memory registries.
func (a *Application) RegisterDevRegistry(class order.AssetClass, contract string) error {
	if a.Dev == nil {
		return ErrNoDevRegistries
	}
	switch class {
	case order.ClassSingleUnit:
		a.Dev.RegisterSingleUnit(contract, registry.NewMemorySingleUnit())
	case order.ClassMultiUnit:
		a.Dev.RegisterMultiUnit(contract, registry.NewMemoryMultiUnit())
	default:
		return fmt.Errorf("app: unknown asset class %q", class)
	}
	return nil
}

// DevMint credits an owner with items in an in-memory registry. For single-unit
// registries quantity must be 1.
func (a *Application) DevMint(contract, owner, itemID string, quantity uint64) error {
	if a.Dev == nil {
		return ErrNoDevRegistries
	}
	if reg, err := a.Dev.SingleUnit(contract); err == nil {
		mem, ok := reg.(*registry.MemorySingleUnit)
		if !ok {
			return fmt.Errorf("app: registry %s does not support minting", contract)
		}
		if quantity != 1 {
			return fmt.Errorf("app: single-unit mint quantity must be 1")
		}
		return mem.Mint(owner, itemID)
	}
	reg, err := a.Dev.MultiUnit(contract)
	if err != nil {
		return err
	}
	mem, ok := reg.(*registry.MemoryMultiUnit)
	if !ok {
		return fmt.Errorf("app: registry %s does not support minting", contract)
	}
	mem.Mint(owner, itemID, quantity)
	return nil
}

// DevApprove sets operator approval in an in-memory registry.
func (a *Application) DevApprove(contract, owner, operator string, approved bool) error {
	if a.Dev == nil {
		return ErrNoDevRegistries
	}
	if reg, err := a.Dev.SingleUnit(contract); err == nil {
		if mem, ok := reg.(*registry.MemorySingleUnit); ok {
			mem.SetApprovalForAll(owner, operator, approved)
			return nil
		}
		return fmt.Errorf("app: registry %s does not support approvals", contract)
	}
	reg, err := a.Dev.MultiUnit(contract)
	if err != nil {
		return err
	}
	if mem, ok := reg.(*registry.MemoryMultiUnit); ok {
		mem.SetApprovalForAll(owner, operator, approved)
		return nil
	}
	return fmt.Errorf("app: registry %s does not support approvals", contract)
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
