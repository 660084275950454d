// Package app wires the wager layer services together and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/R3E-Network/wager_layer/internal/app/assets"
	"github.com/R3E-Network/wager_layer/internal/app/events"
	"github.com/R3E-Network/wager_layer/internal/app/services/accounts"
	challengesvc "github.com/R3E-Network/wager_layer/internal/app/services/challenges"
	vaultsvc "github.com/R3E-Network/wager_layer/internal/app/services/vault"
	"github.com/R3E-Network/wager_layer/internal/app/storage"
	"github.com/R3E-Network/wager_layer/internal/app/storage/memory"
	"github.com/R3E-Network/wager_layer/internal/app/system"
	"github.com/R3E-Network/wager_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Accounts     storage.AccountStore
	Challenges   storage.ChallengeStore
	Participants storage.ParticipantStore
	Ledger       storage.LedgerStore
}

// Option adjusts application wiring before services start.
type Option func(*options)

type options struct {
	settlementFeeRecipient string
	settlementInterval     time.Duration
	emitter                events.Emitter
	clock                  challengesvc.Clock
}

// WithSettlement enables the background expiry sweep. The fee recipient is
// the account credited with platform fees for auto-settled challenges.
func WithSettlement(feeRecipient string, interval time.Duration) Option {
	return func(o *options) {
		o.settlementFeeRecipient = feeRecipient
		o.settlementInterval = interval
	}
}

// WithEmitter routes lifecycle events to the given sink.
func WithEmitter(emitter events.Emitter) Option {
	return func(o *options) { o.emitter = emitter }
}

// WithClock overrides the lifecycle time source.
func WithClock(clock challengesvc.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Accounts   *accounts.Service
	Challenges *challengesvc.Service
	Vault      *vaultsvc.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, log *logger.Logger, opts ...Option) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	var cfg options
	for _, opt := range opts {
		opt(&cfg)
	}

	mem := memory.New()
	if stores.Accounts == nil {
		stores.Accounts = mem
	}
	if stores.Challenges == nil {
		stores.Challenges = mem
	}
	if stores.Participants == nil {
		stores.Participants = mem
	}
	if stores.Ledger == nil {
		stores.Ledger = mem
	}

	manager := system.NewManager(log)

	movers := assets.NewRegistry(stores.Ledger)
	vaultService := vaultsvc.New(stores.Ledger, movers, log)
	acctService := accounts.New(stores.Accounts, stores.Ledger, log)
	challengeService := challengesvc.New(stores.Accounts, stores.Challenges, stores.Participants, vaultService, log)
	if cfg.emitter != nil {
		challengeService.WithEmitter(cfg.emitter)
	}
	if cfg.clock != nil {
		challengeService.WithClock(cfg.clock)
	}

	for _, name := range []string{"accounts", "challenges", "vault"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	if cfg.settlementFeeRecipient != "" {
		poller := challengesvc.NewExpiryPoller(stores.Challenges, stores.Participants, challengeService, cfg.settlementFeeRecipient, log)
		if cfg.settlementInterval > 0 {
			poller.WithInterval(cfg.settlementInterval)
		}
		if err := manager.Register(poller); err != nil {
			return nil, fmt.Errorf("register %s: %w", poller.Name(), err)
		}
	} else {
		log.Warn("settlement fee recipient not set; expiry sweep disabled")
	}

	return &Application{
		manager:    manager,
		log:        log,
		Accounts:   acctService,
		Challenges: challengeService,
		Vault:      vaultService,
	}, nil
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
