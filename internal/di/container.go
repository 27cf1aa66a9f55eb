package di

import (
	"github.com/mufasadev/stripe2qbo/internal/config"
	"github.com/mufasadev/stripe2qbo/internal/domain/gateways"
	"github.com/mufasadev/stripe2qbo/internal/domain/models"
	"github.com/mufasadev/stripe2qbo/internal/domain/repositories"
	"github.com/mufasadev/stripe2qbo/internal/infrastructure/api/handlers"
	"github.com/mufasadev/stripe2qbo/internal/infrastructure/broadcast"
	"github.com/mufasadev/stripe2qbo/internal/usecases/interactor"
	"github.com/mufasadev/stripe2qbo/pkg/util/repeat"
)

// Dependencies are the drivers picked at startup.
// Hub and Progress are optional; progress goes to the hub when Progress is nil.
type Dependencies struct {
	Transactions repositories.TransactionRepository
	Settings     repositories.SettingsRepository
	Source       gateways.SourceLedger
	Ledger       gateways.TargetLedger
	Catalog      gateways.Catalog
	Hub          *broadcast.Hub
	Progress     gateways.ProgressPublisher
}

type Container struct {
	Hub                    *broadcast.Hub
	SyncEngine             *interactor.SyncEngine
	TransactionInteractor  *interactor.TransactionInteractor
	ReleaseStaleInteractor *interactor.ReleaseStaleInteractor
	ImportHandler          *handlers.ImportHandler
	SyncHandler            *handlers.SyncHandler
	SettingsHandler        *handlers.SettingsHandler
	TransactionHandler     *handlers.TransactionHandler
}

// NewContainer creates a new Container instance.
func NewContainer(cfg *config.Config, deps Dependencies) *Container {
	hub := deps.Hub
	if hub == nil {
		hub = broadcast.NewHub(cfg.Progress.Buffer)
	}
	var progress gateways.ProgressPublisher = hub
	if deps.Progress != nil {
		progress = deps.Progress
	}

	key := models.ConnectionKey{StripeAccountID: cfg.StripeAccountID, RealmID: cfg.RealmID}
	transactionRepository := interactor.NewObservedTransactionRepository(deps.Transactions, progress)

	resolver := interactor.NewMappingResolver(deps.Settings, deps.Catalog, key, cfg.Settings.CacheTTL)
	syncEngine := interactor.NewSyncEngine(transactionRepository, resolver, deps.Ledger, progress, interactor.SyncOptions{
		Workers: cfg.Workers,
		Retry: repeat.Policy{
			Attempts:    cfg.MaxAttempts,
			InitialWait: cfg.InitialBackoff,
			MaxWait:     cfg.MaxBackoff,
		},
		CallTimeout: cfg.CallTimeout,
	})

	importInteractor := interactor.NewImportInteractor(deps.Source, transactionRepository)
	settingsInteractor := interactor.NewSettingsInteractor(deps.Settings, resolver, key)
	transactionInteractor := interactor.NewTransactionInteractor(transactionRepository)
	releaseStaleInteractor := interactor.NewReleaseStaleInteractor(transactionRepository, cfg.LeaseTimeout)

	return &Container{
		Hub:                    hub,
		SyncEngine:             syncEngine,
		TransactionInteractor:  transactionInteractor,
		ReleaseStaleInteractor: releaseStaleInteractor,
		ImportHandler:          handlers.NewImportHandler(importInteractor),
		SyncHandler:            handlers.NewSyncHandler(syncEngine, hub),
		SettingsHandler:        handlers.NewSettingsHandler(settingsInteractor),
		TransactionHandler:     handlers.NewTransactionHandler(transactionInteractor),
	}
}
