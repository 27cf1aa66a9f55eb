package main

import (
	"context"
	"github.com/mufasadev/stripe2qbo/internal/app"
	"github.com/mufasadev/stripe2qbo/internal/config"
	"github.com/mufasadev/stripe2qbo/internal/di"
	"github.com/mufasadev/stripe2qbo/internal/errors"
	"github.com/mufasadev/stripe2qbo/internal/infrastructure/api/routers"
	"github.com/mufasadev/stripe2qbo/internal/infrastructure/broadcast"
	"github.com/mufasadev/stripe2qbo/internal/infrastructure/database/db_client"
	"github.com/mufasadev/stripe2qbo/internal/infrastructure/database/repositories"
	"github.com/mufasadev/stripe2qbo/internal/infrastructure/memory"
	"github.com/mufasadev/stripe2qbo/internal/infrastructure/qbo"
	"github.com/mufasadev/stripe2qbo/internal/infrastructure/stripe"
	"github.com/mufasadev/stripe2qbo/pkg/log"
	stdlog "log"
)

const (
	appName = "stripe2qbo"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("load config: %v", err)
	}

	opts := []log.LoggerOption{log.WithConsoleLogger(), log.WithLevelName(cfg.Log.Level)}
	if cfg.Log.File != "" {
		opts = append(opts, log.WithFileLogger(cfg.Log.File))
	}
	log.Init(appName, opts...)
	logger := log.GetLogger()

	deps := di.Dependencies{Hub: broadcast.NewHub(cfg.Progress.Buffer)}

	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		if err = db_client.Migrate(cfg.PostgreSQL.MigrateURL()); err != nil {
			logger.Fatal().Err(err).Msg(errors.ErrorFailedToRunMigrations)
		}
		db, err := db_client.NewPGClient(cfg.PostgreSQL).Connect(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg(errors.ErrorFailedToConnectToTheDatabase)
		}
		defer db.Close()
		deps.Transactions = repositories.NewTransactionRepositoryImpl(db, cfg.LeaseTimeout)
		deps.Settings = repositories.NewSettingsRepositoryImpl(db)
	default:
		logger.Warn().Msg("using the in-memory store, nothing survives a restart")
		deps.Transactions = memory.NewTransactionRepository(cfg.LeaseTimeout)
		deps.Settings = memory.NewSettingsRepository()
	}

	switch cfg.SourceDriver {
	case config.SourceDriverStripe:
		deps.Source = stripe.NewClient(cfg.Stripe)
	default:
		logger.Warn().Msg("using the in-memory source ledger")
		deps.Source = memory.NewSource()
	}

	switch cfg.TargetDriver {
	case config.TargetDriverQBO:
		client := qbo.NewClient(ctx, cfg.QBO)
		deps.Ledger, deps.Catalog = client, client
	default:
		logger.Warn().Msg("using the in-memory target ledger, nothing is posted to QuickBooks")
		ledger := memory.NewDemoLedger()
		deps.Ledger, deps.Catalog = ledger, ledger
	}

	if cfg.RedisURL != "" {
		relay, err := broadcast.NewRedisRelay(ctx, cfg.RedisURL, cfg.Channel, deps.Hub)
		if err != nil {
			logger.Fatal().Err(err).Msg(errors.ErrorFailedToConnectToRedis)
		}
		defer relay.Close()
		deps.Progress = relay
		go func() {
			if err := relay.Run(ctx); err != nil {
				logger.Error().Err(err).Msg(errors.ErrorFailedToConnectToRedis)
			}
		}()
	}

	container := di.NewContainer(cfg, deps)

	releaseStale := app.NewReleaseStaleProcess(container.ReleaseStaleInteractor, cfg.Process)
	go releaseStale.Run(ctx)

	router := routers.NewRouter(container)
	service := app.NewService(cfg, container.SyncEngine.Wait, func(context.Context) error {
		container.Hub.Close()
		return nil
	})
	service.Run(ctx, router)
}
