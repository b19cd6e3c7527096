package main

import (
	"fmt"
	"log/slog"

	"github.com/devilmonastery/fedmet/internal/config"
	"github.com/devilmonastery/fedmet/internal/domain/services"
	"github.com/devilmonastery/fedmet/internal/infrastructure/database/postgres"
	"github.com/devilmonastery/fedmet/internal/metadata"
	"github.com/devilmonastery/fedmet/internal/notify"
	"github.com/devilmonastery/fedmet/internal/pkg/idgen"
	"github.com/devilmonastery/fedmet/migrations"
)

// runtime wires configuration, database and services together for one
// command invocation.
type runtime struct {
	cfg  *config.Config
	conn *postgres.Connection
	log  *slog.Logger

	refresh     *services.RefreshService
	federations *services.FederationService
	top         *services.TopFederatedService
}

func openRuntime(configPath string) (*runtime, error) {
	log := slog.Default()

	if err := idgen.Initialize(1); err != nil {
		return nil, fmt.Errorf("failed to initialize ID generator: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	conn, err := postgres.NewConnection(cfg.Database.Postgres.ConnectionString())
	if err != nil {
		return nil, err
	}
	if err := conn.RunMigrations(migrations.FS); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	store, err := metadata.NewStore(cfg.Documents.Dir)
	if err != nil {
		conn.Close()
		return nil, err
	}

	fedRepo := postgres.NewFederationRepository(conn.DB)
	entityRepo := postgres.NewEntityRepository(conn.DB)
	typeRepo := postgres.NewEntityTypeRepository(conn.DB)
	statRepo := postgres.NewEntityStatRepository(conn.DB)

	fetcher := metadata.NewFetcher(cfg.Fetcher, log)
	reconciler := services.NewReconcileService(entityRepo, typeRepo, log)
	stats := services.NewStatsService(entityRepo, statRepo, cfg.Stats.Features, log)
	notifier := notify.NewMailer(cfg.Mail, log)

	refresh := services.NewRefreshService(fedRepo, fetcher, store, reconciler,
		stats, notifier, cfg.Mail.SubjectPrefix, log)

	return &runtime{
		cfg:         cfg,
		conn:        conn,
		log:         log,
		refresh:     refresh,
		federations: services.NewFederationService(fedRepo, entityRepo, refresh, log),
		top:         services.NewTopFederatedService(entityRepo, cfg.TopCache, log),
	}, nil
}

func (r *runtime) Close() {
	if err := r.conn.Close(); err != nil {
		r.log.Error("failed to close database connection", slog.String("error", err.Error()))
	}
}
