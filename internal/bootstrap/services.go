package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/target/opsdesk-go/config"
	redisadapter "github.com/target/opsdesk-go/internal/adapters/redis"
	"github.com/target/opsdesk-go/internal/data"
	httpx "github.com/target/opsdesk-go/internal/http"
	"github.com/target/opsdesk-go/internal/observability/statsd"
	"github.com/target/opsdesk-go/internal/ports"
	"github.com/target/opsdesk-go/internal/service"
)

// ServiceContainer holds the services backing the bridge API.
type ServiceContainer struct {
	Sessions *service.SessionManager
	Profiles *service.ProfileUpdateCoordinator
	Metrics  *statsd.Client // nil when metrics are disabled
	// HealthChecks are run by /healthz.
	HealthChecks []httpx.HealthCheck
}

// Infra groups connected infrastructure clients.
type Infra struct {
	DB    *sql.DB
	Redis redis.UniversalClient // Optional: session snapshots are disabled without it
	// Store overrides the Postgres profile repository (tests, tooling).
	Store ports.ProfileStore
}

// ServicesConfig contains dependencies for BuildServices.
type ServicesConfig struct {
	Config *config.AppConfig
	Infra  Infra
	Logger *slog.Logger
}

// BuildServices wires the auth core: profile store, credential provider, role
// resolution, session manager and profile update coordinator.
func BuildServices(cfg ServicesConfig) (ServiceContainer, error) {
	if cfg.Config == nil {
		return ServiceContainer{}, errors.New("config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config

	var container ServiceContainer
	store := cfg.Infra.Store
	if store == nil {
		if cfg.Infra.DB == nil {
			return ServiceContainer{}, errors.New("database or profile store is required")
		}
		repo := data.NewProfileRepo(cfg.Infra.DB, data.ProfileRepoConfig{Logger: logger})
		store = repo
		container.HealthChecks = append(container.HealthChecks, repo.Ping)
	}

	auth, err := BuildAuthServices(AuthConfig{Auth: appCfg.Auth, Store: store, Logger: logger})
	if err != nil {
		return ServiceContainer{}, err
	}

	var snapshots ports.SessionSnapshotStore
	if rc := cfg.Infra.Redis; rc != nil && appCfg.Session.SnapshotEnabled {
		snapshots = redisadapter.NewSnapshotStore(rc, redisadapter.SnapshotStoreOptions{
			Key: appCfg.Session.SnapshotKey,
			TTL: appCfg.Session.SnapshotTTL,
		})
		container.HealthChecks = append(container.HealthChecks, func(ctx context.Context) error {
			return rc.Ping(ctx).Err()
		})
	} else {
		logger.Info("session snapshots disabled; sessions will not survive restarts")
	}

	container.Metrics = buildMetrics(logger, appCfg.Observability.Metrics)
	var sink statsd.Sink
	if container.Metrics != nil {
		sink = container.Metrics
	}

	container.Sessions = service.NewSessionManager(service.SessionManagerOptions{
		Deps: service.SessionDeps{
			Provider:  auth.Provider,
			Resolver:  auth.Resolver,
			Fallback:  auth.Fallback,
			Snapshots: snapshots,
		},
		Config:  service.SessionConfig{KeepSessionOnDelete: !appCfg.Auth.LogoutOnProfileDelete},
		Metrics: sink,
		Logger:  logger,
	})
	container.Profiles = service.NewProfileUpdateCoordinator(service.ProfileUpdateCoordinatorOptions{
		Sessions: container.Sessions,
		Logger:   logger,
	})
	return container, nil
}

// RestoreSession reactivates a persisted session, if any. Failures leave the
// session idle.
func RestoreSession(ctx context.Context, sessions *service.SessionManager, logger *slog.Logger) {
	id, err := sessions.Restore(ctx)
	if err != nil {
		logger.InfoContext(ctx, "no session restored", "reason", err)
		return
	}
	logger.InfoContext(ctx, "session restored", "role", id.Role, "source", id.Source)
}

// buildMetrics configures the StatsD sink.
func buildMetrics(logger *slog.Logger, cfg config.ObservabilityMetricsConfig) *statsd.Client {
	if !cfg.IsEnabled() {
		return nil
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return nil
	}
	return client
}
