package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/Alijeyrad/teleconsult/config"
	"github.com/Alijeyrad/teleconsult/internal/model"
	"github.com/Alijeyrad/teleconsult/internal/repo"
	"github.com/Alijeyrad/teleconsult/pkg/constants"
	"github.com/Alijeyrad/teleconsult/pkg/database"
	"github.com/Alijeyrad/teleconsult/pkg/events"
	"github.com/Alijeyrad/teleconsult/pkg/observability"
	"github.com/Alijeyrad/teleconsult/pkg/phonepe"
	redispkg "github.com/Alijeyrad/teleconsult/pkg/redis"
)

// InfraModule provides all infrastructure dependencies.
var InfraModule = fx.Module("infra",
	fx.Provide(ProvideDatabase),
	fx.Provide(ProvideSQLDB),
	fx.Provide(ProvideStore),
	fx.Provide(ProvideRedis),
	fx.Provide(ProvideLocker),
	fx.Provide(ProvideDeduper),
	fx.Provide(ProvideOTel),
	fx.Provide(ProvideMetrics),
	fx.Provide(ProvideNatsClient),
	fx.Provide(ProvidePublisher),
	fx.Provide(ProvidePhonePeClient),
	fx.Provide(ProvideStateMachine),
)

func ProvideDatabase(lc fx.Lifecycle, cfg *config.Config) (*database.DB, error) {
	db, err := database.NewFromCentral(cfg.Database)
	if err != nil {
		return nil, err
	}

	if cfg.Database.Migrations.AutoMigrate {
		n, err := database.Migrate(db.GetConnection(), repo.Migrations(), false, 0)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
		slog.Info("database migrated", "applied", n)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			slog.Debug("closing main database connection")
			return db.Close()
		},
	})
	return db, nil
}

func ProvideSQLDB(db *database.DB) *sql.DB {
	return db.GetConnection()
}

func ProvideStore(db *sql.DB) repo.Store {
	return repo.NewPostgres(db)
}

func ProvideRedis(lc fx.Lifecycle, cfg *config.Config) (*redis.Client, error) {
	rdb, err := redispkg.NewRedisFromCentral(cfg.Redis)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			slog.Debug("closing Redis connection")
			return rdb.Close()
		},
	})
	return rdb, nil
}

func ProvideLocker(rdb *redis.Client, cfg *config.Config) *redispkg.Locker {
	ttl := time.Duration(cfg.Redis.LockTTLSeconds) * time.Second
	return redispkg.NewLocker(rdb, constants.ServiceName+":lock:consultation:", ttl)
}

func ProvideDeduper(rdb *redis.Client, cfg *config.Config) *redispkg.Deduper {
	ttl := time.Duration(cfg.Redis.WebhookDedupeTTLHours) * time.Hour
	return redispkg.NewDeduper(rdb, constants.ServiceName+":webhook:", ttl)
}

// ProvideNatsClient returns a nil connection when NATS is disabled; events
// are then dropped by a no-op publisher.
func ProvideNatsClient(lc fx.Lifecycle, cfg *config.Config) (*nats.Conn, error) {
	if !cfg.Nats.Enabled {
		return nil, nil
	}
	nc, err := nats.Connect(cfg.Nats.URL, nats.Name(constants.ServiceName))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			slog.Debug("draining NATS connection")
			return nc.Drain()
		},
	})
	return nc, nil
}

func ProvidePublisher(nc *nats.Conn) events.Publisher {
	if nc == nil {
		return events.Noop()
	}
	return events.NewNats(nc)
}

func ProvideOTel(lc fx.Lifecycle, cfg *config.Config) (*observability.Provider, error) {
	if !cfg.Observability.Enabled {
		return nil, nil
	}
	provider, err := observability.InitTelemetry(context.Background(), observability.FromCentralConfig(cfg))
	if err != nil {
		return nil, err
	}
	slog.Info("observability initialized",
		"tracing", cfg.Observability.Tracing.Enabled,
		"metrics", cfg.Observability.Metrics.Enabled,
	)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			slog.Debug("shutting down observability providers")
			return provider.Shutdown(ctx)
		},
	})
	return provider, nil
}

// ProvideMetrics depends on the provider only so instruments are created
// after the global meter provider is installed.
func ProvideMetrics(_ *observability.Provider) *observability.Metrics {
	return observability.NewMetrics()
}

func ProvidePhonePeClient(cfg *config.Config) *phonepe.Client {
	creds := cfg.PhonePe.Resolve()
	slog.Info("phonepe client configured", "environment", creds.Environment, "merchant_id", creds.MerchantID)
	return phonepe.New(creds, cfg.PhonePe.CallbackURL, cfg.PhonePe.RedirectURL,
		phonepe.WithRegion(cfg.PhonePe.DefaultRegion))
}

func ProvideStateMachine(cfg *config.Config) (*model.StateMachine, error) {
	loc, err := cfg.Scheduling.Location()
	if err != nil {
		return nil, fmt.Errorf("scheduling timezone: %w", err)
	}
	return model.NewStateMachine(loc, cfg.Scheduling.GracePeriod(), time.Now), nil
}
