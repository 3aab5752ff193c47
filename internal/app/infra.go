package app

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/echohealth/echo_backend/config"
	"github.com/echohealth/echo_backend/internal/repo"
	"github.com/echohealth/echo_backend/pkg/authorize"
	"github.com/echohealth/echo_backend/pkg/database"
	"github.com/echohealth/echo_backend/pkg/email"
	"github.com/echohealth/echo_backend/pkg/events"
	"github.com/echohealth/echo_backend/pkg/mpesa"
	"github.com/echohealth/echo_backend/pkg/observability"
	"github.com/echohealth/echo_backend/pkg/payout"
	redispkg "github.com/echohealth/echo_backend/pkg/redis"
	s3pkg "github.com/echohealth/echo_backend/pkg/s3"
)

// InfraModule provides all infrastructure dependencies.
var InfraModule = fx.Module("infra",
	fx.Provide(ProvideStore),
	fx.Provide(ProvideRedis),
	fx.Provide(ProvideAuthorization),
	fx.Provide(ProvideEmailClient),
	fx.Provide(ProvideOTel),
	fx.Provide(ProvideS3Client),
	fx.Provide(ProvidePayoutGateway),
	fx.Provide(ProvideNatsClient),
	fx.Provide(ProvidePublisher),
)

// FxLogger routes fx lifecycle events through slog at debug level.
func FxLogger() fxevent.Logger {
	l := &fxevent.SlogLogger{Logger: slog.Default()}
	l.UseLogLevel(slog.LevelDebug)
	return l
}

func ProvideStore(lc fx.Lifecycle, cfg *config.Config) (repo.Store, error) {
	store, err := database.OpenStore(context.Background(), cfg.Database)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			slog.Debug("closing store")
			return store.Close()
		},
	})
	return store, nil
}

func ProvideRedis(lc fx.Lifecycle, cfg *config.Config) (*redis.Client, error) {
	rdb, err := redispkg.NewRedisFromCentral(context.Background(), cfg.Redis)
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

func ProvideAuthorization(lc fx.Lifecycle, cfg *config.Config) (authorize.IAuthorization, error) {
	acfg := authorize.FromCentralConfig(cfg.Authorization)
	if cfg.Database.Driver != config.DriverMemory {
		acfg.DSN = database.FromCentralConfig(cfg.Database).DSN()
	}
	auth, cleanup, err := authorize.New(context.Background(), acfg, slog.Default())
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			cleanup(ctx)
			return nil
		},
	})
	return auth, nil
}

func ProvideEmailClient(cfg *config.Config) (*email.Client, error) {
	return email.NewFromCentral(cfg.Email)
}

// ProvideS3Client returns nil when no bucket is configured; document
// uploads are then reported as disabled.
func ProvideS3Client(cfg *config.Config) (*s3pkg.Client, error) {
	if cfg.S3.Bucket == "" {
		slog.Warn("s3 bucket not configured; licence document uploads disabled")
		return nil, nil
	}
	return s3pkg.New(context.Background(), cfg.S3)
}

func ProvidePayoutGateway(cfg *config.Config) payout.Gateway {
	if cfg.MPesa.ConsumerKey == "" {
		slog.Warn("mpesa credentials not configured; withdrawals will stay PENDING")
	}
	return mpesa.New(mpesa.FromCentralConfig(cfg.MPesa))
}

// ProvideNatsClient returns nil when no URL is configured; events are then
// dropped and workers are not started.
func ProvideNatsClient(lc fx.Lifecycle, cfg *config.Config) (*nats.Conn, error) {
	if cfg.Nats.URL == "" {
		slog.Info("nats url not configured; domain events disabled")
		return nil, nil
	}
	nc, err := nats.Connect(cfg.Nats.URL, nats.Name(cfg.Observability.ServiceName))
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
	return events.NewPublisher(nc)
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
