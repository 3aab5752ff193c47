package authorize

import (
	"context"
	"log/slog"

	casbin "github.com/casbin/casbin/v2"

	"github.com/echohealth/echo_backend/config"
)

// Config holds configuration for the authorization system
type Config struct {
	// EnableAudit logs every authorization decision
	EnableAudit bool
	// DSN selects the postgres policy store. Empty keeps policies in memory.
	DSN string
	// WatcherChannel overrides DefaultWatcherChannel.
	WatcherChannel string
}

// FromCentralConfig converts central config.AuthorizationConfig to package Config
func FromCentralConfig(c config.AuthorizationConfig) Config {
	return Config{EnableAudit: c.EnableAudit, WatcherChannel: c.WatcherChannel}
}

// New builds the enforcer and applies audit logging when enabled. The
// in-memory store is seeded with DefaultPolicies on every start; the postgres
// store only when it holds no rules yet, so operator edits survive restarts.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (IAuthorization, CleanupFunc, error) {
	e, cleanup, err := newEnforcer(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	auth, err := NewAuthorization(e)
	if err != nil {
		cleanup(ctx)
		return nil, nil, err
	}
	if cfg.DSN == "" || len(e.GetPolicy()) == 0 {
		if err := SeedDefaultPolicies(ctx, auth); err != nil {
			cleanup(ctx)
			return nil, nil, err
		}
	}
	if cfg.EnableAudit {
		auth = NewAuditedAuthorization(auth, logger)
	}
	return auth, cleanup, nil
}

func newEnforcer(ctx context.Context, cfg Config) (*casbin.SyncedEnforcer, CleanupFunc, error) {
	if cfg.DSN == "" {
		e, err := NewEnforcer()
		return e, noCleanup, err
	}
	return NewPersistentEnforcer(ctx, cfg.DSN, cfg.WatcherChannel)
}
