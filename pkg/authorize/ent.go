package authorize

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	psqlwatcher "github.com/IguteChung/casbin-psql-watcher"
	casbin "github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	entadapter "github.com/casbin/ent-adapter"
)

// DefaultWatcherChannel is the postgres NOTIFY channel used to broadcast
// policy changes between API instances.
const DefaultWatcherChannel = "echo_policy_update"

// policyHealthy is false after a watcher-triggered reload failed, until the
// next reload succeeds.
var policyHealthy atomic.Bool

func init() {
	policyHealthy.Store(true)
}

// IsPolicyHealthy reports whether the last policy reload succeeded.
func IsPolicyHealthy() bool {
	return policyHealthy.Load()
}

// CleanupFunc releases resources held by an enforcer.
type CleanupFunc func(ctx context.Context)

func noCleanup(context.Context) {}

// NewPersistentEnforcer builds an enforcer whose policies live in postgres
// (casbin_rules, managed by the ent adapter) and are reloaded on every
// instance when any of them changes a rule.
func NewPersistentEnforcer(ctx context.Context, dsn, channel string) (*casbin.SyncedEnforcer, CleanupFunc, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, nil, fmt.Errorf("parse casbin model: %w", err)
	}
	a, err := entadapter.NewAdapter("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open policy adapter: %w", err)
	}
	e, err := casbin.NewDistributedEnforcer(m, a)
	if err != nil {
		return nil, nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	if channel == "" {
		channel = DefaultWatcherChannel
	}
	w, err := psqlwatcher.NewWatcherWithConnString(ctx, dsn, psqlwatcher.Option{Channel: channel})
	if err != nil {
		return nil, nil, fmt.Errorf("open policy watcher: %w", err)
	}
	if err := w.SetUpdateCallback(reloadOnUpdate(e.LoadPolicy)); err != nil {
		w.Close()
		return nil, nil, err
	}
	if err := e.SetWatcher(w); err != nil {
		w.Close()
		return nil, nil, err
	}

	e.EnableAutoSave(true)
	e.EnableEnforce(true)

	cleanup := func(context.Context) {
		slog.Debug("closing casbin policy watcher", "channel", channel)
		w.Close()
	}
	return e.SyncedEnforcer, cleanup, nil
}

func reloadOnUpdate(load func() error) func(string) {
	return func(msg string) {
		slog.Debug("casbin policy update received", "message", msg)
		if err := load(); err != nil {
			slog.Error("reload casbin policy failed", "err", err)
			policyHealthy.Store(false)
			return
		}
		policyHealthy.Store(true)
	}
}
