package authorize

import (
	"context"
	"errors"
	"fmt"

	casbin "github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

var (
	ErrForbidden   = errors.New("forbidden")
	ErrInvalidArgs = errors.New("invalid authorization arguments")
)

// IAuthorization is the only thing services/middleware should depend on.
type IAuthorization interface {
	// Enforce answers: "may principal perform action on object?"
	Enforce(ctx context.Context, p Principal, object Resource, action Action) (bool, error)

	// MustEnforce returns ErrForbidden if not allowed.
	MustEnforce(ctx context.Context, p Principal, object Resource, action Action) error

	AddPermission(ctx context.Context, role Role, object Resource, action Action, effect PolicyEffect) (bool, error)
	RemovePermission(ctx context.Context, role Role, object Resource, action Action, effect PolicyEffect) (bool, error)
	PermissionsForRole(ctx context.Context, role Role) ([]PermissionPolicy, error)

	Raw() *casbin.SyncedEnforcer
}

// Authorization is a thin typed wrapper around casbin.SyncedEnforcer.
type Authorization struct {
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer builds an enforcer over the compiled-in model with an empty
// in-memory policy set.
func NewEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}
	e.EnableEnforce(true)
	return e, nil
}

// NewAuthorization wraps an already-configured Enforcer
func NewAuthorization(e *casbin.SyncedEnforcer) (IAuthorization, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: enforcer is nil", ErrInvalidArgs)
	}
	return &Authorization{enforcer: e}, nil
}

func (a *Authorization) Raw() *casbin.SyncedEnforcer { return a.enforcer }

func (a *Authorization) Enforce(ctx context.Context, p Principal, object Resource, action Action) (bool, error) {
	_ = ctx

	if err := p.Validate(); err != nil {
		return false, err
	}
	if object == "" {
		return false, fmt.Errorf("%w: object is empty", ErrInvalidArgs)
	}
	if action == "" {
		return false, fmt.Errorf("%w: action is empty", ErrInvalidArgs)
	}

	// Guardrails: ensure you're only using known constants
	if _, ok := KnownResources[object]; !ok {
		return false, fmt.Errorf("%w: unknown resource: %q", ErrInvalidArgs, object)
	}
	if _, ok := KnownActions[action]; !ok {
		return false, fmt.Errorf("%w: unknown action: %q", ErrInvalidArgs, action)
	}

	return a.enforcer.Enforce(string(p.Role), string(object), string(action))
}

func (a *Authorization) MustEnforce(ctx context.Context, p Principal, object Resource, action Action) error {
	ok, err := a.Enforce(ctx, p, object, action)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// ---- Permissions (p rules) ----

func validatePolicy(role Role, object Resource, action Action, effect PolicyEffect) error {
	if role == "" || object == "" || action == "" || effect == "" {
		return fmt.Errorf("%w: empty permission fields", ErrInvalidArgs)
	}
	if _, ok := KnownRoles[role]; !ok {
		return fmt.Errorf("%w: unknown role: %q", ErrInvalidArgs, role)
	}
	if _, ok := KnownResources[object]; !ok && object != WildcardResource {
		return fmt.Errorf("%w: unknown resource: %q", ErrInvalidArgs, object)
	}
	if _, ok := KnownActions[action]; !ok && action != WildcardAction {
		return fmt.Errorf("%w: unknown action: %q", ErrInvalidArgs, action)
	}
	if effect != EffectAllow && effect != EffectDeny {
		return fmt.Errorf("%w: invalid effect: %q", ErrInvalidArgs, effect)
	}
	return nil
}

func (a *Authorization) AddPermission(ctx context.Context, role Role, object Resource, action Action, effect PolicyEffect) (bool, error) {
	_ = ctx
	if err := validatePolicy(role, object, action, effect); err != nil {
		return false, err
	}
	return a.enforcer.AddPolicy(string(role), string(object), string(action), string(effect))
}

func (a *Authorization) RemovePermission(ctx context.Context, role Role, object Resource, action Action, effect PolicyEffect) (bool, error) {
	_ = ctx
	if err := validatePolicy(role, object, action, effect); err != nil {
		return false, err
	}
	return a.enforcer.RemovePolicy(string(role), string(object), string(action), string(effect))
}

func (a *Authorization) PermissionsForRole(ctx context.Context, role Role) ([]PermissionPolicy, error) {
	_ = ctx
	if _, ok := KnownRoles[role]; !ok {
		return nil, fmt.Errorf("%w: unknown role: %q", ErrInvalidArgs, role)
	}
	rows := a.enforcer.GetFilteredPolicy(0, string(role))
	out := make([]PermissionPolicy, 0, len(rows))
	for _, r := range rows {
		if len(r) < 4 {
			continue
		}
		out = append(out, PermissionPolicy{
			Subject: Role(r[0]),
			Object:  Resource(r[1]),
			Action:  Action(r[2]),
			Effect:  PolicyEffect(r[3]),
		})
	}
	return out, nil
}
