package authorize

import (
	"context"
	"log/slog"
)

// DefaultPolicies is the baseline permission set per role.
func DefaultPolicies() []PermissionPolicy {
	return []PermissionPolicy{
		// Admin: everything, except moving money out of a wallet on a doctor's behalf
		{RoleAdmin, WildcardResource, WildcardAction, EffectAllow},
		{RoleAdmin, ResourceWithdrawal, ActionCreate, EffectDeny},

		{RoleDoctor, ResourceAccount, ActionRead, EffectAllow},
		{RoleDoctor, ResourceAccount, ActionUpdate, EffectAllow},
		{RoleDoctor, ResourceDocument, ActionCreate, EffectAllow},
		{RoleDoctor, ResourceDoctor, ActionList, EffectAllow},
		{RoleDoctor, ResourceAppointment, ActionRead, EffectAllow},
		{RoleDoctor, ResourceAppointment, ActionList, EffectAllow},
		{RoleDoctor, ResourceAppointment, ActionUpdate, EffectAllow},
		{RoleDoctor, ResourceWallet, ActionRead, EffectAllow},
		{RoleDoctor, ResourceWithdrawal, ActionCreate, EffectAllow},

		{RolePatient, ResourceAccount, ActionRead, EffectAllow},
		{RolePatient, ResourceAccount, ActionUpdate, EffectAllow},
		{RolePatient, ResourceDoctor, ActionList, EffectAllow},
		{RolePatient, ResourceAppointment, ActionCreate, EffectAllow},
		{RolePatient, ResourceAppointment, ActionRead, EffectAllow},
		{RolePatient, ResourceAppointment, ActionList, EffectAllow},
		{RolePatient, ResourceAppointment, ActionUpdate, EffectAllow},
	}
}

// SeedDefaultPolicies loads DefaultPolicies into auth.
func SeedDefaultPolicies(ctx context.Context, auth IAuthorization) error {
	logger := slog.Default()
	policies := DefaultPolicies()

	for _, p := range policies {
		added, err := auth.AddPermission(ctx, p.Subject, p.Object, p.Action, p.Effect)
		if err != nil {
			logger.Error("failed to add policy", "policy", p, "error", err)
			return err
		}
		if added {
			logger.Debug("added policy", "role", p.Subject, "resource", p.Object, "action", p.Action, "effect", p.Effect)
		}
	}

	logger.Debug("seeded default RBAC policies", "count", len(policies))
	return nil
}
