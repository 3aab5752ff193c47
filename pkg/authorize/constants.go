package authorize

type Action string
type Resource string
type Role string

// ----------------------------
// Actions
// ----------------------------

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionList    Action = "list"
	ActionExecute Action = "execute" // operator actions: retry, reverse, resolve

	WildcardAction Action = "*"
)

var KnownActions = map[Action]struct{}{
	ActionCreate: {}, ActionRead: {}, ActionUpdate: {}, ActionList: {}, ActionExecute: {},
}

// ----------------------------
// Resources
// ----------------------------

const (
	WildcardResource Resource = "*"

	ResourceAccount     Resource = "account"
	ResourceDocument    Resource = "document"
	ResourceDoctor      Resource = "doctor"      // approved doctor directory
	ResourceApplication Resource = "application" // doctor applications under review
	ResourceAppointment Resource = "appointment"
	ResourceWallet      Resource = "wallet"
	ResourceWithdrawal  Resource = "withdrawal"
	ResourceRefund      Resource = "refund"
	ResourceLedgerAudit Resource = "ledger_audit"
)

var KnownResources = map[Resource]struct{}{
	ResourceAccount: {}, ResourceDocument: {}, ResourceDoctor: {}, ResourceApplication: {},
	ResourceAppointment: {}, ResourceWallet: {}, ResourceWithdrawal: {}, ResourceRefund: {},
	ResourceLedgerAudit: {},
}

// ----------------------------
// Roles
// ----------------------------
//
// Roles are the policy subjects. An account carries exactly one.

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

var KnownRoles = map[Role]struct{}{
	RoleAdmin:   {},
	RoleDoctor:  {},
	RolePatient: {},
}

// ----------------------------
// Casbin tuple helpers
// ----------------------------

type PolicyEffect string

const (
	EffectAllow PolicyEffect = "allow"
	EffectDeny  PolicyEffect = "deny"
)

// Permission rows: p, role, resource, action, eft
type PermissionPolicy struct {
	Subject Role
	Object  Resource
	Action  Action
	Effect  PolicyEffect
}

// modelText is the RBAC model. Deny rows win over allow rows.
const modelText = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act, eft

[policy_effect]
e = some(where (p.eft == allow)) && !some(where (p.eft == deny))

[matchers]
m = r.sub == p.sub && (p.obj == "*" || keyMatch(r.obj, p.obj)) && (p.act == "*" || r.act == p.act)
`
