package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/fx"

	"github.com/echohealth/echo_backend/config"
	"github.com/echohealth/echo_backend/internal/repo"
	"github.com/echohealth/echo_backend/pkg/email"
	"github.com/echohealth/echo_backend/pkg/events"
)

// WorkerModule registers all NATS event workers.
var WorkerModule = fx.Module("workers",
	fx.Invoke(RegisterWorkers),
)

type WorkerParams struct {
	fx.In

	Lc    fx.Lifecycle
	Cfg   *config.Config
	NC    *nats.Conn `optional:"true"`
	Store repo.Store
	Email *email.Client
}

func RegisterWorkers(p WorkerParams) {
	if p.NC == nil {
		return
	}
	n := &notifier{store: p.Store, mail: p.Email, cfg: p.Email.Config(), currency: p.Cfg.Wallet.Currency}

	var subs []*nats.Subscription
	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var err error
			subs, err = n.subscribe(p.NC)
			if err != nil {
				return err
			}
			slog.Info("notification_worker: started", "subscriptions", len(subs))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// Connection drain is handled by ProvideNatsClient.
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil
		},
	})
}

// ---------------------------------------------------------------------------
// notification_worker
// ---------------------------------------------------------------------------

type mailer interface {
	Enabled() bool
	Send(ctx context.Context, m email.Message) error
}

// notifier turns domain events into emails. Failures are logged; events
// are never redelivered.
type notifier struct {
	store    repo.Store
	mail     mailer
	cfg      email.Config
	currency string
}

func (n *notifier) subscribe(nc *nats.Conn) ([]*nats.Subscription, error) {
	var subs []*nats.Subscription
	add := func(s *nats.Subscription, err error) error {
		if err != nil {
			return err
		}
		subs = append(subs, s)
		return nil
	}

	if err := add(events.Subscribe(nc, events.SubjectDoctorRegistered, n.onDoctorRegistered)); err != nil {
		return subs, fmt.Errorf("subscribe %s: %w", events.SubjectDoctorRegistered, err)
	}
	if err := add(events.Subscribe(nc, events.SubjectDoctorApproval, n.onApprovalChanged)); err != nil {
		return subs, fmt.Errorf("subscribe %s: %w", events.SubjectDoctorApproval, err)
	}
	if err := add(events.Subscribe(nc, events.SubjectWithdrawalOutcome, n.onWithdrawalOutcome)); err != nil {
		return subs, fmt.Errorf("subscribe %s: %w", events.SubjectWithdrawalOutcome, err)
	}
	return subs, nil
}

func (n *notifier) onDoctorRegistered(ctx context.Context, e events.DoctorRegistered) {
	if len(n.cfg.Admins) == 0 {
		return
	}
	n.send(ctx, email.BuildDoctorRegisteredEmail(n.cfg, email.DoctorRegisteredData{
		DoctorName: e.FullName,
		Email:      e.Email,
		Specialty:  e.Specialty,
		ReviewURL:  n.link("/admin/applications"),
	}))
}

func (n *notifier) onApprovalChanged(ctx context.Context, e events.DoctorApprovalChanged) {
	state := repo.ApprovalState(e.ApprovalState)
	if state != repo.ApprovalApproved && state != repo.ApprovalRejected {
		return
	}
	doc, ok := n.account(ctx, e.DoctorID)
	if !ok {
		return
	}
	n.send(ctx, email.BuildApprovalChangedEmail(n.cfg, email.ApprovalChangedData{
		DoctorName: doc.FullName,
		Email:      doc.Email,
		Approved:   state == repo.ApprovalApproved,
		LoginURL:   n.link("/login"),
	}))
}

func (n *notifier) onWithdrawalOutcome(ctx context.Context, e events.WithdrawalOutcome) {
	doc, ok := n.account(ctx, e.OwnerID)
	if !ok {
		return
	}
	n.send(ctx, email.BuildWithdrawalOutcomeEmail(n.cfg, email.WithdrawalOutcomeData{
		DoctorName:    doc.FullName,
		Email:         doc.Email,
		Amount:        e.Amount,
		Currency:      n.currency,
		Status:        e.Status,
		Reference:     e.ExternalReference,
		TransactionID: e.TransactionID.String(),
	}))
}

func (n *notifier) account(ctx context.Context, id uuid.UUID) (*repo.Account, bool) {
	a, err := n.store.GetAccount(ctx, id)
	if err != nil {
		slog.WarnContext(ctx, "notification_worker: account lookup failed", "account_id", id, "err", err)
		return nil, false
	}
	return a, true
}

func (n *notifier) send(ctx context.Context, m email.Message) {
	if !n.mail.Enabled() {
		slog.DebugContext(ctx, "notification_worker: email disabled, skipping", "kind", m.Kind)
		return
	}
	if err := n.mail.Send(ctx, m); err != nil {
		slog.WarnContext(ctx, "notification_worker: send failed", "kind", m.Kind, "err", err)
	}
}

func (n *notifier) link(path string) string {
	if n.cfg.BaseURL == "" {
		return ""
	}
	return strings.TrimRight(n.cfg.BaseURL, "/") + path
}
