package repo

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is a single-process Store. Every call holds one store-wide mutex;
// RunInTx works on a copy of the data and swaps it in on commit, so a
// transaction is atomic and transactions are serialized.
type Memory struct {
	mu   sync.Mutex
	data *memData
}

func NewMemory() *Memory {
	return &Memory{data: newMemData()}
}

type memTx struct {
	Transaction
	seq uint64
}

type memData struct {
	accounts     map[uuid.UUID]Account
	appointments map[uuid.UUID]Appointment
	wallets      map[uuid.UUID]Wallet // by owner
	transactions map[uuid.UUID]memTx
	seq          uint64
}

func newMemData() *memData {
	return &memData{
		accounts:     map[uuid.UUID]Account{},
		appointments: map[uuid.UUID]Appointment{},
		wallets:      map[uuid.UUID]Wallet{},
		transactions: map[uuid.UUID]memTx{},
	}
}

// clone copies the maps; values are stored by value so the copy is isolated.
func (d *memData) clone() *memData {
	return &memData{
		accounts:     maps.Clone(d.accounts),
		appointments: maps.Clone(d.appointments),
		wallets:      maps.Clone(d.wallets),
		transactions: maps.Clone(d.transactions),
		seq:          d.seq,
	}
}

func (m *Memory) RunInTx(ctx context.Context, fn TxFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.data.clone()
	if err := fn(ctx, work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.data = work
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) view(fn func(d *memData) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.data)
}

// ---------------------------------------------------------------------------
// Locked Querier methods
// ---------------------------------------------------------------------------

func (m *Memory) CreateAccount(ctx context.Context, a *Account) error {
	return m.view(func(d *memData) error { return d.CreateAccount(ctx, a) })
}

func (m *Memory) GetAccount(ctx context.Context, id uuid.UUID) (out *Account, err error) {
	err = m.view(func(d *memData) error { out, err = d.GetAccount(ctx, id); return err })
	return out, err
}

func (m *Memory) GetAccountByEmail(ctx context.Context, email string) (out *Account, err error) {
	err = m.view(func(d *memData) error { out, err = d.GetAccountByEmail(ctx, email); return err })
	return out, err
}

func (m *Memory) ListAccounts(ctx context.Context, f AccountFilter) (out []*Account, err error) {
	err = m.view(func(d *memData) error { out, err = d.ListAccounts(ctx, f); return err })
	return out, err
}

func (m *Memory) UpdateAccountSecret(ctx context.Context, id uuid.UUID, secretHash string) error {
	return m.view(func(d *memData) error { return d.UpdateAccountSecret(ctx, id, secretHash) })
}

func (m *Memory) UpdateAccountApproval(ctx context.Context, id uuid.UUID, state ApprovalState) error {
	return m.view(func(d *memData) error { return d.UpdateAccountApproval(ctx, id, state) })
}

func (m *Memory) UpdateAccountDocument(ctx context.Context, id uuid.UUID, key string) error {
	return m.view(func(d *memData) error { return d.UpdateAccountDocument(ctx, id, key) })
}

func (m *Memory) IncrementSessionsCompleted(ctx context.Context, id uuid.UUID) error {
	return m.view(func(d *memData) error { return d.IncrementSessionsCompleted(ctx, id) })
}

func (m *Memory) CreateAppointment(ctx context.Context, a *Appointment) error {
	return m.view(func(d *memData) error { return d.CreateAppointment(ctx, a) })
}

func (m *Memory) GetAppointment(ctx context.Context, id uuid.UUID, forUpdate bool) (out *Appointment, err error) {
	err = m.view(func(d *memData) error { out, err = d.GetAppointment(ctx, id, forUpdate); return err })
	return out, err
}

func (m *Memory) ListAppointments(ctx context.Context, f AppointmentFilter) (out []*Appointment, err error) {
	err = m.view(func(d *memData) error { out, err = d.ListAppointments(ctx, f); return err })
	return out, err
}

func (m *Memory) UpdateAppointment(ctx context.Context, a *Appointment) error {
	return m.view(func(d *memData) error { return d.UpdateAppointment(ctx, a) })
}

func (m *Memory) GetWallet(ctx context.Context, ownerID uuid.UUID, forUpdate bool) (out *Wallet, err error) {
	err = m.view(func(d *memData) error { out, err = d.GetWallet(ctx, ownerID, forUpdate); return err })
	return out, err
}

func (m *Memory) GetWalletByID(ctx context.Context, id uuid.UUID) (out *Wallet, err error) {
	err = m.view(func(d *memData) error { out, err = d.GetWalletByID(ctx, id); return err })
	return out, err
}

func (m *Memory) CreateWallet(ctx context.Context, w *Wallet) error {
	return m.view(func(d *memData) error { return d.CreateWallet(ctx, w) })
}

func (m *Memory) AdjustBalance(ctx context.Context, walletID uuid.UUID, delta int64) error {
	return m.view(func(d *memData) error { return d.AdjustBalance(ctx, walletID, delta) })
}

func (m *Memory) CreateTransaction(ctx context.Context, t *Transaction) error {
	return m.view(func(d *memData) error { return d.CreateTransaction(ctx, t) })
}

func (m *Memory) GetTransaction(ctx context.Context, id uuid.UUID, forUpdate bool) (out *Transaction, err error) {
	err = m.view(func(d *memData) error { out, err = d.GetTransaction(ctx, id, forUpdate); return err })
	return out, err
}

func (m *Memory) ListTransactions(ctx context.Context, f TransactionFilter) (out []*Transaction, err error) {
	err = m.view(func(d *memData) error { out, err = d.ListTransactions(ctx, f); return err })
	return out, err
}

func (m *Memory) SetTransactionOutcome(ctx context.Context, id uuid.UUID, o TransactionOutcome) error {
	return m.view(func(d *memData) error { return d.SetTransactionOutcome(ctx, id, o) })
}

// ---------------------------------------------------------------------------
// Unlocked data operations
// ---------------------------------------------------------------------------

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (d *memData) CreateAccount(_ context.Context, a *Account) error {
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	for _, existing := range d.accounts {
		if existing.Email == a.Email {
			return fmt.Errorf("%w: account email", ErrDuplicate)
		}
	}
	if a.ID == uuid.Nil {
		a.ID = NewID()
	}
	if _, ok := d.accounts[a.ID]; ok {
		return fmt.Errorf("%w: account id", ErrDuplicate)
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	d.accounts[a.ID] = *a
	return nil
}

func (d *memData) GetAccount(_ context.Context, id uuid.UUID) (*Account, error) {
	a, ok := d.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (d *memData) GetAccountByEmail(_ context.Context, email string) (*Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, a := range d.accounts {
		if a.Email == email {
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (d *memData) ListAccounts(_ context.Context, f AccountFilter) ([]*Account, error) {
	var out []*Account
	for _, a := range d.accounts {
		if f.Role != "" && a.Role != f.Role {
			continue
		}
		if f.ApprovalState != "" && a.ApprovalState != f.ApprovalState {
			continue
		}
		out = append(out, &a)
	}
	slices.SortFunc(out, func(x, y *Account) int {
		if c := y.CreatedAt.Compare(x.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(y.ID.String(), x.ID.String())
	})
	return page(out, f.Limit, f.Offset), nil
}

func (d *memData) updateAccount(id uuid.UUID, fn func(a *Account)) error {
	a, ok := d.accounts[id]
	if !ok {
		return ErrNotFound
	}
	fn(&a)
	a.UpdatedAt = time.Now().UTC()
	d.accounts[id] = a
	return nil
}

func (d *memData) UpdateAccountSecret(_ context.Context, id uuid.UUID, secretHash string) error {
	return d.updateAccount(id, func(a *Account) { a.SecretHash = secretHash })
}

func (d *memData) UpdateAccountApproval(_ context.Context, id uuid.UUID, state ApprovalState) error {
	return d.updateAccount(id, func(a *Account) { a.ApprovalState = state })
}

func (d *memData) UpdateAccountDocument(_ context.Context, id uuid.UUID, key string) error {
	return d.updateAccount(id, func(a *Account) { a.DocumentKey = key })
}

func (d *memData) IncrementSessionsCompleted(_ context.Context, id uuid.UUID) error {
	return d.updateAccount(id, func(a *Account) { a.SessionsCompleted++ })
}

func (d *memData) CreateAppointment(_ context.Context, a *Appointment) error {
	if _, ok := d.accounts[a.DoctorID]; !ok {
		return fmt.Errorf("%w: doctor", ErrNotFound)
	}
	if _, ok := d.accounts[a.PatientID]; !ok {
		return fmt.Errorf("%w: patient", ErrNotFound)
	}
	if a.ID == uuid.Nil {
		a.ID = NewID()
	}
	if a.Status == "" {
		a.Status = AppointmentScheduled
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	d.appointments[a.ID] = *a
	return nil
}

func (d *memData) GetAppointment(_ context.Context, id uuid.UUID, _ bool) (*Appointment, error) {
	a, ok := d.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (d *memData) ListAppointments(_ context.Context, f AppointmentFilter) ([]*Appointment, error) {
	var out []*Appointment
	for _, a := range d.appointments {
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, &a)
	}
	slices.SortFunc(out, func(x, y *Appointment) int {
		return cmp.Or(
			strings.Compare(y.Date, x.Date),
			strings.Compare(y.Time, x.Time),
			strings.Compare(y.ID.String(), x.ID.String()),
		)
	})
	return page(out, f.Limit, f.Offset), nil
}

func (d *memData) UpdateAppointment(_ context.Context, a *Appointment) error {
	cur, ok := d.appointments[a.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Date, cur.Time = a.Date, a.Time
	cur.Status, cur.Notes = a.Status, a.Notes
	cur.CompletedAt, cur.CancelledAt = a.CompletedAt, a.CancelledAt
	cur.UpdatedAt = time.Now().UTC()
	a.UpdatedAt = cur.UpdatedAt
	d.appointments[a.ID] = cur
	return nil
}

func (d *memData) GetWallet(_ context.Context, ownerID uuid.UUID, _ bool) (*Wallet, error) {
	w, ok := d.wallets[ownerID]
	if !ok {
		return nil, ErrNotFound
	}
	return &w, nil
}

func (d *memData) walletByID(id uuid.UUID) (Wallet, bool) {
	for _, w := range d.wallets {
		if w.ID == id {
			return w, true
		}
	}
	return Wallet{}, false
}

func (d *memData) GetWalletByID(_ context.Context, id uuid.UUID) (*Wallet, error) {
	w, ok := d.walletByID(id)
	if !ok {
		return nil, ErrNotFound
	}
	return &w, nil
}

func (d *memData) CreateWallet(_ context.Context, w *Wallet) error {
	if _, ok := d.wallets[w.OwnerID]; ok {
		return nil
	}
	if w.Balance < 0 {
		return errors.New("repo: wallet balance must not be negative")
	}
	if w.ID == uuid.Nil {
		w.ID = NewID()
	}
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	d.wallets[w.OwnerID] = *w
	return nil
}

func (d *memData) AdjustBalance(_ context.Context, walletID uuid.UUID, delta int64) error {
	w, ok := d.walletByID(walletID)
	if !ok || w.Balance+delta < 0 {
		return ErrConflict
	}
	w.Balance += delta
	w.UpdatedAt = time.Now().UTC()
	d.wallets[w.OwnerID] = w
	return nil
}

func (d *memData) CreateTransaction(_ context.Context, t *Transaction) error {
	if t.Amount <= 0 {
		return errors.New("repo: transaction amount must be positive")
	}
	if _, ok := d.walletByID(t.WalletID); !ok {
		return fmt.Errorf("%w: wallet", ErrNotFound)
	}
	for _, existing := range d.transactions {
		if t.AppointmentID != nil && existing.AppointmentID != nil && *existing.AppointmentID == *t.AppointmentID {
			return fmt.Errorf("%w: transaction appointment_id", ErrDuplicate)
		}
		if t.ReversesID != nil && existing.ReversesID != nil && *existing.ReversesID == *t.ReversesID {
			return fmt.Errorf("%w: transaction reverses_id", ErrDuplicate)
		}
	}
	if t.ID == uuid.Nil {
		t.ID = NewID()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	d.seq++
	d.transactions[t.ID] = memTx{Transaction: *t, seq: d.seq}
	return nil
}

func (d *memData) GetTransaction(_ context.Context, id uuid.UUID, _ bool) (*Transaction, error) {
	t, ok := d.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t.Transaction, nil
}

func (d *memData) ListTransactions(_ context.Context, f TransactionFilter) ([]*Transaction, error) {
	var rows []memTx
	for _, t := range d.transactions {
		if f.WalletID != nil && t.WalletID != *f.WalletID {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.CreatedBefore != nil && !t.CreatedAt.Before(*f.CreatedBefore) {
			continue
		}
		if f.ReversesID != nil && (t.ReversesID == nil || *t.ReversesID != *f.ReversesID) {
			continue
		}
		rows = append(rows, t)
	}
	// seq orders transactions created within the same clock tick.
	slices.SortFunc(rows, func(x, y memTx) int { return cmp.Compare(y.seq, x.seq) })
	rows = page(rows, f.Limit, 0)

	out := make([]*Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, &rows[i].Transaction)
	}
	return out, nil
}

func (d *memData) SetTransactionOutcome(_ context.Context, id uuid.UUID, o TransactionOutcome) error {
	if o.Status == TxPending {
		return fmt.Errorf("repo: outcome status must be terminal, got %s", o.Status)
	}
	t, ok := d.transactions[id]
	if !ok || t.Status != TxPending {
		return ErrConflict
	}
	t.Status = o.Status
	t.Description = o.Description
	t.ExternalReference = o.ExternalReference
	t.UpdatedAt = time.Now().UTC()
	d.transactions[id] = t
	return nil
}
