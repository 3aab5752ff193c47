package account

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/echohealth/echo_backend/internal/repo"
	"github.com/echohealth/echo_backend/pkg/authorize"
	"github.com/echohealth/echo_backend/pkg/events"
	pasetotoken "github.com/echohealth/echo_backend/pkg/paseto"
	s3pkg "github.com/echohealth/echo_backend/pkg/s3"
	"github.com/echohealth/echo_backend/pkg/util/password"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type memSessions struct {
	mu   sync.Mutex
	live map[uuid.UUID]uuid.UUID
}

func newMemSessions() *memSessions { return &memSessions{live: map[uuid.UUID]uuid.UUID{}} }

func (m *memSessions) Create(_ context.Context, sid, uid uuid.UUID, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live[sid] = uid
	return nil
}

func (m *memSessions) Touch(_ context.Context, sid uuid.UUID, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live[sid]; !ok {
		return ErrSessionNotFound
	}
	return nil
}

func (m *memSessions) Exists(_ context.Context, sid uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.live[sid]
	return ok, nil
}

func (m *memSessions) Delete(_ context.Context, sid uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.live[sid]
	delete(m.live, sid)
	return ok, nil
}

type recorder struct {
	mu       sync.Mutex
	subjects []string
}

func (r *recorder) Publish(_ context.Context, subject string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subjects = append(r.subjects, subject)
	return nil
}

type fakeDocs struct{}

func (fakeDocs) PresignUpload(_ context.Context, key, _ string) (*s3pkg.PresignedURL, error) {
	return &s3pkg.PresignedURL{Key: key, URL: "https://s3.test/" + key, Method: "PUT"}, nil
}

func (fakeDocs) PresignDownload(_ context.Context, key string) (*s3pkg.PresignedURL, error) {
	return &s3pkg.PresignedURL{Key: key, URL: "https://s3.test/" + key, Method: "GET"}, nil
}

type fixture struct {
	svc      Service
	store    *repo.Memory
	sessions *memSessions
	events   *recorder
	tokens   *pasetotoken.Manager
}

func fastHasher() *password.Verifier {
	return password.NewVerifier(
		password.NewArgon2id(&password.Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}),
		password.NewBcrypt(bcrypt.MinCost),
	)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens, err := pasetotoken.New(pasetotoken.Config{
		Mode:     pasetotoken.ModeLocal,
		Issuer:   "echo-health",
		Audience: "echo-health-api",
	}, pasetotoken.GenerateKeys(pasetotoken.ModeLocal))
	require.NoError(t, err)

	f := &fixture{
		store:    repo.NewMemory(),
		sessions: newMemSessions(),
		events:   &recorder{},
		tokens:   tokens,
	}
	f.svc = New(f.store, fastHasher(), tokens, f.sessions, fakeDocs{}, f.events, Options{})
	return f
}

func doctorRequest(email string) RegisterDoctorRequest {
	return RegisterDoctorRequest{
		Email:           email,
		Password:        "s3cure-pass",
		FullName:        "Dr. Achieng Otieno",
		Phone:           "0712 345 678",
		Specialty:       "Pediatrics",
		ConsultationFee: 2000,
	}
}

func admin() authorize.Principal {
	return authorize.Principal{UserID: repo.NewID(), Role: authorize.RoleAdmin}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestRegisterDoctor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.RegisterDoctor(ctx, doctorRequest(" Achieng@Example.com "))
	require.NoError(t, err)
	assert.Equal(t, "achieng@example.com", a.Email)
	assert.Equal(t, repo.RoleDoctor, a.Role)
	assert.Equal(t, repo.ApprovalPending, a.ApprovalState)
	assert.Equal(t, "254712345678", a.Phone)
	assert.True(t, strings.HasPrefix(a.SecretHash, "$argon2id$"))
	assert.Equal(t, []string{events.DoctorRegisteredSubject(a.ID)}, f.events.subjects)

	_, err = f.svc.RegisterDoctor(ctx, doctorRequest("achieng@example.com"))
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]struct {
		mut  func(*RegisterDoctorRequest)
		want error
	}{
		"bad email":    {func(r *RegisterDoctorRequest) { r.Email = "not-an-email" }, ErrInvalidEmail},
		"short pass":   {func(r *RegisterDoctorRequest) { r.Password = "1234567" }, ErrPasswordTooShort},
		"no name":      {func(r *RegisterDoctorRequest) { r.FullName = "  " }, ErrNameRequired},
		"bad phone":    {func(r *RegisterDoctorRequest) { r.Phone = "555-0100" }, ErrInvalidPhone},
		"negative fee": {func(r *RegisterDoctorRequest) { r.ConsultationFee = -1 }, ErrInvalidFee},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := doctorRequest(uuid.NewString() + "@example.com")
			tc.mut(&req)
			_, err := f.svc.RegisterDoctor(ctx, req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestPendingDoctorCannotLoginUntilApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.svc.RegisterDoctor(ctx, doctorRequest("doc@example.com"))
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, LoginRequest{Email: "doc@example.com", Password: "s3cure-pass"})
	require.ErrorIs(t, err, ErrNotApproved)

	_, err = f.svc.SetApprovalState(ctx, admin(), doc.ID, repo.ApprovalApproved)
	require.NoError(t, err)

	tokens, err := f.svc.Login(ctx, LoginRequest{Email: "DOC@example.com", Password: "s3cure-pass"})
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.Equal(t, doc.ID, tokens.Account.ID)

	claims, err := f.tokens.Verify(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "doctor", claims.Role)
	require.NotNil(t, claims.SessionID)

	active, err := f.svc.SessionActive(ctx, *claims.SessionID)
	require.NoError(t, err)
	assert.True(t, active)

	assert.Contains(t, f.events.subjects, events.DoctorApprovalSubject(doc.ID))
}

func TestRejectedDoctorCannotLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.svc.RegisterDoctor(ctx, doctorRequest("rej@example.com"))
	require.NoError(t, err)
	_, err = f.svc.SetApprovalState(ctx, admin(), doc.ID, repo.ApprovalRejected)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, LoginRequest{Email: "rej@example.com", Password: "s3cure-pass"})
	assert.ErrorIs(t, err, ErrNotApproved)
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RegisterPatient(ctx, RegisterPatientRequest{Email: "pat@example.com", Password: "patient-pass", FullName: "Baraka"})
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, LoginRequest{Email: "pat@example.com", Password: "wrong-pass"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "patient-pass"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLegacyBcryptHashIsRehashedOnLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	legacy, err := bcrypt.GenerateFromPassword([]byte("old-school-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	a := &repo.Account{
		Email:         "legacy@example.com",
		SecretHash:    string(legacy),
		Role:          repo.RolePatient,
		ApprovalState: repo.ApprovalApproved,
		FullName:      "Legacy Patient",
	}
	require.NoError(t, f.store.CreateAccount(ctx, a))

	_, err = f.svc.Login(ctx, LoginRequest{Email: "legacy@example.com", Password: "old-school-pass"})
	require.NoError(t, err)

	got, err := f.store.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got.SecretHash, "$argon2id$"), got.SecretHash)

	_, err = f.svc.Login(ctx, LoginRequest{Email: "legacy@example.com", Password: "old-school-pass"})
	require.NoError(t, err)
}

func TestRefreshAndLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.RegisterPatient(ctx, RegisterPatientRequest{Email: "p@example.com", Password: "patient-pass", FullName: "Pat"})
	require.NoError(t, err)
	tokens, err := f.svc.Login(ctx, LoginRequest{Email: "p@example.com", Password: "patient-pass"})
	require.NoError(t, err)

	_, err = f.svc.RefreshTokens(ctx, tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken, "access tokens cannot refresh")

	refreshed, err := f.svc.RefreshTokens(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, tokens.RefreshToken, refreshed.RefreshToken)
	assert.NotEmpty(t, refreshed.AccessToken)

	claims, err := f.tokens.Verify(tokens.RefreshToken)
	require.NoError(t, err)
	require.NoError(t, f.svc.Logout(ctx, *claims.SessionID))
	require.NoError(t, f.svc.Logout(ctx, *claims.SessionID))

	_, err = f.svc.RefreshTokens(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.RegisterPatient(ctx, RegisterPatientRequest{Email: "cp@example.com", Password: "first-pass", FullName: "Pat"})
	require.NoError(t, err)
	p := authorize.Principal{UserID: a.ID, Role: authorize.RolePatient}

	assert.ErrorIs(t, f.svc.ChangePassword(ctx, p, "wrong", "second-pass"), ErrWrongPassword)
	assert.ErrorIs(t, f.svc.ChangePassword(ctx, p, "first-pass", "short"), ErrPasswordTooShort)
	require.NoError(t, f.svc.ChangePassword(ctx, p, "first-pass", "second-pass"))

	_, err = f.svc.Login(ctx, LoginRequest{Email: "cp@example.com", Password: "first-pass"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, LoginRequest{Email: "cp@example.com", Password: "second-pass"})
	assert.NoError(t, err)
}

func TestApplicationsAdminOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.svc.RegisterDoctor(ctx, doctorRequest("apps@example.com"))
	require.NoError(t, err)
	pat, err := f.svc.RegisterPatient(ctx, RegisterPatientRequest{Email: "pp@example.com", Password: "patient-pass", FullName: "Pat"})
	require.NoError(t, err)

	doctor := authorize.Principal{UserID: doc.ID, Role: authorize.RoleDoctor}
	_, err = f.svc.ListApplications(ctx, doctor, repo.ApprovalPending, Page{})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.SetApprovalState(ctx, doctor, doc.ID, repo.ApprovalApproved)
	assert.ErrorIs(t, err, ErrForbidden)

	pending, err := f.svc.ListApplications(ctx, admin(), repo.ApprovalPending, Page{})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, doc.ID, pending[0].ID)

	_, err = f.svc.SetApprovalState(ctx, admin(), pat.ID, repo.ApprovalApproved)
	assert.ErrorIs(t, err, ErrNotDoctor)
	_, err = f.svc.SetApprovalState(ctx, admin(), doc.ID, repo.ApprovalPending)
	assert.ErrorIs(t, err, ErrInvalidApprovalState)
	_, err = f.svc.SetApprovalState(ctx, admin(), repo.NewID(), repo.ApprovalApproved)
	assert.ErrorIs(t, err, ErrNotFound)

	directory, err := f.svc.ListDoctors(ctx, Page{})
	require.NoError(t, err)
	assert.Empty(t, directory)

	_, err = f.svc.SetApprovalState(ctx, admin(), doc.ID, repo.ApprovalApproved)
	require.NoError(t, err)
	directory, err = f.svc.ListDoctors(ctx, Page{})
	require.NoError(t, err)
	assert.Len(t, directory, 1)
}

func TestDocumentUploadAndReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.svc.RegisterDoctor(ctx, doctorRequest("docs@example.com"))
	require.NoError(t, err)
	doctor := authorize.Principal{UserID: doc.ID, Role: authorize.RoleDoctor}

	_, err = f.svc.PresignDocumentDownload(ctx, admin(), doc.ID)
	assert.ErrorIs(t, err, ErrNoDocument)

	up, err := f.svc.PresignDocumentUpload(ctx, doctor, "license.pdf", "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "PUT", up.Method)
	assert.True(t, strings.HasPrefix(up.Key, "documents/"+doc.ID.String()+"/"))

	down, err := f.svc.PresignDocumentDownload(ctx, admin(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, up.Key, down.Key)

	other := authorize.Principal{UserID: repo.NewID(), Role: authorize.RoleDoctor}
	_, err = f.svc.PresignDocumentDownload(ctx, other, doc.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	patient := authorize.Principal{UserID: repo.NewID(), Role: authorize.RolePatient}
	_, err = f.svc.PresignDocumentUpload(ctx, patient, "x.pdf", "")
	assert.ErrorIs(t, err, ErrNotDoctor)
}

func TestDocumentsDisabled(t *testing.T) {
	f := newFixture(t)
	svc := New(f.store, fastHasher(), f.tokens, f.sessions, nil, nil, Options{})

	_, err := svc.PresignDocumentUpload(context.Background(), authorize.Principal{UserID: repo.NewID(), Role: authorize.RoleDoctor}, "a.pdf", "")
	assert.ErrorIs(t, err, ErrDocumentsDisabled)
}
