package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/echohealth/echo_backend/internal/repo"
	"github.com/echohealth/echo_backend/pkg/authorize"
	"github.com/echohealth/echo_backend/pkg/events"
	"github.com/echohealth/echo_backend/pkg/mpesa"
	pasetotoken "github.com/echohealth/echo_backend/pkg/paseto"
	s3pkg "github.com/echohealth/echo_backend/pkg/s3"
	"github.com/echohealth/echo_backend/pkg/util/password"
)

const defaultMinPasswordLength = 8

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

type RegisterDoctorRequest struct {
	Email           string
	Password        string
	FullName        string
	Phone           string
	Specialty       string
	ConsultationFee int64
}

type RegisterPatientRequest struct {
	Email    string
	Password string
	FullName string
	Phone    string // optional
}

type LoginRequest struct {
	Email    string
	Password string
}

type AuthTokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // seconds until access token expires
	Account      *repo.Account
}

type Page struct {
	Page    int
	PerPage int
}

func (p Page) limitOffset() (int, int) {
	per := p.PerPage
	if per <= 0 || per > 100 {
		per = 20
	}
	page := p.Page
	if page < 1 {
		page = 1
	}
	return per, (page - 1) * per
}

// ---------------------------------------------------------------------------
// Dependencies
// ---------------------------------------------------------------------------

// TokenIssuer is satisfied by *pasetotoken.Manager.
type TokenIssuer interface {
	IssueAccess(userID uuid.UUID, role string, sessionID *uuid.UUID) (string, error)
	IssueRefresh(userID uuid.UUID, role string, sessionID *uuid.UUID) (string, error)
	Verify(token string) (*pasetotoken.Claims, error)
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}

// Documents presigns object storage URLs; satisfied by *s3.Client.
type Documents interface {
	PresignUpload(ctx context.Context, key, contentType string) (*s3pkg.PresignedURL, error)
	PresignDownload(ctx context.Context, key string) (*s3pkg.PresignedURL, error)
}

type Options struct {
	MinPasswordLength int
}

// ---------------------------------------------------------------------------
// Service interface
// ---------------------------------------------------------------------------

type Service interface {
	RegisterDoctor(ctx context.Context, req RegisterDoctorRequest) (*repo.Account, error)
	RegisterPatient(ctx context.Context, req RegisterPatientRequest) (*repo.Account, error)
	CreateAdmin(ctx context.Context, email, plain, fullName string) (*repo.Account, error)

	Login(ctx context.Context, req LoginRequest) (*AuthTokens, error)
	RefreshTokens(ctx context.Context, refreshToken string) (*AuthTokens, error)
	Logout(ctx context.Context, sessionID uuid.UUID) error
	// SessionActive reports whether a session has not been logged out or expired.
	SessionActive(ctx context.Context, sessionID uuid.UUID) (bool, error)

	Me(ctx context.Context, p authorize.Principal) (*repo.Account, error)
	ChangePassword(ctx context.Context, p authorize.Principal, current, next string) error
	ListDoctors(ctx context.Context, page Page) ([]*repo.Account, error)

	ListApplications(ctx context.Context, p authorize.Principal, state repo.ApprovalState, page Page) ([]*repo.Account, error)
	SetApprovalState(ctx context.Context, p authorize.Principal, doctorID uuid.UUID, state repo.ApprovalState) (*repo.Account, error)

	PresignDocumentUpload(ctx context.Context, p authorize.Principal, filename, contentType string) (*s3pkg.PresignedURL, error)
	PresignDocumentDownload(ctx context.Context, p authorize.Principal, doctorID uuid.UUID) (*s3pkg.PresignedURL, error)
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type accountService struct {
	store    repo.Store
	hasher   *password.Verifier
	tokens   TokenIssuer
	sessions Sessions
	docs     Documents
	events   events.Publisher
	validate *validator.Validate
	minPass  int
}

// New builds the account service. docs may be nil when object storage is
// not configured; document operations then fail with ErrDocumentsDisabled.
func New(
	store repo.Store,
	hasher *password.Verifier,
	tokens TokenIssuer,
	sessions Sessions,
	docs Documents,
	pub events.Publisher,
	opts Options,
) Service {
	if opts.MinPasswordLength <= 0 {
		opts.MinPasswordLength = defaultMinPasswordLength
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &accountService{
		store:    store,
		hasher:   hasher,
		tokens:   tokens,
		sessions: sessions,
		docs:     docs,
		events:   pub,
		validate: validator.New(),
		minPass:  opts.MinPasswordLength,
	}
}

// ---------------------------------------------------------------------------
// Registration
// ---------------------------------------------------------------------------

func (s *accountService) RegisterDoctor(ctx context.Context, req RegisterDoctorRequest) (*repo.Account, error) {
	phone, err := mpesa.NormalizeMSISDN(req.Phone)
	if err != nil {
		return nil, ErrInvalidPhone
	}
	if req.ConsultationFee < 0 {
		return nil, ErrInvalidFee
	}

	a := &repo.Account{
		Email:           req.Email,
		Role:            repo.RoleDoctor,
		ApprovalState:   repo.ApprovalPending,
		FullName:        strings.TrimSpace(req.FullName),
		Phone:           phone,
		Specialty:       strings.TrimSpace(req.Specialty),
		ConsultationFee: req.ConsultationFee,
	}
	if err := s.create(ctx, a, req.Password); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "doctor registered", "account_id", a.ID)
	events.Emit(ctx, s.events, events.DoctorRegisteredSubject(a.ID), events.DoctorRegistered{
		DoctorID:  a.ID,
		Email:     a.Email,
		FullName:  a.FullName,
		Specialty: a.Specialty,
	})
	return a, nil
}

func (s *accountService) RegisterPatient(ctx context.Context, req RegisterPatientRequest) (*repo.Account, error) {
	var phone string
	if strings.TrimSpace(req.Phone) != "" {
		p, err := mpesa.NormalizeMSISDN(req.Phone)
		if err != nil {
			return nil, ErrInvalidPhone
		}
		phone = p
	}

	a := &repo.Account{
		Email:         req.Email,
		Role:          repo.RolePatient,
		ApprovalState: repo.ApprovalApproved,
		FullName:      strings.TrimSpace(req.FullName),
		Phone:         phone,
	}
	if err := s.create(ctx, a, req.Password); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *accountService) CreateAdmin(ctx context.Context, email, plain, fullName string) (*repo.Account, error) {
	a := &repo.Account{
		Email:         email,
		Role:          repo.RoleAdmin,
		ApprovalState: repo.ApprovalApproved,
		FullName:      strings.TrimSpace(fullName),
	}
	if err := s.create(ctx, a, plain); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "admin account created", "account_id", a.ID)
	return a, nil
}

// create validates the shared fields, hashes the secret and inserts a.
func (s *accountService) create(ctx context.Context, a *repo.Account, plain string) error {
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	if err := s.validate.Var(a.Email, "required,email"); err != nil {
		return ErrInvalidEmail
	}
	if len(plain) < s.minPass {
		return ErrPasswordTooShort
	}
	if a.FullName == "" {
		return ErrNameRequired
	}

	hash, err := s.hasher.Hash(plain)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	a.SecretHash = hash

	if err := s.store.CreateAccount(ctx, a); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return ErrEmailTaken
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Login / sessions
// ---------------------------------------------------------------------------

func (s *accountService) Login(ctx context.Context, req LoginRequest) (*AuthTokens, error) {
	a, err := s.store.GetAccountByEmail(ctx, req.Email)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find account: %w", err)
	}

	if err := s.hasher.Verify(a.SecretHash, req.Password); err != nil {
		if !errors.Is(err, password.ErrMismatch) {
			slog.WarnContext(ctx, "stored secret hash unusable", "account_id", a.ID, "err", err)
		}
		return nil, ErrInvalidCredentials
	}

	if a.Role == repo.RoleDoctor && a.ApprovalState != repo.ApprovalApproved {
		return nil, ErrNotApproved
	}

	if s.hasher.NeedsRehash(a.SecretHash) {
		s.rehash(ctx, a, req.Password)
	}

	return s.createSession(ctx, a)
}

// rehash upgrades an outdated hash. Failure only costs another rehash on the
// next login.
func (s *accountService) rehash(ctx context.Context, a *repo.Account, plain string) {
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		slog.WarnContext(ctx, "rehash failed", "account_id", a.ID, "err", err)
		return
	}
	if err := s.store.UpdateAccountSecret(ctx, a.ID, hash); err != nil {
		slog.WarnContext(ctx, "rehash persist failed", "account_id", a.ID, "err", err)
		return
	}
	a.SecretHash = hash
	slog.InfoContext(ctx, "secret rehashed", "account_id", a.ID, "algorithm", s.hasher.ID())
}

func (s *accountService) RefreshTokens(ctx context.Context, refreshToken string) (*AuthTokens, error) {
	claims, err := s.tokens.Verify(refreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Type != pasetotoken.TokenTypeRefresh || claims.SessionID == nil {
		return nil, ErrInvalidToken
	}

	if err := s.sessions.Touch(ctx, *claims.SessionID, s.tokens.RefreshTTL()); err != nil {
		return nil, err
	}

	// The role may have changed since the refresh token was issued.
	a, err := s.store.GetAccount(ctx, claims.UserID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	if a.Role == repo.RoleDoctor && a.ApprovalState != repo.ApprovalApproved {
		return nil, ErrNotApproved
	}

	// Issue new access token only (refresh token stays the same until logout)
	access, err := s.tokens.IssueAccess(a.ID, string(a.Role), claims.SessionID)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	return &AuthTokens{
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
		Account:      a,
	}, nil
}

func (s *accountService) Logout(ctx context.Context, sessionID uuid.UUID) error {
	deleted, err := s.sessions.Delete(ctx, sessionID)
	if err != nil {
		return err
	}
	if !deleted {
		slog.DebugContext(ctx, "logout: session already expired", "session_id", sessionID)
	}
	return nil
}

func (s *accountService) SessionActive(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	return s.sessions.Exists(ctx, sessionID)
}

func (s *accountService) createSession(ctx context.Context, a *repo.Account) (*AuthTokens, error) {
	sessionID := repo.NewID()

	if err := s.sessions.Create(ctx, sessionID, a.ID, s.tokens.RefreshTTL()); err != nil {
		return nil, err
	}

	access, err := s.tokens.IssueAccess(a.ID, string(a.Role), &sessionID)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.tokens.IssueRefresh(a.ID, string(a.Role), &sessionID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	return &AuthTokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
		Account:      a,
	}, nil
}

// ---------------------------------------------------------------------------
// Profile
// ---------------------------------------------------------------------------

func (s *accountService) Me(ctx context.Context, p authorize.Principal) (*repo.Account, error) {
	return s.get(ctx, p.UserID)
}

func (s *accountService) ChangePassword(ctx context.Context, p authorize.Principal, current, next string) error {
	a, err := s.get(ctx, p.UserID)
	if err != nil {
		return err
	}
	if err := s.hasher.Verify(a.SecretHash, current); err != nil {
		return ErrWrongPassword
	}
	if len(next) < s.minPass {
		return ErrPasswordTooShort
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdateAccountSecret(ctx, a.ID, hash); err != nil {
		return fmt.Errorf("update secret: %w", err)
	}
	return nil
}

func (s *accountService) ListDoctors(ctx context.Context, page Page) ([]*repo.Account, error) {
	limit, offset := page.limitOffset()
	return s.store.ListAccounts(ctx, repo.AccountFilter{
		Role:          repo.RoleDoctor,
		ApprovalState: repo.ApprovalApproved,
		Limit:         limit,
		Offset:        offset,
	})
}

// ---------------------------------------------------------------------------
// Doctor applications
// ---------------------------------------------------------------------------

func (s *accountService) ListApplications(ctx context.Context, p authorize.Principal, state repo.ApprovalState, page Page) ([]*repo.Account, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	limit, offset := page.limitOffset()
	return s.store.ListAccounts(ctx, repo.AccountFilter{
		Role:          repo.RoleDoctor,
		ApprovalState: state,
		Limit:         limit,
		Offset:        offset,
	})
}

func (s *accountService) SetApprovalState(ctx context.Context, p authorize.Principal, doctorID uuid.UUID, state repo.ApprovalState) (*repo.Account, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	if state != repo.ApprovalApproved && state != repo.ApprovalRejected {
		return nil, ErrInvalidApprovalState
	}

	a, err := s.get(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if a.Role != repo.RoleDoctor {
		return nil, ErrNotDoctor
	}
	if a.ApprovalState == state {
		return a, nil
	}

	if err := s.store.UpdateAccountApproval(ctx, a.ID, state); err != nil {
		return nil, fmt.Errorf("update approval: %w", err)
	}
	a.ApprovalState = state

	slog.InfoContext(ctx, "doctor approval changed", "doctor_id", a.ID, "state", state, "by", p.UserID)
	events.Emit(ctx, s.events, events.DoctorApprovalSubject(a.ID), events.DoctorApprovalChanged{
		DoctorID:      a.ID,
		ApprovalState: string(state),
	})
	return a, nil
}

// ---------------------------------------------------------------------------
// License documents
// ---------------------------------------------------------------------------

func (s *accountService) PresignDocumentUpload(ctx context.Context, p authorize.Principal, filename, contentType string) (*s3pkg.PresignedURL, error) {
	if s.docs == nil {
		return nil, ErrDocumentsDisabled
	}
	if !p.IsDoctor() {
		return nil, ErrNotDoctor
	}

	key := s3pkg.DocumentKey(p.UserID, filename)
	u, err := s.docs.PresignUpload(ctx, key, contentType)
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}
	if err := s.store.UpdateAccountDocument(ctx, p.UserID, key); err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("record document: %w", err)
	}
	return u, nil
}

func (s *accountService) PresignDocumentDownload(ctx context.Context, p authorize.Principal, doctorID uuid.UUID) (*s3pkg.PresignedURL, error) {
	if s.docs == nil {
		return nil, ErrDocumentsDisabled
	}
	if !p.IsAdmin() && p.UserID != doctorID {
		return nil, ErrForbidden
	}

	a, err := s.get(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if a.Role != repo.RoleDoctor {
		return nil, ErrNotDoctor
	}
	if a.DocumentKey == "" {
		return nil, ErrNoDocument
	}

	u, err := s.docs.PresignDownload(ctx, a.DocumentKey)
	if err != nil {
		return nil, fmt.Errorf("presign download: %w", err)
	}
	return u, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *accountService) get(ctx context.Context, id uuid.UUID) (*repo.Account, error) {
	a, err := s.store.GetAccount(ctx, id)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}
