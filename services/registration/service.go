package registration

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/kumadojo/api/config"
	"github.com/kumadojo/api/services/account"
	"github.com/kumadojo/api/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrValidation             = errors.New("missing or invalid signup fields")
	ErrCaptchaFailed          = errors.New("captcha verification failed")
	ErrEmailAlreadyRegistered = errors.New("email is already registered")
	ErrInvalidOrExpiredToken  = errors.New("invalid or expired verification token")
	ErrNoPendingVerification  = errors.New("no pending verification for this email")
)

// SignupSuccessMessage is deliberately generic: apart from the explicit
// already-registered case, responses never reveal whether an email was seen
// before.
const SignupSuccessMessage = "Check your inbox for a confirmation link to finish setting up your account."

type Mailer interface {
	SendVerification(email, verificationURL string, expiry time.Duration) error
}

type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

type AuditRecorder interface {
	Record(level, message string, context map[string]any)
}

type PasswordHasher interface {
	ValidatePassword(password string) error
	HashPassword(password string) (string, error)
}

// Service coordinates the signup → confirm lifecycle across the pending and
// account stores. All mutation of either store during registration goes
// through here.
type Service struct {
	cfg      *config.Config
	db       *gorm.DB
	pending  *PendingStore
	accounts *account.Store
	issuer   *TokenIssuer
	hasher   PasswordHasher
	captcha  CaptchaVerifier
	mailer   Mailer
	audit    AuditRecorder
	logger   *logging.Service
}

func NewService(
	cfg *config.Config,
	db *gorm.DB,
	pending *PendingStore,
	accounts *account.Store,
	issuer *TokenIssuer,
	hasher PasswordHasher,
	captcha CaptchaVerifier,
	mailer Mailer,
	audit AuditRecorder,
	logger *logging.Service,
) *Service {
	return &Service{
		cfg:      cfg,
		db:       db,
		pending:  pending,
		accounts: accounts,
		issuer:   issuer,
		hasher:   hasher,
		captcha:  captcha,
		mailer:   mailer,
		audit:    audit,
		logger:   logger,
	}
}

type SignupRequest struct {
	Email        string
	DisplayName  string
	Password     string
	CaptchaToken string
	RemoteIP     string
}

// NormalizeEmail is applied to every email before it reaches either store.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup stages a new pending account, replacing any earlier unverified
// attempt for the same email. The verification mail is best-effort: a dispatch
// failure is logged and audited but the staged record survives, so Resend can
// recover.
func (s *Service) Signup(ctx context.Context, req SignupRequest) error {
	email := NormalizeEmail(req.Email)

	if email == "" || strings.TrimSpace(req.DisplayName) == "" || req.Password == "" {
		s.recordAudit("warn", "signup rejected: missing fields", map[string]any{"email": email})
		return ErrValidation
	}
	if _, err := netmail.ParseAddress(email); err != nil {
		s.recordAudit("warn", "signup rejected: malformed email", map[string]any{"email": email})
		return ErrValidation
	}

	if s.cfg.Captcha.Enabled {
		if req.CaptchaToken == "" {
			s.recordAudit("warn", "signup rejected: missing captcha token", map[string]any{"email": email})
			return ErrCaptchaFailed
		}
		ok, err := s.captcha.Verify(ctx, req.CaptchaToken, req.RemoteIP)
		if err != nil {
			s.logger.Error("captcha verification errored", zap.Error(err), zap.String("email", email))
			s.recordAudit("error", "signup rejected: captcha verifier unavailable", map[string]any{"email": email})
			return ErrCaptchaFailed
		}
		if !ok {
			s.recordAudit("warn", "signup rejected: captcha failed", map[string]any{"email": email, "remote_ip": req.RemoteIP})
			return ErrCaptchaFailed
		}
	}

	var legacyID uint
	existing, err := s.accounts.FindByEmail(email)
	switch {
	case err == nil && existing.IsVerified():
		s.recordAudit("warn", "signup rejected: email already registered", map[string]any{"email": email})
		return ErrEmailAlreadyRegistered
	case err == nil:
		// An unverified Account should not exist outside the pending store;
		// treat it as an orphan and replace it with a fresh pending record.
		legacyID = existing.ID
	case !errors.Is(err, account.ErrNotFound):
		s.logger.Error("signup failed: account lookup errored", zap.Error(err), zap.String("email", email))
		s.recordAudit("error", "signup failed: account store unavailable", map[string]any{"email": email})
		return fmt.Errorf("failed to check existing account: %w", err)
	}

	if err := s.hasher.ValidatePassword(req.Password); err != nil {
		s.recordAudit("warn", "signup rejected: weak password", map[string]any{"email": email})
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	passwordHash, err := s.hasher.HashPassword(req.Password)
	if err != nil {
		s.recordAudit("error", "signup failed: password hashing", map[string]any{"email": email})
		return fmt.Errorf("failed to hash password: %w", err)
	}

	token, expiresAt, err := s.issuer.Issue()
	if err != nil {
		s.recordAudit("error", "signup failed: token issuance", map[string]any{"email": email})
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if legacyID != 0 {
			if err := s.accounts.WithTx(tx).DeleteByID(legacyID); err != nil && !errors.Is(err, account.ErrNotFound) {
				return err
			}
		}
		_, err := s.pending.WithTx(tx).Upsert(email, strings.TrimSpace(req.DisplayName), passwordHash, token, expiresAt)
		return err
	})
	if err != nil {
		s.logger.Error("signup failed: staging pending account", zap.Error(err), zap.String("email", email))
		s.recordAudit("error", "signup failed: pending store write", map[string]any{"email": email})
		return fmt.Errorf("failed to stage pending account: %w", err)
	}

	if err := s.mailer.SendVerification(email, s.verificationURL(token), s.issuer.TTL()); err != nil {
		// Non-fatal: the pending record is durable, Resend recovers it.
		s.logger.Warn("verification mail dispatch failed", zap.Error(err), zap.String("email", email))
		s.recordAudit("warn", "signup staged but verification mail failed", map[string]any{"email": email})
	}

	s.recordAudit("info", "signup staged", map[string]any{"email": email, "self_healed": legacyID != 0})
	s.logger.Info("pending account staged",
		zap.String("email", email),
		zap.Time("token_expires_at", expiresAt),
		zap.Bool("replaced_legacy_account", legacyID != 0))

	return nil
}

// Confirm promotes the pending account matching token into a durable, verified
// Account. The claim (delete-by-id-and-token) and the Account creation run in
// one transaction: a raced second Confirm observes zero claimed rows and
// fails, and a failed creation rolls the claim back so the pending record
// survives for a retry.
func (s *Service) Confirm(ctx context.Context, token string) (uint, error) {
	if token == "" {
		return 0, ErrInvalidOrExpiredToken
	}

	pending, err := s.pending.FindByToken(token)
	if err != nil {
		if errors.Is(err, ErrPendingNotFound) {
			s.logger.Warn("confirm rejected: unknown or expired token")
			return 0, ErrInvalidOrExpiredToken
		}
		return 0, fmt.Errorf("failed to look up verification token: %w", err)
	}

	var accountID uint
	err = s.db.Transaction(func(tx *gorm.DB) error {
		txPending := s.pending.WithTx(tx)
		txAccounts := s.accounts.WithTx(tx)

		claimed, err := txPending.Claim(pending.ID, token)
		if err != nil {
			return err
		}
		if claimed == 0 {
			return ErrInvalidOrExpiredToken
		}

		existing, err := txAccounts.FindByEmail(pending.Email)
		switch {
		case err == nil && existing.IsVerified():
			return ErrEmailAlreadyRegistered
		case err == nil:
			if err := txAccounts.DeleteByID(existing.ID); err != nil {
				return err
			}
		case !errors.Is(err, account.ErrNotFound):
			return err
		}

		now := time.Now()
		created, err := txAccounts.Create(account.CreateParams{
			Email:           pending.Email,
			DisplayName:     pending.DisplayName,
			PasswordHash:    &pending.PasswordHash,
			Role:            account.Role(s.cfg.Registration.DefaultRole),
			IsActive:        true,
			EmailVerifiedAt: &now,
		})
		if err != nil {
			return err
		}

		accountID = created.ID
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidOrExpiredToken) || errors.Is(err, ErrEmailAlreadyRegistered) {
			return 0, err
		}
		s.logger.Error("confirm failed", zap.Error(err), zap.String("email", pending.Email))
		return 0, fmt.Errorf("failed to promote pending account: %w", err)
	}

	s.logger.Info("account verified",
		zap.String("email", pending.Email),
		zap.Uint("account_id", accountID))

	return accountID, nil
}

// Resend reissues a verification token for an unverified identity. A legacy
// unverified Account (one that bypassed staging) is re-staged as a fresh
// pending record; Confirm later replaces the legacy row through its self-heal
// path.
func (s *Service) Resend(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return ErrValidation
	}

	token, expiresAt, err := s.issuer.Issue()
	if err != nil {
		return err
	}

	if pending, err := s.pending.FindByEmail(email); err == nil {
		if err := s.pending.ReissueToken(pending.Email, token, expiresAt); err != nil {
			return fmt.Errorf("failed to reissue verification token: %w", err)
		}
	} else if !errors.Is(err, ErrPendingNotFound) {
		return fmt.Errorf("failed to look up pending account: %w", err)
	} else {
		acct, err := s.accounts.FindByEmail(email)
		if err != nil || acct.IsVerified() {
			if err != nil && !errors.Is(err, account.ErrNotFound) {
				return fmt.Errorf("failed to look up account: %w", err)
			}
			s.logger.Warn("resend rejected: nothing awaiting verification", zap.String("email", email))
			return ErrNoPendingVerification
		}

		var passwordHash string
		if acct.PasswordHash != nil {
			passwordHash = *acct.PasswordHash
		}
		if _, err := s.pending.Upsert(email, acct.DisplayName, passwordHash, token, expiresAt); err != nil {
			return fmt.Errorf("failed to re-stage legacy account: %w", err)
		}
	}

	if err := s.mailer.SendVerification(email, s.verificationURL(token), s.issuer.TTL()); err != nil {
		s.logger.Warn("verification mail dispatch failed on resend", zap.Error(err), zap.String("email", email))
	}

	s.logger.Info("verification token reissued",
		zap.String("email", email),
		zap.Time("token_expires_at", expiresAt))

	return nil
}

func (s *Service) verificationURL(token string) string {
	return fmt.Sprintf("%s/verify-email?token=%s", s.cfg.App.URL, token)
}

func (s *Service) recordAudit(level, message string, context map[string]any) {
	if s.audit != nil {
		s.audit.Record(level, message, context)
	}
}
