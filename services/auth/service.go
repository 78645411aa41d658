package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kumadojo/api/config"
	"github.com/kumadojo/api/services/account"
	"github.com/kumadojo/api/services/logging"
	"go.uber.org/zap"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotVerified        = errors.New("email address has not been verified")
	ErrInactive           = errors.New("account has been deactivated")
)

// Service authenticates verified accounts. Registration owns account creation
// via the verification flow; the only account this service creates is the
// pre-verified one minted by an external identity provider callback.
type Service struct {
	config   *config.Config
	accounts *account.Store
	hasher   *Hasher
	logger   *logging.Service
}

func NewService(cfg *config.Config, accounts *account.Store, hasher *Hasher, logger *logging.Service) *Service {
	return &Service{
		config:   cfg,
		accounts: accounts,
		hasher:   hasher,
		logger:   logger,
	}
}

// Authenticate verifies an email and password pair. The verified check runs
// before the password comparison so an unverified account is told to confirm
// its email rather than being left guessing at credentials.
func (s *Service) Authenticate(email, password string) (*account.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	acct, err := s.accounts.FindByEmail(email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			s.logger.Warn("authentication failed: unknown email", zap.String("email", email))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	if !acct.IsVerified() {
		s.logger.Warn("authentication refused: email not verified", zap.String("email", email))
		return nil, ErrNotVerified
	}

	if !acct.IsActive {
		s.logger.Warn("authentication refused: account inactive", zap.String("email", email))
		return nil, ErrInactive
	}

	// Accounts created through an identity provider carry no password hash and
	// cannot be signed into with a password.
	if acct.PasswordHash == nil {
		s.logger.Warn("authentication failed: account has no password", zap.String("email", email))
		return nil, ErrInvalidCredentials
	}

	if err := s.hasher.VerifyPassword(*acct.PasswordHash, password); err != nil {
		s.logger.Warn("authentication failed: wrong password", zap.String("email", email))
		return nil, ErrInvalidCredentials
	}

	s.logger.Info("authentication succeeded",
		zap.String("email", email),
		zap.Uint("account_id", acct.ID))

	return acct, nil
}

// LoginExternal resolves an identity provider callback into an account. The
// provider has already attested the email address, so a new account is created
// verified, and an unverified account left over from an abandoned password
// signup is promoted in place.
func (s *Service) LoginExternal(email, displayName string) (*account.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrInvalidCredentials
	}

	acct, err := s.accounts.FindByEmail(email)
	switch {
	case err == nil:
		if !acct.IsActive {
			s.logger.Warn("external login refused: account inactive", zap.String("email", email))
			return nil, ErrInactive
		}
		if !acct.IsVerified() {
			now := time.Now()
			if err := s.accounts.Update(acct.ID, map[string]any{"email_verified_at": now}); err != nil {
				return nil, fmt.Errorf("failed to mark account verified: %w", err)
			}
			acct.EmailVerifiedAt = &now
			s.logger.Info("account verified via identity provider", zap.String("email", email))
		}
		return acct, nil
	case errors.Is(err, account.ErrNotFound):
		now := time.Now()
		created, err := s.accounts.Create(account.CreateParams{
			Email:           email,
			DisplayName:     displayName,
			PasswordHash:    nil,
			Role:            account.Role(s.config.Registration.DefaultRole),
			IsActive:        true,
			EmailVerifiedAt: &now,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create account from identity provider: %w", err)
		}
		s.logger.Info("account created via identity provider",
			zap.String("email", email),
			zap.Uint("account_id", created.ID))
		return created, nil
	default:
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
}
