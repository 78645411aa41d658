package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/kumadojo/api/config"
	"github.com/kumadojo/api/services/logging"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var ErrPasswordHashingFailed = errors.New("failed to hash password")

// Hasher enforces the password policy and produces bcrypt digests. The policy
// knobs live in config so deployments can tighten them without a code change.
type Hasher struct {
	config *config.Config
	logger *logging.Service
}

func NewHasher(cfg *config.Config, logger *logging.Service) *Hasher {
	if cfg.Auth.BcryptCost < bcrypt.MinCost || cfg.Auth.BcryptCost > bcrypt.MaxCost {
		cfg.Auth.BcryptCost = bcrypt.DefaultCost
	}
	return &Hasher{
		config: cfg,
		logger: logger,
	}
}

func (h *Hasher) ValidatePassword(password string) error {
	if len(password) < h.config.Auth.MinLength {
		h.logger.Warn("password validation failed: insufficient length",
			zap.Int("length", len(password)),
			zap.Int("min_required", h.config.Auth.MinLength))
		return fmt.Errorf("password must be at least %d characters", h.config.Auth.MinLength)
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	var missing []string

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	if h.config.Auth.RequireUpper && !hasUpper {
		missing = append(missing, "one uppercase letter")
	}
	if h.config.Auth.RequireLower && !hasLower {
		missing = append(missing, "one lowercase letter")
	}
	if h.config.Auth.RequireNumber && !hasNumber {
		missing = append(missing, "one number")
	}
	if h.config.Auth.RequireSpecial && !hasSpecial {
		missing = append(missing, "one special character")
	}

	if len(missing) > 0 {
		h.logger.Warn("password validation failed: missing requirements",
			zap.Strings("missing_requirements", missing))
		return fmt.Errorf("password must contain at least %s", strings.Join(missing, ", "))
	}

	return nil
}

func (h *Hasher) HashPassword(password string) (string, error) {
	if err := h.ValidatePassword(password); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.config.Auth.BcryptCost)
	if err != nil {
		h.logger.Error("password hashing failed", zap.Error(err))
		return "", ErrPasswordHashingFailed
	}

	return string(hash), nil
}

func (h *Hasher) VerifyPassword(hashedPassword, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// MustHashPassword is a test and seeding convenience.
func (h *Hasher) MustHashPassword(password string) string {
	hash, err := h.HashPassword(password)
	if err != nil {
		panic(err)
	}
	return hash
}
