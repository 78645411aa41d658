package account

import (
	"errors"
	"fmt"
	"time"

	"github.com/kumadojo/api/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrNotFound       = errors.New("account not found")
	ErrDuplicateEmail = errors.New("an account with this email already exists")
)

type Store struct {
	db     *gorm.DB
	logger *logging.Service
}

func NewStore(db *gorm.DB, logger *logging.Service) *Store {
	return &Store{db: db, logger: logger}
}

// WithTx returns a store bound to the given transaction handle. The
// registration orchestrator uses this to promote a pending signup and consume
// the staging record as one unit.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx, logger: s.logger}
}

type CreateParams struct {
	Email           string
	DisplayName     string
	PasswordHash    *string
	Role            Role
	IsActive        bool
	EmailVerifiedAt *time.Time
}

func (s *Store) Create(params CreateParams) (*Account, error) {
	if !params.Role.Valid() {
		return nil, fmt.Errorf("invalid role: %s", params.Role)
	}

	acct := &Account{
		Email:           params.Email,
		DisplayName:     params.DisplayName,
		PasswordHash:    params.PasswordHash,
		Role:            params.Role,
		IsActive:        params.IsActive,
		EmailVerifiedAt: params.EmailVerifiedAt,
	}

	if err := s.db.Create(acct).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("account created",
		zap.String("email", acct.Email),
		zap.String("role", string(acct.Role)),
		zap.Bool("verified", acct.IsVerified()))

	return acct, nil
}

func (s *Store) FindByEmail(email string) (*Account, error) {
	var acct Account
	if err := s.db.Where("email = ?", email).First(&acct).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up account by email: %w", err)
	}
	return &acct, nil
}

func (s *Store) FindByID(id uint) (*Account, error) {
	var acct Account
	if err := s.db.First(&acct, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up account by id: %w", err)
	}
	return &acct, nil
}

func (s *Store) DeleteByID(id uint) error {
	result := s.db.Unscoped().Delete(&Account{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Update applies a partial field update. Admin tooling uses this for role and
// activation changes; the verification core never calls it.
func (s *Store) Update(id uint, fields map[string]any) error {
	result := s.db.Model(&Account{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to update account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
