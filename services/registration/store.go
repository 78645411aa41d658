package registration

import (
	"errors"
	"fmt"
	"time"

	"github.com/kumadojo/api/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrPendingNotFound = errors.New("no pending account found")

// PendingStore persists not-yet-verified signups. Expiry is enforced twice:
// FindByToken refuses rows past their ExpiresAt, and the sweeper physically
// removes them on an interval.
type PendingStore struct {
	db     *gorm.DB
	logger *logging.Service
}

func NewPendingStore(db *gorm.DB, logger *logging.Service) *PendingStore {
	return &PendingStore{db: db, logger: logger}
}

func (s *PendingStore) WithTx(tx *gorm.DB) *PendingStore {
	return &PendingStore{db: tx, logger: s.logger}
}

// Upsert creates the pending record for email, or overwrites every mutable
// field of an existing one. Overwriting is how a repeat signup resets the
// pending state: the previous token stops matching anything.
func (s *PendingStore) Upsert(email, displayName, passwordHash, token string, expiresAt time.Time) (*PendingAccount, error) {
	pending := &PendingAccount{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		Token:        token,
		ExpiresAt:    expiresAt,
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"display_name", "password_hash", "token", "expires_at", "updated_at", "deleted_at",
		}),
	}).Create(pending).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert pending account: %w", err)
	}

	// Re-read so callers always observe the stored row, including its ID when
	// the conflict path fired.
	var stored PendingAccount
	if err := s.db.Where("email = ?", email).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to reload pending account: %w", err)
	}

	return &stored, nil
}

// FindByToken returns the pending record matching token, treating expired
// rows as absent even if the sweeper has not removed them yet.
func (s *PendingStore) FindByToken(token string) (*PendingAccount, error) {
	var pending PendingAccount
	err := s.db.Where("token = ? AND expires_at > ?", token, time.Now()).First(&pending).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPendingNotFound
		}
		return nil, fmt.Errorf("failed to look up pending account by token: %w", err)
	}
	return &pending, nil
}

func (s *PendingStore) FindByEmail(email string) (*PendingAccount, error) {
	var pending PendingAccount
	if err := s.db.Where("email = ?", email).First(&pending).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPendingNotFound
		}
		return nil, fmt.Errorf("failed to look up pending account by email: %w", err)
	}
	return &pending, nil
}

func (s *PendingStore) Delete(id uint) error {
	result := s.db.Unscoped().Delete(&PendingAccount{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete pending account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPendingNotFound
	}
	return nil
}

// Claim removes the pending row only if it still carries the given token.
// The returned count is the single-use gate for Confirm: zero means another
// request already consumed the token.
func (s *PendingStore) Claim(id uint, token string) (int64, error) {
	result := s.db.Unscoped().
		Where("id = ? AND token = ?", id, token).
		Delete(&PendingAccount{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to claim pending account: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ReissueToken replaces the token and expiry on an existing pending record.
func (s *PendingStore) ReissueToken(email, token string, expiresAt time.Time) error {
	result := s.db.Model(&PendingAccount{}).
		Where("email = ?", email).
		Updates(map[string]any{"token": token, "expires_at": expiresAt})
	if result.Error != nil {
		return fmt.Errorf("failed to reissue token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPendingNotFound
	}
	return nil
}

func (s *PendingStore) DeleteExpired() (int64, error) {
	result := s.db.Unscoped().
		Where("expires_at < ?", time.Now()).
		Delete(&PendingAccount{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete expired pending accounts: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.logger.Info("expired pending accounts removed", zap.Int64("count", result.RowsAffected))
	}

	return result.RowsAffected, nil
}
