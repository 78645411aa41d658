package registration

import (
	"time"

	"gorm.io/gorm"
)

// PendingAccount stages a signup until its email address is confirmed. At most
// one row exists per email; a repeat signup overwrites the previous attempt.
// Rows past ExpiresAt are treated as absent even before the sweeper removes
// them.
type PendingAccount struct {
	gorm.Model
	Email        string    `json:"email" gorm:"uniqueIndex;size:256;not null"`
	DisplayName  string    `json:"display_name" gorm:"size:128;not null"`
	PasswordHash string    `json:"-" gorm:"size:128;not null"`
	Token        string    `json:"-" gorm:"uniqueIndex;size:128;not null"`
	ExpiresAt    time.Time `json:"expires_at" gorm:"not null;index"`
}

func (PendingAccount) TableName() string {
	return "pending_accounts"
}
