package account

import (
	"time"

	"gorm.io/gorm"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleOrganizer, RoleAdmin:
		return true
	}
	return false
}

// Account is the durable, authenticatable identity record. PasswordHash is
// nil for accounts created through an external identity provider.
// EmailVerifiedAt is set exactly once, at promotion time, and never cleared.
type Account struct {
	gorm.Model
	Email           string     `json:"email" gorm:"uniqueIndex;size:256;not null"`
	DisplayName     string     `json:"display_name" gorm:"size:128;not null"`
	PasswordHash    *string    `json:"-" gorm:"size:128"`
	Role            Role       `json:"role" gorm:"size:16;not null;default:'user'"`
	IsActive        bool       `json:"is_active" gorm:"not null;default:true"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
}

func (Account) TableName() string {
	return "accounts"
}

func (a *Account) IsVerified() bool {
	return a.EmailVerifiedAt != nil
}
