package session

import (
	"time"

	"github.com/mileusna/useragent"
	"gorm.io/gorm"
)

// Service maintains the MemberSession rows that mirror live scs sessions.
type Service struct {
	db      *gorm.DB
	manager *Manager
}

func NewService(db *gorm.DB, manager *Manager) *Service {
	return &Service{
		db:      db,
		manager: manager,
	}
}

func (s *Service) Track(accountID uint, token, ipAddress, userAgent string, expiresAt time.Time) error {
	session := MemberSession{
		AccountID: accountID,
		Token:     token,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		CreatedAt: time.Now(),
		LastUsed:  time.Now(),
		ExpiresAt: expiresAt,
	}

	return s.db.Create(&session).Error
}

func (s *Service) UpdateLastUsed(token string) error {
	return s.db.Model(&MemberSession{}).
		Where("token = ?", token).
		Update("last_used", time.Now()).Error
}

// Sessions lists the live sessions for an account, newest activity first, with
// the caller's own session flagged.
func (s *Service) Sessions(accountID uint, currentToken string) ([]MemberSession, error) {
	var sessions []MemberSession
	err := s.db.Where("account_id = ? AND expires_at > ?", accountID, time.Now()).
		Order("last_used DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}

	for i := range sessions {
		if sessions[i].Token == currentToken {
			sessions[i].Current = true
		}
	}

	return sessions, nil
}

// Revoke ends one of the account's sessions: the scs cookie store entry dies
// with the tracking row, so the device is signed out on its next request.
func (s *Service) Revoke(accountID, sessionID uint) error {
	var session MemberSession
	if err := s.db.Where("id = ? AND account_id = ?", sessionID, accountID).First(&session).Error; err != nil {
		return err
	}

	if s.manager != nil && s.manager.SessionManager.Store != nil {
		if err := s.manager.SessionManager.Store.Delete(session.Token); err != nil {
			return err
		}
	}

	return s.db.Delete(&session).Error
}

func (s *Service) RevokeAllOther(accountID uint, currentToken string) error {
	var sessions []MemberSession
	if err := s.db.Where("account_id = ? AND token != ?", accountID, currentToken).Find(&sessions).Error; err != nil {
		return err
	}
	if len(sessions) == 0 {
		return nil
	}

	for _, session := range sessions {
		if s.manager != nil && s.manager.SessionManager.Store != nil {
			if err := s.manager.SessionManager.Store.Delete(session.Token); err != nil {
				return err
			}
		}
	}

	return s.db.Where("account_id = ? AND token != ?", accountID, currentToken).Delete(&MemberSession{}).Error
}

func (s *Service) Exists(token string) (bool, error) {
	var count int64
	err := s.db.Model(&MemberSession{}).
		Where("token = ? AND expires_at > ?", token, time.Now()).
		Count(&count).Error
	if err != nil {
		return false, err
	}

	if count > 0 {
		_ = s.UpdateLastUsed(token)
		return true, nil
	}

	return false, nil
}

func (s *Service) RemoveByToken(token string) error {
	return s.db.Where("token = ?", token).Delete(&MemberSession{}).Error
}

func (s *Service) CleanupExpired() error {
	return s.db.Where("expires_at < ?", time.Now()).Delete(&MemberSession{}).Error
}

// DeviceLabel renders a user agent string into a short human label for the
// devices view.
func DeviceLabel(userAgentString string) string {
	if userAgentString == "" {
		return "Unknown Device"
	}

	ua := useragent.Parse(userAgentString)

	browser := "Unknown Browser"
	if ua.Name != "" {
		browser = ua.Name
		if ua.Version != "" {
			browser += " " + ua.Version
		}
	}

	if ua.OS != "" {
		return browser + " on " + ua.OS
	}
	return browser
}

func DeviceInfo(userAgentString string) map[string]any {
	ua := useragent.Parse(userAgentString)

	deviceType := "Desktop"
	switch {
	case ua.Mobile:
		deviceType = "Mobile"
	case ua.Tablet:
		deviceType = "Tablet"
	case ua.Bot:
		deviceType = "Bot"
	}

	return map[string]any{
		"browser":     ua.Name,
		"os":          ua.OS,
		"os_version":  ua.OSVersion,
		"device_type": deviceType,
		"label":       DeviceLabel(userAgentString),
	}
}
