package session

import (
	"time"

	"github.com/labstack/echo/v4"
)

const (
	AccountIDKey     = "_account_id"
	AuthenticatedKey = "_authenticated"
)

// Login binds the current session to an account and records the device in the
// tracking table.
func Login(c echo.Context, svc *Service, accountID uint) {
	manager := GetManager(c)
	if manager == nil {
		return
	}

	ctx := c.Request().Context()
	manager.Put(ctx, AccountIDKey, accountID)
	manager.Put(ctx, AuthenticatedKey, true)

	if svc != nil {
		token := manager.Token(ctx)
		if token != "" {
			expiresAt := time.Now().Add(manager.config.Lifetime)
			_ = svc.Track(accountID, token, c.RealIP(), c.Request().UserAgent(), expiresAt)
		}
	}
}

func Logout(c echo.Context, svc *Service) {
	manager := GetManager(c)
	if manager == nil {
		return
	}

	ctx := c.Request().Context()
	if svc != nil {
		if token := manager.Token(ctx); token != "" {
			_ = svc.RemoveByToken(token)
		}
	}

	manager.Remove(ctx, AccountIDKey)
	manager.Remove(ctx, AuthenticatedKey)
	_ = manager.Destroy(ctx)
}

func GetAccountID(c echo.Context) uint {
	manager := GetManager(c)
	if manager == nil {
		return 0
	}

	switch v := manager.Get(c.Request().Context(), AccountIDKey).(type) {
	case uint:
		return v
	case int:
		return uint(v)
	case int64:
		return uint(v)
	case uint64:
		return uint(v)
	case float64:
		return uint(v)
	default:
		return 0
	}
}

func IsAuthenticated(c echo.Context) bool {
	manager := GetManager(c)
	if manager == nil {
		return false
	}
	return manager.GetBool(c.Request().Context(), AuthenticatedKey)
}

func RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !IsAuthenticated(c) {
				return echo.NewHTTPError(401, "Authentication required")
			}
			return next(c)
		}
	}
}
