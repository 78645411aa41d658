package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/kumadojo/api/config"
	jwtmw "github.com/kumadojo/api/middleware/jwt"
	"github.com/kumadojo/api/middleware/ratelimit"
	"github.com/kumadojo/api/services/account"
	"github.com/kumadojo/api/services/auth"
	"github.com/kumadojo/api/services/jwt"
	"github.com/kumadojo/api/services/logging"
	"github.com/kumadojo/api/services/registration"
	"github.com/kumadojo/api/session"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type Handlers struct {
	cfg          *config.Config
	registration *registration.Service
	auth         *auth.Service
	accounts     *account.Store
	jwt          *jwt.Service
	sessions     *session.Service
	logger       *logging.Service
}

func NewHandlers(
	cfg *config.Config,
	registrationSvc *registration.Service,
	authSvc *auth.Service,
	accounts *account.Store,
	jwtSvc *jwt.Service,
	sessions *session.Service,
	logger *logging.Service,
) *Handlers {
	return &Handlers{
		cfg:          cfg,
		registration: registrationSvc,
		auth:         authSvc,
		accounts:     accounts,
		jwt:          jwtSvc,
		sessions:     sessions,
		logger:       logger,
	}
}

// RegisterRoutes wires the auth surface. The routes that trigger mail or
// exercise the credential store sit behind the rate limiter.
func (h *Handlers) RegisterRoutes(e *echo.Echo, manager *session.Manager) {
	e.Use(session.Middleware(manager))

	e.GET("/api/health", h.Health)

	limited := ratelimit.ForConfig(h.cfg)

	authGroup := e.Group("/api/auth")
	authGroup.POST("/signup", h.Signup, limited)
	authGroup.GET("/verify", h.Verify)
	authGroup.POST("/resend", h.Resend, limited)
	authGroup.POST("/login", h.Login, limited)
	authGroup.POST("/refresh", h.Refresh)
	authGroup.POST("/logout", h.Logout)
	authGroup.POST("/social/callback", h.SocialCallback, limited)

	protected := e.Group("/api/auth", jwtmw.RequireJWT(h.jwt))
	protected.GET("/me", h.Me)
	protected.GET("/sessions", h.Sessions)
	protected.DELETE("/sessions/:id", h.RevokeSession)
}

func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type signupRequest struct {
	Email        string `json:"email"`
	DisplayName  string `json:"display_name"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captcha_token"`
}

func (h *Handlers) Signup(c echo.Context) error {
	var req signupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	err := h.registration.Signup(c.Request().Context(), registration.SignupRequest{
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		Password:     req.Password,
		CaptchaToken: req.CaptchaToken,
		RemoteIP:     c.RealIP(),
	})
	if err != nil {
		switch {
		case errors.Is(err, registration.ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, registration.ErrCaptchaFailed):
			return echo.NewHTTPError(http.StatusBadRequest, "Captcha verification failed")
		case errors.Is(err, registration.ErrEmailAlreadyRegistered):
			return echo.NewHTTPError(http.StatusConflict, "This email address is already registered")
		default:
			h.logger.Error("signup failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "Something went wrong, please try again later")
		}
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"message": registration.SignupSuccessMessage,
	})
}

func (h *Handlers) Verify(c echo.Context) error {
	token := c.QueryParam("token")

	accountID, err := h.registration.Confirm(c.Request().Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, registration.ErrInvalidOrExpiredToken):
			return echo.NewHTTPError(http.StatusBadRequest, "This verification link is invalid or has expired")
		case errors.Is(err, registration.ErrEmailAlreadyRegistered):
			return echo.NewHTTPError(http.StatusConflict, "This email address is already registered")
		default:
			h.logger.Error("verification failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "Something went wrong, please try again later")
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"message":    "Your email address has been verified. You can now sign in.",
		"account_id": accountID,
	})
}

type resendRequest struct {
	Email string `json:"email"`
}

func (h *Handlers) Resend(c echo.Context) error {
	var req resendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	err := h.registration.Resend(c.Request().Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, registration.ErrValidation):
			return echo.NewHTTPError(http.StatusBadRequest, "An email address is required")
		case errors.Is(err, registration.ErrNoPendingVerification):
			return echo.NewHTTPError(http.StatusNotFound, "No signup is awaiting verification for this email address")
		default:
			h.logger.Error("resend failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "Something went wrong, please try again later")
		}
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"message": "A new confirmation link is on its way.",
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handlers) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	acct, err := h.auth.Authenticate(req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrNotVerified):
			return echo.NewHTTPError(http.StatusForbidden, "Please verify your email address before signing in")
		case errors.Is(err, auth.ErrInactive):
			return echo.NewHTTPError(http.StatusForbidden, "This account has been deactivated")
		case errors.Is(err, auth.ErrInvalidCredentials):
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid email or password")
		default:
			h.logger.Error("login failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "Something went wrong, please try again later")
		}
	}

	return h.issueTokens(c, acct)
}

type socialCallbackRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// SocialCallback finishes an identity provider flow. The gateway in front of
// this endpoint has already exchanged and verified the provider token.
func (h *Handlers) SocialCallback(c echo.Context) error {
	var req socialCallbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	acct, err := h.auth.LoginExternal(req.Email, req.DisplayName)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInactive):
			return echo.NewHTTPError(http.StatusForbidden, "This account has been deactivated")
		case errors.Is(err, auth.ErrInvalidCredentials):
			return echo.NewHTTPError(http.StatusBadRequest, "A valid email address is required")
		default:
			h.logger.Error("social login failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "Something went wrong, please try again later")
		}
	}

	return h.issueTokens(c, acct)
}

func (h *Handlers) issueTokens(c echo.Context, acct *account.Account) error {
	accessToken, err := h.jwt.GenerateToken(acct.ID)
	if err != nil {
		h.logger.Error("failed to issue access token", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Something went wrong, please try again later")
	}

	refreshToken, err := h.jwt.GenerateRefreshToken(acct.ID)
	if err != nil {
		h.logger.Error("failed to issue refresh token", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Something went wrong, please try again later")
	}

	session.Login(c, h.sessions, acct.ID)

	return c.JSON(http.StatusOK, map[string]any{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    h.jwt.GetAccessExpirySeconds(),
		"account":       accountResponse(acct),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handlers) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	accessToken, refreshToken, err := h.jwt.RefreshToken(req.RefreshToken)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid refresh token")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    h.jwt.GetAccessExpirySeconds(),
	})
}

func (h *Handlers) Logout(c echo.Context) error {
	session.Logout(c, h.sessions)
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) Me(c echo.Context) error {
	accountID := jwtmw.GetAccountID(c)

	acct, err := h.accounts.FindByID(accountID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Account not found")
		}
		h.logger.Error("account lookup failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Something went wrong, please try again later")
	}

	return c.JSON(http.StatusOK, accountResponse(acct))
}

func (h *Handlers) Sessions(c echo.Context) error {
	accountID := jwtmw.GetAccountID(c)

	sessions, err := h.sessions.Sessions(accountID, "")
	if err != nil {
		h.logger.Error("session listing failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "Something went wrong, please try again later")
	}

	out := make([]map[string]any, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, map[string]any{
			"id":         s.ID,
			"device":     session.DeviceLabel(s.UserAgent),
			"ip_address": s.IPAddress,
			"created_at": s.CreatedAt,
			"last_used":  s.LastUsed,
			"current":    s.Current,
		})
	}

	return c.JSON(http.StatusOK, map[string]any{"sessions": out})
}

func (h *Handlers) RevokeSession(c echo.Context) error {
	accountID := jwtmw.GetAccountID(c)

	sessionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid session id")
	}

	if err := h.sessions.Revoke(accountID, uint(sessionID)); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Session not found")
	}

	return c.NoContent(http.StatusNoContent)
}

func accountResponse(acct *account.Account) map[string]any {
	var verifiedAt *time.Time
	if acct.EmailVerifiedAt != nil {
		verifiedAt = acct.EmailVerifiedAt
	}

	return map[string]any{
		"id":                acct.ID,
		"email":             acct.Email,
		"display_name":      acct.DisplayName,
		"role":              acct.Role,
		"is_active":         acct.IsActive,
		"email_verified_at": verifiedAt,
		"created_at":        acct.CreatedAt,
	}
}
