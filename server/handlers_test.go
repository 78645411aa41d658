package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/kumadojo/api/services/account"
	"github.com/kumadojo/api/services/audit"
	"github.com/kumadojo/api/services/auth"
	"github.com/kumadojo/api/services/captcha"
	"github.com/kumadojo/api/services/jwt"
	"github.com/kumadojo/api/services/logging"
	"github.com/kumadojo/api/services/registration"
	"github.com/kumadojo/api/session"
	"github.com/kumadojo/api/testutils"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	echo   *echo.Echo
	mailer *testutils.RecordingMailer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := testutils.GetTestConfig()
	cfg.RateLimit.Enabled = false

	db := testutils.SetupTestDB(t,
		&account.Account{},
		&registration.PendingAccount{},
		&session.MemberSession{},
		&audit.Entry{},
	)
	logger := logging.NewNop()

	accounts := account.NewStore(db, logger)
	pending := registration.NewPendingStore(db, logger)
	issuer := registration.NewTokenIssuer(cfg.Registration.TokenLength, cfg.Registration.TokenTTL)
	hasher := auth.NewHasher(cfg, logger)
	mailer := &testutils.RecordingMailer{}
	recorder := audit.NewRecorder(db, logger)

	registrationSvc := registration.NewService(cfg, db, pending, accounts, issuer, hasher, captcha.PassthroughVerifier{}, mailer, recorder, logger)
	authSvc := auth.NewService(cfg, accounts, hasher, logger)
	jwtSvc := jwt.NewService(cfg, logger)

	manager, err := session.ProvideManager(cfg, db)
	require.NoError(t, err)
	sessions := session.NewService(db, manager)

	srv := New(cfg, logger)
	handlers := NewHandlers(cfg, registrationSvc, authSvc, accounts, jwtSvc, sessions, logger)
	handlers.RegisterRoutes(srv.Echo(), manager)

	return &testServer{echo: srv.Echo(), mailer: mailer}
}

func (ts *testServer) request(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	ts.echo.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) verificationToken(t *testing.T) string {
	t.Helper()

	last := ts.mailer.Last()
	require.NotNil(t, last, "expected a verification mail")

	parsed, err := url.Parse(last.VerificationURL)
	require.NoError(t, err)
	return parsed.Query().Get("token")
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

const signupBody = `{"email":"student@kumadojo.test","display_name":"Student","password":"Password123"}`

func TestSignupVerifyLoginFlow(t *testing.T) {
	ts := newTestServer(t)

	// Signup stages the account and mails a link.
	rec := ts.request(http.MethodPost, "/api/auth/signup", signupBody, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, decodeBody(t, rec), "message")

	// Logging in before verifying is refused with a clear hint.
	rec = ts.request(http.MethodPost, "/api/auth/login", `{"email":"student@kumadojo.test","password":"Password123"}`, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	// The mailed link verifies the account.
	token := ts.verificationToken(t)
	rec = ts.request(http.MethodGet, "/api/auth/verify?token="+token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Login now succeeds and returns a token pair.
	rec = ts.request(http.MethodPost, "/api/auth/login", `{"email":"student@kumadojo.test","password":"Password123"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	accessToken, _ := body["access_token"].(string)
	require.NotEmpty(t, accessToken)
	require.NotEmpty(t, body["refresh_token"])

	// The access token opens the protected profile route.
	rec = ts.request(http.MethodGet, "/api/auth/me", "", map[string]string{
		"Authorization": "Bearer " + accessToken,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeBody(t, rec)
	assert.Equal(t, "student@kumadojo.test", me["email"])
	assert.Equal(t, "user", me["role"])
}

func TestSignup_ValidationError(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(http.MethodPost, "/api/auth/signup", `{"email":"","display_name":"","password":""}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignup_DuplicateEmail(t *testing.T) {
	ts := newTestServer(t)

	ts.request(http.MethodPost, "/api/auth/signup", signupBody, nil)
	token := ts.verificationToken(t)
	ts.request(http.MethodGet, "/api/auth/verify?token="+token, "", nil)

	rec := ts.request(http.MethodPost, "/api/auth/signup", signupBody, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestVerify_InvalidToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(http.MethodGet, "/api/auth/verify?token=bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.request(http.MethodGet, "/api/auth/verify", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerify_TokenSingleUse(t *testing.T) {
	ts := newTestServer(t)

	ts.request(http.MethodPost, "/api/auth/signup", signupBody, nil)
	token := ts.verificationToken(t)

	rec := ts.request(http.MethodGet, "/api/auth/verify?token="+token, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(http.MethodGet, "/api/auth/verify?token="+token, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResend(t *testing.T) {
	ts := newTestServer(t)

	t.Run("nothing pending", func(t *testing.T) {
		rec := ts.request(http.MethodPost, "/api/auth/resend", `{"email":"nobody@kumadojo.test"}`, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("reissues a working link", func(t *testing.T) {
		ts.request(http.MethodPost, "/api/auth/signup", signupBody, nil)
		staleToken := ts.verificationToken(t)

		rec := ts.request(http.MethodPost, "/api/auth/resend", `{"email":"student@kumadojo.test"}`, nil)
		require.Equal(t, http.StatusAccepted, rec.Code)

		freshToken := ts.verificationToken(t)
		require.NotEqual(t, staleToken, freshToken)

		rec = ts.request(http.MethodGet, "/api/auth/verify?token="+staleToken, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = ts.request(http.MethodGet, "/api/auth/verify?token="+freshToken, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestLogin_InvalidCredentials(t *testing.T) {
	ts := newTestServer(t)

	ts.request(http.MethodPost, "/api/auth/signup", signupBody, nil)
	token := ts.verificationToken(t)
	ts.request(http.MethodGet, "/api/auth/verify?token="+token, "", nil)

	rec := ts.request(http.MethodPost, "/api/auth/login", `{"email":"student@kumadojo.test","password":"WrongPass1"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.request(http.MethodPost, "/api/auth/login", `{"email":"unknown@kumadojo.test","password":"Password123"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "unknown email and wrong password are indistinguishable")
}

func TestRefresh(t *testing.T) {
	ts := newTestServer(t)

	ts.request(http.MethodPost, "/api/auth/signup", signupBody, nil)
	token := ts.verificationToken(t)
	ts.request(http.MethodGet, "/api/auth/verify?token="+token, "", nil)

	rec := ts.request(http.MethodPost, "/api/auth/login", `{"email":"student@kumadojo.test","password":"Password123"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	refreshToken, _ := decodeBody(t, rec)["refresh_token"].(string)
	require.NotEmpty(t, refreshToken)

	rec = ts.request(http.MethodPost, "/api/auth/refresh", `{"refresh_token":"`+refreshToken+`"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decodeBody(t, rec)["access_token"])

	// An access token cannot be used to refresh.
	accessToken, _ := decodeBody(t, rec)["access_token"].(string)
	rec = ts.request(http.MethodPost, "/api/auth/refresh", `{"refresh_token":"`+accessToken+`"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSocialCallback(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(http.MethodPost, "/api/auth/social/callback", `{"email":"social@kumadojo.test","display_name":"Social Student"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	require.NotEmpty(t, body["access_token"])

	acct, _ := body["account"].(map[string]any)
	require.NotNil(t, acct)
	assert.Equal(t, "social@kumadojo.test", acct["email"])
	assert.NotNil(t, acct["email_verified_at"], "provider-attested accounts are born verified")
}

func TestMe_RequiresToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
