package registration

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/kumadojo/api/config"
	"github.com/kumadojo/api/services/account"
	"github.com/kumadojo/api/services/auth"
	"github.com/kumadojo/api/services/logging"
	"github.com/kumadojo/api/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type auditEvent struct {
	Level   string
	Message string
	Context map[string]any
}

type recordingAudit struct {
	Events []auditEvent
}

func (r *recordingAudit) Record(level, message string, context map[string]any) {
	r.Events = append(r.Events, auditEvent{Level: level, Message: message, Context: context})
}

type testEnv struct {
	cfg      *config.Config
	db       *gorm.DB
	pending  *PendingStore
	accounts *account.Store
	hasher   *auth.Hasher
	mailer   *testutils.RecordingMailer
	captcha  *testutils.StaticCaptchaVerifier
	audit    *recordingAudit
	svc      *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := testutils.GetTestConfig()
	db := testutils.SetupTestDB(t, &account.Account{}, &PendingAccount{})
	logger := logging.NewNop()

	env := &testEnv{
		cfg:      cfg,
		db:       db,
		pending:  NewPendingStore(db, logger),
		accounts: account.NewStore(db, logger),
		hasher:   auth.NewHasher(cfg, logger),
		mailer:   &testutils.RecordingMailer{},
		captcha:  &testutils.StaticCaptchaVerifier{OK: true},
		audit:    &recordingAudit{},
	}
	issuer := NewTokenIssuer(cfg.Registration.TokenLength, cfg.Registration.TokenTTL)
	env.svc = NewService(cfg, db, env.pending, env.accounts, issuer, env.hasher, env.captcha, env.mailer, env.audit, logger)

	return env
}

func validSignup() SignupRequest {
	return SignupRequest{
		Email:       "student@kumadojo.test",
		DisplayName: "Student",
		Password:    testutils.TestPasswords.Valid,
	}
}

// tokenFromMail pulls the verification token out of the last dispatched mail.
func tokenFromMail(t *testing.T, mailer *testutils.RecordingMailer) string {
	t.Helper()

	last := mailer.Last()
	require.NotNil(t, last, "expected a verification mail to have been sent")

	parsed, err := url.Parse(last.VerificationURL)
	require.NoError(t, err)

	token := parsed.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

func TestService_Signup_StagesPendingAccount(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.svc.Signup(context.Background(), validSignup()))

	pending, err := env.pending.FindByEmail("student@kumadojo.test")
	require.NoError(t, err)
	assert.Equal(t, "Student", pending.DisplayName)
	assert.WithinDuration(t, time.Now().Add(env.cfg.Registration.TokenTTL), pending.ExpiresAt, 5*time.Second)

	// Staged credentials are hashed, never plaintext.
	assert.NotEqual(t, testutils.TestPasswords.Valid, pending.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(pending.PasswordHash), []byte(testutils.TestPasswords.Valid)))

	// No durable account yet.
	_, err = env.accounts.FindByEmail("student@kumadojo.test")
	assert.ErrorIs(t, err, account.ErrNotFound)

	last := env.mailer.Last()
	require.NotNil(t, last)
	assert.Equal(t, "student@kumadojo.test", last.Email)
	assert.Contains(t, last.VerificationURL, env.cfg.App.URL+"/verify-email?token=")
	assert.Equal(t, env.cfg.Registration.TokenTTL, last.Expiry)
}

func TestService_Signup_NormalizesEmail(t *testing.T) {
	env := newTestEnv(t)

	req := validSignup()
	req.Email = "  Student@KumaDojo.TEST "
	require.NoError(t, env.svc.Signup(context.Background(), req))

	_, err := env.pending.FindByEmail("student@kumadojo.test")
	require.NoError(t, err)
}

func TestService_Signup_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SignupRequest)
	}{
		{"missing email", func(r *SignupRequest) { r.Email = "" }},
		{"missing display name", func(r *SignupRequest) { r.DisplayName = "   " }},
		{"missing password", func(r *SignupRequest) { r.Password = "" }},
		{"malformed email", func(r *SignupRequest) { r.Email = "not-an-email" }},
		{"weak password", func(r *SignupRequest) { r.Password = testutils.TestPasswords.TooShort }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			req := validSignup()
			tt.mutate(&req)

			err := env.svc.Signup(context.Background(), req)
			assert.ErrorIs(t, err, ErrValidation)

			// Nothing is staged and no mail goes out on a rejected signup.
			assert.Nil(t, env.mailer.Last())
			assert.NotEmpty(t, env.audit.Events, "rejections are audited")
		})
	}
}

func TestService_Signup_CaptchaFailed(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Captcha.Enabled = true

	req := validSignup()

	t.Run("missing token", func(t *testing.T) {
		err := env.svc.Signup(context.Background(), req)
		assert.ErrorIs(t, err, ErrCaptchaFailed)
	})

	t.Run("rejected token", func(t *testing.T) {
		env.captcha.OK = false
		req.CaptchaToken = "challenge-token"
		err := env.svc.Signup(context.Background(), req)
		assert.ErrorIs(t, err, ErrCaptchaFailed)
	})

	t.Run("verifier unavailable", func(t *testing.T) {
		env.captcha.OK = true
		env.captcha.Err = errors.New("connection refused")
		req.CaptchaToken = "challenge-token"
		err := env.svc.Signup(context.Background(), req)
		assert.ErrorIs(t, err, ErrCaptchaFailed)
	})

	_, err := env.pending.FindByEmail("student@kumadojo.test")
	assert.ErrorIs(t, err, ErrPendingNotFound, "no staging happens before captcha passes")
}

func TestService_Signup_EmailAlreadyRegistered(t *testing.T) {
	env := newTestEnv(t)

	now := time.Now()
	hash := env.hasher.MustHashPassword(testutils.TestPasswords.Valid)
	_, err := env.accounts.Create(account.CreateParams{
		Email:           "student@kumadojo.test",
		DisplayName:     "Student",
		PasswordHash:    &hash,
		Role:            account.RoleUser,
		IsActive:        true,
		EmailVerifiedAt: &now,
	})
	require.NoError(t, err)

	err = env.svc.Signup(context.Background(), validSignup())
	assert.ErrorIs(t, err, ErrEmailAlreadyRegistered)
	assert.Nil(t, env.mailer.Last())
	assert.NotEmpty(t, env.audit.Events)
}

func TestService_Signup_RepeatReplacesPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.svc.Signup(ctx, validSignup()))
	firstToken := tokenFromMail(t, env.mailer)

	req := validSignup()
	req.DisplayName = "Returning Student"
	require.NoError(t, env.svc.Signup(ctx, req))
	secondToken := tokenFromMail(t, env.mailer)

	require.NotEqual(t, firstToken, secondToken)

	var count int64
	require.NoError(t, env.db.Model(&PendingAccount{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "at most one pending record per email")

	// The earlier link is dead, the fresh one still works.
	_, err := env.svc.Confirm(ctx, firstToken)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)

	accountID, err := env.svc.Confirm(ctx, secondToken)
	require.NoError(t, err)

	acct, err := env.accounts.FindByID(accountID)
	require.NoError(t, err)
	assert.Equal(t, "Returning Student", acct.DisplayName)
}

func TestService_Signup_SelfHealsLegacyUnverifiedAccount(t *testing.T) {
	env := newTestEnv(t)

	hash := env.hasher.MustHashPassword(testutils.TestPasswords.Valid)
	legacy, err := env.accounts.Create(account.CreateParams{
		Email:        "student@kumadojo.test",
		DisplayName:  "Old Import",
		PasswordHash: &hash,
		Role:         account.RoleUser,
		IsActive:     true,
	})
	require.NoError(t, err)
	require.False(t, legacy.IsVerified())

	require.NoError(t, env.svc.Signup(context.Background(), validSignup()))

	// The orphaned account is gone and its email index slot is free again.
	_, err = env.accounts.FindByEmail("student@kumadojo.test")
	assert.ErrorIs(t, err, account.ErrNotFound)

	_, err = env.pending.FindByEmail("student@kumadojo.test")
	require.NoError(t, err)
}

func TestService_Signup_MailFailureIsNonFatal(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.Fail = true
	env.mailer.Error = errors.New("smtp: connection refused")

	require.NoError(t, env.svc.Signup(context.Background(), validSignup()))

	// The staged record survives, so a later resend can deliver the link.
	_, err := env.pending.FindByEmail("student@kumadojo.test")
	require.NoError(t, err)

	env.mailer.Fail = false
	require.NoError(t, env.svc.Resend(context.Background(), "student@kumadojo.test"))

	token := tokenFromMail(t, env.mailer)
	accountID, err := env.svc.Confirm(context.Background(), token)
	require.NoError(t, err)
	assert.NotZero(t, accountID)
}

func TestService_Confirm_PromotesPendingAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.svc.Signup(ctx, validSignup()))
	token := tokenFromMail(t, env.mailer)

	accountID, err := env.svc.Confirm(ctx, token)
	require.NoError(t, err)

	acct, err := env.accounts.FindByID(accountID)
	require.NoError(t, err)
	assert.Equal(t, "student@kumadojo.test", acct.Email)
	assert.Equal(t, account.RoleUser, acct.Role)
	assert.True(t, acct.IsActive)
	assert.True(t, acct.IsVerified())
	require.NotNil(t, acct.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*acct.PasswordHash), []byte(testutils.TestPasswords.Valid)))

	// The staging record was consumed.
	_, err = env.pending.FindByEmail("student@kumadojo.test")
	assert.ErrorIs(t, err, ErrPendingNotFound)
}

func TestService_Confirm_InvalidToken(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Confirm(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)

	_, err = env.svc.Confirm(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestService_Confirm_TokenIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.svc.Signup(ctx, validSignup()))
	token := tokenFromMail(t, env.mailer)

	_, err := env.svc.Confirm(ctx, token)
	require.NoError(t, err)

	_, err = env.svc.Confirm(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)

	// The first promotion is untouched by the replayed confirm.
	acct, err := env.accounts.FindByEmail("student@kumadojo.test")
	require.NoError(t, err)
	assert.True(t, acct.IsVerified())
}

func TestService_Confirm_ExpiredToken(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.pending.Upsert("student@kumadojo.test", "Student", "hashed", "stale-token", time.Now().Add(-time.Minute))
	require.NoError(t, err)

	_, err = env.svc.Confirm(context.Background(), "stale-token")
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)

	_, err = env.accounts.FindByEmail("student@kumadojo.test")
	assert.ErrorIs(t, err, account.ErrNotFound, "an expired link never creates an account")
}

func TestService_Confirm_ReplacesLegacyUnverifiedAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hash := env.hasher.MustHashPassword("LegacyPass1")
	_, err := env.accounts.Create(account.CreateParams{
		Email:        "student@kumadojo.test",
		DisplayName:  "Old Import",
		PasswordHash: &hash,
		Role:         account.RoleUser,
		IsActive:     true,
	})
	require.NoError(t, err)

	// Resend stages a fresh pending record from the legacy row.
	require.NoError(t, env.svc.Resend(ctx, "student@kumadojo.test"))
	token := tokenFromMail(t, env.mailer)

	accountID, err := env.svc.Confirm(ctx, token)
	require.NoError(t, err)

	var count int64
	require.NoError(t, env.db.Model(&account.Account{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "exactly one account remains for the email")

	acct, err := env.accounts.FindByID(accountID)
	require.NoError(t, err)
	assert.True(t, acct.IsVerified())
}

func TestService_Resend_ReissuesToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.svc.Signup(ctx, validSignup()))
	firstToken := tokenFromMail(t, env.mailer)

	require.NoError(t, env.svc.Resend(ctx, "student@kumadojo.test"))
	secondToken := tokenFromMail(t, env.mailer)

	require.NotEqual(t, firstToken, secondToken)

	_, err := env.svc.Confirm(ctx, firstToken)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)

	_, err = env.svc.Confirm(ctx, secondToken)
	require.NoError(t, err)
}

func TestService_Resend_RecoversExpiredPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.pending.Upsert("student@kumadojo.test", "Student", "hashed", "stale-token", time.Now().Add(-time.Minute))
	require.NoError(t, err)

	require.NoError(t, env.svc.Resend(ctx, "student@kumadojo.test"))

	token := tokenFromMail(t, env.mailer)
	found, err := env.pending.FindByToken(token)
	require.NoError(t, err)
	assert.True(t, found.ExpiresAt.After(time.Now()))
}

func TestService_Resend_NoPendingVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("unknown email", func(t *testing.T) {
		err := env.svc.Resend(ctx, "nobody@kumadojo.test")
		assert.ErrorIs(t, err, ErrNoPendingVerification)
	})

	t.Run("already verified account", func(t *testing.T) {
		now := time.Now()
		hash := env.hasher.MustHashPassword(testutils.TestPasswords.Valid)
		_, err := env.accounts.Create(account.CreateParams{
			Email:           "verified@kumadojo.test",
			DisplayName:     "Verified",
			PasswordHash:    &hash,
			Role:            account.RoleUser,
			IsActive:        true,
			EmailVerifiedAt: &now,
		})
		require.NoError(t, err)

		err = env.svc.Resend(ctx, "verified@kumadojo.test")
		assert.ErrorIs(t, err, ErrNoPendingVerification)
	})

	t.Run("empty email", func(t *testing.T) {
		err := env.svc.Resend(ctx, "")
		assert.ErrorIs(t, err, ErrValidation)
	})

	assert.Nil(t, env.mailer.Last(), "no mail goes out when nothing awaits verification")
}

func TestService_Signup_AuditTrail(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.svc.Signup(context.Background(), validSignup()))
	require.NotEmpty(t, env.audit.Events)

	last := env.audit.Events[len(env.audit.Events)-1]
	assert.Equal(t, "info", last.Level)
	assert.Equal(t, "student@kumadojo.test", last.Context["email"])
}
