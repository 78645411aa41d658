package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendVerification(email, verificationURL string, expiry time.Duration) error {
	args := m.Called(email, verificationURL, expiry)
	return args.Error(0)
}

// RecordingMailer captures dispatched verification mails so tests can inspect
// the embedded token without a mock expectation per call.
type RecordingMailer struct {
	mu    sync.Mutex
	Sent  []SentMail
	Fail  bool
	Error error
}

type SentMail struct {
	Email           string
	VerificationURL string
	Expiry          time.Duration
}

func (m *RecordingMailer) SendVerification(email, verificationURL string, expiry time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail {
		return m.Error
	}
	m.Sent = append(m.Sent, SentMail{Email: email, VerificationURL: verificationURL, Expiry: expiry})
	return nil
}

func (m *RecordingMailer) Last() *SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Sent) == 0 {
		return nil
	}
	return &m.Sent[len(m.Sent)-1]
}

type MockCaptchaVerifier struct {
	mock.Mock
}

func (m *MockCaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	args := m.Called(ctx, token, remoteIP)
	return args.Bool(0), args.Error(1)
}

// StaticCaptchaVerifier reports a fixed result.
type StaticCaptchaVerifier struct {
	OK  bool
	Err error
}

func (v *StaticCaptchaVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	return v.OK, v.Err
}
