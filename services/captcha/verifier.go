package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kumadojo/api/config"
	"github.com/kumadojo/api/services/logging"
	"go.uber.org/zap"
)

// Verifier checks a client-supplied challenge token against the captcha
// provider. Signup refuses to stage anything until the token passes.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// HTTPVerifier talks to a reCAPTCHA-compatible siteverify endpoint.
type HTTPVerifier struct {
	config *config.Config
	client *http.Client
	logger *logging.Service
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

func NewHTTPVerifier(cfg *config.Config, logger *logging.Service) *HTTPVerifier {
	return &HTTPVerifier{
		config: cfg,
		client: &http.Client{Timeout: cfg.Captcha.Timeout},
		logger: logger,
	}
}

func (v *HTTPVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	form := url.Values{}
	form.Set("secret", v.config.Captcha.Secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.config.Captcha.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to build captcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("captcha provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("captcha provider returned status %d", resp.StatusCode)
	}

	var result siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("failed to decode captcha response: %w", err)
	}

	if !result.Success {
		v.logger.Warn("captcha rejected", zap.Strings("error_codes", result.ErrorCodes))
	}

	return result.Success, nil
}

// PassthroughVerifier accepts every token. It backs deployments with captcha
// disabled so the orchestrator never needs a nil check.
type PassthroughVerifier struct{}

func (PassthroughVerifier) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	return true, nil
}
