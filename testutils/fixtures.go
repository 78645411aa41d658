package testutils

import (
	"time"

	"github.com/kumadojo/api/config"
	"golang.org/x/crypto/bcrypt"
)

func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name: "Kuma Dojo Test",
			URL:  "http://localhost:8080",
		},
		Auth: config.AuthConfig{
			MinLength:     8,
			RequireUpper:  true,
			RequireLower:  true,
			RequireNumber: true,
			BcryptCost:    bcrypt.MinCost,
		},
		Registration: config.RegistrationConfig{
			TokenLength:   32,
			TokenTTL:      24 * time.Hour,
			SweepInterval: time.Hour,
			DefaultRole:   "user",
		},
		JWT: config.JWTConfig{
			SecretKey:     "test-secret-key-32-chars-long!!!",
			Issuer:        "kumadojo-test",
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 24 * time.Hour,
		},
		Session: config.SessionConfig{
			CookieName: "kumadojo_session",
			Lifetime:   time.Hour,
			SameSite:   "lax",
			Store:      "memory",
		},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			DSN:    ":memory:",
		},
	}
}

var TestPasswords = struct {
	Valid    string
	TooShort string
	NoUpper  string
	NoNumber string
}{
	Valid:    "Password123",
	TooShort: "Pass1",
	NoUpper:  "password123",
	NoNumber: "Password",
}
