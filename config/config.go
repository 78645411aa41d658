package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App          AppConfig          `envPrefix:"APP_"`
	Server       ServerConfig       `envPrefix:"SERVER_"`
	Log          LogConfig          `envPrefix:"LOG_"`
	Database     DatabaseConfig     `envPrefix:"DATABASE_"`
	Mail         MailConfig         `envPrefix:"MAIL_"`
	Auth         AuthConfig         `envPrefix:"AUTH_"`
	Registration RegistrationConfig `envPrefix:"REGISTRATION_"`
	Captcha      CaptchaConfig      `envPrefix:"CAPTCHA_"`
	JWT          JWTConfig          `envPrefix:"JWT_"`
	Session      SessionConfig      `envPrefix:"SESSION_"`
	RateLimit    RateLimitConfig    `envPrefix:"RATELIMIT_"`
}

type AppConfig struct {
	Name string `env:"NAME" envDefault:"Kuma Dojo"`
	URL  string `env:"URL" envDefault:"http://localhost:8080"`
}

type ServerConfig struct {
	Host string `env:"HOST" envDefault:"localhost"`
	Port string `env:"PORT" envDefault:"8080"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	Output string `env:"OUTPUT" envDefault:"stdout"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"kumadojo.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

type MailConfig struct {
	Host         string `env:"HOST" envDefault:"localhost"`
	Port         int    `env:"PORT" envDefault:"587"`
	Username     string `env:"USERNAME"`
	Password     string `env:"PASSWORD"`
	Encryption   string `env:"ENCRYPTION" envDefault:"starttls"`
	FromAddress  string `env:"FROM_ADDRESS"`
	FromName     string `env:"FROM_NAME" envDefault:"Kuma Dojo"`
	TemplatesDir string `env:"TEMPLATES_DIR" envDefault:"templates/mail"`
}

type AuthConfig struct {
	MinLength      int  `env:"MIN_LENGTH" envDefault:"8"`
	RequireUpper   bool `env:"REQUIRE_UPPER" envDefault:"true"`
	RequireLower   bool `env:"REQUIRE_LOWER" envDefault:"true"`
	RequireNumber  bool `env:"REQUIRE_NUMBER" envDefault:"true"`
	RequireSpecial bool `env:"REQUIRE_SPECIAL" envDefault:"false"`
	BcryptCost     int  `env:"BCRYPT_COST" envDefault:"10"`
}

type RegistrationConfig struct {
	TokenLength   int           `env:"TOKEN_LENGTH" envDefault:"32"`
	TokenTTL      time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`
	DefaultRole   string        `env:"DEFAULT_ROLE" envDefault:"user"`
}

type CaptchaConfig struct {
	Enabled   bool          `env:"ENABLED" envDefault:"false"`
	VerifyURL string        `env:"VERIFY_URL" envDefault:"https://www.google.com/recaptcha/api/siteverify"`
	Secret    string        `env:"SECRET"`
	Timeout   time.Duration `env:"TIMEOUT" envDefault:"5s"`
}

type JWTConfig struct {
	SecretKey     string        `env:"SECRET_KEY"`
	Issuer        string        `env:"ISSUER" envDefault:"kumadojo"`
	AccessExpiry  time.Duration `env:"ACCESS_EXPIRY" envDefault:"15m"`
	RefreshExpiry time.Duration `env:"REFRESH_EXPIRY" envDefault:"168h"`
}

type SessionConfig struct {
	CookieName string        `env:"COOKIE_NAME" envDefault:"kumadojo_session"`
	Lifetime   time.Duration `env:"LIFETIME" envDefault:"720h"`
	Secure     bool          `env:"SECURE" envDefault:"false"`
	SameSite   string        `env:"SAME_SITE" envDefault:"lax"`
	Store      string        `env:"STORE" envDefault:"database"`
}

type RateLimitConfig struct {
	Enabled  bool          `env:"ENABLED" envDefault:"true"`
	Requests int           `env:"REQUESTS" envDefault:"10"`
	Window   time.Duration `env:"WINDOW" envDefault:"1m"`
}

func LoadConfig(cfg *Config) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	if err := env.Parse(cfg); err != nil {
		return err
	}

	return cfg.Validate()
}

func (c *Config) Validate() error {
	if err := ValidateJWTConfig(c.JWT); err != nil {
		return err
	}

	if c.Registration.TokenTTL <= 0 {
		return fmt.Errorf("registration token TTL must be positive")
	}
	if c.Registration.TokenLength < 16 {
		return fmt.Errorf("registration token length must be at least 16 bytes")
	}

	return nil
}

func ValidateJWTConfig(cfg JWTConfig) error {
	if len(cfg.SecretKey) < 32 {
		return fmt.Errorf("JWT secret key must be at least 32 characters long")
	}
	return nil
}
