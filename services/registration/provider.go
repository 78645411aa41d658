package registration

import (
	"context"

	"github.com/kumadojo/api/config"
	"github.com/kumadojo/api/services/account"
	"github.com/kumadojo/api/services/audit"
	"github.com/kumadojo/api/services/auth"
	"github.com/kumadojo/api/services/captcha"
	"github.com/kumadojo/api/services/logging"
	"github.com/kumadojo/api/services/mail"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideTokenIssuer(cfg *config.Config) *TokenIssuer {
	return NewTokenIssuer(cfg.Registration.TokenLength, cfg.Registration.TokenTTL)
}

func ProvidePendingStore(db *gorm.DB, logger *logging.Service) *PendingStore {
	return NewPendingStore(db, logger)
}

func ProvideService(
	cfg *config.Config,
	db *gorm.DB,
	pending *PendingStore,
	accounts *account.Store,
	issuer *TokenIssuer,
	hasher *auth.Hasher,
	verifier captcha.Verifier,
	mailer *mail.Service,
	recorder *audit.Recorder,
	logger *logging.Service,
) *Service {
	return NewService(cfg, db, pending, accounts, issuer, hasher, verifier, mailer, recorder, logger)
}

func ProvideSweeper(lc fx.Lifecycle, cfg *config.Config, store *PendingStore, logger *logging.Service) *Sweeper {
	sweeper := NewSweeper(store, cfg.Registration.SweepInterval, logger)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sweeper.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sweeper.Stop()
			return nil
		},
	})

	return sweeper
}

var Module = fx.Options(
	fx.Provide(ProvideTokenIssuer),
	fx.Provide(ProvidePendingStore),
	fx.Provide(ProvideService),
	fx.Provide(ProvideSweeper),
	fx.Invoke(func(*Sweeper) {}),
)
