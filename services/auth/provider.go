package auth

import (
	"github.com/kumadojo/api/config"
	"github.com/kumadojo/api/services/account"
	"github.com/kumadojo/api/services/logging"
	"go.uber.org/fx"
)

func ProvideHasher(cfg *config.Config, logger *logging.Service) *Hasher {
	return NewHasher(cfg, logger)
}

func ProvideService(cfg *config.Config, accounts *account.Store, hasher *Hasher, logger *logging.Service) *Service {
	return NewService(cfg, accounts, hasher, logger)
}

var Module = fx.Options(
	fx.Provide(ProvideHasher),
	fx.Provide(ProvideService),
)
