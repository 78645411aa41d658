package mail

import (
	"github.com/kumadojo/api/config"
	"github.com/kumadojo/api/services/logging"
	"go.uber.org/fx"
)

func ProvideMailService(cfg *config.Config, logger *logging.Service) (*Service, error) {
	return NewService(&cfg.Mail, cfg.App.Name, logger)
}

var Module = fx.Options(
	fx.Provide(ProvideMailService),
)
