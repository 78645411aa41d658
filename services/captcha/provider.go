package captcha

import (
	"github.com/kumadojo/api/config"
	"github.com/kumadojo/api/services/logging"
	"go.uber.org/fx"
)

func ProvideVerifier(cfg *config.Config, logger *logging.Service) Verifier {
	if !cfg.Captcha.Enabled {
		return PassthroughVerifier{}
	}
	return NewHTTPVerifier(cfg, logger)
}

var Module = fx.Options(
	fx.Provide(ProvideVerifier),
)
