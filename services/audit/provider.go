package audit

import (
	"github.com/kumadojo/api/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvideRecorder(db *gorm.DB, logger *logging.Service) *Recorder {
	return NewRecorder(db, logger)
}

var Module = fx.Options(
	fx.Provide(ProvideRecorder),
)
