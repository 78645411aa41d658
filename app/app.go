package app

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kumadojo/api/config"
	"github.com/kumadojo/api/database"
	"github.com/kumadojo/api/server"
	"github.com/kumadojo/api/services/account"
	"github.com/kumadojo/api/services/audit"
	"github.com/kumadojo/api/services/auth"
	"github.com/kumadojo/api/services/captcha"
	"github.com/kumadojo/api/services/jwt"
	"github.com/kumadojo/api/services/logging"
	"github.com/kumadojo/api/services/mail"
	"github.com/kumadojo/api/services/registration"
	"github.com/kumadojo/api/session"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

// App assembles every service into one fx graph. The binary in cmd/kumadojo
// is a thin wrapper around Run.
type App struct {
	fx     *fx.App
	config *config.Config
	logger *logging.Service
}

// New builds the application, loading configuration from the environment when
// cfg is nil.
func New(cfg *config.Config) *App {
	app := &App{config: cfg}

	app.fx = fx.New(
		config.NewProvider(cfg),
		fx.Supply(database.WithModels(
			&account.Account{},
			&registration.PendingAccount{},
			&session.MemberSession{},
			&audit.Entry{},
		)),
		logging.Module,
		database.Module,
		mail.Module,
		account.Module,
		auth.Module,
		captcha.Module,
		audit.Module,
		jwt.Module,
		registration.Module,
		session.Module,
		server.NewProvider(),
		fx.Populate(&app.config, &app.logger),
		fx.WithLogger(func(logger *logging.Service) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Logger()}
		}),
	)

	return app
}

func (a *App) Start(ctx context.Context) error {
	return a.fx.Start(ctx)
}

func (a *App) Stop(ctx context.Context) error {
	return a.fx.Stop(ctx)
}

// Run starts the application and blocks until an interrupt or termination
// signal arrives, then shuts down gracefully.
func (a *App) Run() {
	if err := a.Start(context.Background()); err != nil {
		log.Fatalf("failed to start application: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	a.logger.Info("shutdown signal received, stopping")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.Stop(ctx); err != nil {
		log.Printf("failed to stop application gracefully: %v", err)
	}

	_ = a.logger.Sync()
}

func (a *App) Config() *config.Config {
	return a.config
}

func (a *App) Logger() *logging.Service {
	return a.logger
}
