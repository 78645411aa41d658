package server

import (
	"context"

	"github.com/kumadojo/api/session"
	"go.uber.org/fx"
)

func NewProvider() fx.Option {
	return fx.Options(
		fx.Provide(New),
		fx.Provide(NewHandlers),
		fx.Invoke(func(srv *Server, handlers *Handlers, manager *session.Manager) {
			handlers.RegisterRoutes(srv.Echo(), manager)
		}),
		fx.Invoke(func(lc fx.Lifecycle, srv *Server) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					go srv.Start()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					return srv.Shutdown(ctx)
				},
			})
		}),
	)
}
