package fakebackend

import (
	"context"

	"go.uber.org/fx"

	"github.com/dmitrijs2005/revsearch/internal/logging"
)

// Module provides the State and Server and runs the server for the
// lifetime of the fx application. It needs *Config and logging.Logger.
var Module = fx.Module("fakebackend",
	fx.Provide(
		NewState,
		NewServer,
	),
	fx.Invoke(startServer),
)

func startServer(lc fx.Lifecycle, shutdowner fx.Shutdowner, s *Server, log logging.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := s.Listen(); err != nil {
				return err
			}
			go func() {
				if err := s.Serve(context.Background()); err != nil {
					log.Error(context.Background(), "server stopped", "error", err)
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: s.Shutdown,
	})
}
