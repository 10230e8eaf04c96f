// Command searchd runs the fake search and billing backend for local
// development of revsearch.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/dmitrijs2005/revsearch/internal/logging"
	"github.com/dmitrijs2005/revsearch/internal/server/fakebackend"
)

type configPath string

func main() {
	fs := pflag.NewFlagSet("searchd", pflag.ExitOnError)
	path := fs.StringP("config", "c", "", "path to a YAML or JSON config file")
	_ = fs.Parse(os.Args[1:])

	fx.New(
		fx.Supply(configPath(*path)),
		fx.Provide(
			loadConfig,
			newLogger,
			func(l *logging.SlogLogger) logging.Logger { return l },
			func(l *logging.SlogLogger) *slog.Logger { return l.Slog() },
		),
		fx.WithLogger(func(l *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: l}
		}),
		fakebackend.Module,
	).Run()
}

func loadConfig(p configPath) (*fakebackend.Config, error) {
	return fakebackend.LoadConfig(string(p))
}

func newLogger(cfg *fakebackend.Config) (*logging.SlogLogger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(os.Stdout, level), nil
}
