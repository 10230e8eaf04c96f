package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/revsearch/internal/client/config"
	"github.com/dmitrijs2005/revsearch/internal/logging"
)

// errReported marks failures whose user message was already printed.
var errReported = errors.New("reported")

// AppFactory builds the App once flags are parsed.
type AppFactory func(ctx context.Context, cfg *config.Config, log logging.Logger, in io.Reader, out io.Writer) (*App, error)

type root struct {
	flags   config.Flags
	factory AppFactory
	in      io.Reader
	out     io.Writer
	errOut  io.Writer

	cfg *config.Config
	log logging.Logger
	zap *logging.ZapLogger
}

// NewRootCommand builds the command tree. A nil factory uses NewApp.
func NewRootCommand(factory AppFactory, in io.Reader, out, errOut io.Writer) *cobra.Command {
	if factory == nil {
		factory = NewApp
	}
	r := &root{factory: factory, in: in, out: out, errOut: errOut}

	cmd := &cobra.Command{
		Use:           "revsearch",
		Short:         "Reverse image search across several engines",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return r.setup(cmd)
		},
	}
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	r.flags.Register(cmd.PersistentFlags())

	cmd.AddCommand(
		r.registerCmd(),
		r.searchCmd(),
		r.historyCmd(),
		r.plansCmd(),
		r.subscribeCmd(),
		r.restoreCmd(),
		r.statusCmd(),
	)
	return cmd
}

func (r *root) setup(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(cmd.Flags(), &r.flags)
	if err != nil {
		return err
	}
	r.cfg = cfg

	zl, err := logging.NewZapProduction(cfg.Log.Level)
	if err != nil {
		return err
	}
	r.zap = zl
	r.log = zl.With("cmd", cmd.Name())
	return nil
}

// withApp opens the App for one command run and closes it afterwards.
func (r *root) withApp(fn func(ctx context.Context, a *App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := r.factory(ctx, r.cfg, r.log, r.in, r.out)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				r.log.Warn(ctx, "close failed", "error", err)
			}
			if r.zap != nil {
				_ = r.zap.Sync()
			}
		}()
		return fn(ctx, a, args)
	}
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	cmd := NewRootCommand(nil, os.Stdin, os.Stdout, os.Stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if !errors.Is(err, errReported) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return 1
}
