// Package cmd implements the gochallenge command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/firasghr/GoChallengeEngine/config"
	"github.com/firasghr/GoChallengeEngine/logger"
)

// rootOptions is shared by every subcommand.  cfg and log are set by the
// root PersistentPreRunE.
type rootOptions struct {
	configFile string
	logLevel   string

	cfg *config.Config
	log *logger.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "gochallenge",
		Short:         "HTTP client that answers anti-bot challenges",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configFile, "config", "c", "", "config file, JSON or YAML (GCE_* environment variables override it)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(newFetchCmd(opts), newSolveCmd(opts), newListCmd())
	return root
}

func (o *rootOptions) init(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	lopts := cfg.LoggerOptions()
	lopts.Output = cmd.ErrOrStderr()
	log, err := logger.New(lopts)
	if err != nil {
		return err
	}
	o.cfg, o.log = cfg, log
	log.Zap().Debug("configuration loaded", zap.String("file", o.configFile), zap.Int("solve_depth", cfg.SolveDepth),
		zap.String("evaluator", cfg.Evaluator), zap.String("profile", cfg.Profile))
	return nil
}

// Execute runs the command line and exits non-zero on error.  SIGINT and
// SIGTERM cancel the running command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
