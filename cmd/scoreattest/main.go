// Command scoreattest verifies game scores, proves the attested result and
// serves both over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MJE43/score-attest/internal/config"
	"github.com/MJE43/score-attest/internal/logging"
)

// errNotVerified makes the process exit 1 without an error message
var errNotVerified = errors.New("score not verified")

type globalFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

// app carries state shared by all commands
type app struct {
	flags  globalFlags
	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:           "scoreattest",
		Short:         "Verify game scores and prove the attested result",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}

	root.PersistentFlags().StringVar(&a.flags.ConfigPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&a.flags.LogLevel, "log-level", "", "log level: debug|info|warn|error")
	root.PersistentFlags().StringVar(&a.flags.LogFormat, "log-format", "", "log format: json|console")

	root.AddCommand(
		newExecuteCmd(a),
		newProveCmd(a),
		newVKeyCmd(a),
		newCheckCmd(a),
		newServeCmd(a),
		newTokenCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.flags.ConfigPath)
	if err != nil {
		return err
	}
	if a.flags.LogLevel != "" {
		cfg.Log.Level = a.flags.LogLevel
	}
	if a.flags.LogFormat != "" {
		cfg.Log.Format = a.flags.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, errNotVerified) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
