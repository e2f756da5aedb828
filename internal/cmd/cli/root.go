package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/V4T54L/aep-ledger/internal/adapter/repository/ledger"
	"github.com/V4T54L/aep-ledger/internal/pkg/config"
	"github.com/V4T54L/aep-ledger/internal/pkg/logger"
)

// env is what every subcommand runs with once flags and environment have
// been resolved.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
}

func (e *env) enumerator() *ledger.Enumerator {
	return ledger.NewEnumerator(e.cfg.LedgerBasePath, e.cfg.LedgerName)
}

func (e *env) reader() *ledger.Reader {
	return ledger.NewReader(e.logger)
}

// NewRoot constructs the aep root command with the inspect, list, merge and
// append subcommands. Configuration comes from the environment and is
// overridden by the persistent flags.
func NewRoot() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "aep",
		Short:         "AEP ledger command line interface",
		Long:          "Inspect, list, merge and append to AEP event ledgers.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("ledger-base-path") {
				cfg.LedgerBasePath, _ = flags.GetString("ledger-base-path")
			}
			if flags.Changed("ledger-name") {
				cfg.LedgerName, _ = flags.GetString("ledger-name")
			}
			if flags.Changed("log-level") {
				cfg.LogLevel, _ = flags.GetString("log-level")
			}
			e.cfg = cfg
			e.logger = logger.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
			return nil
		},
	}
	root.PersistentFlags().String("ledger-base-path", "", "Base directory for ledger files (default $AEP_LEDGER_BASE_PATH or ~/.aep)")
	root.PersistentFlags().String("ledger-name", "", "Name of the ledger to operate on (default $AEP_LEDGER_NAME or \"default\")")
	root.PersistentFlags().String("log-level", "", "Log level: debug|info|warn|error (default $LOG_LEVEL or warn)")

	root.AddCommand(newInspectCommand(e))
	root.AddCommand(newListCommand(e))
	root.AddCommand(newMergeCommand(e))
	root.AddCommand(newAppendCommand(e))
	return root
}

// Execute runs the root command with args and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	root := NewRoot()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		root.PrintErrln("Error:", err)
		return 1
	}
	return 0
}
