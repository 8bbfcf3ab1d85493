// Package cli implements the fte command line.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/osqazi/AI-Employee-FTE/internal/config"
	"github.com/osqazi/AI-Employee-FTE/internal/logging"
	"github.com/osqazi/AI-Employee-FTE/internal/vault"
	"github.com/osqazi/AI-Employee-FTE/internal/version"
)

// annotationLogFile marks commands that own the terminal; their diagnostic
// log goes to <vault>/Logs/fte.log instead of stderr.
const annotationLogFile = "log-file"

// rootOptions holds the persistent flags and what PersistentPreRunE builds
// from them.
type rootOptions struct {
	dir      string
	vault    string
	logLevel string
	verbose  bool

	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCmd builds the fte command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "fte",
		Short: "Personal automation task engine",
		Long: `fte turns incoming signals into tasks, gates sensitive ones behind human
approval, executes the rest with a bounded reasoning loop, and keeps the
long-running workers alive. Run without arguments to open the dashboard.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Annotations:   map[string]string{annotationLogFile: "true"},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd, opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.dir, "dir", ".", "Directory containing fte.yaml and .env")
	flags.StringVar(&opts.vault, "vault", "", "Vault directory (overrides config and "+config.EnvVault+")")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.BoolVar(&opts.verbose, "verbose", false, "Shorthand for --log-level debug")

	cmd.AddCommand(
		newInitCmd(opts),
		newIngestCmd(opts),
		newClassifyCmd(opts),
		newApproveCmd(opts),
		newRejectCmd(opts),
		newRequeueCmd(opts),
		newCycleCmd(opts),
		newRunCmd(opts),
		newSuperviseCmd(opts),
		newStartCmd(opts),
		newStatusCmd(opts),
		newDashboardCmd(opts),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}

// setup loads .env and fte.yaml, applies the flags and builds the logger.
func (o *rootOptions) setup(cmd *cobra.Command) error {
	dir, err := filepath.Abs(o.dir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", o.dir, err)
	}
	if err := config.LoadDotEnv(dir); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.Load(dir, func(c *config.Config) {
		if o.vault != "" {
			c.Vault = o.vault
		}
		if o.logLevel != "" {
			c.Logging.Level = o.logLevel
		}
		if o.verbose {
			c.Logging.Level = "debug"
		}
	})
	if err != nil {
		return err
	}
	o.cfg = cfg

	var paths []string
	if cmd.Annotations[annotationLogFile] != "" {
		logs := vault.New(cfg.Vault).Logs()
		if err := os.MkdirAll(logs, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", logs, err)
		}
		paths = []string{filepath.Join(logs, "fte.log")}
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, paths...)
	if err != nil {
		return err
	}
	o.logger = logger
	logger.Debug("configuration loaded",
		zap.String("dir", dir),
		zap.String("vault", cfg.Vault),
		zap.String("store", cfg.Store.Backend),
		zap.String("engine", strings.TrimSpace(cfg.Engine.Name+" "+cfg.Engine.Binary)))
	return nil
}
