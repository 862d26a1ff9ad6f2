// Package cli implements the cadena command-line interface.
//
// Commands share package-level state that is set up in PersistentPreRunE
// and released in PersistentPostRun, the usual shape of a Cobra program.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mrz1836/cadena/internal/config"
	"github.com/mrz1836/cadena/internal/metrics"
	"github.com/mrz1836/cadena/internal/output"
	"github.com/mrz1836/cadena/internal/version"
	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

// Command groups shown in root help.
const (
	groupContract = "contract"
	groupKeys     = "keys"
	groupConfig   = "config"
)

// skipValidation marks commands that must run on an invalid configuration
// so the user can repair it.
const skipValidation = "cadena/skip-validation"

var (
	// Global flags
	homeDir      string
	outputFormat string
	verbose      bool
	assumeYes    bool

	// Global state initialized in PersistentPreRunE
	cfg       *config.Config
	logger    *zap.Logger
	formatter *output.Formatter
	registry  *metrics.Metrics

	build       version.Build
	enrichOnce  sync.Once
	stderr      io.Writer = os.Stderr
	stdinReader io.Reader = os.Stdin
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "cadena",
	Short: "Client for a shared-balance wallet contract",
	Long: `Cadena talks to a single shared wallet contract: anyone may deposit,
withdraw, or set the stored 32-byte message.

Requests are signed by a wallet bridge reached over JSON-RPC or by a local
key file encrypted with a passphrase. Every write is tracked until it is
confirmed or fails, and the cached balance and message are refreshed once
it confirms.`,
	Example: `  cadena connect
  cadena deposit 0.5
  cadena message set "hello"
  cadena status -o json`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initGlobals(cmd)
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		cleanup()
	},
}

// Execute runs the root command with the given build information.
func Execute(b version.Build) error {
	build = b
	rootCmd.Version = b.String()
	enrichOnce.Do(func() {
		walkCommands(rootCmd, listSubcommands)
		appendExitCodes(rootCmd)
	})

	err := rootCmd.Execute()
	if err != nil {
		format := output.FormatText
		if formatter != nil {
			format = formatter.Format()
		}
		_ = output.FormatError(stderr, err, format)
		return err
	}
	return nil
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	return cadenaerr.ExitCode(err)
}

// initGlobals loads configuration and builds the logger, formatter and
// metrics registry for the command being run.
func initGlobals(cmd *cobra.Command) error {
	home := homeDir
	if home == "" {
		home = os.Getenv(config.EnvHome)
	}
	if home == "" {
		home = config.DefaultHome()
	}

	var err error
	cfg, err = config.Load(config.Path(home))
	switch {
	case errors.Is(err, cadenaerr.ErrConfigNotFound):
		cfg = config.Defaults()
	case err != nil && cmd.Annotations[skipValidation] == "":
		return err
	case err != nil:
		cfg = config.Defaults()
	}
	cfg.Home = home

	config.ApplyEnvironment(cfg)

	if verbose {
		cfg.Output.Verbose = true
		cfg.Logging.Level = config.LogLevelDebug.String()
	}
	if outputFormat != "" && outputFormat != string(output.FormatAuto) {
		cfg.Output.DefaultFormat = outputFormat
	}

	if cmd.Annotations[skipValidation] == "" {
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	var console io.Writer
	if cfg.Output.Verbose {
		console = stderr
	}
	logCfg := cfg.Logging
	logCfg.File = cfg.LogFilePath()
	logger, err = config.NewLogger(config.ParseLogLevel(cfg.Logging.Level), logCfg, console)
	if err != nil {
		logger = zap.NewNop()
		output.Warnf(stderr, "logging disabled: %v", err)
	}

	explicit := output.ParseFormat(cfg.Output.DefaultFormat)
	formatter = output.NewFormatter(output.DetectFormat(cmd.OutOrStdout(), explicit), cmd.OutOrStdout())

	registry = metrics.New()

	for _, w := range cfg.Warnings {
		output.Warn(stderr, w)
	}

	SetCmdContext(cmd, NewCommandContext(cfg, logger, formatter).WithMetrics(registry))
	return nil
}

// cleanup flushes the logger and exports metrics.
func cleanup() {
	if registry != nil && cfg != nil && cfg.Metrics.Textfile != "" {
		if err := registry.WriteTextfile(config.ExpandPath(cfg.Metrics.Textfile)); err != nil && logger != nil {
			logger.Warn("writing metrics textfile", zap.Error(err))
		}
	}
	if logger != nil {
		_ = logger.Sync()
	}
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for flag registration
func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: groupContract, Title: "Contract Operations:"},
		&cobra.Group{ID: groupKeys, Title: "Keys & Signing:"},
		&cobra.Group{ID: groupConfig, Title: "Configuration:"},
	)
	rootCmd.SetHelpCommandGroupID(groupConfig)

	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "cadena data directory (default: ~/.cadena)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "auto", "output format: text, json, auto")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "approve connect and signing prompts automatically")
}

// out is a helper for CLI output that ignores write errors.
//
//nolint:errcheck // CLI output writes are intentionally unchecked
func out(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}

// outln is a helper for CLI output with newline.
//
//nolint:errcheck // CLI output writes are intentionally unchecked
func outln(w io.Writer, args ...any) {
	fmt.Fprintln(w, args...)
}
