package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrz1836/cadena/internal/config"
	"github.com/mrz1836/cadena/internal/output"
	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

// configCmd is the parent command for configuration operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and modify cadena configuration settings.`,
}

// configInitCmd initializes the configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long: `Create a default configuration file at ~/.cadena/config.yaml.

An existing configuration file is only replaced with --force.`,
	Example: `  cadena config init
  cadena config init --force`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipValidation: "true"},
	RunE:        runConfigInit,
}

// configShowCmd shows the effective configuration.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display every configuration key with its effective value, after
environment overrides are applied.`,
	Example: `  cadena config show
  cadena config show -o json`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipValidation: "true"},
	RunE:        runConfigShow,
}

// configGetCmd gets one configuration value.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Long: `Print the effective value of one configuration key.

Keys use dot notation, for example provider.rpc or transactions.confirm_timeout.`,
	Example: `  cadena config get provider.rpc
  cadena config get contract.address`,
	Args:              cobra.ExactArgs(1),
	Annotations:       map[string]string{skipValidation: "true"},
	ValidArgsFunction: completeConfigKeys,
	RunE:              runConfigGet,
}

// configSetCmd sets one configuration value in the config file.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Validate a value and write it to the configuration file.

Environment overrides are not written to the file.`,
	Example: `  cadena config set provider.kind local
  cadena config set provider.rpc https://node.example.org
  cadena config set transactions.confirm_timeout 5m`,
	Args:              cobra.ExactArgs(2),
	Annotations:       map[string]string{skipValidation: "true"},
	ValidArgsFunction: completeConfigKeys,
	RunE:              runConfigSet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var configForce bool

// configEntry is one key of config show.
type configEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// configListing is the output of config show.
type configListing struct {
	Path    string        `json:"path"`
	Entries []configEntry `json:"entries"`
}

// RenderText implements output.TextRenderer.
func (l configListing) RenderText(w io.Writer) error {
	out(w, "Configuration: %s\n\n", l.Path)
	t := output.NewTable("KEY", "VALUE")
	for _, e := range l.Entries {
		value := e.Value
		if value == "" {
			value = "(not set)"
		}
		t.AddRow(e.Key, value)
	}
	return t.Render(w)
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	configCmd.GroupID = groupConfig
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configGetCmd, configSetCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite existing configuration")
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	configPath := config.Path(cfg.Home)

	if _, err := os.Stat(configPath); err == nil && !configForce {
		return cadenaerr.WithSuggestion(
			cadenaerr.ErrGeneral,
			fmt.Sprintf("configuration already exists at %s. Use --force to overwrite.", configPath),
		)
	}

	defaults := config.Defaults()
	defaults.Home = cfg.Home
	if err := config.Save(defaults, configPath); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if err := output.FormatSuccess(formatter.Writer(), "Configuration initialized at "+configPath, formatter.Format()); err != nil {
		return err
	}
	if formatter.IsJSON() {
		return nil
	}

	w := formatter.Writer()
	outln(w)
	output.Info(w, "Edit this file or use 'cadena config set' to configure:")
	outln(w, "  - provider.kind: bridge (wallet over JSON-RPC), local (key file) or none")
	outln(w, "  - provider.rpc: the wallet bridge or node endpoint")
	outln(w, "  - contract.address: the shared wallet contract")
	outln(w, "  - logging.level: off, error, info or debug")
	return nil
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	listing := configListing{Path: config.Path(cfg.Home)}
	for _, key := range config.Keys() {
		value, err := cfg.Get(key)
		if err != nil {
			return err
		}
		listing.Entries = append(listing.Entries, configEntry{Key: key, Value: value})
	}
	return formatter.Print(listing)
}

func runConfigGet(_ *cobra.Command, args []string) error {
	value, err := cfg.Get(args[0])
	if err != nil {
		return err
	}
	if formatter.IsJSON() {
		return formatter.Print(configEntry{Key: args[0], Value: value})
	}
	return formatter.Println(value)
}

func runConfigSet(_ *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	configPath := config.Path(cfg.Home)

	fileCfg, err := config.Load(configPath)
	switch {
	case errors.Is(err, cadenaerr.ErrConfigNotFound):
		fileCfg = config.Defaults()
		fileCfg.Home = cfg.Home
	case err != nil:
		return err
	}

	if err := fileCfg.Set(key, value); err != nil {
		return err
	}
	if err := fileCfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(fileCfg, configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	stored, _ := fileCfg.Get(key)
	if formatter.IsJSON() {
		return formatter.Print(configEntry{Key: key, Value: stored})
	}
	output.Successf(formatter.Writer(), "Set %s = %s", key, stored)
	return nil
}

func completeConfigKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return config.Keys(), cobra.ShellCompDirectiveNoFileComp
}
