// Package config provides configuration management for cadena.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrz1836/cadena/internal/fileutil"
	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

// Provider kinds.
const (
	ProviderBridge = "bridge" // wallet exposed over JSON-RPC
	ProviderLocal  = "local"  // encrypted key file signed in-process
	ProviderNone   = "none"
)

// Config represents the application configuration.
type Config struct {
	Version      int                `yaml:"version"`
	Home         string             `yaml:"home"`
	Contract     ContractConfig     `yaml:"contract"`
	Provider     ProviderConfig     `yaml:"provider"`
	Transactions TransactionsConfig `yaml:"transactions"`
	Output       OutputConfig       `yaml:"output"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`

	// Warnings collects non-fatal problems found while applying overrides.
	Warnings []string `yaml:"-"`
}

// ContractConfig identifies the shared wallet contract.
type ContractConfig struct {
	Address string `yaml:"address"`
	ABIFile string `yaml:"abi_file,omitempty"` // empty uses the embedded interface
}

// ProviderConfig selects and configures the signing agent.
type ProviderConfig struct {
	Kind            string  `yaml:"kind"`
	RPC             string  `yaml:"rpc"`
	KeyFile         string  `yaml:"key_file"`
	DerivationIndex uint32  `yaml:"derivation_index"`
	ChainID         int64   `yaml:"chain_id,omitempty"` // 0 asks the node
	RateLimit       float64 `yaml:"rate_limit"`
	RateBurst       int     `yaml:"rate_burst"`
}

// TransactionsConfig bounds the wait for confirmation.
type TransactionsConfig struct {
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	ReceiptRetries int           `yaml:"receipt_retries"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
	Color         string `yaml:"color"`
	Verbose       bool   `yaml:"verbose"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// MetricsConfig defines metrics export settings.
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"` // node_exporter textfile path; empty disables
}

// Load reads configuration from the specified file. Missing keys keep their
// defaults.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, cadenaerr.WithCause(cadenaerr.ErrConfigNotFound, err)
		}
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, cadenaerr.WithCause(cadenaerr.ErrConfigInvalid, err)
	}

	return cfg, nil
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return fileutil.WriteAtomic(path, data, 0o600)
}

// Validate checks values that would otherwise fail later at use.
func (c *Config) Validate() error {
	invalid := func(key, value, valid string) error {
		return cadenaerr.WithDetails(cadenaerr.ErrConfigInvalid, map[string]string{
			"key": key, "value": value, "valid": valid,
		})
	}

	switch c.Provider.Kind {
	case ProviderBridge, ProviderLocal, ProviderNone:
	default:
		return invalid("provider.kind", c.Provider.Kind, "bridge, local, or none")
	}
	if c.Provider.Kind != ProviderNone && c.Provider.RPC == "" {
		return invalid("provider.rpc", "", "a JSON-RPC URL")
	}
	if err := ValidateRPCURL(c.Provider.RPC); err != nil && !errors.Is(err, ErrInsecureRPCURL) {
		return cadenaerr.WithCause(invalid("provider.rpc", c.Provider.RPC, "an http(s) or ws(s) URL"), err)
	}
	if c.Transactions.ConfirmTimeout <= 0 {
		return invalid("transactions.confirm_timeout", c.Transactions.ConfirmTimeout.String(), "a positive duration")
	}
	if c.Transactions.PollInterval <= 0 {
		return invalid("transactions.poll_interval", c.Transactions.PollInterval.String(), "a positive duration")
	}
	if c.Transactions.ReceiptRetries < 0 {
		return invalid("transactions.receipt_retries", fmt.Sprint(c.Transactions.ReceiptRetries), "zero or more")
	}
	return nil
}

// Path returns the default config file path.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// ExpandPath resolves a leading "~/" against the user's home directory.
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// StatePath returns the path of the saved contract state.
func (c *Config) StatePath() string {
	return filepath.Join(ExpandPath(c.Home), "state.json")
}

// KeyFilePath returns the key file path. Relative paths live under Home.
func (c *Config) KeyFilePath() string {
	return c.resolve(c.Provider.KeyFile)
}

// LogFilePath returns the log file path, or "" when file logging is off.
// Relative paths live under Home.
func (c *Config) LogFilePath() string {
	if c.Logging.File == "" {
		return ""
	}
	return c.resolve(c.Logging.File)
}

func (c *Config) resolve(path string) string {
	path = ExpandPath(path)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(ExpandPath(c.Home), path)
}

// DefaultHome returns the default cadena home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".cadena"
	}
	return filepath.Join(home, ".cadena")
}
