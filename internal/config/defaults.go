package config

import (
	"time"

	"github.com/mrz1836/cadena/internal/contract"
)

// DefaultRPCURL is a local development node.
const DefaultRPCURL = "http://127.0.0.1:8545"

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    "~/.cadena",
		Contract: ContractConfig{
			Address: contract.DefaultAddress,
		},
		Provider: ProviderConfig{
			Kind:      ProviderBridge,
			RPC:       DefaultRPCURL,
			KeyFile:   "key.age",
			RateLimit: 10,
			RateBurst: 20,
		},
		Transactions: TransactionsConfig{
			ConfirmTimeout: 2 * time.Minute,
			PollInterval:   2 * time.Second,
			ReceiptRetries: 3,
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Color:         "auto",
			Verbose:       false,
		},
		Logging: LoggingConfig{
			Level:      "error",
			File:       "cadena.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}
