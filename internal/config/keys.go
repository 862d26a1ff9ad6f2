package config

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

// maxSuggestionDistance is the largest edit distance offered as a
// "did you mean" suggestion.
const maxSuggestionDistance = 3

type key struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) key {
	return key{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func choiceKey(name string, field func(c *Config) *string, valid ...string) key {
	return key{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			for _, ok := range valid {
				if v == ok {
					*field(c) = v
					return nil
				}
			}
			return invalidValue(name, v, strings.Join(valid, ", "))
		},
	}
}

func intKey(name string, field func(c *Config) *int) key {
	return key{
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return invalidValue(name, v, "a non-negative integer")
			}
			*field(c) = n
			return nil
		},
	}
}

func durationKey(name string, field func(c *Config) *time.Duration) key {
	return key{
		get: func(c *Config) string { return field(c).String() },
		set: func(c *Config, v string) error {
			d, ok := parseDuration(v)
			if !ok {
				return invalidValue(name, v, "a positive duration such as 90s or 2m")
			}
			*field(c) = d
			return nil
		},
	}
}

func invalidValue(name, value, valid string) error {
	return cadenaerr.WithDetails(cadenaerr.ErrConfigInvalid, map[string]string{
		"key": name, "value": value, "valid": valid,
	})
}

//nolint:gochecknoglobals // key table
var keys = map[string]key{
	"home":             stringKey(func(c *Config) *string { return &c.Home }),
	"contract.address": stringKey(func(c *Config) *string { return &c.Contract.Address }),
	"contract.abi_file": stringKey(func(c *Config) *string {
		return &c.Contract.ABIFile
	}),
	"provider.kind": choiceKey("provider.kind", func(c *Config) *string { return &c.Provider.Kind },
		ProviderBridge, ProviderLocal, ProviderNone),
	"provider.rpc": {
		get: func(c *Config) string { return c.Provider.RPC },
		set: func(c *Config, v string) error { c.Provider.RPC = SanitizeURL(v); return nil },
	},
	"provider.key_file": stringKey(func(c *Config) *string { return &c.Provider.KeyFile }),
	"provider.derivation_index": {
		get: func(c *Config) string { return strconv.FormatUint(uint64(c.Provider.DerivationIndex), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 31)
			if err != nil {
				return invalidValue("provider.derivation_index", v, "an index below 2^31")
			}
			c.Provider.DerivationIndex = uint32(n)
			return nil
		},
	},
	"provider.chain_id": {
		get: func(c *Config) string { return strconv.FormatInt(c.Provider.ChainID, 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				return invalidValue("provider.chain_id", v, "a chain ID, or 0 to ask the node")
			}
			c.Provider.ChainID = n
			return nil
		},
	},
	"provider.rate_limit": {
		get: func(c *Config) string { return strconv.FormatFloat(c.Provider.RateLimit, 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f < 0 {
				return invalidValue("provider.rate_limit", v, "requests per second, 0 for unlimited")
			}
			c.Provider.RateLimit = f
			return nil
		},
	},
	"provider.rate_burst": intKey("provider.rate_burst", func(c *Config) *int { return &c.Provider.RateBurst }),
	"transactions.confirm_timeout": durationKey("transactions.confirm_timeout", func(c *Config) *time.Duration {
		return &c.Transactions.ConfirmTimeout
	}),
	"transactions.poll_interval": durationKey("transactions.poll_interval", func(c *Config) *time.Duration {
		return &c.Transactions.PollInterval
	}),
	"transactions.receipt_retries": intKey("transactions.receipt_retries", func(c *Config) *int {
		return &c.Transactions.ReceiptRetries
	}),
	"output.default_format": choiceKey("output.default_format", func(c *Config) *string { return &c.Output.DefaultFormat },
		"auto", "text", "json"),
	"output.color": choiceKey("output.color", func(c *Config) *string { return &c.Output.Color },
		"auto", "always", "never"),
	"output.verbose": {
		get: func(c *Config) string { return strconv.FormatBool(c.Output.Verbose) },
		set: func(c *Config, v string) error { c.Output.Verbose = parseBool(v); return nil },
	},
	"logging.level": choiceKey("logging.level", func(c *Config) *string { return &c.Logging.Level },
		"off", "error", "info", "debug"),
	"logging.file":        stringKey(func(c *Config) *string { return &c.Logging.File }),
	"logging.max_size_mb": intKey("logging.max_size_mb", func(c *Config) *int { return &c.Logging.MaxSizeMB }),
	"logging.max_backups": intKey("logging.max_backups", func(c *Config) *int { return &c.Logging.MaxBackups }),
	"metrics.textfile":    stringKey(func(c *Config) *string { return &c.Metrics.Textfile }),
}

// Keys returns every settable key in sorted order.
func Keys() []string {
	names := make([]string, 0, len(keys))
	for name := range keys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the value stored under a dotted key such as "provider.rpc".
func (c *Config) Get(name string) (string, error) {
	k, ok := keys[name]
	if !ok {
		return "", unknownKey(name)
	}
	return k.get(c), nil
}

// Set parses value and stores it under a dotted key.
func (c *Config) Set(name, value string) error {
	k, ok := keys[name]
	if !ok {
		return unknownKey(name)
	}
	return k.set(c, strings.TrimSpace(value))
}

// SuggestKey returns the closest known key to name, or "" if none is close.
func SuggestKey(name string) string {
	best, bestDist := "", maxSuggestionDistance+1
	for _, candidate := range Keys() {
		dist := levenshtein.ComputeDistance(name, candidate)
		if dist < bestDist {
			best, bestDist = candidate, dist
		}
	}
	return best
}

func unknownKey(name string) error {
	err := cadenaerr.WithDetails(cadenaerr.ErrUnknownConfigKey, map[string]string{"key": name})
	if s := SuggestKey(name); s != "" {
		return cadenaerr.WithSuggestion(err, "did you mean '"+s+"'?")
	}
	return cadenaerr.WithSuggestion(err, "run 'cadena config show' to list keys")
}
