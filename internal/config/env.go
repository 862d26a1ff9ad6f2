package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Environment variable names.
const (
	EnvHome           = "CADENA_HOME"
	EnvRPC            = "CADENA_RPC"
	EnvProvider       = "CADENA_PROVIDER"
	EnvKeyFile        = "CADENA_KEY_FILE"
	EnvContract       = "CADENA_CONTRACT"
	EnvOutputFormat   = "CADENA_OUTPUT_FORMAT"
	EnvVerbose        = "CADENA_VERBOSE"
	EnvLogLevel       = "CADENA_LOG_LEVEL"
	EnvConfirmTimeout = "CADENA_CONFIRM_TIMEOUT"
	EnvNoColor        = "NO_COLOR"
)

// ApplyEnvironment applies environment variable overrides to the configuration.
//
//nolint:gocognit,gocyclo // Environment variable overrides require sequential checks
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}

	if v := os.Getenv(EnvRPC); v != "" {
		cfg.Provider.RPC = SanitizeURL(v)
		if err := ValidateRPCURL(cfg.Provider.RPC); err != nil {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("%s: %v", EnvRPC, err))
		}
	}

	if v := os.Getenv(EnvProvider); v != "" {
		switch kind := strings.ToLower(strings.TrimSpace(v)); kind {
		case ProviderBridge, ProviderLocal, ProviderNone:
			cfg.Provider.Kind = kind
		default:
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("%s: unknown provider %q ignored", EnvProvider, v))
		}
	}

	if v := os.Getenv(EnvKeyFile); v != "" {
		cfg.Provider.KeyFile = v
	}

	if v := os.Getenv(EnvContract); v != "" {
		cfg.Contract.Address = strings.TrimSpace(v)
	}

	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}

	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Output.Verbose = parseBool(v)
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	// CADENA_CONFIRM_TIMEOUT accepts a duration ("90s") or whole seconds
	if v := os.Getenv(EnvConfirmTimeout); v != "" {
		if d, ok := parseDuration(v); ok {
			cfg.Transactions.ConfirmTimeout = d
		}
	}

	// NO_COLOR disables colored output
	if _, ok := os.LookupEnv(EnvNoColor); ok {
		cfg.Output.Color = "never"
	}
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

func parseDuration(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, secs > 0
	}
	d, err := time.ParseDuration(s)
	return d, err == nil && d > 0
}

// SanitizeURL trims whitespace and drops control and space characters, which
// show up when RPC URLs are pasted from documents.
func SanitizeURL(url string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(url))
}

// ErrInsecureRPCURL is returned for plain-text RPC endpoints on remote hosts.
var ErrInsecureRPCURL = errors.New("RPC URL uses an unencrypted scheme for a remote host")

// ValidateRPCURL accepts http(s) and ws(s) endpoints. Unencrypted schemes are
// only accepted for loopback hosts. An empty URL is valid.
func ValidateRPCURL(raw string) error {
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid RPC URL: %w", err)
	}

	switch u.Scheme {
	case "https", "wss":
		return nil
	case "http", "ws":
		if isLoopback(u.Hostname()) {
			return nil
		}
		return ErrInsecureRPCURL
	default:
		return fmt.Errorf("unsupported RPC URL scheme %q", u.Scheme) //nolint:err113 // scheme in message
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
