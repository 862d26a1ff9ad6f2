package cli

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mrz1836/cadena/internal/config"
	"github.com/mrz1836/cadena/internal/metrics"
	"github.com/mrz1836/cadena/internal/output"
)

type cmdContextKey struct{}

// CommandContext holds dependencies for CLI commands.
type CommandContext struct {
	Cfg     *config.Config
	Log     *zap.Logger
	Fmt     *output.Formatter
	Metrics *metrics.Metrics
}

// NewCommandContext creates a context with the given dependencies.
// A nil logger is replaced with a no-op logger.
func NewCommandContext(cfg *config.Config, log *zap.Logger, fmt *output.Formatter) *CommandContext {
	if log == nil {
		log = zap.NewNop()
	}
	return &CommandContext{
		Cfg: cfg,
		Log: log,
		Fmt: fmt,
	}
}

// WithMetrics sets the metrics registry.
func (c *CommandContext) WithMetrics(m *metrics.Metrics) *CommandContext {
	c.Metrics = m
	return c
}

// SetCmdContext attaches cc to the command's context.
func SetCmdContext(cmd *cobra.Command, cc *CommandContext) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	cmd.SetContext(context.WithValue(base, cmdContextKey{}, cc))
}

// GetCmdContext returns the CommandContext attached to cmd, or nil.
func GetCmdContext(cmd *cobra.Command) *CommandContext {
	ctx := cmd.Context()
	if ctx == nil {
		return nil
	}
	cc, _ := ctx.Value(cmdContextKey{}).(*CommandContext)
	return cc
}
