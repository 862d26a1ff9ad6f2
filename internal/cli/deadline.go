package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// Command budgets. Both include the time a user may take to answer a
// connect or signing prompt.
const (
	// readTimeout bounds connect and read-only commands.
	readTimeout = 2 * time.Minute

	// approvalGrace is added to the confirmation timeout of a write.
	approvalGrace = 2 * time.Minute
)

// commandDeadline derives the context for one run of cmd. It follows the
// command's own cancellation and ends after d; a non-positive d sets no
// deadline.
func commandDeadline(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	if d <= 0 {
		return context.WithCancel(base)
	}
	return context.WithTimeout(base, d)
}

// writeBudget is the deadline of a transaction command: connecting, the
// signing prompt and waiting for confirmation.
func writeBudget(confirmTimeout time.Duration) time.Duration {
	if confirmTimeout <= 0 {
		return 0
	}
	return confirmTimeout + approvalGrace
}
