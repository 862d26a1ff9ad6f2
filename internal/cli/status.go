package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/cadena/internal/output"
	"github.com/mrz1836/cadena/internal/state"
	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// statusSaved shows the saved snapshot without contacting the provider.
	statusSaved bool
)

// connectCmd requests account access.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect an account and read the contract",
	Long: `Ask the configured provider for account access, bind the contract to the
returned account and read the current balance and message.

Connecting again after switching accounts in the wallet rebinds the
contract to the new account.`,
	Example: `  cadena connect
  cadena connect --yes -o json`,
	Args: cobra.NoArgs,
	RunE: runConnect,
}

// statusCmd shows the contract balance and message.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the contract balance and message",
	Long: `Read the contract balance and message from the chain.

Reading does not need a connected account. When no provider is configured
or the node cannot be reached, the values saved by the last successful read
are shown instead and marked as saved.`,
	Example: `  cadena status
  cadena status --saved
  cadena status -o json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

// balanceCmd shows the contract balance.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the contract balance",
	Long:  `Read the shared balance held by the contract.`,
	Example: `  cadena balance
  cadena balance -o json`,
	Args: cobra.NoArgs,
	RunE: runBalance,
}

// balanceResult is the output of the balance command.
type balanceResult struct {
	Contract string `json:"contract"`
	Balance  string `json:"balance"`
	Saved    bool   `json:"saved,omitempty"`
}

// RenderText implements output.TextRenderer.
func (b balanceResult) RenderText(w io.Writer) error {
	suffix := ""
	if b.Saved {
		suffix = " (saved)"
	}
	_, err := fmt.Fprintf(w, "%s ETH%s\n", b.Balance, suffix)
	return err
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	connectCmd.GroupID = groupContract
	statusCmd.GroupID = groupContract
	balanceCmd.GroupID = groupContract
	rootCmd.AddCommand(connectCmd, statusCmd, balanceCmd)

	statusCmd.Flags().BoolVar(&statusSaved, "saved", false, "show saved values without contacting the provider")
}

func runConnect(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandDeadline(cmd, readTimeout)
	defer cancel()

	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.coord.Connect(ctx)
	if err != nil {
		return err
	}
	return s.cc.Fmt.Print(output.NewConnectView(res))
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandDeadline(cmd, readTimeout)
	defer cancel()

	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	snap, saved, err := s.read(ctx, statusSaved)
	if err != nil {
		return err
	}
	view := output.NewStatusView(s.desc.Address, s.account(), snap)
	view.Saved = saved
	return s.cc.Fmt.Print(view)
}

func runBalance(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandDeadline(cmd, readTimeout)
	defer cancel()

	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	snap, saved, err := s.read(ctx, false)
	if err != nil {
		return err
	}
	if !snap.BalanceKnown {
		return cadenaerr.WithSuggestion(cadenaerr.ErrNotFound, "the balance has not been read yet")
	}
	return s.cc.Fmt.Print(balanceResult{
		Contract: s.desc.Address.Hex(),
		Balance:  snap.Balance.String(),
		Saved:    saved,
	})
}

// read refreshes both fields, falling back to the saved snapshot when the
// chain is out of reach. The bool reports whether saved values are shown.
func (s *session) read(ctx context.Context, savedOnly bool) (state.Snapshot, bool, error) {
	if savedOnly || !s.hasProvider() {
		saved := s.loadSaved()
		if saved == nil {
			if !s.hasProvider() {
				return state.Snapshot{}, false, cadenaerr.ErrNoProvider
			}
			return state.Snapshot{}, false, cadenaerr.WithSuggestion(cadenaerr.ErrNotFound, "no saved state yet; run 'cadena status' while online")
		}
		return saved.Snapshot, true, nil
	}

	snap, err := s.coord.Refresh(ctx)
	if err == nil {
		return snap, false, nil
	}
	if isOffline(err) && (snap.BalanceKnown || snap.MessageKnown) {
		output.Warnf(stderr, "showing saved values: %v", err)
		return snap, true, nil
	}
	return snap, false, err
}
