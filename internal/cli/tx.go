package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/cadena/internal/coordinator"
	"github.com/mrz1836/cadena/internal/output"
	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// withdrawTo pays the withdrawal to another address.
	withdrawTo string
)

// depositCmd sends value into the contract.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var depositCmd = &cobra.Command{
	Use:   "deposit <amount>",
	Short: "Deposit ETH into the shared balance",
	Long: `Send the given amount of ETH from the connected account into the
contract. The amount is a plain decimal with at most 18 fractional digits
and must be greater than zero.

The command waits until the transaction is confirmed or fails and then
refreshes the balance.`,
	Example: `  cadena deposit 0.5
  cadena deposit 1 --yes -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runDeposit,
}

// withdrawCmd takes value out of the contract.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var withdrawCmd = &cobra.Command{
	Use:   "withdraw <amount>",
	Short: "Withdraw ETH from the shared balance",
	Long: `Withdraw the given amount of ETH from the contract. The funds go to the
connected account unless --to names another recipient.

A withdrawal larger than the shared balance is rejected by the contract
and reported as reverted.`,
	Example: `  cadena withdraw 0.25
  cadena withdraw 1 --to 0x00000000000000000000000000000000000a11ce`,
	Args: cobra.ExactArgs(1),
	RunE: runWithdraw,
}

// messageCmd is the parent command for the stored message.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var messageCmd = &cobra.Command{
	Use:   "message",
	Short: "Read or set the stored message",
	Long:  `Read or replace the short message stored in the contract.`,
}

// messageSetCmd replaces the stored message.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var messageSetCmd = &cobra.Command{
	Use:   "set <text>",
	Short: "Replace the stored message",
	Long: `Store a new message in the contract. The message is UTF-8 text of at
most 32 bytes and may be empty.`,
	Example: `  cadena message set "hello"
  cadena message set ""`,
	Args: cobra.ExactArgs(1),
	RunE: runMessageSet,
}

// messageShowCmd reads the stored message.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var messageShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored message",
	Long:  `Read the message currently stored in the contract.`,
	Example: `  cadena message show
  cadena message show -o json`,
	Args: cobra.NoArgs,
	RunE: runMessageShow,
}

// messageResult is the output of message show.
type messageResult struct {
	Contract string `json:"contract"`
	Message  string `json:"message"`
	Saved    bool   `json:"saved,omitempty"`
}

// RenderText implements output.TextRenderer.
func (m messageResult) RenderText(w io.Writer) error {
	if m.Saved {
		outln(w, m.Message, "(saved)")
		return nil
	}
	outln(w, m.Message)
	return nil
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	depositCmd.GroupID = groupContract
	withdrawCmd.GroupID = groupContract
	messageCmd.GroupID = groupContract
	rootCmd.AddCommand(depositCmd, withdrawCmd, messageCmd)
	messageCmd.AddCommand(messageSetCmd, messageShowCmd)

	withdrawCmd.Flags().StringVar(&withdrawTo, "to", "", "recipient address (default: the connected account)")
}

func runDeposit(cmd *cobra.Command, args []string) error {
	return runTransaction(cmd, func(ctx context.Context, c *coordinator.Coordinator) (*coordinator.Result, error) {
		return c.Deposit(ctx, args[0])
	})
}

func runWithdraw(cmd *cobra.Command, args []string) error {
	return runTransaction(cmd, func(ctx context.Context, c *coordinator.Coordinator) (*coordinator.Result, error) {
		if withdrawTo != "" {
			return c.WithdrawTo(ctx, withdrawTo, args[0])
		}
		return c.Withdraw(ctx, args[0])
	})
}

func runMessageSet(cmd *cobra.Command, args []string) error {
	return runTransaction(cmd, func(ctx context.Context, c *coordinator.Coordinator) (*coordinator.Result, error) {
		return c.SetMessage(ctx, args[0])
	})
}

func runMessageShow(cmd *cobra.Command, _ []string) error {
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
	if !snap.MessageKnown {
		return cadenaerr.WithSuggestion(cadenaerr.ErrNotFound, "the message has not been read yet")
	}
	return s.cc.Fmt.Print(messageResult{
		Contract: s.desc.Address.Hex(),
		Message:  snap.Message.String(),
		Saved:    saved,
	})
}

type transactFunc func(ctx context.Context, c *coordinator.Coordinator) (*coordinator.Result, error)

// runTransaction connects, runs one write and prints its result. The
// result is printed even when the write failed.
func runTransaction(cmd *cobra.Command, fn transactFunc) error {
	ctx, cancel := commandDeadline(cmd, writeBudget(cfg.Transactions.ConfirmTimeout))
	defer cancel()

	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.connectForWrite(ctx); err != nil {
		return err
	}

	res, err := fn(ctx, s.coord)
	if res != nil {
		if perr := s.cc.Fmt.Print(output.NewResultView(res, s.coord.Cache().Snapshot())); perr != nil && err == nil {
			return perr
		}
	}
	return err
}
