package provider

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/cadena/internal/chain"
)

// TxSummary describes a transaction awaiting the user's signature.
type TxSummary struct {
	ChainID  *big.Int
	From     common.Address
	To       common.Address
	Value    *big.Int
	Data     []byte
	Gas      uint64
	GasPrice *big.Int
}

// Approver asks the user to allow account access and each signature.
// Returning false declines the request.
type Approver interface {
	ApproveConnect(ctx context.Context, account common.Address) (bool, error)
	ApproveTransaction(ctx context.Context, tx TxSummary) (bool, error)
}

// AutoApprove approves every request. Used with --yes.
type AutoApprove struct{}

// ApproveConnect always approves.
func (AutoApprove) ApproveConnect(context.Context, common.Address) (bool, error) {
	return true, nil
}

// ApproveTransaction always approves.
func (AutoApprove) ApproveTransaction(context.Context, TxSummary) (bool, error) {
	return true, nil
}

// TerminalApprover prompts on a terminal and reads a y/N answer.
type TerminalApprover struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalApprover creates an approver reading answers from in and
// writing prompts to out.
func NewTerminalApprover(in io.Reader, out io.Writer) *TerminalApprover {
	return &TerminalApprover{in: bufio.NewReader(in), out: out}
}

// ApproveConnect asks whether account may be exposed.
func (a *TerminalApprover) ApproveConnect(ctx context.Context, account common.Address) (bool, error) {
	return a.ask(ctx, fmt.Sprintf("Connect account %s? [y/N]: ", account.Hex()))
}

// ApproveTransaction shows tx and asks whether to sign it.
func (a *TerminalApprover) ApproveTransaction(ctx context.Context, tx TxSummary) (bool, error) {
	var b strings.Builder
	b.WriteString("\nTransaction to sign:\n")
	fmt.Fprintf(&b, "  From:      %s\n", tx.From.Hex())
	fmt.Fprintf(&b, "  To:        %s\n", tx.To.Hex())
	fmt.Fprintf(&b, "  Value:     %s\n", chain.AmountFromBaseUnits(tx.Value).String())
	fmt.Fprintf(&b, "  Data:      %d bytes\n", len(tx.Data))
	if tx.Gas > 0 {
		fmt.Fprintf(&b, "  Gas limit: %d\n", tx.Gas)
	}
	if tx.GasPrice != nil {
		fmt.Fprintf(&b, "  Gas price: %s wei\n", tx.GasPrice.String())
	}
	if tx.ChainID != nil {
		fmt.Fprintf(&b, "  Chain ID:  %s\n", tx.ChainID.String())
	}
	b.WriteString("Sign and broadcast? [y/N]: ")

	return a.ask(ctx, b.String())
}

func (a *TerminalApprover) ask(ctx context.Context, prompt string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if _, err := io.WriteString(a.out, prompt); err != nil {
		return false, fmt.Errorf("writing prompt: %w", err)
	}

	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, fmt.Errorf("reading answer: %w", err)
	}

	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
