package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/cadena/internal/coordinator"
	"github.com/mrz1836/cadena/internal/state"
)

const notLoaded = "(not loaded)"

// StatusView shows the cached contract state.
type StatusView struct {
	Contract  string       `json:"contract"`
	Account   string       `json:"account,omitempty"`
	Balance   *string      `json:"balance"`
	Message   *string      `json:"message"`
	UpdatedAt *time.Time   `json:"updated_at,omitempty"`
	Saved     bool         `json:"saved,omitempty"` // read from the state file, not the chain
	LastError *ErrorDetail `json:"last_error,omitempty"`
}

// NewStatusView builds a StatusView. account may be the zero address when
// no account is connected.
func NewStatusView(contractAddr, account common.Address, snap state.Snapshot) StatusView {
	v := StatusView{Contract: contractAddr.Hex()}
	if account != (common.Address{}) {
		v.Account = account.Hex()
	}
	if snap.BalanceKnown {
		b := snap.Balance.String()
		v.Balance = &b
	}
	if snap.MessageKnown {
		m := snap.Message.String()
		v.Message = &m
	}
	if !snap.UpdatedAt.IsZero() {
		at := snap.UpdatedAt.UTC()
		v.UpdatedAt = &at
	}
	if snap.LastError != nil {
		detail := describeError(snap.LastError)
		if snap.LastErrorKind != "" {
			detail.Kind = snap.LastErrorKind.String()
		}
		v.LastError = &detail
	}
	return v
}

// RenderText implements TextRenderer.
func (v StatusView) RenderText(w io.Writer) error {
	t := NewTable("", "")
	t.SetNoHeader(true)
	t.AddRow("Contract:", v.Contract)
	if v.Account != "" {
		t.AddRow("Account:", v.Account)
	}
	t.AddRow("Balance:", orNotLoaded(v.Balance, " ETH"))
	t.AddRow("Message:", quoted(v.Message))
	if v.UpdatedAt != nil {
		updated := v.UpdatedAt.Format(time.RFC3339)
		if v.Saved {
			updated += " (saved, provider unavailable)"
		}
		t.AddRow("Updated:", updated)
	}
	if v.LastError != nil {
		t.AddRow("Last error:", fmt.Sprintf("%s: %s", v.LastError.Kind, v.LastError.Message))
	}
	return t.Render(w)
}

// ConnectView shows the result of connecting.
type ConnectView struct {
	Account      string  `json:"account"`
	Generation   uint64  `json:"generation"`
	Balance      *string `json:"balance"`
	Message      *string `json:"message"`
	RefreshError string  `json:"refresh_error,omitempty"`
}

// NewConnectView builds a ConnectView.
func NewConnectView(res *coordinator.ConnectResult) ConnectView {
	status := NewStatusView(common.Address{}, res.Account, res.Snapshot)
	v := ConnectView{
		Account:    res.Account.Hex(),
		Generation: res.Generation,
		Balance:    status.Balance,
		Message:    status.Message,
	}
	if res.RefreshErr != nil {
		v.RefreshError = res.RefreshErr.Error()
	}
	return v
}

// RenderText implements TextRenderer.
func (v ConnectView) RenderText(w io.Writer) error {
	t := NewTable("", "")
	t.SetNoHeader(true)
	t.AddRow("Connected:", v.Account)
	t.AddRow("Balance:", orNotLoaded(v.Balance, " ETH"))
	t.AddRow("Message:", quoted(v.Message))
	if v.RefreshError != "" {
		t.AddRow("Refresh failed:", v.RefreshError)
	}
	return t.Render(w)
}

// ResultView shows the outcome of a transaction request.
type ResultView struct {
	RequestID    string       `json:"request_id"`
	Kind         string       `json:"kind"`
	State        string       `json:"state"`
	Trail        []string     `json:"trail"`
	TxHash       string       `json:"tx_hash,omitempty"`
	Block        uint64       `json:"block,omitempty"`
	GasUsed      uint64       `json:"gas_used,omitempty"`
	Balance      *string      `json:"balance,omitempty"`
	Message      *string      `json:"message,omitempty"`
	Error        *ErrorDetail `json:"error,omitempty"`
	RefreshError string       `json:"refresh_error,omitempty"`
}

// NewResultView builds a ResultView. snap supplies the refreshed values.
func NewResultView(res *coordinator.Result, snap state.Snapshot) ResultView {
	v := ResultView{
		RequestID: res.RequestID.String(),
		Kind:      string(res.Kind),
		State:     string(res.State),
		Trail:     make([]string, len(res.Trail)),
	}
	for i, s := range res.Trail {
		v.Trail[i] = string(s)
	}
	if res.Pending != nil {
		v.TxHash = res.Pending.Hash.Hex()
	}
	if res.Receipt != nil {
		v.Block = res.Receipt.BlockNumber
		v.GasUsed = res.Receipt.GasUsed
	}
	if res.Err != nil {
		detail := describeError(res.Err)
		v.Error = &detail
	}
	if res.RefreshErr != nil {
		v.RefreshError = res.RefreshErr.Error()
	}
	if res.State == coordinator.Confirmed {
		status := NewStatusView(common.Address{}, common.Address{}, snap)
		v.Balance = status.Balance
		v.Message = status.Message
	}
	return v
}

// RenderText implements TextRenderer.
func (v ResultView) RenderText(w io.Writer) error {
	t := NewTable("", "")
	t.SetNoHeader(true)
	t.AddRow("Request:", v.RequestID)
	t.AddRow("Kind:", v.Kind)
	t.AddRow("State:", strings.Join(v.Trail, " -> "))
	if v.TxHash != "" {
		t.AddRow("Tx hash:", v.TxHash)
	}
	if v.Block != 0 {
		t.AddRow("Block:", strconv.FormatUint(v.Block, 10))
		t.AddRow("Gas used:", strconv.FormatUint(v.GasUsed, 10))
	}
	if v.Balance != nil {
		t.AddRow("Balance:", *v.Balance+" ETH")
	}
	if v.Message != nil {
		t.AddRow("Message:", quoted(v.Message))
	}
	if v.RefreshError != "" {
		t.AddRow("Refresh failed:", v.RefreshError)
	}
	return t.Render(w)
}

func orNotLoaded(s *string, suffix string) string {
	if s == nil {
		return notLoaded
	}
	return *s + suffix
}

func quoted(s *string) string {
	if s == nil {
		return notLoaded
	}
	return strconv.Quote(*s)
}
