package provider

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

// JSON-RPC error codes with a meaning in the failure taxonomy.
const (
	codeUserRejected      = 4001   // EIP-1193: user rejected the request
	codeUnauthorized      = 4100   // EIP-1193: account not authorized
	codeExecutionReverted = 3      // geth: execution reverted
	codeMethodNotFound    = -32601 // JSON-RPC: method not found
)

var _ Capability = (*Bridge)(nil)

// Bridge is a wallet reachable over JSON-RPC (HTTP or WebSocket) that keeps
// the keys and signs on its side: eth_requestAccounts, eth_sendTransaction.
type Bridge struct {
	client *rpc.Client
	opts   options
}

// DialBridge connects to the wallet endpoint at url.
func DialBridge(ctx context.Context, url string, opts ...Option) (*Bridge, error) {
	if url == "" {
		return nil, cadenaerr.WithSuggestion(cadenaerr.ErrNoProvider, "set provider.rpc to the wallet endpoint")
	}

	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, cadenaerr.WithCause(cadenaerr.ErrRPC, err)
	}

	return NewBridge(client, opts...), nil
}

// NewBridge wraps an existing RPC client.
func NewBridge(client *rpc.Client, opts ...Option) *Bridge {
	return &Bridge{
		client: client,
		opts:   buildOptions(opts),
	}
}

// callArgs are the transaction fields understood by eth_call and eth_sendTransaction.
type callArgs struct {
	From  *common.Address `json:"from,omitempty"`
	To    common.Address  `json:"to"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
}

// rpcReceipt holds the receipt fields cadena reads.
type rpcReceipt struct {
	TxHash      common.Hash    `json:"transactionHash"`
	Status      hexutil.Uint64 `json:"status"`
	BlockNumber *hexutil.Big   `json:"blockNumber"`
	GasUsed     hexutil.Uint64 `json:"gasUsed"`
}

// RequestAccounts asks the wallet to expose its accounts. Wallets without
// eth_requestAccounts fall back to eth_accounts.
func (b *Bridge) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	err := b.call(ctx, &accounts, "eth_requestAccounts")
	if err != nil && hasCode(err, codeMethodNotFound) {
		err = b.call(ctx, &accounts, "eth_accounts")
	}
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// Call executes a read-only contract call against the latest block.
func (b *Bridge) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	var out hexutil.Bytes
	if err := b.call(ctx, &out, "eth_call", callArgs{To: to, Data: data}, "latest"); err != nil {
		return nil, err
	}
	return out, nil
}

// Send asks the wallet to sign and broadcast req.
func (b *Bridge) Send(ctx context.Context, req SendRequest) (common.Hash, error) {
	from := req.From
	args := callArgs{From: &from, To: req.To, Data: req.Data}
	if req.Value != nil && req.Value.Sign() > 0 {
		args.Value = (*hexutil.Big)(new(big.Int).Set(req.Value))
	}

	var hash common.Hash
	if err := b.call(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// Receipt looks up the receipt for hash.
func (b *Bridge) Receipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	var raw *rpcReceipt
	if err := b.call(ctx, &raw, "eth_getTransactionReceipt", hash); err != nil {
		return nil, err
	}
	if raw == nil || raw.BlockNumber == nil {
		return nil, ethereum.NotFound
	}

	return &Receipt{
		TxHash:      raw.TxHash,
		Status:      uint64(raw.Status),
		BlockNumber: raw.BlockNumber.ToInt().Uint64(),
		GasUsed:     uint64(raw.GasUsed),
	}, nil
}

// Close closes the RPC connection.
func (b *Bridge) Close() {
	b.client.Close()
}

func (b *Bridge) call(ctx context.Context, result any, method string, args ...any) error {
	if err := b.opts.limiter.Wait(ctx, method); err != nil {
		return cadenaerr.WithCause(cadenaerr.ErrRPC, err)
	}

	start := time.Now()
	err := b.client.CallContext(ctx, result, method, args...)
	if err != nil {
		err = mapRPCError(err)
	}
	b.opts.observe(method, start, err)
	return err
}

// mapRPCError classifies a JSON-RPC failure. Wallet rejections, reverts and
// balance shortfalls get their own kinds; the rest is an RPC failure.
func mapRPCError(err error) error {
	switch {
	case hasCode(err, codeUserRejected), hasCode(err, codeUnauthorized):
		return cadenaerr.WithCause(cadenaerr.ErrUserRejected, err)
	case isInsufficientFunds(err):
		return cadenaerr.WithCause(cadenaerr.ErrInsufficientFunds, err)
	case hasCode(err, codeExecutionReverted), isReverted(err):
		return cadenaerr.WithCause(cadenaerr.ErrReverted, err)
	default:
		return cadenaerr.WithCause(cadenaerr.ErrRPC, err)
	}
}

func hasCode(err error, code int) bool {
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr) && rpcErr.ErrorCode() == code
}

func isInsufficientFunds(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "insufficient funds")
}

func isReverted(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}
