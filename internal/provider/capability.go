// Package provider discovers and talks to the signing agent that holds the
// user's account: a wallet exposed over JSON-RPC (Bridge) or a local
// encrypted key (LocalSigner). The Gateway tracks which account is connected
// and bumps an identity generation whenever that account changes.
package provider

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/mrz1836/cadena/internal/chain"
	"github.com/mrz1836/cadena/internal/metrics"
	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

// Receipt status values.
const (
	ReceiptStatusFailed     uint64 = 0
	ReceiptStatusSuccessful uint64 = 1
)

// SendRequest is a contract call to be signed and broadcast.
type SendRequest struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int // nil for non-payable calls
}

// Receipt is the inclusion record of a mined transaction.
type Receipt struct {
	TxHash      common.Hash
	Status      uint64
	BlockNumber uint64
	GasUsed     uint64
}

// Succeeded reports whether the transaction executed without reverting.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == ReceiptStatusSuccessful
}

// Capability is the signing agent injected by the host environment.
// Receipt returns ethereum.NotFound while the transaction is pending.
type Capability interface {
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	Send(ctx context.Context, req SendRequest) (common.Hash, error)
	Receipt(ctx context.Context, hash common.Hash) (*Receipt, error)
	Close()
}

// Option configures a Gateway, Bridge or LocalSigner.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	limiter *chain.RateLimiter
	metrics *metrics.Metrics
	chainID *big.Int
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRateLimiter throttles provider calls.
func WithRateLimiter(limiter *chain.RateLimiter) Option {
	return func(o *options) {
		o.limiter = limiter
	}
}

// WithMetrics records provider calls.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithChainID pins the chain ID used for signing instead of asking the node.
func WithChainID(id *big.Int) Option {
	return func(o *options) {
		if id != nil && id.Sign() > 0 {
			o.chainID = new(big.Int).Set(id)
		}
	}
}

// Classify maps an error returned by a capability onto the failure taxonomy.
// Coded errors pass through; anything else becomes an RPC failure.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var ce *cadenaerr.CadenaError
	if errors.As(err, &ce) {
		return err
	}
	return cadenaerr.WithCause(cadenaerr.ErrRPC, err)
}

// observe records a finished provider call.
func (o *options) observe(method string, start time.Time, err error) {
	elapsed := time.Since(start)
	o.metrics.RecordRPCCall(method, elapsed, err)
	if err != nil {
		o.logger.Debug("provider call failed",
			zap.String("method", method),
			zap.Duration("elapsed", elapsed),
			zap.String("kind", cadenaerr.KindOf(err).String()),
			zap.Error(err))
		return
	}
	o.logger.Debug("provider call",
		zap.String("method", method),
		zap.Duration("elapsed", elapsed))
}
