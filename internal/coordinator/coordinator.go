// Package coordinator drives deposit, withdraw and setMessage requests from
// input validation to confirmation, and refreshes the state cache once a
// transaction is included.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mrz1836/cadena/internal/chain"
	"github.com/mrz1836/cadena/internal/contract"
	"github.com/mrz1836/cadena/internal/metrics"
	"github.com/mrz1836/cadena/internal/provider"
	"github.com/mrz1836/cadena/internal/state"
	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

// Default confirmation timings.
const (
	DefaultConfirmTimeout = 2 * time.Minute
	DefaultPollInterval   = 2 * time.Second
)

// Result is the outcome of one transaction request.
type Result struct {
	RequestID uuid.UUID
	Kind      contract.TxKind
	State     State
	Trail     []State
	Pending   *contract.PendingTransaction // nil if nothing was submitted
	Receipt   *provider.Receipt
	Err       error

	// RefreshErr is set when the transaction confirmed but the follow-up
	// read failed. The cache keeps its previous value in that case.
	RefreshErr error
}

// ConnectResult is the outcome of Connect.
type ConnectResult struct {
	Account    common.Address
	Generation uint64
	Snapshot   state.Snapshot
	RefreshErr error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records operations and confirmation latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithObserver reports every state transition to o.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		c.observer = o
	}
}

// WithConfirmation bounds the wait for inclusion and sets the polling
// interval. Non-positive values keep the defaults.
func WithConfirmation(timeout, pollInterval time.Duration) Option {
	return func(c *Coordinator) {
		if timeout > 0 {
			c.confirmTimeout = timeout
		}
		if pollInterval > 0 {
			c.pollInterval = pollInterval
		}
	}
}

// WithReceiptRetry sets the retry policy for transient receipt lookup
// failures.
func WithReceiptRetry(cfg chain.RetryConfig) Option {
	return func(c *Coordinator) {
		c.retry = cfg
	}
}

// Coordinator runs transaction requests against one contract. Requests of
// any kind may run concurrently; each is tracked under its own request ID.
type Coordinator struct {
	gateway *provider.Gateway
	desc    *contract.Descriptor
	cache   *state.Cache

	mu     sync.RWMutex
	handle *contract.Handle // read-write, set by Connect

	logger         *zap.Logger
	metrics        *metrics.Metrics
	observer       Observer
	confirmTimeout time.Duration
	pollInterval   time.Duration
	retry          chain.RetryConfig
}

// New creates a coordinator for desc. The cache receives every refresh and
// failure.
func New(gateway *provider.Gateway, desc *contract.Descriptor, cache *state.Cache, opts ...Option) *Coordinator {
	c := &Coordinator{
		gateway:        gateway,
		desc:           desc,
		cache:          cache,
		logger:         zap.NewNop(),
		confirmTimeout: DefaultConfirmTimeout,
		pollInterval:   DefaultPollInterval,
		retry:          chain.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cache returns the state cache the coordinator writes to.
func (c *Coordinator) Cache() *state.Cache {
	return c.cache
}

// Connect requests account access, binds a read-write handle to the
// connected account and reads both contract fields once.
func (c *Coordinator) Connect(ctx context.Context) (*ConnectResult, error) {
	account, err := c.gateway.RequestAccess(ctx)
	if err != nil {
		c.cache.RecordError(err)
		c.logger.Warn("connect failed", zap.Error(err), zap.String("kind", cadenaerr.KindOf(err).String()))
		return nil, err
	}

	handle, err := contract.NewHandle(c.desc, c.gateway, contract.ReadWrite)
	if err != nil {
		c.cache.RecordError(err)
		return nil, err
	}

	c.mu.Lock()
	c.handle = handle
	c.mu.Unlock()

	c.cache.ClearError()
	c.cache.Invalidate()
	refreshErr := c.refreshAll(ctx, handle)

	c.logger.Info("connected",
		zap.String("account", account.Hex()),
		zap.Uint64("generation", handle.Generation()),
		zap.Error(refreshErr))

	return &ConnectResult{
		Account:    account,
		Generation: handle.Generation(),
		Snapshot:   c.cache.Snapshot(),
		RefreshErr: refreshErr,
	}, nil
}

// Refresh reads both contract fields without requiring a connected account.
func (c *Coordinator) Refresh(ctx context.Context) (state.Snapshot, error) {
	handle := c.currentHandle()
	if handle == nil {
		var err error
		handle, err = contract.NewHandle(c.desc, c.gateway, contract.ReadOnly)
		if err != nil {
			c.cache.RecordError(err)
			return c.cache.Snapshot(), err
		}
	}
	err := c.refreshAll(ctx, handle)
	return c.cache.Snapshot(), err
}

// Deposit sends amount into the contract from the connected account.
func (c *Coordinator) Deposit(ctx context.Context, amount string) (*Result, error) {
	return c.run(ctx, contract.TxDeposit, func(ctx context.Context, h *contract.Handle) (submitFunc, error) {
		value, err := parsePositiveAmount(amount)
		if err != nil {
			return nil, err
		}
		return func() (*contract.PendingTransaction, error) {
			return h.SubmitDeposit(ctx, value)
		}, nil
	})
}

// Withdraw pays amount from the contract to the connected account.
func (c *Coordinator) Withdraw(ctx context.Context, amount string) (*Result, error) {
	return c.run(ctx, contract.TxWithdraw, func(ctx context.Context, h *contract.Handle) (submitFunc, error) {
		value, err := parsePositiveAmount(amount)
		if err != nil {
			return nil, err
		}
		return func() (*contract.PendingTransaction, error) {
			return h.SubmitWithdraw(ctx, h.Account(), value)
		}, nil
	})
}

// WithdrawTo pays amount from the contract to recipient.
func (c *Coordinator) WithdrawTo(ctx context.Context, recipient, amount string) (*Result, error) {
	return c.run(ctx, contract.TxWithdraw, func(ctx context.Context, h *contract.Handle) (submitFunc, error) {
		to, err := contract.ParseAddress(recipient)
		if err != nil {
			return nil, err
		}
		value, err := parsePositiveAmount(amount)
		if err != nil {
			return nil, err
		}
		return func() (*contract.PendingTransaction, error) {
			return h.SubmitWithdraw(ctx, to, value)
		}, nil
	})
}

// SetMessage replaces the contract's public message.
func (c *Coordinator) SetMessage(ctx context.Context, text string) (*Result, error) {
	return c.run(ctx, contract.TxSetMessage, func(ctx context.Context, h *contract.Handle) (submitFunc, error) {
		msg, err := contract.ParseMessage(text)
		if err != nil {
			return nil, err
		}
		return func() (*contract.PendingTransaction, error) {
			return h.SubmitSetMessage(ctx, msg)
		}, nil
	})
}

// submitFunc performs the write once input has been validated.
type submitFunc func() (*contract.PendingTransaction, error)

// validateFunc encodes the request for h without touching the network.
type validateFunc func(ctx context.Context, h *contract.Handle) (submitFunc, error)

func (c *Coordinator) run(ctx context.Context, kind contract.TxKind, validate validateFunc) (*Result, error) {
	req := c.newRequest(kind)
	ctx = contract.WithRequestID(ctx, req.result.RequestID)

	req.advance(Validating, nil)
	handle := c.currentHandle()
	submit, err := validate(ctx, handle)
	if err != nil {
		return req.fail(err)
	}

	req.advance(Submitting, nil)
	if _, ok := c.gateway.Detect(); !ok {
		return req.fail(cadenaerr.ErrNoProvider)
	}
	if handle == nil {
		return req.fail(cadenaerr.ErrNotConnected)
	}

	pending, err := submit()
	if err != nil {
		return req.fail(err)
	}
	req.result.Pending = pending
	req.advance(AwaitingConfirmation, nil)

	receipt, err := c.awaitReceipt(ctx, handle, pending.Hash)
	if err != nil {
		return req.fail(err)
	}
	req.result.Receipt = receipt
	if !receipt.Succeeded() {
		return req.fail(cadenaerr.WithDetails(cadenaerr.ErrReverted, map[string]string{
			"tx_hash": pending.Hash.Hex(),
			"block":   strconv.FormatUint(receipt.BlockNumber, 10),
		}))
	}

	c.metrics.ObserveConfirmation(string(kind), time.Since(pending.SubmittedAt))
	req.advance(Confirmed, nil)
	c.metrics.RecordOperation(string(kind), nil)

	c.cache.Invalidate()
	req.result.RefreshErr = c.refreshFor(ctx, kind, handle)
	return req.result, nil
}

// awaitReceipt polls for inclusion until ConfirmTimeout. Transient lookup
// failures are retried; the transaction itself is never resent.
func (c *Coordinator) awaitReceipt(ctx context.Context, h *contract.Handle, hash common.Hash) (*provider.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	timeout := func() error {
		return cadenaerr.WithDetails(cadenaerr.WithCause(cadenaerr.ErrTimeout, waitCtx.Err()), map[string]string{
			"tx_hash": hash.Hex(),
		})
	}

	for {
		receipt, err := chain.RetryWithConfig(waitCtx, c.retry, func() (*provider.Receipt, error) {
			r, err := h.Receipt(waitCtx, hash)
			if err != nil && !errors.Is(err, ethereum.NotFound) && cadenaerr.KindOf(err) == cadenaerr.KindRPC {
				return nil, chain.WrapRetryable(err)
			}
			return r, err
		})

		switch {
		case err == nil:
			return receipt, nil
		case errors.Is(err, ethereum.NotFound):
		case waitCtx.Err() != nil:
			return nil, timeout()
		default:
			return nil, fmt.Errorf("waiting for %s: %w", hash.Hex(), err)
		}

		select {
		case <-waitCtx.Done():
			return nil, timeout()
		case <-ticker.C:
		}
	}
}

// refreshFor reads the field a confirmed transaction of kind changed.
func (c *Coordinator) refreshFor(ctx context.Context, kind contract.TxKind, h *contract.Handle) error {
	if kind == contract.TxSetMessage {
		_, err := c.cache.RefreshMessage(ctx, h)
		return err
	}
	_, err := c.cache.RefreshBalance(ctx, h)
	return err
}

func (c *Coordinator) refreshAll(ctx context.Context, h *contract.Handle) error {
	var wg sync.WaitGroup
	var balanceErr, messageErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, balanceErr = c.cache.RefreshBalance(ctx, h)
	}()
	go func() {
		defer wg.Done()
		_, messageErr = c.cache.RefreshMessage(ctx, h)
	}()
	wg.Wait()
	return errors.Join(balanceErr, messageErr)
}

func (c *Coordinator) currentHandle() *contract.Handle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handle
}

// request tracks one run through the state machine.
type request struct {
	c      *Coordinator
	result *Result
	logger *zap.Logger
}

func (c *Coordinator) newRequest(kind contract.TxKind) *request {
	id := uuid.New()
	return &request{
		c: c,
		result: &Result{
			RequestID: id,
			Kind:      kind,
			State:     Idle,
			Trail:     []State{Idle},
		},
		logger: c.logger.With(zap.String("request_id", id.String()), zap.String("kind", string(kind))),
	}
}

func (r *request) advance(to State, err error) {
	from := r.result.State
	if !CanTransition(from, to) {
		r.logger.DPanic("invalid transition", zap.String("from", string(from)), zap.String("to", string(to)))
	}

	r.result.State = to
	r.result.Trail = append(r.result.Trail, to)

	var hash common.Hash
	if r.result.Pending != nil {
		hash = r.result.Pending.Hash
	}

	fields := []zap.Field{zap.String("state", string(to))}
	if hash != (common.Hash{}) {
		fields = append(fields, zap.String("tx_hash", hash.Hex()))
	}
	if err != nil {
		fields = append(fields, zap.Error(err), zap.String("failure", cadenaerr.KindOf(err).String()))
		r.logger.Warn("transaction state", fields...)
	} else {
		r.logger.Info("transaction state", fields...)
	}

	if r.c.observer != nil {
		r.c.observer.OnTransition(Transition{
			RequestID: r.result.RequestID,
			Kind:      r.result.Kind,
			From:      from,
			To:        to,
			Hash:      hash,
			Err:       err,
			At:        time.Now(),
		})
	}
}

// fail moves the request to Failed and records err in the cache. Cached
// values are left as they were.
func (r *request) fail(err error) (*Result, error) {
	r.result.Err = err
	r.advance(Failed, err)
	r.c.cache.RecordError(err)
	r.c.metrics.RecordOperation(string(r.result.Kind), err)
	return r.result, err
}

func parsePositiveAmount(s string) (chain.Amount, error) {
	amount, err := chain.ParseAmount(s)
	if err != nil {
		return chain.Amount{}, err
	}
	if amount.IsZero() {
		return chain.Amount{}, cadenaerr.WithDetails(cadenaerr.ErrInvalidAmount, map[string]string{
			"input":  s,
			"reason": "amount must be greater than zero",
		})
	}
	return amount, nil
}
