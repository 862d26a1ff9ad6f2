// Package state caches the last known contract balance and message along
// with the last failure. Values change only through explicit refreshes, and
// concurrent refreshes of the same field share a single read.
package state

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mrz1836/cadena/internal/chain"
	"github.com/mrz1836/cadena/internal/contract"
	"github.com/mrz1836/cadena/internal/metrics"
	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

// Field names a cached value.
type Field string

// Cached fields.
const (
	FieldBalance Field = "balance"
	FieldMessage Field = "message"
)

// Reader reads contract state. *contract.Handle satisfies it.
type Reader interface {
	ReadBalance(ctx context.Context) (chain.Amount, error)
	ReadMessage(ctx context.Context) (contract.Message, error)
}

var _ Reader = (*contract.Handle)(nil)

// Snapshot is a point-in-time copy of the cache.
type Snapshot struct {
	Balance       chain.Amount
	BalanceKnown  bool
	Message       contract.Message
	MessageKnown  bool
	LastError     error
	LastErrorKind cadenaerr.Kind
	UpdatedAt     time.Time
}

// DefaultReadTimeout bounds a shared read once it no longer follows the
// context of the caller that started it.
const DefaultReadTimeout = 30 * time.Second

// Option configures a Cache.
type Option func(*Cache)

// WithMetrics records refreshes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// WithReadTimeout bounds each shared read. Non-positive values are ignored.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.readTimeout = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Cache holds the last known contract state.
type Cache struct {
	mu           sync.RWMutex
	balance      chain.Amount
	balanceKnown bool
	balanceEpoch uint64
	message      contract.Message
	messageKnown bool
	messageEpoch uint64
	lastErr      error
	lastKind     cadenaerr.Kind
	updatedAt    time.Time

	// epoch separates reads issued before and after an Invalidate so a
	// refresh never joins a read that started earlier.
	epoch   atomic.Uint64
	group       singleflight.Group
	readTimeout time.Duration
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{logger: zap.NewNop(), readTimeout: DefaultReadTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invalidate starts a new read epoch. Refreshes issued afterwards perform a
// fresh read instead of sharing one already in flight.
func (c *Cache) Invalidate() {
	c.epoch.Add(1)
}

// RefreshBalance reads the balance through r and stores it. On failure the
// previous value is kept and the error is recorded.
func (c *Cache) RefreshBalance(ctx context.Context, r Reader) (chain.Amount, error) {
	return refresh(ctx, c, FieldBalance, r.ReadBalance, func(v chain.Amount, epoch uint64, at time.Time) {
		if epoch < c.balanceEpoch {
			return
		}
		c.balance = v
		c.balanceKnown = true
		c.balanceEpoch = epoch
		c.updatedAt = at
	})
}

// RefreshMessage reads the message through r and stores it. On failure the
// previous value is kept and the error is recorded.
func (c *Cache) RefreshMessage(ctx context.Context, r Reader) (contract.Message, error) {
	return refresh(ctx, c, FieldMessage, r.ReadMessage, func(v contract.Message, epoch uint64, at time.Time) {
		if epoch < c.messageEpoch {
			return
		}
		c.message = v
		c.messageKnown = true
		c.messageEpoch = epoch
		c.updatedAt = at
	})
}

// refresh runs read once per field and epoch, applies the result under the
// cache lock and records failures. A result from an older epoch than the
// stored value is dropped.
//
// The shared read keeps the starting caller's context values but not its
// cancellation; each caller stops waiting when its own context ends.
func refresh[T any](
	ctx context.Context,
	c *Cache,
	field Field,
	read func(context.Context) (T, error),
	apply func(v T, epoch uint64, at time.Time),
) (T, error) {
	var zero T
	epoch := c.epoch.Load()
	key := string(field) + "/" + strconv.FormatUint(epoch, 10)

	ch := c.group.DoChan(key, func() (any, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.readTimeout)
		defer cancel()

		v, err := read(readCtx)
		if err != nil {
			c.RecordError(err)
			return nil, err
		}

		c.mu.Lock()
		apply(v, epoch, time.Now())
		c.mu.Unlock()
		return v, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		c.logger.Debug("cache refresh abandoned",
			zap.String("field", string(field)),
			zap.Uint64("epoch", epoch),
			zap.Error(ctx.Err()))
		return zero, ctx.Err()
	}

	c.metrics.RecordRefresh(string(field), res.Shared, res.Err)
	c.logger.Debug("cache refresh",
		zap.String("field", string(field)),
		zap.Uint64("epoch", epoch),
		zap.Bool("shared", res.Shared),
		zap.Error(res.Err))

	if res.Err != nil {
		return zero, res.Err
	}
	return res.Val.(T), nil //nolint:forcetypeassert // singleflight returns what read produced
}

// RecordError stores err as the last failure. A nil err is ignored.
func (c *Cache) RecordError(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
	c.lastKind = cadenaerr.KindOf(err)
}

// ClearError forgets the last failure.
func (c *Cache) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = nil
	c.lastKind = cadenaerr.KindNone
}

// Snapshot returns a copy of the cached state.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Balance:       c.balance,
		BalanceKnown:  c.balanceKnown,
		Message:       c.message,
		MessageKnown:  c.messageKnown,
		LastError:     c.lastErr,
		LastErrorKind: c.lastKind,
		UpdatedAt:     c.updatedAt,
	}
}

// Restore seeds the cache with a previously saved snapshot. Values already
// read in this process take precedence.
func (c *Cache) Restore(s Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.BalanceKnown && !c.balanceKnown {
		c.balance = s.Balance
		c.balanceKnown = true
	}
	if s.MessageKnown && !c.messageKnown {
		c.message = s.Message
		c.messageKnown = true
	}
	if c.updatedAt.IsZero() {
		c.updatedAt = s.UpdatedAt
	}
}
