package provider

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

// Gateway owns the process-wide capability and the connection state.
type Gateway struct {
	capability Capability
	logger     *zap.Logger

	mu         sync.RWMutex
	account    common.Address
	connected  bool
	generation uint64
}

// NewGateway wraps capability. A nil capability means no signing agent is
// available; every request then fails with NoProvider without any call.
func NewGateway(capability Capability, opts ...Option) *Gateway {
	o := buildOptions(opts)
	return &Gateway{
		capability: capability,
		logger:     o.logger,
	}
}

// Detect returns the capability and whether one is present.
func (g *Gateway) Detect() (Capability, bool) {
	if g == nil || g.capability == nil {
		return nil, false
	}
	return g.capability, true
}

// RequestAccess asks the signing agent for account access and returns the
// first account. A changed account starts a new identity generation.
func (g *Gateway) RequestAccess(ctx context.Context) (common.Address, error) {
	capability, ok := g.Detect()
	if !ok {
		return common.Address{}, cadenaerr.ErrNoProvider
	}

	accounts, err := capability.RequestAccounts(ctx)
	if err != nil {
		return common.Address{}, Classify(err)
	}
	if len(accounts) == 0 {
		return common.Address{}, cadenaerr.WithDetails(cadenaerr.ErrUserRejected, map[string]string{
			"reason": "no accounts exposed",
		})
	}

	account := accounts[0]

	g.mu.Lock()
	if !g.connected || g.account != account {
		g.generation++
		g.logger.Info("identity changed",
			zap.String("account", account.Hex()),
			zap.Uint64("generation", g.generation))
	}
	g.account = account
	g.connected = true
	g.mu.Unlock()

	return account, nil
}

// Identity returns the connected account, its generation and whether an
// account is connected.
func (g *Gateway) Identity() (common.Address, uint64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.account, g.generation, g.connected
}

// Close releases the capability.
func (g *Gateway) Close() {
	if capability, ok := g.Detect(); ok {
		capability.Close()
	}
}
