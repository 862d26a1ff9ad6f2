package cli

import (
	"context"
	"errors"
	"io"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mrz1836/cadena/internal/chain"
	"github.com/mrz1836/cadena/internal/config"
	"github.com/mrz1836/cadena/internal/contract"
	"github.com/mrz1836/cadena/internal/coordinator"
	"github.com/mrz1836/cadena/internal/keystore"
	"github.com/mrz1836/cadena/internal/output"
	"github.com/mrz1836/cadena/internal/provider"
	"github.com/mrz1836/cadena/internal/state"
	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

// dialCapabilityFn builds the signing agent selected by provider.kind.
// A nil capability with a nil error means no agent is configured.
//
//nolint:gochecknoglobals // swapped by tests for an in-memory chain
var dialCapabilityFn = dialCapability

// session bundles what one command needs to talk to the contract.
type session struct {
	cc      *CommandContext
	gateway *provider.Gateway
	coord   *coordinator.Coordinator
	desc    *contract.Descriptor
	store   *state.FileStorage
}

// openSession dials the configured provider and restores the saved state
// for the configured contract.
func openSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	cc := GetCmdContext(cmd)
	if cc == nil {
		cc = NewCommandContext(cfg, logger, formatter).WithMetrics(registry)
	}

	desc, err := contract.LoadDescriptorFile(cc.Cfg.Contract.Address, config.ExpandPath(cc.Cfg.Contract.ABIFile))
	if err != nil {
		return nil, err
	}

	capability, err := dialCapabilityFn(ctx, cc, newApprover())
	if err != nil {
		return nil, err
	}

	gateway := provider.NewGateway(capability, provider.WithLogger(cc.Log))

	cache := state.New(state.WithLogger(cc.Log), state.WithMetrics(cc.Metrics))
	txCfg := cc.Cfg.Transactions
	coordOpts := []coordinator.Option{
		coordinator.WithLogger(cc.Log),
		coordinator.WithMetrics(cc.Metrics),
		coordinator.WithConfirmation(txCfg.ConfirmTimeout, txCfg.PollInterval),
		coordinator.WithReceiptRetry(receiptRetry(txCfg.ReceiptRetries)),
	}
	if cc.Fmt != nil && !cc.Fmt.IsJSON() {
		coordOpts = append(coordOpts, coordinator.WithObserver(progressObserver(stderr)))
	}
	coord := coordinator.New(gateway, desc, cache, coordOpts...)

	s := &session{
		cc:      cc,
		gateway: gateway,
		coord:   coord,
		desc:    desc,
		store:   state.NewFileStorage(cc.Cfg.StatePath()),
	}
	s.restore()
	return s, nil
}

// hasProvider reports whether a signing agent is configured.
func (s *session) hasProvider() bool {
	_, ok := s.gateway.Detect()
	return ok
}

// account returns the connected account or the zero address.
func (s *session) account() common.Address {
	account, _, ok := s.gateway.Identity()
	if !ok {
		return common.Address{}
	}
	return account
}

// loadSaved returns the saved snapshot for this contract, or nil.
func (s *session) loadSaved() *state.Saved {
	saved, err := s.store.Load()
	if err != nil {
		s.cc.Log.Warn("loading saved state", zap.Error(err))
		return nil
	}
	if saved == nil || saved.Contract != s.desc.Address {
		return nil
	}
	return saved
}

// restore seeds the cache with the saved snapshot. Live reads replace it.
func (s *session) restore() {
	if saved := s.loadSaved(); saved != nil {
		s.coord.Cache().Restore(saved.Snapshot)
	}
}

// save persists the current snapshot. Failures are logged, not returned.
func (s *session) save() {
	snap := s.coord.Cache().Snapshot()
	if !snap.BalanceKnown && !snap.MessageKnown && snap.LastError == nil {
		return
	}
	if err := s.store.Save(s.desc.Address, snap); err != nil {
		s.cc.Log.Warn("saving state", zap.String("path", s.store.Path()), zap.Error(err))
	}
}

// Close saves state and releases the provider.
func (s *session) Close() {
	s.save()
	s.gateway.Close()
}

func dialCapability(ctx context.Context, cc *CommandContext, approver provider.Approver) (provider.Capability, error) {
	pc := cc.Cfg.Provider
	opts := []provider.Option{
		provider.WithLogger(cc.Log),
		provider.WithMetrics(cc.Metrics),
		provider.WithRateLimiter(chain.NewRateLimiter(pc.RateLimit, pc.RateBurst)),
	}
	if pc.ChainID > 0 {
		opts = append(opts, provider.WithChainID(big.NewInt(pc.ChainID)))
	}

	switch pc.Kind {
	case config.ProviderNone:
		return nil, nil
	case config.ProviderLocal:
		if _, err := os.Stat(cc.Cfg.KeyFilePath()); err != nil {
			return nil, cadenaerr.WithDetails(cadenaerr.ErrKeyFileNotFound, map[string]string{"path": cc.Cfg.KeyFilePath()})
		}
		passphrase, err := promptPasswordFn("Key file passphrase: ")
		if err != nil {
			return nil, cadenaerr.WithCause(cadenaerr.ErrUserRejected, err)
		}
		key, err := keystore.Load(cc.Cfg.KeyFilePath(), string(passphrase), pc.DerivationIndex)
		keystore.Zero(passphrase)
		if err != nil {
			return nil, err
		}
		signer, err := provider.DialLocalSigner(ctx, pc.RPC, key, approver, opts...)
		if err != nil {
			keystore.ZeroKey(key)
			return nil, err
		}
		return signer, nil
	default:
		bridge, err := provider.DialBridge(ctx, pc.RPC, opts...)
		if err != nil {
			return nil, err
		}
		return bridge, nil
	}
}

// progressObserver reports submission so the user knows what is being
// waited on.
func progressObserver(w io.Writer) coordinator.Observer {
	return coordinator.ObserverFunc(func(t coordinator.Transition) {
		if t.To == coordinator.AwaitingConfirmation {
			output.Infof(w, "Submitted %s %s, waiting for confirmation...", t.Kind, t.Hash.Hex())
		}
	})
}

func newApprover() provider.Approver {
	if assumeYes {
		return provider.AutoApprove{}
	}
	return provider.NewTerminalApprover(stdinReader, stderr)
}

func receiptRetry(retries int) chain.RetryConfig {
	rc := chain.DefaultRetryConfig()
	rc.MaxAttempts = retries + 1
	return rc
}

// connectForWrite binds the connected account before a write. Without a
// provider it does nothing and the write itself fails with NoProvider.
func (s *session) connectForWrite(ctx context.Context) error {
	if !s.hasProvider() {
		return nil
	}
	res, err := s.coord.Connect(ctx)
	if err != nil {
		return err
	}
	if res.RefreshErr != nil {
		s.cc.Log.Warn("initial refresh failed", zap.Error(res.RefreshErr))
	}
	return nil
}

// isOffline reports whether err means the chain could not be reached, in
// which case saved values are still worth showing.
func isOffline(err error) bool {
	kind := cadenaerr.KindOf(err)
	return kind == cadenaerr.KindNoProvider || kind == cadenaerr.KindRPC || errors.Is(err, context.DeadlineExceeded)
}
