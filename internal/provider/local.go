package provider

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/mrz1836/cadena/internal/keystore"
	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

// Backend is the node API the local signer needs. *ethclient.Client
// satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

var (
	_ Capability = (*LocalSigner)(nil)
	_ Backend    = (*ethclient.Client)(nil)
)

// LocalSigner signs with a key held in process memory and broadcasts
// through a node. Every connect and every signature needs the Approver's
// consent.
type LocalSigner struct {
	backend  Backend
	key      *ecdsa.PrivateKey
	address  common.Address
	approver Approver
	opts     options

	// sendMu serializes nonce allocation through broadcast.
	sendMu sync.Mutex
	closed bool
}

// NewLocalSigner creates a signer for key. The signer owns key and clears it
// on Close.
func NewLocalSigner(backend Backend, key *ecdsa.PrivateKey, approver Approver, opts ...Option) *LocalSigner {
	if approver == nil {
		approver = AutoApprove{}
	}
	return &LocalSigner{
		backend:  backend,
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		approver: approver,
		opts:     buildOptions(opts),
	}
}

// DialLocalSigner connects to the node at rpcURL and wraps key.
func DialLocalSigner(ctx context.Context, rpcURL string, key *ecdsa.PrivateKey, approver Approver, opts ...Option) (*LocalSigner, error) {
	if rpcURL == "" {
		return nil, cadenaerr.WithSuggestion(cadenaerr.ErrNoProvider, "set provider.rpc to a node endpoint")
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, cadenaerr.WithCause(cadenaerr.ErrRPC, err)
	}

	return NewLocalSigner(client, key, approver, opts...), nil
}

// Address returns the signer's account.
func (s *LocalSigner) Address() common.Address {
	return s.address
}

// RequestAccounts exposes the signer's single account once approved.
func (s *LocalSigner) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	ok, err := s.approver.ApproveConnect(ctx, s.address)
	if err != nil {
		return nil, cadenaerr.WithCause(cadenaerr.ErrUserRejected, err)
	}
	if !ok {
		return nil, cadenaerr.ErrUserRejected
	}
	return []common.Address{s.address}, nil
}

// Call executes a read-only contract call against the latest block.
func (s *LocalSigner) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	var out []byte
	err := s.do(ctx, "eth_call", func() error {
		var err error
		out, err = s.backend.CallContract(ctx, ethereum.CallMsg{From: s.address, To: &to, Data: data}, nil)
		return err
	})
	return out, err
}

// Send builds a legacy transaction with the node's suggested gas price and
// estimated gas, asks for approval, signs it with the EIP-155 signer and
// broadcasts it.
func (s *LocalSigner) Send(ctx context.Context, req SendRequest) (common.Hash, error) {
	if req.From != s.address {
		return common.Hash{}, cadenaerr.WithDetails(cadenaerr.ErrStaleIdentity, map[string]string{
			"from":   req.From.Hex(),
			"signer": s.address.Hex(),
		})
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.closed {
		return common.Hash{}, cadenaerr.ErrNoProvider
	}

	chainID, err := s.chainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	value := new(big.Int)
	if req.Value != nil {
		value.Set(req.Value)
	}
	to := req.To
	msg := ethereum.CallMsg{From: s.address, To: &to, Value: value, Data: req.Data}

	var gas uint64
	if err = s.do(ctx, "eth_estimateGas", func() error {
		var err error
		gas, err = s.backend.EstimateGas(ctx, msg)
		return err
	}); err != nil {
		return common.Hash{}, err
	}

	var gasPrice *big.Int
	if err = s.do(ctx, "eth_gasPrice", func() error {
		var err error
		gasPrice, err = s.backend.SuggestGasPrice(ctx)
		return err
	}); err != nil {
		return common.Hash{}, err
	}

	var nonce uint64
	if err = s.do(ctx, "eth_getTransactionCount", func() error {
		var err error
		nonce, err = s.backend.PendingNonceAt(ctx, s.address)
		return err
	}); err != nil {
		return common.Hash{}, err
	}

	ok, err := s.approver.ApproveTransaction(ctx, TxSummary{
		ChainID:  chainID,
		From:     s.address,
		To:       req.To,
		Value:    value,
		Data:     req.Data,
		Gas:      gas,
		GasPrice: gasPrice,
	})
	if err != nil {
		return common.Hash{}, cadenaerr.WithCause(cadenaerr.ErrUserRejected, err)
	}
	if !ok {
		return common.Hash{}, cadenaerr.ErrUserRejected
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     req.Data,
	})

	signed, err := types.SignTx(tx, types.NewEIP155Signer(chainID), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("signing transaction: %w", err)
	}

	if err = s.do(ctx, "eth_sendRawTransaction", func() error {
		return s.backend.SendTransaction(ctx, signed)
	}); err != nil {
		return common.Hash{}, err
	}

	s.opts.logger.Info("transaction broadcast",
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gas))

	return signed.Hash(), nil
}

// Receipt looks up the receipt for hash.
func (s *LocalSigner) Receipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	var receipt *types.Receipt
	err := s.do(ctx, "eth_getTransactionReceipt", func() error {
		var err error
		receipt, err = s.backend.TransactionReceipt(ctx, hash)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := &Receipt{
		TxHash:  receipt.TxHash,
		Status:  receipt.Status,
		GasUsed: receipt.GasUsed,
	}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return out, nil
}

// Close clears the key and closes the node connection.
func (s *LocalSigner) Close() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	keystore.ZeroKey(s.key)
	s.backend.Close()
}

func (s *LocalSigner) chainID(ctx context.Context) (*big.Int, error) {
	if s.opts.chainID != nil {
		return s.opts.chainID, nil
	}

	var id *big.Int
	if err := s.do(ctx, "eth_chainId", func() error {
		var err error
		id, err = s.backend.ChainID(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	s.opts.chainID = id
	return id, nil
}

// do rate-limits, times and classifies one backend call. ethereum.NotFound
// passes through unclassified.
func (s *LocalSigner) do(ctx context.Context, method string, fn func() error) error {
	if err := s.opts.limiter.Wait(ctx, method); err != nil {
		return cadenaerr.WithCause(cadenaerr.ErrRPC, err)
	}

	start := time.Now()
	err := fn()
	if errors.Is(err, ethereum.NotFound) {
		s.opts.observe(method, start, nil)
		return ethereum.NotFound
	}
	if err != nil {
		err = mapRPCError(err)
	}
	s.opts.observe(method, start, err)
	return err
}
