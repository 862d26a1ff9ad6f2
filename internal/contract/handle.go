package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/mrz1836/cadena/internal/chain"
	"github.com/mrz1836/cadena/internal/provider"
	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

// Mode selects what a Handle may do.
type Mode int

// Handle modes.
const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "read-write"
	}
	return "read-only"
}

// TxKind names a mutating request.
type TxKind string

// Mutating request kinds.
const (
	TxDeposit    TxKind = "deposit"
	TxWithdraw   TxKind = "withdraw"
	TxSetMessage TxKind = "setMessage"
)

// PendingTransaction is a write accepted for broadcast but not yet confirmed.
type PendingTransaction struct {
	RequestID   uuid.UUID
	Kind        TxKind
	Hash        common.Hash
	From        common.Address
	SubmittedAt time.Time
}

type requestIDKey struct{}

// WithRequestID attaches the request ID that a submission made under ctx
// will carry.
func WithRequestID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request ID attached to ctx, if any.
func RequestIDFrom(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(requestIDKey{}).(uuid.UUID)
	return id, ok
}

// Handle reads and writes the contract through the gateway's capability.
// A read-write handle is bound to the identity generation current when it
// was built; writes after the identity changes fail with StaleIdentity.
type Handle struct {
	desc       *Descriptor
	gateway    *provider.Gateway
	mode       Mode
	account    common.Address
	generation uint64
}

// NewHandle binds desc to gateway. ReadOnly needs a capability; ReadWrite
// also needs a connected account.
func NewHandle(desc *Descriptor, gateway *provider.Gateway, mode Mode) (*Handle, error) {
	if desc == nil {
		return nil, cadenaerr.WithDetails(cadenaerr.ErrInvalidABI, map[string]string{"reason": "no descriptor"})
	}
	if _, ok := gateway.Detect(); !ok {
		return nil, cadenaerr.ErrNoProvider
	}

	h := &Handle{desc: desc, gateway: gateway, mode: mode}
	if mode == ReadWrite {
		account, generation, connected := gateway.Identity()
		if !connected {
			return nil, cadenaerr.ErrNotConnected
		}
		h.account = account
		h.generation = generation
	}
	return h, nil
}

// Mode returns the handle's mode.
func (h *Handle) Mode() Mode { return h.mode }

// Account returns the signing account of a read-write handle.
func (h *Handle) Account() common.Address { return h.account }

// Generation returns the identity generation the handle is bound to.
func (h *Handle) Generation() uint64 { return h.generation }

// Descriptor returns the contract the handle is bound to.
func (h *Handle) Descriptor() *Descriptor { return h.desc }

// ReadBalance returns the contract's aggregate balance.
func (h *Handle) ReadBalance(ctx context.Context) (chain.Amount, error) {
	values, err := h.read(ctx, MethodBalance)
	if err != nil {
		return chain.Amount{}, err
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return chain.Amount{}, cadenaerr.WithCause(cadenaerr.ErrRPC, fmt.Errorf("balance: unexpected type %T", values[0]))
	}
	return chain.AmountFromBaseUnits(v), nil
}

// ReadMessage returns the contract's public message.
func (h *Handle) ReadMessage(ctx context.Context) (Message, error) {
	values, err := h.read(ctx, MethodMessage)
	if err != nil {
		return Message{}, err
	}
	raw, ok := values[0].([MessageSize]byte)
	if !ok {
		return Message{}, cadenaerr.WithCause(cadenaerr.ErrRPC, fmt.Errorf("message: unexpected type %T", values[0]))
	}
	return DecodeMessage(raw)
}

// SubmitDeposit sends amount into the contract.
func (h *Handle) SubmitDeposit(ctx context.Context, amount chain.Amount) (*PendingTransaction, error) {
	if amount.IsZero() {
		return nil, cadenaerr.WithDetails(cadenaerr.ErrInvalidAmount, map[string]string{"reason": "deposit must be greater than zero"})
	}
	if !amount.InRange() {
		return nil, cadenaerr.WithDetails(cadenaerr.ErrInvalidAmount, map[string]string{"reason": "exceeds uint256"})
	}
	data, err := h.desc.ABI.Pack(MethodDeposit)
	if err != nil {
		return nil, cadenaerr.WithCause(cadenaerr.ErrInvalidInput, err)
	}
	return h.submit(ctx, TxDeposit, data, amount.BaseUnits())
}

// SubmitWithdraw asks the contract to pay amount to to.
func (h *Handle) SubmitWithdraw(ctx context.Context, to common.Address, amount chain.Amount) (*PendingTransaction, error) {
	if to == (common.Address{}) {
		return nil, cadenaerr.WithDetails(cadenaerr.ErrInvalidAddress, map[string]string{"reason": "zero recipient"})
	}
	if amount.IsZero() {
		return nil, cadenaerr.WithDetails(cadenaerr.ErrInvalidAmount, map[string]string{"reason": "withdrawal must be greater than zero"})
	}
	if !amount.InRange() {
		return nil, cadenaerr.WithDetails(cadenaerr.ErrInvalidAmount, map[string]string{"reason": "exceeds uint256"})
	}
	data, err := h.desc.ABI.Pack(MethodWithdraw, to, amount.BaseUnits())
	if err != nil {
		return nil, cadenaerr.WithCause(cadenaerr.ErrInvalidInput, err)
	}
	return h.submit(ctx, TxWithdraw, data, nil)
}

// SubmitSetMessage replaces the contract's public message.
func (h *Handle) SubmitSetMessage(ctx context.Context, msg Message) (*PendingTransaction, error) {
	data, err := h.desc.ABI.Pack(MethodSetMessage, msg.Bytes32())
	if err != nil {
		return nil, cadenaerr.WithCause(cadenaerr.ErrInvalidInput, err)
	}
	return h.submit(ctx, TxSetMessage, data, nil)
}

// Receipt looks up a submitted transaction through the same capability.
// It returns ethereum.NotFound while the transaction is pending.
func (h *Handle) Receipt(ctx context.Context, hash common.Hash) (*provider.Receipt, error) {
	capability, ok := h.gateway.Detect()
	if !ok {
		return nil, cadenaerr.ErrNoProvider
	}
	receipt, err := capability.Receipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ethereum.NotFound
		}
		return nil, provider.Classify(err)
	}
	return receipt, nil
}

func (h *Handle) read(ctx context.Context, method string) ([]any, error) {
	capability, ok := h.gateway.Detect()
	if !ok {
		return nil, cadenaerr.ErrNoProvider
	}

	data, err := h.desc.ABI.Pack(method)
	if err != nil {
		return nil, cadenaerr.WithCause(cadenaerr.ErrInvalidABI, err)
	}

	out, err := capability.Call(ctx, h.desc.Address, data)
	if err != nil {
		return nil, provider.Classify(err)
	}

	values, err := h.desc.ABI.Unpack(method, out)
	if err != nil {
		return nil, cadenaerr.WithCause(cadenaerr.ErrRPC, fmt.Errorf("decoding %s: %w", method, err))
	}
	if len(values) != 1 {
		return nil, cadenaerr.WithCause(cadenaerr.ErrRPC, fmt.Errorf("decoding %s: %d values", method, len(values)))
	}
	return values, nil
}

func (h *Handle) submit(ctx context.Context, kind TxKind, data []byte, value *big.Int) (*PendingTransaction, error) {
	if h.mode != ReadWrite {
		return nil, cadenaerr.WithDetails(cadenaerr.ErrNotConnected, map[string]string{"handle": h.mode.String()})
	}

	capability, ok := h.gateway.Detect()
	if !ok {
		return nil, cadenaerr.ErrNoProvider
	}

	account, generation, connected := h.gateway.Identity()
	if !connected || account != h.account || generation != h.generation {
		return nil, cadenaerr.WithDetails(cadenaerr.ErrStaleIdentity, map[string]string{
			"bound":   h.account.Hex(),
			"current": account.Hex(),
		})
	}

	hash, err := capability.Send(ctx, provider.SendRequest{
		From:  h.account,
		To:    h.desc.Address,
		Data:  data,
		Value: value,
	})
	if err != nil {
		return nil, provider.Classify(err)
	}

	requestID, ok := RequestIDFrom(ctx)
	if !ok {
		requestID = uuid.New()
	}

	return &PendingTransaction{
		RequestID:   requestID,
		Kind:        kind,
		Hash:        hash,
		From:        h.account,
		SubmittedAt: time.Now(),
	}, nil
}
