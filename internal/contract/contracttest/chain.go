// Package contracttest provides an in-memory shared wallet contract behind
// the provider.Capability interface, for tests of the handle, the state
// cache and the coordinator.
package contracttest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mrz1836/cadena/internal/contract"
	"github.com/mrz1836/cadena/internal/provider"
)

// Call counter keys.
const (
	OpRequestAccounts = "requestAccounts"
	OpCall            = "call"
	OpSend            = "send"
	OpReceipt         = "receipt"
)

var errUnknownSelector = errors.New("execution reverted: unknown selector")

type pendingTx struct {
	from     common.Address
	method   string
	args     []any
	value    *big.Int
	polls    int
	receipt  *provider.Receipt
	included bool
}

// Chain simulates the shared wallet contract. Transactions take effect when
// their receipt is first returned, so reads after confirmation see them.
type Chain struct {
	desc *contract.Descriptor

	mu       sync.Mutex
	accounts []common.Address
	balance  *big.Int
	message  [contract.MessageSize]byte
	txs      map[common.Hash]*pendingTx
	nonce    uint64
	block    uint64
	calls    map[string]int

	requestErr     error
	callErr        error
	sendErr        error
	receiptErr     error
	receiptErrLeft int
	pendingPolls   int
	neverMine      bool
	callHook       func(method string)
	closed         bool
}

// New creates a chain where accounts are exposed on request.
func New(accounts ...common.Address) *Chain {
	desc, err := contract.DefaultDescriptor()
	if err != nil {
		panic(fmt.Sprintf("embedded descriptor: %v", err))
	}
	return &Chain{
		desc:     desc,
		accounts: accounts,
		balance:  new(big.Int),
		txs:      make(map[common.Hash]*pendingTx),
		calls:    make(map[string]int),
	}
}

// Descriptor returns the contract descriptor the chain serves.
func (c *Chain) Descriptor() *contract.Descriptor {
	return c.desc
}

// SetAccounts replaces the accounts exposed by RequestAccounts.
func (c *Chain) SetAccounts(accounts ...common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts = accounts
}

// SetBalance sets the contract balance in base units.
func (c *Chain) SetBalance(wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balance = new(big.Int).Set(wei)
}

// SetMessage sets the stored message.
func (c *Chain) SetMessage(raw [contract.MessageSize]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.message = raw
}

// Balance returns the contract balance in base units.
func (c *Chain) Balance() *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.balance)
}

// FailRequests makes RequestAccounts return err.
func (c *Chain) FailRequests(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestErr = err
}

// FailCalls makes Call return err.
func (c *Chain) FailCalls(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callErr = err
}

// FailSends makes Send return err.
func (c *Chain) FailSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// FailReceipts makes the next n Receipt lookups return err.
func (c *Chain) FailReceipts(err error, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receiptErr = err
	c.receiptErrLeft = n
}

// SetPendingPolls sets how many receipt lookups report a transaction as
// pending before it is included.
func (c *Chain) SetPendingPolls(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingPolls = n
}

// SetNeverMine keeps every transaction pending.
func (c *Chain) SetNeverMine(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.neverMine = v
}

// SetCallHook runs fn, outside the lock, before each Call answers.
func (c *Chain) SetCallHook(fn func(method string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callHook = fn
}

// Calls returns how many times op was invoked.
func (c *Chain) Calls(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

// TotalCalls returns the number of capability calls of any kind.
func (c *Chain) TotalCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.calls {
		total += n
	}
	return total
}

// Closed reports whether Close was called.
func (c *Chain) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// RequestAccounts implements provider.Capability.
func (c *Chain) RequestAccounts(context.Context) ([]common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[OpRequestAccounts]++
	if c.requestErr != nil {
		return nil, c.requestErr
	}
	return append([]common.Address(nil), c.accounts...), nil
}

// Call implements provider.Capability.
func (c *Chain) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	c.mu.Lock()
	c.calls[OpCall]++
	hook := c.callHook
	c.mu.Unlock()

	if len(data) < 4 {
		return nil, errUnknownSelector
	}
	method, err := c.desc.ABI.MethodById(data[:4])
	if err != nil {
		return nil, errUnknownSelector
	}

	if hook != nil {
		hook(method.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.callErr != nil {
		return nil, c.callErr
	}
	if to != c.desc.Address {
		return []byte{}, nil
	}

	switch method.Name {
	case contract.MethodBalance:
		return method.Outputs.Pack(new(big.Int).Set(c.balance))
	case contract.MethodMessage:
		return method.Outputs.Pack(c.message)
	default:
		return nil, errUnknownSelector
	}
}

// Send implements provider.Capability.
func (c *Chain) Send(_ context.Context, req provider.SendRequest) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[OpSend]++

	if c.sendErr != nil {
		return common.Hash{}, c.sendErr
	}
	if len(req.Data) < 4 {
		return common.Hash{}, errUnknownSelector
	}
	method, err := c.desc.ABI.MethodById(req.Data[:4])
	if err != nil {
		return common.Hash{}, errUnknownSelector
	}
	args, err := method.Inputs.Unpack(req.Data[4:])
	if err != nil {
		return common.Hash{}, fmt.Errorf("decoding %s: %w", method.Name, err)
	}

	c.nonce++
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], c.nonce)
	hash := crypto.Keccak256Hash(nonce[:], req.From.Bytes(), req.Data)

	value := new(big.Int)
	if req.Value != nil {
		value.Set(req.Value)
	}
	c.txs[hash] = &pendingTx{from: req.From, method: method.Name, args: args, value: value}
	return hash, nil
}

// Receipt implements provider.Capability.
func (c *Chain) Receipt(_ context.Context, hash common.Hash) (*provider.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[OpReceipt]++

	if c.receiptErrLeft > 0 {
		c.receiptErrLeft--
		return nil, c.receiptErr
	}

	tx, ok := c.txs[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	if tx.included {
		return tx.receipt, nil
	}
	if c.neverMine || tx.polls < c.pendingPolls {
		tx.polls++
		return nil, ethereum.NotFound
	}

	c.block++
	status := c.apply(tx)
	tx.included = true
	tx.receipt = &provider.Receipt{
		TxHash:      hash,
		Status:      status,
		BlockNumber: c.block,
		GasUsed:     30_000,
	}
	return tx.receipt, nil
}

// Close implements provider.Capability.
func (c *Chain) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// apply executes tx against the contract state and returns its status.
func (c *Chain) apply(tx *pendingTx) uint64 {
	switch tx.method {
	case contract.MethodDeposit:
		c.balance.Add(c.balance, tx.value)
	case contract.MethodWithdraw:
		amount, ok := tx.args[1].(*big.Int)
		if !ok || tx.value.Sign() != 0 || amount.Cmp(c.balance) > 0 {
			return provider.ReceiptStatusFailed
		}
		c.balance.Sub(c.balance, amount)
	case contract.MethodSetMessage:
		msg, ok := tx.args[0].([contract.MessageSize]byte)
		if !ok || tx.value.Sign() != 0 {
			return provider.ReceiptStatusFailed
		}
		c.message = msg
	default:
		return provider.ReceiptStatusFailed
	}
	return provider.ReceiptStatusSuccessful
}
