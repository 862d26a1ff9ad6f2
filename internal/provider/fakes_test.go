package provider

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// fakeCapability is an in-memory Capability for gateway tests.
type fakeCapability struct {
	mu       sync.Mutex
	accounts []common.Address
	err      error
	calls    int
	closed   bool
}

func (f *fakeCapability) RequestAccounts(context.Context) ([]common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]common.Address(nil), f.accounts...), nil
}

func (f *fakeCapability) Call(context.Context, common.Address, []byte) ([]byte, error) {
	return nil, nil
}

func (f *fakeCapability) Send(context.Context, SendRequest) (common.Hash, error) {
	return common.Hash{}, nil
}

func (f *fakeCapability) Receipt(context.Context, common.Hash) (*Receipt, error) {
	return nil, nil
}

func (f *fakeCapability) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeCapability) setAccounts(accounts ...common.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts = accounts
}

// recordingApprover answers with a fixed decision and records what it was asked.
type recordingApprover struct {
	mu       sync.Mutex
	approve  bool
	err      error
	connects []common.Address
	txs      []TxSummary
}

func (a *recordingApprover) ApproveConnect(_ context.Context, account common.Address) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connects = append(a.connects, account)
	return a.approve, a.err
}

func (a *recordingApprover) ApproveTransaction(_ context.Context, tx TxSummary) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.txs = append(a.txs, tx)
	return a.approve, a.err
}
