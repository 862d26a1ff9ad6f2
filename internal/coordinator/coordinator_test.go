package coordinator_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/cadena/internal/chain"
	"github.com/mrz1836/cadena/internal/contract"
	"github.com/mrz1836/cadena/internal/contract/contracttest"
	"github.com/mrz1836/cadena/internal/coordinator"
	"github.com/mrz1836/cadena/internal/metrics"
	"github.com/mrz1836/cadena/internal/provider"
	"github.com/mrz1836/cadena/internal/state"
	cadenaerr "github.com/mrz1836/cadena/pkg/errors"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	errTransport = errors.New("connection reset by peer")
)

// recorder collects transitions per request.
type recorder struct {
	mu  sync.Mutex
	log map[uuid.UUID][]coordinator.Transition
}

func newRecorder() *recorder {
	return &recorder{log: make(map[uuid.UUID][]coordinator.Transition)}
}

func (r *recorder) OnTransition(t coordinator.Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log[t.RequestID] = append(r.log[t.RequestID], t)
}

func (r *recorder) states(id uuid.UUID) []coordinator.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []coordinator.State{coordinator.Idle}
	for _, t := range r.log[id] {
		out = append(out, t.To)
	}
	return out
}

type fixture struct {
	chain    *contracttest.Chain
	gateway  *provider.Gateway
	cache    *state.Cache
	coord    *coordinator.Coordinator
	observer *recorder
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T, opts ...coordinator.Option) *fixture {
	t.Helper()

	fake := contracttest.New(alice)
	fake.SetBalance(chain.MustParseAmount("3").BaseUnits())

	f := &fixture{
		chain:    fake,
		gateway:  provider.NewGateway(fake),
		cache:    state.New(),
		observer: newRecorder(),
		metrics:  metrics.New(),
	}

	base := []coordinator.Option{
		coordinator.WithObserver(f.observer),
		coordinator.WithMetrics(f.metrics),
		coordinator.WithConfirmation(2*time.Second, time.Millisecond),
		coordinator.WithReceiptRetry(chain.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
		}),
	}
	f.coord = coordinator.New(f.gateway, fake.Descriptor(), f.cache, append(base, opts...)...)
	return f
}

func (f *fixture) connect(t *testing.T) {
	t.Helper()
	res, err := f.coord.Connect(context.Background())
	require.NoError(t, err)
	require.NoError(t, res.RefreshErr)
}

var (
	fullTrail        = []coordinator.State{coordinator.Idle, coordinator.Validating, coordinator.Submitting, coordinator.AwaitingConfirmation, coordinator.Confirmed}
	rejectedTrail    = []coordinator.State{coordinator.Idle, coordinator.Validating, coordinator.Submitting, coordinator.Failed}
	invalidTrail     = []coordinator.State{coordinator.Idle, coordinator.Validating, coordinator.Failed}
	awaitFailedTrail = []coordinator.State{coordinator.Idle, coordinator.Validating, coordinator.Submitting, coordinator.AwaitingConfirmation, coordinator.Failed}
)

func TestCanTransition(t *testing.T) {
	t.Parallel()
	tests := []struct {
		from, to coordinator.State
		want     bool
	}{
		{coordinator.Idle, coordinator.Validating, true},
		{coordinator.Idle, coordinator.Submitting, false},
		{coordinator.Validating, coordinator.Failed, true},
		{coordinator.Validating, coordinator.AwaitingConfirmation, false},
		{coordinator.Submitting, coordinator.AwaitingConfirmation, true},
		{coordinator.AwaitingConfirmation, coordinator.Confirmed, true},
		{coordinator.AwaitingConfirmation, coordinator.Submitting, false},
		{coordinator.Confirmed, coordinator.Failed, false},
		{coordinator.Failed, coordinator.Idle, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, coordinator.CanTransition(tt.from, tt.to))
		})
	}

	assert.True(t, coordinator.Confirmed.Terminal())
	assert.True(t, coordinator.Failed.Terminal())
	assert.False(t, coordinator.AwaitingConfirmation.Terminal())
}

func TestNoProvider(t *testing.T) {
	t.Parallel()

	desc, err := contract.DefaultDescriptor()
	require.NoError(t, err)
	cache := state.New()
	coord := coordinator.New(provider.NewGateway(nil), desc, cache)
	ctx := context.Background()

	_, err = coord.Connect(ctx)
	require.ErrorIs(t, err, cadenaerr.ErrNoProvider)

	_, err = coord.Refresh(ctx)
	require.ErrorIs(t, err, cadenaerr.ErrNoProvider)

	writes := map[string]func() (*coordinator.Result, error){
		"deposit":    func() (*coordinator.Result, error) { return coord.Deposit(ctx, "1") },
		"withdraw":   func() (*coordinator.Result, error) { return coord.Withdraw(ctx, "1") },
		"setMessage": func() (*coordinator.Result, error) { return coord.SetMessage(ctx, "hi") },
	}
	for name, write := range writes {
		res, err := write()
		require.ErrorIs(t, err, cadenaerr.ErrNoProvider, name)
		assert.Equal(t, rejectedTrail, res.Trail, name)
		assert.Nil(t, res.Pending, name)
	}

	snap := cache.Snapshot()
	assert.Equal(t, cadenaerr.KindNoProvider, snap.LastErrorKind)
	assert.False(t, snap.BalanceKnown)
	assert.False(t, snap.MessageKnown)
}

func TestConnect(t *testing.T) {
	t.Parallel()

	t.Run("reads both fields", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		raw, err := contract.ParseMessage("gm")
		require.NoError(t, err)
		f.chain.SetMessage(raw.Bytes32())

		res, err := f.coord.Connect(context.Background())
		require.NoError(t, err)
		assert.Equal(t, alice, res.Account)
		assert.Equal(t, uint64(1), res.Generation)
		require.NoError(t, res.RefreshErr)
		assert.Equal(t, "3", res.Snapshot.Balance.String())
		assert.Equal(t, "gm", res.Snapshot.Message.String())
		assert.Equal(t, 2, f.chain.Calls(contracttest.OpCall))
	})

	t.Run("rejected access", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.chain.FailRequests(cadenaerr.ErrUserRejected)

		_, err := f.coord.Connect(context.Background())
		require.ErrorIs(t, err, cadenaerr.ErrUserRejected)
		assert.Equal(t, cadenaerr.KindUserRejected, f.cache.Snapshot().LastErrorKind)
		assert.Zero(t, f.chain.Calls(contracttest.OpCall))
	})

	t.Run("read failure is reported but connects", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.chain.FailCalls(errTransport)

		res, err := f.coord.Connect(context.Background())
		require.NoError(t, err)
		require.ErrorIs(t, res.RefreshErr, errTransport)
		assert.Equal(t, cadenaerr.KindRPC, res.Snapshot.LastErrorKind)
	})

	t.Run("success clears the last error", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.cache.RecordError(cadenaerr.ErrTimeout)
		f.connect(t)
		assert.NoError(t, f.cache.Snapshot().LastError)
	})
}

func TestRefreshWithoutConnect(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	snap, err := f.coord.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3", snap.Balance.String())
	assert.True(t, snap.MessageKnown)
	assert.Zero(t, f.chain.Calls(contracttest.OpRequestAccounts))
}

func TestDeposit_Confirmed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)
	f.chain.SetPendingPolls(2)

	res, err := f.coord.Deposit(context.Background(), "1.5")
	require.NoError(t, err)

	assert.Equal(t, coordinator.Confirmed, res.State)
	assert.Equal(t, fullTrail, res.Trail)
	assert.Equal(t, fullTrail, f.observer.states(res.RequestID))
	require.NotNil(t, res.Pending)
	assert.Equal(t, res.RequestID, res.Pending.RequestID)
	assert.Equal(t, contract.TxDeposit, res.Pending.Kind)
	assert.Equal(t, alice, res.Pending.From)
	require.NotNil(t, res.Receipt)
	assert.True(t, res.Receipt.Succeeded())
	require.NoError(t, res.RefreshErr)

	assert.Equal(t, "4.5", f.cache.Snapshot().Balance.String())
	assert.GreaterOrEqual(t, f.chain.Calls(contracttest.OpReceipt), 3)

	series, err := testutil.GatherAndCount(f.metrics.Registry(), "cadena_operations_total", "cadena_confirmation_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, series)
}

func TestSubmitRejectedByUser(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)
	before := f.cache.Snapshot()

	f.chain.FailSends(cadenaerr.ErrUserRejected)
	res, err := f.coord.Deposit(context.Background(), "1")
	require.ErrorIs(t, err, cadenaerr.ErrUserRejected)

	assert.Equal(t, coordinator.Failed, res.State)
	assert.Equal(t, rejectedTrail, res.Trail)
	assert.Equal(t, rejectedTrail, f.observer.states(res.RequestID))
	assert.Nil(t, res.Pending)

	after := f.cache.Snapshot()
	assert.True(t, before.Balance.Equal(after.Balance))
	assert.Equal(t, before.Message, after.Message)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
	assert.Equal(t, cadenaerr.KindUserRejected, after.LastErrorKind)
}

func TestWithdraw_RefreshesBalance(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)
	callsBefore := f.chain.Calls(contracttest.OpCall)

	res, err := f.coord.Withdraw(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, fullTrail, res.Trail)

	assert.Equal(t, callsBefore+1, f.chain.Calls(contracttest.OpCall), "one balance read after confirmation")
	assert.Equal(t, "2", f.cache.Snapshot().Balance.String())
	assert.Equal(t, "2", chain.AmountFromBaseUnits(f.chain.Balance()).String())
}

func TestWithdrawTo(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)

	res, err := f.coord.WithdrawTo(context.Background(), bob.Hex(), "0.5")
	require.NoError(t, err)
	assert.Equal(t, coordinator.Confirmed, res.State)
	assert.Equal(t, "2.5", f.cache.Snapshot().Balance.String())

	res, err = f.coord.WithdrawTo(context.Background(), "0x1234", "0.5")
	require.ErrorIs(t, err, cadenaerr.ErrInvalidAddress)
	assert.Equal(t, invalidTrail, res.Trail)
}

func TestWithdraw_Reverted(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)
	before := f.cache.Snapshot()

	res, err := f.coord.Withdraw(context.Background(), "10")
	require.ErrorIs(t, err, cadenaerr.ErrReverted)
	assert.Equal(t, cadenaerr.KindReverted, cadenaerr.KindOf(err))
	assert.Equal(t, awaitFailedTrail, res.Trail)
	require.NotNil(t, res.Receipt)
	assert.False(t, res.Receipt.Succeeded())

	after := f.cache.Snapshot()
	assert.True(t, before.Balance.Equal(after.Balance))
	assert.Equal(t, cadenaerr.KindReverted, after.LastErrorKind)
}

func TestSetMessage(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)

	res, err := f.coord.SetMessage(context.Background(), "hello, wallet")
	require.NoError(t, err)
	assert.Equal(t, fullTrail, res.Trail)
	assert.Equal(t, "hello, wallet", f.cache.Snapshot().Message.String())
}

func TestSetMessage_OversizeNeverSubmits(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)
	callsBefore := f.chain.TotalCalls()

	res, err := f.coord.SetMessage(context.Background(), strings.Repeat("x", 33))
	require.ErrorIs(t, err, cadenaerr.ErrMessageTooLong)
	assert.Equal(t, cadenaerr.KindInvalidInput, cadenaerr.KindOf(err))
	assert.Equal(t, invalidTrail, res.Trail)
	assert.Nil(t, res.Pending)
	assert.Equal(t, callsBefore, f.chain.TotalCalls())
	assert.Zero(t, f.chain.Calls(contracttest.OpSend))
}

func TestInvalidAmounts(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		amount string
	}{
		{"not a number", "abc"},
		{"zero", "0"},
		{"negative", "-1"},
		{"too precise", "0.0000000000000000001"},
		{"exceeds uint256", "115792089237316195423570985008687907853269984665640564039457.584007913129639936"},
		{"wraps to one wei", "115792089237316195423570985008687907853269984665640564039457.584007913129639937"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.connect(t)
			callsBefore := f.chain.TotalCalls()

			for _, write := range []func(context.Context, string) (*coordinator.Result, error){f.coord.Deposit, f.coord.Withdraw} {
				res, err := write(context.Background(), tt.amount)
				require.ErrorIs(t, err, cadenaerr.ErrInvalidAmount)
				assert.Equal(t, invalidTrail, res.Trail)
			}
			assert.Equal(t, callsBefore, f.chain.TotalCalls())
			assert.Zero(t, f.chain.Calls(contracttest.OpSend))
		})
	}
}

func TestWriteBeforeConnect(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	res, err := f.coord.Deposit(context.Background(), "1")
	require.ErrorIs(t, err, cadenaerr.ErrNotConnected)
	assert.Equal(t, cadenaerr.KindStaleIdentity, cadenaerr.KindOf(err))
	assert.Equal(t, rejectedTrail, res.Trail)
	assert.Zero(t, f.chain.TotalCalls())
}

func TestStaleIdentity(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)

	f.chain.SetAccounts(bob)
	_, err := f.gateway.RequestAccess(context.Background())
	require.NoError(t, err)

	res, err := f.coord.Deposit(context.Background(), "1")
	require.ErrorIs(t, err, cadenaerr.ErrStaleIdentity)
	assert.Equal(t, rejectedTrail, res.Trail)
	assert.Zero(t, f.chain.Calls(contracttest.OpSend))

	// Reconnecting rebinds the handle to the new account.
	conn, err := f.coord.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, bob, conn.Account)

	res, err = f.coord.Deposit(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, bob, res.Pending.From)
}

func TestConfirmationTimeout(t *testing.T) {
	t.Parallel()
	f := newFixture(t, coordinator.WithConfirmation(50*time.Millisecond, 5*time.Millisecond))
	f.connect(t)
	before := f.cache.Snapshot()
	f.chain.SetNeverMine(true)

	res, err := f.coord.Deposit(context.Background(), "1")
	require.ErrorIs(t, err, cadenaerr.ErrTimeout)
	assert.Equal(t, cadenaerr.KindTimeout, cadenaerr.KindOf(err))
	assert.Equal(t, awaitFailedTrail, res.Trail)
	require.NotNil(t, res.Pending, "the transaction was submitted")
	assert.Nil(t, res.Receipt)
	assert.Equal(t, 1, f.chain.Calls(contracttest.OpSend), "never resubmitted")

	after := f.cache.Snapshot()
	assert.True(t, before.Balance.Equal(after.Balance))
	assert.Equal(t, cadenaerr.KindTimeout, after.LastErrorKind)
}

func TestCancelWhileAwaiting(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.chain.SetNeverMine(true)

	ctx, cancel := context.WithCancel(context.Background())
	f.coord = coordinator.New(f.gateway, f.chain.Descriptor(), f.cache,
		coordinator.WithConfirmation(time.Minute, time.Millisecond),
		coordinator.WithObserver(coordinator.ObserverFunc(func(tr coordinator.Transition) {
			if tr.To == coordinator.AwaitingConfirmation {
				cancel()
			}
		})))
	_, err := f.coord.Connect(context.Background())
	require.NoError(t, err)

	res, err := f.coord.Deposit(ctx, "1")
	require.ErrorIs(t, err, cadenaerr.ErrTimeout)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, awaitFailedTrail, res.Trail)
}

func TestReceiptLookupRetries(t *testing.T) {
	t.Parallel()

	t.Run("transient failures recover", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.connect(t)
		f.chain.FailReceipts(errTransport, 2)

		res, err := f.coord.Deposit(context.Background(), "1")
		require.NoError(t, err)
		assert.Equal(t, coordinator.Confirmed, res.State)
		assert.Equal(t, 3, f.chain.Calls(contracttest.OpReceipt))
		assert.Equal(t, 1, f.chain.Calls(contracttest.OpSend))
	})

	t.Run("persistent failures give up", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.connect(t)
		f.chain.FailReceipts(errTransport, 100)

		res, err := f.coord.Deposit(context.Background(), "1")
		require.ErrorIs(t, err, errTransport)
		assert.Equal(t, cadenaerr.KindRPC, cadenaerr.KindOf(err))
		assert.Equal(t, awaitFailedTrail, res.Trail)
		assert.Equal(t, 3, f.chain.Calls(contracttest.OpReceipt))
		assert.Equal(t, 1, f.chain.Calls(contracttest.OpSend))
	})
}

func TestConfirmedButRefreshFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)
	before := f.cache.Snapshot()
	f.chain.FailCalls(errTransport)

	res, err := f.coord.Deposit(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, coordinator.Confirmed, res.State)
	require.ErrorIs(t, res.RefreshErr, errTransport)

	after := f.cache.Snapshot()
	assert.True(t, before.Balance.Equal(after.Balance))
	assert.Equal(t, cadenaerr.KindRPC, after.LastErrorKind)
}

func TestConcurrentDepositAndSetMessage(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t)
	f.chain.SetPendingPolls(3)

	var (
		wg                 sync.WaitGroup
		depositRes, msgRes *coordinator.Result
		depositErr, msgErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		depositRes, depositErr = f.coord.Deposit(context.Background(), "2")
	}()
	go func() {
		defer wg.Done()
		msgRes, msgErr = f.coord.SetMessage(context.Background(), "both landed")
	}()
	wg.Wait()

	require.NoError(t, depositErr)
	require.NoError(t, msgErr)
	assert.NotEqual(t, depositRes.RequestID, msgRes.RequestID)
	assert.Equal(t, fullTrail, f.observer.states(depositRes.RequestID))
	assert.Equal(t, fullTrail, f.observer.states(msgRes.RequestID))

	snap := f.cache.Snapshot()
	assert.Equal(t, "5", snap.Balance.String())
	assert.Equal(t, "both landed", snap.Message.String())
	assert.NoError(t, snap.LastError)
}
