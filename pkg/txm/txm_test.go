package txm_test

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"

	"github.com/smartcontractkit/solana-txsender/pkg/txm"
	"github.com/smartcontractkit/solana-txsender/pkg/txm/mocks"
)

type harness struct {
	txm       *txm.Txm
	clock     *clockwork.FakeClock
	forwarder *mocks.Forwarder
	oracle    *mocks.Oracle
	slots     *mocks.SlotTracker

	mu       sync.Mutex
	outcomes []txm.Outcome
}

func newHarness(t *testing.T, cfg txm.Config) *harness {
	h := &harness{
		clock:     clockwork.NewFakeClock(),
		forwarder: mocks.NewForwarder(),
		oracle:    mocks.NewOracle(),
		slots:     mocks.NewSlotTracker(),
	}
	h.txm = txm.New(logger.Test(t), h.forwarder, h.oracle, h.slots, cfg,
		txm.WithClock(h.clock),
		txm.WithOutcomeHook(func(o txm.Outcome) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.outcomes = append(h.outcomes, o)
		}),
	)
	return h
}

func (h *harness) sweep(t *testing.T, n int, advance time.Duration) {
	for i := 0; i < n; i++ {
		h.txm.Sweep(context.Background())
		h.clock.Advance(advance)
	}
}

func (h *harness) Outcomes() []txm.Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]txm.Outcome(nil), h.outcomes...)
}

func testConfig() txm.Config {
	cfg := txm.DefaultConfigSet
	cfg.ResendInterval = time.Second
	return cfg
}

func newRequest(t *testing.T, maxRetries *uint) txm.Request {
	var sig solana.Signature
	_, err := rand.Read(sig[:])
	require.NoError(t, err)
	var blockhash solana.Hash
	_, err = rand.Read(blockhash[:])
	require.NoError(t, err)

	wire := make([]byte, 96)
	_, err = rand.Read(wire)
	require.NoError(t, err)

	return txm.Request{
		Wire: wire,
		Tx: &solana.Transaction{
			Signatures: []solana.Signature{sig},
			Message:    solana.Message{RecentBlockhash: blockhash},
		},
		MaxRetries: maxRetries,
	}
}

func ptr[T any](v T) *T { return &v }

func TestTxm_RetriesExhausted(t *testing.T) {
	h := newHarness(t, testConfig())
	req := newRequest(t, ptr(uint(3)))

	sig, err := h.txm.Enqueue(req)
	require.NoError(t, err)
	require.Equal(t, req.Tx.Signatures[0].String(), sig)

	h.sweep(t, 3, time.Second)
	require.Equal(t, 3, h.forwarder.Sends(req.Wire))
	live, ok := h.txm.Get(sig)
	require.True(t, ok)
	require.Equal(t, uint(3), live.RetryCount())

	h.sweep(t, 1, time.Second)
	require.Equal(t, 3, h.forwarder.Sends(req.Wire))
	require.Equal(t, 0, h.txm.InflightCount())

	outcomes := h.Outcomes()
	require.Len(t, outcomes, 1)
	require.Equal(t, txm.RetriesExhausted, outcomes[0].Cause)
	require.Equal(t, uint(3), outcomes[0].RetryCount)
	require.Equal(t, sig, outcomes[0].Signature)
	require.Equal(t, 3*time.Second, outcomes[0].Latency)
}

func TestTxm_ConfirmedOnSecondSweep(t *testing.T) {
	h := newHarness(t, testConfig())
	req := newRequest(t, nil)

	sig, err := h.txm.Enqueue(req)
	require.NoError(t, err)

	h.sweep(t, 1, time.Second)
	require.Equal(t, 1, h.forwarder.Sends(req.Wire))

	blockTime := time.Unix(1_700_000_000, 0)
	h.oracle.Confirm(sig, blockTime)
	h.sweep(t, 2, time.Second)

	require.Equal(t, 1, h.forwarder.Sends(req.Wire))
	_, ok := h.txm.Get(sig)
	require.False(t, ok)

	outcomes := h.Outcomes()
	require.Len(t, outcomes, 1)
	require.Equal(t, txm.Confirmed, outcomes[0].Cause)
	require.Equal(t, uint(1), outcomes[0].RetryCount)
	require.Equal(t, blockTime, outcomes[0].ConfirmedAt)
}

func TestTxm_ConfirmationBeatsDueResend(t *testing.T) {
	h := newHarness(t, testConfig())
	req := newRequest(t, nil)

	sig, err := h.txm.Enqueue(req)
	require.NoError(t, err)
	h.oracle.Confirm(sig, time.Now())

	h.sweep(t, 1, time.Second)
	require.Zero(t, h.forwarder.Total())
	require.Equal(t, 0, h.txm.InflightCount())
	require.Equal(t, txm.Confirmed, h.Outcomes()[0].Cause)
}

func TestTxm_ExpiredAtSubmission(t *testing.T) {
	h := newHarness(t, testConfig())
	req := newRequest(t, nil)
	h.slots.SetBlockhash(req.Tx.Message.RecentBlockhash, 100)
	h.slots.SetSlot(100 + txm.DefaultConfigSet.BlockhashValiditySlots + 1)

	_, err := h.txm.Enqueue(req)
	require.NoError(t, err)

	h.sweep(t, 3, time.Second)
	require.Zero(t, h.forwarder.Total())

	outcomes := h.Outcomes()
	require.Len(t, outcomes, 1)
	require.Equal(t, txm.Expired, outcomes[0].Cause)
	require.Zero(t, outcomes[0].RetryCount)
}

func TestTxm_ExpiresWhenSlotAdvances(t *testing.T) {
	cfg := testConfig()
	cfg.BlockhashValiditySlots = 10
	h := newHarness(t, cfg)
	req := newRequest(t, nil)
	h.slots.SetSlot(50)

	sig, err := h.txm.Enqueue(req)
	require.NoError(t, err)
	live, _ := h.txm.Get(sig)
	_, ok := live.ReferenceSlot()
	require.False(t, ok, "unseen blockhash is resolved by the sweep")

	h.sweep(t, 1, time.Second)
	require.Equal(t, 1, h.forwarder.Total())
	ref, ok := live.ReferenceSlot()
	require.True(t, ok)
	require.Equal(t, uint64(50), ref)

	// at the edge of the window the blockhash is still usable
	h.slots.SetSlot(60)
	h.sweep(t, 1, time.Second)
	require.Equal(t, 2, h.forwarder.Total())

	h.slots.SetSlot(61)
	h.sweep(t, 2, time.Second)
	require.Equal(t, 2, h.forwarder.Total())
	require.Equal(t, txm.Expired, h.Outcomes()[0].Cause)
	require.Equal(t, uint(2), h.Outcomes()[0].RetryCount)
}

func TestTxm_UnseenInvalidBlockhashExpires(t *testing.T) {
	h := newHarness(t, testConfig())
	req := newRequest(t, nil)
	h.slots.SetSlot(10_000)
	h.slots.SetValidity(req.Tx.Message.RecentBlockhash, false)

	sig, err := h.txm.Enqueue(req)
	require.NoError(t, err)

	h.sweep(t, 2, time.Second)
	require.Zero(t, h.forwarder.Total())
	_, ok := h.txm.Get(sig)
	require.False(t, ok)

	outcomes := h.Outcomes()
	require.Len(t, outcomes, 1)
	require.Equal(t, txm.Expired, outcomes[0].Cause)
}

func TestTxm_ValidityErrorsAreInconclusive(t *testing.T) {
	h := newHarness(t, testConfig())
	req := newRequest(t, ptr(uint(10)))
	h.slots.SetSlot(10_000)
	h.slots.SetValidity(req.Tx.Message.RecentBlockhash, false)
	h.slots.SetValidityErr(errors.New("node unreachable"))

	sig, err := h.txm.Enqueue(req)
	require.NoError(t, err)

	h.sweep(t, 2, time.Second)
	require.Equal(t, 2, h.forwarder.Sends(req.Wire))
	live, ok := h.txm.Get(sig)
	require.True(t, ok)
	_, hasRef := live.ReferenceSlot()
	require.False(t, hasRef)

	h.slots.SetValidityErr(nil)
	h.sweep(t, 1, time.Second)
	require.Equal(t, 2, h.forwarder.Sends(req.Wire))
	require.Equal(t, txm.Expired, h.Outcomes()[0].Cause)
}

func TestTxm_UnknownSlotNeverExpires(t *testing.T) {
	h := newHarness(t, testConfig())
	req := newRequest(t, ptr(uint(10)))

	sig, err := h.txm.Enqueue(req)
	require.NoError(t, err)

	h.sweep(t, 4, time.Second)
	require.Equal(t, 4, h.forwarder.Total())
	live, ok := h.txm.Get(sig)
	require.True(t, ok)
	_, hasRef := live.ReferenceSlot()
	require.False(t, hasRef)

	// first known slot pins the reference, so the record is not expired by it
	h.slots.SetSlot(1_000_000)
	h.sweep(t, 1, time.Second)
	require.Equal(t, 5, h.forwarder.Total())
	ref, hasRef := live.ReferenceSlot()
	require.True(t, hasRef)
	require.Equal(t, uint64(1_000_000), ref)
	require.Empty(t, h.Outcomes())
}

func TestTxm_DuplicateSignature(t *testing.T) {
	h := newHarness(t, testConfig())
	req := newRequest(t, ptr(uint(1)))

	sig, err := h.txm.Enqueue(req)
	require.NoError(t, err)

	h.sweep(t, 1, time.Second)

	_, err = h.txm.Enqueue(req)
	require.ErrorIs(t, err, txm.ErrDuplicateSignature)
	live, _ := h.txm.Get(sig)
	require.Equal(t, uint(1), live.RetryCount(), "duplicate must not reset retry state")

	h.sweep(t, 1, time.Second)
	require.Equal(t, 0, h.txm.InflightCount())

	again, err := h.txm.Enqueue(req)
	require.NoError(t, err)
	require.Equal(t, sig, again)
	live, _ = h.txm.Get(sig)
	require.Zero(t, live.RetryCount())
}

func TestTxm_ForwarderFailuresDoNotRemove(t *testing.T) {
	h := newHarness(t, testConfig())
	req := newRequest(t, ptr(uint(5)))
	h.forwarder.SetErr(errors.New("connection refused"))

	sig, err := h.txm.Enqueue(req)
	require.NoError(t, err)

	const failures = 4
	h.sweep(t, failures, time.Second)

	live, ok := h.txm.Get(sig)
	require.True(t, ok)
	require.Equal(t, uint(failures), live.RetryCount())
	require.Empty(t, h.Outcomes())
}

func TestTxm_OracleErrorsAreInconclusive(t *testing.T) {
	h := newHarness(t, testConfig())
	req := newRequest(t, ptr(uint(2)))
	h.oracle.SetErr(errors.New("rpc unavailable"))

	sig, err := h.txm.Enqueue(req)
	require.NoError(t, err)
	h.oracle.Confirm(sig, time.Now())

	h.sweep(t, 2, time.Second)
	_, ok := h.txm.Get(sig)
	require.True(t, ok)
	require.Equal(t, 2, h.forwarder.Total())

	h.oracle.SetErr(nil)
	h.sweep(t, 1, time.Second)
	require.Equal(t, txm.Confirmed, h.Outcomes()[0].Cause)
}

func TestTxm_ResendWaitsForInterval(t *testing.T) {
	h := newHarness(t, testConfig())
	req := newRequest(t, nil)

	_, err := h.txm.Enqueue(req)
	require.NoError(t, err)

	h.sweep(t, 3, 400*time.Millisecond)
	require.Equal(t, 1, h.forwarder.Total())

	h.sweep(t, 1, 400*time.Millisecond)
	require.Equal(t, 2, h.forwarder.Total())
}

func TestTxm_Commitment(t *testing.T) {
	h := newHarness(t, testConfig())

	withDefault := newRequest(t, nil)
	defaultSig, err := h.txm.Enqueue(withDefault)
	require.NoError(t, err)

	finalized := newRequest(t, nil)
	finalized.Commitment = rpc.CommitmentFinalized
	finalizedSig, err := h.txm.Enqueue(finalized)
	require.NoError(t, err)

	h.sweep(t, 1, time.Second)
	require.Equal(t, []rpc.CommitmentType{""}, h.oracle.Calls(defaultSig))
	require.Equal(t, []rpc.CommitmentType{rpc.CommitmentFinalized}, h.oracle.Calls(finalizedSig))
}

func TestTxm_EnqueueValidation(t *testing.T) {
	h := newHarness(t, testConfig())

	_, err := h.txm.Enqueue(txm.Request{Tx: &solana.Transaction{}})
	require.ErrorIs(t, err, txm.ErrEmptyPayload)

	_, err = h.txm.Enqueue(txm.Request{Wire: []byte{1}, Tx: &solana.Transaction{}})
	require.ErrorIs(t, err, txm.ErrMissingSignature)

	_, err = h.txm.Enqueue(txm.Request{Wire: []byte{1}})
	require.ErrorIs(t, err, txm.ErrMissingSignature)
}

func TestTxm_DefaultMaxRetries(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultMaxRetries = 2
	h := newHarness(t, cfg)

	sig, err := h.txm.Enqueue(newRequest(t, nil))
	require.NoError(t, err)
	live, _ := h.txm.Get(sig)
	require.Equal(t, uint(2), live.MaxRetries)

	zero := newRequest(t, ptr(uint(0)))
	_, err = h.txm.Enqueue(zero)
	require.NoError(t, err)

	h.sweep(t, 1, time.Second)
	require.Zero(t, h.forwarder.Sends(zero.Wire))
	require.Equal(t, txm.RetriesExhausted, h.Outcomes()[0].Cause)
}

func TestTxm_ManyRecordsIndependent(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSweepWorkers = 4
	h := newHarness(t, cfg)

	var sigs []string
	for i := 0; i < 50; i++ {
		sig, err := h.txm.Enqueue(newRequest(t, ptr(uint(3))))
		require.NoError(t, err)
		sigs = append(sigs, sig)
	}
	for _, sig := range sigs[:25] {
		h.oracle.Confirm(sig, time.Now())
	}

	h.sweep(t, 5, time.Second)
	require.Equal(t, 0, h.txm.InflightCount())
	require.Equal(t, 25*3, h.forwarder.Total())

	causes := map[txm.TerminalCause]int{}
	for _, o := range h.Outcomes() {
		causes[o.Cause]++
	}
	require.Equal(t, map[txm.TerminalCause]int{txm.Confirmed: 25, txm.RetriesExhausted: 25}, causes)
}

func TestTxm_SlowForwardDoesNotStallOthers(t *testing.T) {
	forwarder := mocks.NewForwarder()
	cfg := txm.DefaultConfigSet
	cfg.SweepInterval = 10 * time.Millisecond
	cfg.ResendInterval = 0
	cfg.RPCTimeout = time.Minute

	tm := txm.New(logger.Test(t), forwarder, mocks.NewOracle(), mocks.NewSlotTracker(), cfg)

	stuck := newRequest(t, ptr(uint(1000)))
	moving := newRequest(t, ptr(uint(1000)))
	release := forwarder.Hold(stuck.Wire)
	defer release()

	_, err := tm.Enqueue(stuck)
	require.NoError(t, err)
	_, err = tm.Enqueue(moving)
	require.NoError(t, err)

	require.NoError(t, tm.Start(context.Background()))
	t.Cleanup(func() { require.NoError(t, tm.Close()) })

	require.Eventually(t, func() bool {
		return forwarder.Sends(moving.Wire) >= 10
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, 1, forwarder.Sends(stuck.Wire), "a record is never processed twice at once")

	release()
	require.Eventually(t, func() bool {
		return forwarder.Sends(stuck.Wire) > 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestTxm_StartClose(t *testing.T) {
	forwarder := mocks.NewForwarder()
	oracle := mocks.NewOracle()
	cfg := txm.DefaultConfigSet
	cfg.SweepInterval = 10 * time.Millisecond
	cfg.ResendInterval = 0

	done := make(chan txm.Outcome, 1)
	tm := txm.New(logger.Test(t), forwarder, oracle, mocks.NewSlotTracker(), cfg,
		txm.WithOutcomeHook(func(o txm.Outcome) { done <- o }))
	require.NoError(t, tm.Start(context.Background()))
	t.Cleanup(func() { require.NoError(t, tm.Close()) })

	req := newRequest(t, ptr(uint(100)))
	sig, err := tm.Enqueue(req)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return forwarder.Sends(req.Wire) > 0 }, 5*time.Second, 10*time.Millisecond)
	oracle.Confirm(sig, time.Now())

	select {
	case o := <-done:
		require.Equal(t, txm.Confirmed, o.Cause)
		require.Equal(t, sig, o.Signature)
	case <-time.After(5 * time.Second):
		t.Fatal("transaction was not confirmed")
	}
	require.NoError(t, tm.Ready())
}
