package txm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/jonboulle/clockwork"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"
	"github.com/smartcontractkit/chainlink-common/pkg/services"
)

var _ services.Service = &Txm{}

var (
	ErrMissingSignature = errors.New("transaction has no signatures")
	ErrEmptyPayload     = errors.New("transaction payload is empty")
)

// Txm keeps every accepted transaction in flight, forwarding it on a fixed
// interval until it is confirmed, its blockhash expires or it runs out of retries.
type Txm struct {
	services.Service
	eng *services.Engine

	lggr  logger.SugaredLogger
	cfg   Config
	clock clockwork.Clock
	hooks []OutcomeHook

	store     *TxStore
	forwarder Forwarder
	oracle    ConfirmationOracle
	slots     SlotTracker
	workers   chan struct{} // one token per running record
}

// Request is a decoded transaction handed over by the ingestion path.
type Request struct {
	Wire       []byte              // raw signed bytes
	Tx         *solana.Transaction // decoded view of Wire
	MaxRetries *uint               // optional: overrides Config.DefaultMaxRetries
	Commitment rpc.CommitmentType  // optional: empty uses the oracle's default commitment
}

type Option func(*Txm)

// WithClock replaces the clock used for resend scheduling and latency.
func WithClock(clock clockwork.Clock) Option {
	return func(t *Txm) {
		t.clock = clock
	}
}

// WithOutcomeHook registers a hook called once per terminal event.
func WithOutcomeHook(hook OutcomeHook) Option {
	return func(t *Txm) {
		t.hooks = append(t.hooks, hook)
	}
}

func New(lggr logger.Logger, forwarder Forwarder, oracle ConfirmationOracle, slots SlotTracker, cfg Config, opts ...Option) *Txm {
	t := &Txm{
		lggr:      logger.Sugared(logger.Named(lggr, "Txm")),
		cfg:       cfg.withDefaults(),
		clock:     clockwork.NewRealClock(),
		store:     NewTxStore(),
		forwarder: forwarder,
		oracle:    oracle,
		slots:     slots,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.workers = make(chan struct{}, t.cfg.MaxSweepWorkers)

	t.Service, t.eng = services.Config{
		Name:  "Txm",
		Start: t.start,
	}.NewServiceEngine(lggr)
	return t
}

func (t *Txm) start(_ context.Context) error {
	t.lggr.Debugw("starting sweep loop", "sweepInterval", t.cfg.SweepInterval, "resendInterval", t.cfg.ResendInterval)
	t.eng.GoTick(services.NewTicker(t.cfg.SweepInterval), t.sweep)
	return nil
}

// Enqueue accepts a transaction for relaying and returns its signature without
// waiting for any delivery attempt.
func (t *Txm) Enqueue(request Request) (string, error) {
	if len(request.Wire) == 0 {
		return "", ErrEmptyPayload
	}
	if request.Tx == nil || len(request.Tx.Signatures) == 0 {
		return "", ErrMissingSignature
	}

	maxRetries := t.cfg.DefaultMaxRetries
	if request.MaxRetries != nil {
		maxRetries = *request.MaxRetries
	}

	tx := &Tx{
		Signature:  request.Tx.Signatures[0].String(),
		Wire:       request.Wire,
		Tx:         request.Tx,
		SentAt:     t.clock.Now(),
		SentAtUnix: time.Now().Round(0),
		MaxRetries: maxRetries,
		Commitment: request.Commitment,
	}

	if slot, ok := t.slots.BlockhashSlot(tx.RecentBlockhash()); ok {
		tx.setReferenceSlot(slot)
	}

	if err := t.store.Add(tx); err != nil {
		promDuplicates.Inc()
		return "", err
	}
	promEnqueued.Inc()
	promInflight.Set(float64(t.store.InflightCount()))

	t.lggr.Debugw("transaction enqueued", "signature", tx.Signature, "maxRetries", maxRetries, "commitment", request.Commitment)
	return tx.Signature, nil
}

func (t *Txm) InflightCount() int {
	return t.store.InflightCount()
}

// Get returns the in-flight transaction for signature.
func (t *Txm) Get(signature string) (*Tx, bool) {
	return t.store.Get(signature)
}

func (t *Txm) sweep(ctx context.Context) {
	t.dispatch(ctx)
}

// dispatch hands every idle record to a worker and returns without waiting for
// them. A record still being processed from an earlier sweep is skipped, so a
// slow RPC call only holds back its own record.
func (t *Txm) dispatch(ctx context.Context) *sync.WaitGroup {
	start := t.clock.Now()
	var wg sync.WaitGroup
	for _, tx := range t.store.Snapshot() {
		if !tx.tryAcquire() {
			promBusySkips.Inc()
			continue
		}
		select {
		case t.workers <- struct{}{}:
		case <-ctx.Done():
			tx.release()
			return &wg
		}
		wg.Add(1)
		t.eng.Go(func(ctx context.Context) {
			defer wg.Done()
			defer func() {
				<-t.workers
				tx.release()
			}()
			t.process(ctx, tx)
		})
	}

	promInflight.Set(float64(t.store.InflightCount()))
	promSweepDuration.Observe(t.clock.Since(start).Seconds())
	return &wg
}

func (t *Txm) process(ctx context.Context, tx *Tx) {
	if live, ok := t.store.Get(tx.Signature); !ok || live != tx {
		return
	}

	if blockTime, ok := t.confirmed(ctx, tx); ok {
		t.finish(tx, Confirmed, blockTime)
		return
	}

	if last := tx.LastSentAt(); !last.IsZero() && t.clock.Since(last) < t.cfg.ResendInterval {
		return
	}

	if t.blockhashExpired(ctx, tx) {
		t.finish(tx, Expired, time.Time{})
		return
	}

	if !tx.markSent(t.clock.Now()) {
		t.finish(tx, RetriesExhausted, time.Time{})
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, t.cfg.RPCTimeout)
	defer cancel()
	if err := t.forwarder.SendTransaction(sendCtx, tx.Wire); err != nil {
		promForwards.WithLabelValues("error").Inc()
		t.lggr.Warnw("failed to forward transaction", "signature", tx.Signature, "attempt", tx.RetryCount(), "err", err)
		return
	}
	promForwards.WithLabelValues("ok").Inc()
	t.lggr.Debugw("transaction forwarded", "signature", tx.Signature, "attempt", tx.RetryCount())
}

// blockhashExpired reports whether the blockhash tx was signed against can no
// longer land. A blockhash the slot tracker never saw is checked against the
// cluster, and only a conclusive answer expires the record.
func (t *Txm) blockhashExpired(ctx context.Context, tx *Tx) bool {
	slot, slotKnown := t.slots.LatestSlot()

	ref, ok := tx.ReferenceSlot()
	if !ok {
		if observed, seen := t.slots.BlockhashSlot(tx.RecentBlockhash()); seen {
			ref, ok = tx.ensureReferenceSlot(observed), true
		}
	}
	if !ok {
		valid, err := t.blockhashValid(ctx, tx)
		if err != nil {
			promValidityErrors.Inc()
			t.lggr.Debugw("blockhash validity inconclusive", "signature", tx.Signature, "blockhash", tx.RecentBlockhash(), "err", err)
			return false
		}
		if !valid {
			return true
		}
		if !slotKnown {
			return false
		}
		ref = tx.ensureReferenceSlot(slot)
	}
	return slotKnown && slot > ref+t.cfg.BlockhashValiditySlots
}

func (t *Txm) blockhashValid(ctx context.Context, tx *Tx) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.RPCTimeout)
	defer cancel()
	return t.slots.BlockhashValid(ctx, tx.RecentBlockhash())
}

// confirmed treats oracle errors as not yet confirmed.
func (t *Txm) confirmed(ctx context.Context, tx *Tx) (time.Time, bool) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.RPCTimeout)
	defer cancel()

	var (
		blockTime time.Time
		ok        bool
		err       error
	)
	if tx.Commitment == "" {
		blockTime, ok, err = t.oracle.ConfirmTransaction(ctx, tx.Signature)
	} else {
		blockTime, ok, err = t.oracle.ConfirmTransactionWithCommitment(ctx, tx.Signature, tx.Commitment)
	}
	if err != nil {
		promOracleErrors.Inc()
		t.lggr.Debugw("confirmation check inconclusive", "signature", tx.Signature, "err", err)
		return time.Time{}, false
	}
	return blockTime, ok
}

func (t *Txm) finish(tx *Tx, cause TerminalCause, confirmedAt time.Time) {
	if _, ok := t.store.Remove(tx.Signature); !ok {
		return
	}

	outcome := Outcome{
		Signature:   tx.Signature,
		Cause:       cause,
		RetryCount:  tx.RetryCount(),
		Latency:     t.clock.Since(tx.SentAt),
		ConfirmedAt: confirmedAt,
	}
	observeOutcome(outcome)

	fields := []any{"signature", outcome.Signature, "cause", cause.String(), "retryCount", outcome.RetryCount, "latency", outcome.Latency}
	if cause == Confirmed {
		fields = append(fields, "confirmedAt", confirmedAt, "sinceSubmit", confirmedAt.Sub(tx.SentAtUnix))
	}
	t.lggr.Infow("transaction finished", fields...)

	for _, hook := range t.hooks {
		hook(outcome)
	}
}
