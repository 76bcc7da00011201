package slot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"
	"github.com/smartcontractkit/chainlink-common/pkg/services"

	"github.com/smartcontractkit/solana-txsender/pkg/txm"
)

var _ txm.SlotTracker = (*Tracker)(nil)

type Client interface {
	GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	IsBlockhashValid(ctx context.Context, blockhash solana.Hash, commitment rpc.CommitmentType) (*rpc.IsValidBlockhashResult, error)
}

// Tracker polls the cluster for its latest slot and remembers the slot each
// observed blockhash was produced at.
type Tracker struct {
	services.Service
	eng *services.Engine

	lggr       logger.SugaredLogger
	getClient  func(context.Context) (Client, error)
	pollPeriod time.Duration
	timeout    time.Duration
	retention  uint64 // slots a blockhash is remembered for

	mu          sync.RWMutex
	slot        uint64
	known       bool
	blockhashes map[solana.Hash]uint64
}

func NewTracker(lggr logger.Logger, getClient func(context.Context) (Client, error), pollPeriod, timeout time.Duration, retention uint64) *Tracker {
	tr := &Tracker{
		lggr:        logger.Sugared(logger.Named(lggr, "SlotTracker")),
		getClient:   getClient,
		pollPeriod:  pollPeriod,
		timeout:     timeout,
		retention:   retention,
		blockhashes: map[solana.Hash]uint64{},
	}
	tr.Service, tr.eng = services.Config{
		Name:  "SlotTracker",
		Start: tr.start,
	}.NewServiceEngine(lggr)
	return tr
}

func (tr *Tracker) start(ctx context.Context) error {
	// best effort so the first transactions get a reference slot
	if err := tr.poll(ctx); err != nil {
		tr.lggr.Warnw("initial slot poll failed", "err", err)
	}
	tr.eng.GoTick(services.NewTicker(tr.pollPeriod), func(ctx context.Context) {
		if err := tr.poll(ctx); err != nil {
			tr.lggr.Errorw("slot poll failed", "err", err)
		}
	})
	return nil
}

func (tr *Tracker) poll(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, tr.timeout)
	defer cancel()

	client, err := tr.getClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to get client: %w", err)
	}

	// processed keeps the tracker at the tip, blockhashes handed out at
	// confirmed are older and still found in the table
	slot, err := client.GetSlot(ctx, rpc.CommitmentProcessed)
	if err != nil {
		return fmt.Errorf("GetSlot: %w", err)
	}
	tr.observeSlot(slot)

	latest, err := client.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return fmt.Errorf("GetLatestBlockhash: %w", err)
	}
	if latest != nil && latest.Value != nil {
		tr.ObserveBlockhash(latest.Value.Blockhash, latest.Context.Slot)
	}
	return nil
}

func (tr *Tracker) observeSlot(slot uint64) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.known && slot < tr.slot {
		tr.lggr.Debugw("ignoring slot behind latest", "slot", slot, "latest", tr.slot)
		return
	}
	tr.slot = slot
	tr.known = true
	tr.pruneLocked()
}

// ObserveBlockhash records the slot a blockhash was first seen at.
func (tr *Tracker) ObserveBlockhash(blockhash solana.Hash, slot uint64) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if _, exists := tr.blockhashes[blockhash]; exists {
		return
	}
	tr.blockhashes[blockhash] = slot
	if !tr.known || slot > tr.slot {
		tr.slot = slot
		tr.known = true
	}
	tr.pruneLocked()
}

func (tr *Tracker) pruneLocked() {
	if tr.slot <= tr.retention {
		return
	}
	oldest := tr.slot - tr.retention
	for hash, slot := range tr.blockhashes {
		if slot < oldest {
			delete(tr.blockhashes, hash)
		}
	}
}

func (tr *Tracker) LatestSlot() (uint64, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return tr.slot, tr.known
}

func (tr *Tracker) BlockhashSlot(blockhash solana.Hash) (uint64, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	slot, ok := tr.blockhashes[blockhash]
	return slot, ok
}

// BlockhashValid asks a node whether blockhash is still accepted for new transactions.
func (tr *Tracker) BlockhashValid(ctx context.Context, blockhash solana.Hash) (bool, error) {
	client, err := tr.getClient(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get client: %w", err)
	}
	res, err := client.IsBlockhashValid(ctx, blockhash, rpc.CommitmentProcessed)
	if err != nil {
		return false, fmt.Errorf("IsBlockhashValid: %w", err)
	}
	if res == nil {
		return false, errors.New("IsBlockhashValid: empty result")
	}
	return res.Value, nil
}
