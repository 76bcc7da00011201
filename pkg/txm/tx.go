package txm

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Tx is an in-flight transaction. The exported fields are fixed at ingestion,
// the retry state behind mu is advanced by the sweep.
type Tx struct {
	Signature  string              // base58 of the first signature, store key
	Wire       []byte              // raw signed bytes, resent verbatim
	Tx         *solana.Transaction // decoded view, read only
	SentAt     time.Time           // engine clock reading at ingestion
	SentAtUnix time.Time           // wall clock at ingestion
	MaxRetries uint                // resend cap
	Commitment rpc.CommitmentType  // level confirmation is evaluated at

	busy atomic.Bool // set while a sweep worker owns the record

	mu               sync.Mutex
	retryCount       uint
	lastSentAt       time.Time
	referenceSlot    uint64
	hasReferenceSlot bool
}

func (tx *Tx) tryAcquire() bool {
	return tx.busy.CompareAndSwap(false, true)
}

func (tx *Tx) release() {
	tx.busy.Store(false)
}

// RetryCount returns how many times the transaction has been forwarded.
func (tx *Tx) RetryCount() uint {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.retryCount
}

// LastSentAt returns the engine clock reading of the latest forward, or the zero time.
func (tx *Tx) LastSentAt() time.Time {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.lastSentAt
}

// ReferenceSlot returns the slot the transaction's blockhash is measured from.
func (tx *Tx) ReferenceSlot() (uint64, bool) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.referenceSlot, tx.hasReferenceSlot
}

func (tx *Tx) setReferenceSlot(slot uint64) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.referenceSlot = slot
	tx.hasReferenceSlot = true
}

// ensureReferenceSlot pins the reference slot to slot if none has been resolved yet
// and returns the slot in effect.
func (tx *Tx) ensureReferenceSlot(slot uint64) uint64 {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if !tx.hasReferenceSlot {
		tx.referenceSlot = slot
		tx.hasReferenceSlot = true
	}
	return tx.referenceSlot
}

// markSent records one forward attempt. It refuses to go past MaxRetries.
func (tx *Tx) markSent(at time.Time) bool {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.retryCount >= tx.MaxRetries {
		return false
	}
	tx.retryCount++
	tx.lastSentAt = at
	return true
}

// RecentBlockhash returns the blockhash the transaction was signed against.
func (tx *Tx) RecentBlockhash() solana.Hash {
	if tx.Tx == nil {
		return solana.Hash{}
	}
	return tx.Tx.Message.RecentBlockhash
}
