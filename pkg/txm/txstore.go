package txm

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/exp/maps"
)

var ErrDuplicateSignature = errors.New("transaction with this signature is already in flight")

// TxStore tracks in-flight transactions by signature.
type TxStore struct {
	lock sync.RWMutex

	inflight map[string]*Tx
}

func NewTxStore() *TxStore {
	return &TxStore{
		inflight: map[string]*Tx{},
	}
}

// Add stores a new in-flight transaction. A signature that is already live is rejected.
func (s *TxStore) Add(tx *Tx) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, exists := s.inflight[tx.Signature]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSignature, tx.Signature)
	}

	s.inflight[tx.Signature] = tx
	return nil
}

// Remove drops a transaction and returns it. Removing an absent signature is a no-op.
func (s *TxStore) Remove(signature string) (*Tx, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()

	tx, exists := s.inflight[signature]
	if !exists {
		return nil, false
	}

	delete(s.inflight, signature)
	return tx, true
}

// Get returns the live transaction for signature.
func (s *TxStore) Get(signature string) (*Tx, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	tx, exists := s.inflight[signature]
	return tx, exists
}

// Snapshot returns all in-flight transactions sorted by ingestion time ascending.
// The returned slice is owned by the caller.
func (s *TxStore) Snapshot() []*Tx {
	s.lock.RLock()
	inflight := maps.Values(s.inflight)
	s.lock.RUnlock()

	sort.Slice(inflight, func(i, j int) bool {
		return inflight[i].SentAt.Before(inflight[j].SentAt)
	})

	return inflight
}

func (s *TxStore) InflightCount() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.inflight)
}
