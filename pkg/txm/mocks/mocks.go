package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/smartcontractkit/solana-txsender/pkg/txm"
)

var (
	_ txm.Forwarder          = (*Forwarder)(nil)
	_ txm.ConfirmationOracle = (*Oracle)(nil)
	_ txm.SlotTracker        = (*SlotTracker)(nil)
)

// Forwarder records every payload it is asked to send. Err, when set, is
// returned from every call after recording it.
type Forwarder struct {
	mu    sync.Mutex
	sends map[string]int
	total int
	held  map[string]chan struct{}
	Err   error
}

func NewForwarder() *Forwarder {
	return &Forwarder{sends: map[string]int{}, held: map[string]chan struct{}{}}
}

func (f *Forwarder) SendTransaction(ctx context.Context, wire []byte) error {
	f.mu.Lock()
	f.sends[string(wire)]++
	f.total++
	err := f.Err
	held := f.held[string(wire)]
	f.mu.Unlock()

	if held != nil {
		select {
		case <-held:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// Hold makes sends of wire block until the returned func is called or the
// call's context ends.
func (f *Forwarder) Hold(wire []byte) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.held[string(wire)] = ch
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.held, string(wire))
			close(ch)
		})
	}
}

func (f *Forwarder) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

// Sends returns how many times wire was forwarded.
func (f *Forwarder) Sends(wire []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends[string(wire)]
}

func (f *Forwarder) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.total
}

// Oracle answers confirmation queries from an in-memory table.
type Oracle struct {
	mu        sync.Mutex
	confirmed map[string]time.Time
	err       error
	calls     map[string][]rpc.CommitmentType
}

func NewOracle() *Oracle {
	return &Oracle{
		confirmed: map[string]time.Time{},
		calls:     map[string][]rpc.CommitmentType{},
	}
}

func (o *Oracle) Confirm(signature string, blockTime time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.confirmed[signature] = blockTime
}

func (o *Oracle) SetErr(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}

// Calls returns the commitments queried for signature, "" for the default variant.
func (o *Oracle) Calls(signature string) []rpc.CommitmentType {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]rpc.CommitmentType(nil), o.calls[signature]...)
}

func (o *Oracle) ConfirmTransaction(ctx context.Context, signature string) (time.Time, bool, error) {
	return o.ConfirmTransactionWithCommitment(ctx, signature, "")
}

func (o *Oracle) ConfirmTransactionWithCommitment(_ context.Context, signature string, commitment rpc.CommitmentType) (time.Time, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls[signature] = append(o.calls[signature], commitment)
	if o.err != nil {
		return time.Time{}, false, o.err
	}
	blockTime, ok := o.confirmed[signature]
	return blockTime, ok, nil
}

// SlotTracker is a settable slot source. Blockhashes are valid unless marked
// otherwise with SetValidity.
type SlotTracker struct {
	mu          sync.Mutex
	slot        uint64
	known       bool
	blockhashes map[solana.Hash]uint64
	validity    map[solana.Hash]bool
	validityErr error
}

func NewSlotTracker() *SlotTracker {
	return &SlotTracker{
		blockhashes: map[solana.Hash]uint64{},
		validity:    map[solana.Hash]bool{},
	}
}

func (s *SlotTracker) SetValidity(blockhash solana.Hash, valid bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validity[blockhash] = valid
}

func (s *SlotTracker) SetValidityErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validityErr = err
}

func (s *SlotTracker) SetSlot(slot uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slot = slot
	s.known = true
}

func (s *SlotTracker) SetBlockhash(blockhash solana.Hash, slot uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockhashes[blockhash] = slot
}

func (s *SlotTracker) LatestSlot() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slot, s.known
}

func (s *SlotTracker) BlockhashSlot(blockhash solana.Hash) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.blockhashes[blockhash]
	return slot, ok
}

func (s *SlotTracker) BlockhashValid(_ context.Context, blockhash solana.Hash) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.validityErr != nil {
		return false, s.validityErr
	}
	valid, ok := s.validity[blockhash]
	return !ok || valid, nil
}
