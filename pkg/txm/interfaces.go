package txm

import (
	"context"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Forwarder delivers raw signed transaction bytes toward the network.
type Forwarder interface {
	SendTransaction(ctx context.Context, wire []byte) error
}

// ConfirmationOracle reports when a transaction landed. ok is false while it
// has not been observed at the requested commitment.
type ConfirmationOracle interface {
	ConfirmTransaction(ctx context.Context, signature string) (blockTime time.Time, ok bool, err error)
	ConfirmTransactionWithCommitment(ctx context.Context, signature string, commitment rpc.CommitmentType) (blockTime time.Time, ok bool, err error)
}

// SlotTracker exposes the latest observed slot. ok is false until the tracker has synced.
type SlotTracker interface {
	LatestSlot() (slot uint64, ok bool)
	// BlockhashSlot returns the slot at which blockhash was first observed.
	BlockhashSlot(blockhash solana.Hash) (slot uint64, ok bool)
	// BlockhashValid asks the cluster whether blockhash can still be used.
	BlockhashValid(ctx context.Context, blockhash solana.Hash) (bool, error)
}
