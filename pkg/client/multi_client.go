package client

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"

	"github.com/smartcontractkit/solana-txsender/pkg/txm"
)

var (
	_ ReaderWriter           = (*MultiClient)(nil)
	_ txm.ConfirmationOracle = (*MultiClient)(nil)
)

// MultiClient - wrapper over multiple RPCs, the underlying client is picked per call.
// Main purpose is to eliminate need for frequent error handling on selection of a client.
type MultiClient struct {
	lggr       logger.SugaredLogger
	getClient  func(context.Context) (ReaderWriter, error)
	commitment rpc.CommitmentType
}

// NewMultiClient confirms at commitment by default, finalized when empty.
func NewMultiClient(lggr logger.Logger, getClient func(context.Context) (ReaderWriter, error), commitment rpc.CommitmentType) *MultiClient {
	if commitment == "" {
		commitment = rpc.CommitmentFinalized
	}
	return &MultiClient{
		lggr:       logger.Sugared(logger.Named(lggr, "MultiClient")),
		getClient:  getClient,
		commitment: commitment,
	}
}

func (m *MultiClient) GetHealth(ctx context.Context) (string, error) {
	r, err := m.getClient(ctx)
	if err != nil {
		return "", err
	}
	return r.GetHealth(ctx)
}

func (m *MultiClient) GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error) {
	r, err := m.getClient(ctx)
	if err != nil {
		return 0, err
	}
	return r.GetSlot(ctx, commitment)
}

func (m *MultiClient) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	r, err := m.getClient(ctx)
	if err != nil {
		return nil, err
	}
	return r.GetLatestBlockhash(ctx, commitment)
}

func (m *MultiClient) GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	r, err := m.getClient(ctx)
	if err != nil {
		return nil, err
	}
	return r.GetSignatureStatuses(ctx, searchTransactionHistory, transactionSignatures...)
}

func (m *MultiClient) GetBlockTime(ctx context.Context, block uint64) (*solana.UnixTimeSeconds, error) {
	r, err := m.getClient(ctx)
	if err != nil {
		return nil, err
	}
	return r.GetBlockTime(ctx, block)
}

func (m *MultiClient) IsBlockhashValid(ctx context.Context, blockHash solana.Hash, commitment rpc.CommitmentType) (*rpc.IsValidBlockhashResult, error) {
	r, err := m.getClient(ctx)
	if err != nil {
		return nil, err
	}
	return r.IsBlockhashValid(ctx, blockHash, commitment)
}

func (m *MultiClient) SendRawTransactionWithOpts(ctx context.Context, transaction []byte, opts rpc.TransactionOpts) (solana.Signature, error) {
	r, err := m.getClient(ctx)
	if err != nil {
		return solana.Signature{}, err
	}
	return r.SendRawTransactionWithOpts(ctx, transaction, opts)
}

// ConfirmTransaction checks confirmation at the client's default commitment.
func (m *MultiClient) ConfirmTransaction(ctx context.Context, signature string) (time.Time, bool, error) {
	return m.ConfirmTransactionWithCommitment(ctx, signature, m.commitment)
}

// ConfirmTransactionWithCommitment returns the block time of the transaction once its
// status reached commitment. Transactions that landed with an execution error count
// as confirmed: resending them cannot change the outcome.
func (m *MultiClient) ConfirmTransactionWithCommitment(ctx context.Context, signature string, commitment rpc.CommitmentType) (time.Time, bool, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("invalid signature %s: %w", signature, err)
	}

	r, err := m.getClient(ctx)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get client: %w", err)
	}

	res, err := r.GetSignatureStatuses(ctx, false, sig)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("GetSignatureStatuses: %w", err)
	}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return time.Time{}, false, nil
	}

	status := res.Value[0]
	if !Reached(status.ConfirmationStatus, commitment) {
		return time.Time{}, false, nil
	}

	// landed but the node may have no block time yet, fall back to the observation time
	blockTime, err := r.GetBlockTime(ctx, status.Slot)
	if err != nil {
		m.lggr.Debugw("block time unavailable", "signature", signature, "slot", status.Slot, "err", err)
		return time.Now(), true, nil
	}
	if blockTime == nil {
		return time.Now(), true, nil
	}
	return blockTime.Time(), true, nil
}

// Reached reports whether a signature status satisfies the requested commitment.
func Reached(status rpc.ConfirmationStatusType, commitment rpc.CommitmentType) bool {
	return statusLevel(status) >= commitmentLevel(commitment)
}

func statusLevel(status rpc.ConfirmationStatusType) int {
	switch status {
	case rpc.ConfirmationStatusProcessed:
		return 1
	case rpc.ConfirmationStatusConfirmed:
		return 2
	case rpc.ConfirmationStatusFinalized:
		return 3
	default:
		return 0
	}
}

func commitmentLevel(commitment rpc.CommitmentType) int {
	switch commitment {
	case rpc.CommitmentProcessed, "recent":
		return 1
	case rpc.CommitmentFinalized, "max", "root":
		return 3
	default:
		return 2
	}
}
