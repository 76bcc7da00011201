package client

import (
	"context"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

var _ ReaderWriter = (*rpc.Client)(nil)

type Reader interface {
	GetHealth(ctx context.Context) (string, error)
	GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetBlockTime(ctx context.Context, block uint64) (*solana.UnixTimeSeconds, error)
	IsBlockhashValid(ctx context.Context, blockHash solana.Hash, commitment rpc.CommitmentType) (*rpc.IsValidBlockhashResult, error)
}

type Writer interface {
	SendRawTransactionWithOpts(ctx context.Context, transaction []byte, opts rpc.TransactionOpts) (solana.Signature, error)
}

type ReaderWriter interface {
	Reader
	Writer
}
