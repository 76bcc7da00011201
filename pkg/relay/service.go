package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/smartcontractkit/solana-txsender/pkg/codec"
	"github.com/smartcontractkit/solana-txsender/pkg/txm"
)

var ErrPreflightUnsupported = errors.New("running preflight check is not supported")

// SendTransactionParams mirrors the sendTransaction config object of the Solana JSON-RPC API.
type SendTransactionParams struct {
	SkipPreflight       bool                 `json:"skipPreflight"`
	PreflightCommitment *rpc.CommitmentType  `json:"preflightCommitment,omitempty"`
	Encoding            *solana.EncodingType `json:"encoding,omitempty"`
	MaxRetries          *uint                `json:"maxRetries,omitempty"`
	MinContextSlot      *uint64              `json:"minContextSlot,omitempty"`
}

type Service struct {
	chain Chain
}

func NewService(chain Chain) Service {
	return Service{
		chain: chain,
	}
}

func (s *Service) Health(_ context.Context) string {
	return "ok"
}

// SendTransaction decodes an encoded signed transaction, hands it to the
// transaction manager and returns its signature. Delivery happens in the background.
func (s *Service) SendTransaction(_ context.Context, encoded string, params SendTransactionParams) (string, error) {
	if !params.SkipPreflight {
		return "", ErrPreflightUnsupported
	}

	var encoding solana.EncodingType
	if params.Encoding != nil {
		encoding = *params.Encoding
	}
	wire, tx, err := codec.DecodeTransaction(encoded, encoding)
	if err != nil {
		return "", err
	}

	request := txm.Request{
		Wire:       wire,
		Tx:         tx,
		MaxRetries: params.MaxRetries,
	}
	if params.PreflightCommitment != nil {
		request.Commitment = *params.PreflightCommitment
	}

	signature, err := s.chain.TxManager().Enqueue(request)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue transaction: %w", err)
	}
	return signature, nil
}

// InflightCount returns the number of transactions still being relayed.
func (s *Service) InflightCount() int {
	return s.chain.TxManager().InflightCount()
}
