package relay

import (
	"context"
	"errors"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"
	"github.com/smartcontractkit/chainlink-common/pkg/services"

	"github.com/smartcontractkit/solana-txsender/pkg/txm"
)

var _ TxManager = (*txm.Txm)(nil)

var ErrSlotUnknown = errors.New("latest slot is not known yet")

type TxManager interface {
	services.Service

	Enqueue(request txm.Request) (string, error)
	InflightCount() int
}

var _ services.Service = &Relayer{}

type Relayer struct {
	services.StateMachine
	lggr      logger.Logger
	chain     Chain
	txService Service
}

func NewRelayer(lggr logger.Logger, chain Chain, txService Service) *Relayer {
	return &Relayer{
		lggr:      logger.Named(lggr, "Relayer"),
		chain:     chain,
		txService: txService,
	}
}

func (r *Relayer) Name() string {
	return r.lggr.Name()
}

// Start starts the relayer respecting the context provided.
func (r *Relayer) Start(ctx context.Context) error {
	return r.StartOnce("SolanaRelayer", func() error {
		if r.chain == nil {
			return errors.New("chain is not set for Solana relayer")
		}
		return r.chain.Start(ctx)
	})
}

func (r *Relayer) Close() error {
	return r.StopOnce("SolanaRelayer", func() error {
		return r.chain.Close()
	})
}

func (r *Relayer) Ready() error {
	return r.chain.Ready()
}

// HealthReport includes the chain's services. Until a slot has been observed
// blockhash expiry cannot be evaluated, which is reported as unhealthy.
func (r *Relayer) HealthReport() map[string]error {
	hp := map[string]error{r.Name(): r.Healthy()}
	services.CopyHealth(hp, r.chain.HealthReport())
	if _, ok := r.chain.SlotTracker().LatestSlot(); !ok {
		hp[r.Name()+".LatestSlot"] = ErrSlotUnknown
	}
	return hp
}

func (r *Relayer) TxSender() *Service {
	return &r.txService
}
