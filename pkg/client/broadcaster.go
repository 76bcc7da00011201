package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/sync/errgroup"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"

	"github.com/smartcontractkit/solana-txsender/pkg/txm"
)

var _ txm.Forwarder = (*Broadcaster)(nil)

var ErrNoNodes = errors.New("no nodes configured")

// NamedWriter is a Writer tagged with the node name it talks to.
type NamedWriter struct {
	Name   string
	Writer Writer
}

// Broadcaster forwards raw transactions to every configured node at once.
// Nodes relay to the current leader, so any accepting node is enough.
type Broadcaster struct {
	lggr    logger.SugaredLogger
	writers []NamedWriter
}

func NewBroadcaster(lggr logger.Logger, writers []NamedWriter) *Broadcaster {
	return &Broadcaster{
		lggr:    logger.Sugared(logger.Named(lggr, "Broadcaster")),
		writers: writers,
	}
}

// SendTransaction succeeds when at least one node accepted the payload.
func (b *Broadcaster) SendTransaction(ctx context.Context, wire []byte) error {
	if len(b.writers) == 0 {
		return ErrNoNodes
	}

	// retries are driven by the sender, preflight was the caller's job
	maxRetries := uint(0)
	opts := rpc.TransactionOpts{
		SkipPreflight: true,
		MaxRetries:    &maxRetries,
	}

	var (
		g        errgroup.Group
		mu       sync.Mutex
		errs     []error
		accepted int
	)
	for _, w := range b.writers {
		// a plain Group: one node failing must not cancel the others
		g.Go(func() error {
			sig, err := w.Writer.SendRawTransactionWithOpts(ctx, wire, opts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("node %s: %w", w.Name, err))
				return nil
			}
			accepted++
			b.lggr.Debugw("node accepted transaction", "node", w.Name, "signature", sig.String())
			return nil
		})
	}
	_ = g.Wait()

	if accepted > 0 {
		if len(errs) > 0 {
			b.lggr.Debugw("some nodes rejected transaction", "accepted", accepted, "err", errors.Join(errs...))
		}
		return nil
	}
	return errors.Join(errs...)
}
