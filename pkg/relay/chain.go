package relay

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go/rpc"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"
	"github.com/smartcontractkit/chainlink-common/pkg/services"
	commonutils "github.com/smartcontractkit/chainlink-common/pkg/utils"

	"github.com/smartcontractkit/solana-txsender/pkg/client"
	"github.com/smartcontractkit/solana-txsender/pkg/config"
	"github.com/smartcontractkit/solana-txsender/pkg/slot"
	"github.com/smartcontractkit/solana-txsender/pkg/txm"
)

type Chain interface {
	services.Service

	ID() string
	TxManager() TxManager
	SlotTracker() txm.SlotTracker
	GetClient(ctx context.Context) (client.ReaderWriter, error)
}

type ChainOpts struct {
	Logger logger.Logger
	// NewClient dials a node, defaults to an HTTP JSON-RPC client.
	NewClient func(url string) client.ReaderWriter
}

var _ Chain = (*chain)(nil)

type cachedClient struct {
	client    client.ReaderWriter
	timestamp time.Time
}

type chain struct {
	starter commonutils.StartStopOnce

	id   string
	cfg  *config.TOMLConfig
	lggr logger.SugaredLogger

	newClient   func(url string) client.ReaderWriter
	multiClient *client.MultiClient
	slots       *slot.Tracker
	txm         *txm.Txm

	clientCache map[string]*cachedClient // by node name
	cacheMu     sync.Mutex
}

func NewChain(cfg *config.TOMLConfig, opts ChainOpts) (Chain, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("cannot create new chain with ID %s: chain is disabled", *cfg.ChainID)
	}
	return newChain(cfg, opts)
}

func newChain(cfg *config.TOMLConfig, opts ChainOpts) (*chain, error) {
	if len(cfg.Nodes) == 0 {
		return nil, errors.New("no nodes configured")
	}

	lggr := logger.With(opts.Logger, "chainID", *cfg.ChainID)
	newClient := opts.NewClient
	if newClient == nil {
		newClient = func(url string) client.ReaderWriter { return rpc.New(url) }
	}

	ch := &chain{
		id:          *cfg.ChainID,
		cfg:         cfg,
		lggr:        logger.Sugared(logger.Named(lggr, "Chain")),
		newClient:   newClient,
		clientCache: map[string]*cachedClient{},
	}

	var commitment rpc.CommitmentType
	if cfg.TxSender.Commitment != nil {
		commitment = *cfg.TxSender.Commitment
	}
	ch.multiClient = client.NewMultiClient(lggr, ch.GetClient, commitment)

	// every node gets each forward, independent of the read client selection
	writers := make([]client.NamedWriter, 0, len(cfg.Nodes))
	for _, node := range cfg.Nodes {
		writers = append(writers, client.NamedWriter{Name: *node.Name, Writer: newClient(node.URL.String())})
	}
	broadcaster := client.NewBroadcaster(lggr, writers)

	txmCfg := cfg.TxSender.TxmConfig()
	ch.slots = slot.NewTracker(lggr,
		func(context.Context) (slot.Client, error) { return ch.multiClient, nil },
		cfg.TxSender.SlotPollInterval.Duration(),
		txmCfg.RPCTimeout,
		2*txmCfg.BlockhashValiditySlots,
	)
	ch.txm = txm.New(lggr, broadcaster, ch.multiClient, ch.slots, txmCfg)

	return ch, nil
}

func (c *chain) Name() string {
	return c.lggr.Name()
}

func (c *chain) Start(ctx context.Context) error {
	return c.starter.StartOnce("Chain", func() error {
		c.lggr.Debug("Starting slot tracker and txm")

		var ms services.MultiStart
		return ms.Start(ctx, c.slots, c.txm)
	})
}

func (c *chain) Close() error {
	return c.starter.StopOnce("Chain", func() error {
		c.lggr.Debug("Stopping txm and slot tracker")
		return services.CloseAll(c.txm, c.slots)
	})
}

func (c *chain) Ready() error {
	return errors.Join(c.starter.Ready(), c.slots.Ready(), c.txm.Ready())
}

func (c *chain) HealthReport() map[string]error {
	report := map[string]error{c.Name(): c.starter.Healthy()}
	services.CopyHealth(report, c.slots.HealthReport())
	services.CopyHealth(report, c.txm.HealthReport())
	return report
}

func (c *chain) ID() string {
	return c.id
}

func (c *chain) TxManager() TxManager {
	return c.txm
}

func (c *chain) SlotTracker() txm.SlotTracker {
	return c.slots
}

// GetClient returns a client for a random healthy node. Healthy clients are
// reused until ClientTTL runs out.
func (c *chain) GetClient(ctx context.Context) (client.ReaderWriter, error) {
	nodes := c.cfg.Nodes
	if len(nodes) == 0 {
		return nil, errors.New("no nodes available")
	}

	var lastErr error
	for _, i := range rand.Perm(len(nodes)) {
		node := nodes[i]
		if rw, ok := c.cached(*node.Name); ok {
			return rw, nil
		}

		rw, err := c.dial(ctx, node)
		if err != nil {
			lastErr = err
			c.lggr.Warnw("skipping node", "name", *node.Name, "url", node.URL.String(), "err", err)
			continue
		}

		c.cacheMu.Lock()
		c.clientCache[*node.Name] = &cachedClient{client: rw, timestamp: time.Now()}
		c.cacheMu.Unlock()
		c.lggr.Debugw("cached client", "name", *node.Name, "url", node.URL.String())
		return rw, nil
	}

	return nil, fmt.Errorf("no valid Solana nodes available, last error: %w", lastErr)
}

// cached returns the client for name while it is younger than ClientTTL.
func (c *chain) cached(name string) (client.ReaderWriter, bool) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	entry, ok := c.clientCache[name]
	if !ok {
		return nil, false
	}
	if time.Since(entry.timestamp) >= c.cfg.ClientTTL.Duration() {
		delete(c.clientCache, name)
		c.lggr.Debugw("client ttl expired", "name", name)
		return nil, false
	}
	return entry.client, true
}

// dial builds a client for node and checks that it reports healthy.
func (c *chain) dial(ctx context.Context, node *config.Node) (client.ReaderWriter, error) {
	rw := c.newClient(node.URL.String())
	health, err := rw.GetHealth(ctx)
	if err != nil {
		return nil, fmt.Errorf("node %s health check failed: %w", *node.Name, err)
	}
	if health != "ok" {
		return nil, fmt.Errorf("node %s reported health %q", *node.Name, health)
	}
	return rw, nil
}
