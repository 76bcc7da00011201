package config

import (
	"errors"
	"slices"
	"time"

	"github.com/gagliardetto/solana-go/rpc"

	"github.com/smartcontractkit/chainlink-common/pkg/config"

	"github.com/smartcontractkit/solana-txsender/pkg/txm"
)

var defaultTxSender = TxSender{
	SweepInterval:          config.MustNewDuration(txm.DefaultConfigSet.SweepInterval),
	ResendInterval:         config.MustNewDuration(txm.DefaultConfigSet.ResendInterval),
	DefaultMaxRetries:      ptr(txm.DefaultConfigSet.DefaultMaxRetries),
	BlockhashValiditySlots: ptr(txm.DefaultConfigSet.BlockhashValiditySlots),
	MaxSweepWorkers:        ptr(txm.DefaultConfigSet.MaxSweepWorkers),
	RPCTimeout:             config.MustNewDuration(txm.DefaultConfigSet.RPCTimeout),
	SlotPollInterval:       config.MustNewDuration(400 * time.Millisecond),
	Commitment:             ptr(rpc.CommitmentFinalized),
}

var DefaultConfigSet = Chain{
	TxSender:  defaultTxSender,
	ClientTTL: config.MustNewDuration(10 * time.Minute),
}

type Chain struct {
	TxSender  TxSender
	ClientTTL *config.Duration
}

// TxSender configures the relay loop. Values are fixed for the process lifetime.
type TxSender struct {
	SweepInterval          *config.Duration
	ResendInterval         *config.Duration
	DefaultMaxRetries      *uint
	BlockhashValiditySlots *uint64
	MaxSweepWorkers        *int
	RPCTimeout             *config.Duration
	SlotPollInterval       *config.Duration
	Commitment             *rpc.CommitmentType
}

func (c *Chain) SetDefaults() {
	c.TxSender.setFrom(&defaultTxSender, false)
	if c.ClientTTL == nil {
		c.ClientTTL = DefaultConfigSet.ClientTTL
	}
}

func (c *Chain) SetFrom(f *Chain) {
	c.TxSender.setFrom(&f.TxSender, true)
	if f.ClientTTL != nil {
		c.ClientTTL = f.ClientTTL
	}
}

// setFrom copies fields from f; with override false only unset fields are filled.
func (t *TxSender) setFrom(f *TxSender, override bool) {
	set := func(dst **config.Duration, src *config.Duration) {
		if src != nil && (override || *dst == nil) {
			*dst = src
		}
	}
	set(&t.SweepInterval, f.SweepInterval)
	set(&t.ResendInterval, f.ResendInterval)
	set(&t.RPCTimeout, f.RPCTimeout)
	set(&t.SlotPollInterval, f.SlotPollInterval)
	if f.DefaultMaxRetries != nil && (override || t.DefaultMaxRetries == nil) {
		t.DefaultMaxRetries = f.DefaultMaxRetries
	}
	if f.BlockhashValiditySlots != nil && (override || t.BlockhashValiditySlots == nil) {
		t.BlockhashValiditySlots = f.BlockhashValiditySlots
	}
	if f.MaxSweepWorkers != nil && (override || t.MaxSweepWorkers == nil) {
		t.MaxSweepWorkers = f.MaxSweepWorkers
	}
	if f.Commitment != nil && (override || t.Commitment == nil) {
		t.Commitment = f.Commitment
	}
}

func (t *TxSender) ValidateConfig() (err error) {
	positive := func(name string, d *config.Duration) {
		if d == nil {
			err = errors.Join(err, config.ErrMissing{Name: name, Msg: "required"})
		} else if d.Duration() <= 0 {
			err = errors.Join(err, config.ErrInvalid{Name: name, Value: d.Duration(), Msg: "must be positive"})
		}
	}
	positive("TxSender.SweepInterval", t.SweepInterval)
	positive("TxSender.RPCTimeout", t.RPCTimeout)
	positive("TxSender.SlotPollInterval", t.SlotPollInterval)
	if t.ResendInterval == nil {
		err = errors.Join(err, config.ErrMissing{Name: "TxSender.ResendInterval", Msg: "required"})
	} else if t.ResendInterval.Duration() < 0 {
		err = errors.Join(err, config.ErrInvalid{Name: "TxSender.ResendInterval", Value: t.ResendInterval.Duration(), Msg: "must not be negative"})
	}
	if t.BlockhashValiditySlots != nil && *t.BlockhashValiditySlots == 0 {
		err = errors.Join(err, config.ErrInvalid{Name: "TxSender.BlockhashValiditySlots", Value: 0, Msg: "must be positive"})
	}
	if t.MaxSweepWorkers != nil && *t.MaxSweepWorkers <= 0 {
		err = errors.Join(err, config.ErrInvalid{Name: "TxSender.MaxSweepWorkers", Value: *t.MaxSweepWorkers, Msg: "must be positive"})
	}
	if t.Commitment != nil && !slices.Contains([]rpc.CommitmentType{rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized}, *t.Commitment) {
		err = errors.Join(err, config.ErrInvalid{Name: "TxSender.Commitment", Value: *t.Commitment, Msg: "must be processed, confirmed or finalized"})
	}
	return err
}

// TxmConfig converts the TOML section into the engine configuration.
func (t *TxSender) TxmConfig() txm.Config {
	cfg := txm.DefaultConfigSet
	if t.SweepInterval != nil {
		cfg.SweepInterval = t.SweepInterval.Duration()
	}
	if t.ResendInterval != nil {
		cfg.ResendInterval = t.ResendInterval.Duration()
	}
	if t.DefaultMaxRetries != nil {
		cfg.DefaultMaxRetries = *t.DefaultMaxRetries
	}
	if t.BlockhashValiditySlots != nil {
		cfg.BlockhashValiditySlots = *t.BlockhashValiditySlots
	}
	if t.MaxSweepWorkers != nil {
		cfg.MaxSweepWorkers = *t.MaxSweepWorkers
	}
	if t.RPCTimeout != nil {
		cfg.RPCTimeout = t.RPCTimeout.Duration()
	}
	return cfg
}

type Node struct {
	Name *string
	URL  *config.URL
}

func (n *Node) ValidateConfig() (err error) {
	if n.Name == nil {
		err = errors.Join(err, config.ErrMissing{Name: "Name", Msg: "required for all nodes"})
	} else if *n.Name == "" {
		err = errors.Join(err, config.ErrEmpty{Name: "Name", Msg: "required for all nodes"})
	}
	if n.URL == nil {
		err = errors.Join(err, config.ErrMissing{Name: "URL", Msg: "required for all nodes"})
	} else if n.URL.String() == "" {
		err = errors.Join(err, config.ErrEmpty{Name: "URL", Msg: "required for all nodes"})
	}
	return err
}

type Nodes []*Node

func (ns *Nodes) SetFrom(fs *Nodes) {
	for _, f := range *fs {
		if f.Name == nil {
			*ns = append(*ns, f)
		} else if i := slices.IndexFunc(*ns, func(n *Node) bool {
			return n.Name != nil && *n.Name == *f.Name
		}); i == -1 {
			*ns = append(*ns, f)
		} else {
			setFromNode((*ns)[i], f)
		}
	}
}

func setFromNode(n, f *Node) {
	if f.Name != nil {
		n.Name = f.Name
	}
	if f.URL != nil {
		n.URL = f.URL
	}
}

func ptr[T any](v T) *T {
	return &v
}
