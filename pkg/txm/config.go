package txm

import (
	"time"
)

type Config struct {
	SweepInterval          time.Duration // Interval between sweeps over in-flight transactions
	ResendInterval         time.Duration // Minimum delay between two forwards of the same transaction
	DefaultMaxRetries      uint          // Resend cap when the caller does not supply one
	BlockhashValiditySlots uint64        // Slots a blockhash stays usable after it was produced
	MaxSweepWorkers        int           // Max transactions processed in parallel within one sweep
	RPCTimeout             time.Duration // Deadline for a single oracle or forward call
}

var DefaultConfigSet = Config{
	SweepInterval:          200 * time.Millisecond,
	ResendInterval:         2 * time.Second,
	DefaultMaxRetries:      5,
	BlockhashValiditySlots: 150,
	MaxSweepWorkers:        64,
	RPCTimeout:             5 * time.Second,
}

func (c Config) withDefaults() Config {
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultConfigSet.SweepInterval
	}
	if c.ResendInterval < 0 {
		c.ResendInterval = DefaultConfigSet.ResendInterval
	}
	if c.BlockhashValiditySlots == 0 {
		c.BlockhashValiditySlots = DefaultConfigSet.BlockhashValiditySlots
	}
	if c.MaxSweepWorkers <= 0 {
		c.MaxSweepWorkers = DefaultConfigSet.MaxSweepWorkers
	}
	if c.RPCTimeout <= 0 {
		c.RPCTimeout = DefaultConfigSet.RPCTimeout
	}
	return c
}
