package txm

import (
	"time"
)

// TerminalCause is the reason a transaction left the store.
type TerminalCause int

const (
	Confirmed TerminalCause = iota + 1
	Expired
	RetriesExhausted
)

func (c TerminalCause) String() string {
	switch c {
	case Confirmed:
		return "Confirmed"
	case Expired:
		return "Expired"
	case RetriesExhausted:
		return "RetriesExhausted"
	default:
		return "Unknown"
	}
}

// Outcome describes a single terminal event.
type Outcome struct {
	Signature   string
	Cause       TerminalCause
	RetryCount  uint
	Latency     time.Duration // ingestion to terminal event
	ConfirmedAt time.Time     // block time, set for Confirmed only
}

// OutcomeHook observes terminal events. Hooks run on sweep goroutines and must not block.
type OutcomeHook func(Outcome)
