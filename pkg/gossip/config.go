package gossip

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the protocol timings and pool capacities.
type Config struct {
	// TickInterval is how often Run calls DoWork when idle.
	TickInterval time.Duration
	// DisseminationInterval is the pause between two gossip rounds.
	DisseminationInterval time.Duration
	// DisseminationTimeout bounds a direct push-pull exchange.
	DisseminationTimeout time.Duration
	// FailureDetectionTimeout bounds an indirect probe sent to a relay.
	FailureDetectionTimeout time.Duration
	// ProbeTimeout bounds the gossip a relay sends to the suspect.
	ProbeTimeout time.Duration
	// SuspicionTimeout is how long a peer stays SUSPECT before it is
	// declared DEAD.
	SuspicionTimeout time.Duration

	DisseminatorCapacity    int
	FailureDetectorCapacity int
	// RelayCapacity is the number of relays asked per failure detection.
	RelayCapacity int
	ProbeCapacity int

	// InboxSize bounds the inbound requests waiting for the next tick.
	InboxSize int
	// PersistInterval is how often the peer list is snapshotted; zero
	// disables persistence.
	PersistInterval time.Duration

	TieBreak TieBreak
}

func DefaultConfig() Config {
	return Config{
		TickInterval:            50 * time.Millisecond,
		DisseminationInterval:   time.Second,
		DisseminationTimeout:    500 * time.Millisecond,
		FailureDetectionTimeout: time.Second,
		ProbeTimeout:            500 * time.Millisecond,
		SuspicionTimeout:        5 * time.Second,
		DisseminatorCapacity:    1,
		FailureDetectorCapacity: 3,
		RelayCapacity:           3,
		ProbeCapacity:           3,
		InboxSize:               256,
		PersistInterval:         30 * time.Second,
		TieBreak:                TieBreakSeverity,
	}
}

func (c Config) Validate() error {
	var errs []error
	positive := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	positive("tick interval", c.TickInterval)
	positive("dissemination interval", c.DisseminationInterval)
	positive("dissemination timeout", c.DisseminationTimeout)
	positive("failure detection timeout", c.FailureDetectionTimeout)
	positive("probe timeout", c.ProbeTimeout)
	positive("suspicion timeout", c.SuspicionTimeout)
	if c.PersistInterval < 0 {
		errs = append(errs, fmt.Errorf("persist interval must not be negative, got %s", c.PersistInterval))
	}

	atLeastOne := func(name string, n int) {
		if n < 1 {
			errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", name, n))
		}
	}
	atLeastOne("disseminator capacity", c.DisseminatorCapacity)
	atLeastOne("failure detector capacity", c.FailureDetectorCapacity)
	atLeastOne("relay capacity", c.RelayCapacity)
	atLeastOne("probe capacity", c.ProbeCapacity)
	atLeastOne("inbox size", c.InboxSize)
	if c.TieBreak > TieBreakLiveness {
		errs = append(errs, fmt.Errorf("unknown tie-break policy %d", c.TieBreak))
	}
	return errors.Join(errs...)
}
