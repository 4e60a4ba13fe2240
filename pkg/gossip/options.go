package gossip

import (
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

type options struct {
	log        *zap.Logger
	now        func() time.Time
	rnd        *rand.Rand
	writer     SnapshotWriter
	metrics    Metrics
	generation int64
}

type Option func(*options)

func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithClock replaces time.Now; tests use it to drive timeouts.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRand seeds peer selection.
func WithRand(rnd *rand.Rand) Option {
	return func(o *options) { o.rnd = rnd }
}

func WithSnapshotWriter(w SnapshotWriter) Option {
	return func(o *options) { o.writer = w }
}

func WithMetrics(m Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithGeneration overrides the local generation, which defaults to the start
// time in milliseconds.
func WithGeneration(gen int64) Option {
	return func(o *options) { o.generation = gen }
}
