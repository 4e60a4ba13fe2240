package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ryandielhenn/zephyrgossip/pkg/gossip"
)

var (
	gossipRounds = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gossip",
			Name:      "dissemination_rounds_total",
			Help:      "Push-pull rounds by outcome.",
		},
		[]string{"outcome"},
	)

	failureDetections = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gossip",
			Name:      "failure_detections_total",
			Help:      "Indirect failure detections by outcome.",
		},
		[]string{"outcome"},
	)

	probes = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gossip",
			Name:      "probes_total",
			Help:      "Indirect probes served for other nodes, by outcome.",
		},
		[]string{"outcome"},
	)

	inboundDropped = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gossip",
			Name:      "inbound_dropped_total",
			Help:      "Inbound requests dropped because a queue or pool was full.",
		},
		[]string{"type"},
	)

	snapshotFailures = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gossip",
			Name:      "snapshot_failures_total",
			Help:      "Peer list snapshots that could not be handed to storage.",
		},
	)

	peers = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gossip",
			Name:      "peers",
			Help:      "Known peers by state, local node included.",
		},
		[]string{"state"},
	)
)

// GossipMetrics reports protocol events to the package registry. It
// implements gossip.Metrics.
type GossipMetrics struct{}

var _ gossip.Metrics = GossipMetrics{}

func (GossipMetrics) DisseminationFinished(outcome string) {
	gossipRounds.WithLabelValues(outcome).Inc()
}

func (GossipMetrics) FailureDetectionFinished(outcome string) {
	failureDetections.WithLabelValues(outcome).Inc()
}

func (GossipMetrics) ProbeFinished(outcome string) {
	probes.WithLabelValues(outcome).Inc()
}

func (GossipMetrics) InboundDropped(kind gossip.MsgType) {
	inboundDropped.WithLabelValues(kind.String()).Inc()
}

func (GossipMetrics) SnapshotFailed() { snapshotFailures.Inc() }

func (GossipMetrics) Peers(alive, suspect, dead int) {
	peers.WithLabelValues(gossip.StateAlive.String()).Set(float64(alive))
	peers.WithLabelValues(gossip.StateSuspect.String()).Set(float64(suspect))
	peers.WithLabelValues(gossip.StateDead.String()).Set(float64(dead))
}
