package gossip

// Outcome labels reported to Metrics.
const (
	OutcomeAcknowledged    = "acknowledged"
	OutcomeFailed          = "failed"
	OutcomeSelectionFailed = "selection_failed"
	OutcomeDropped         = "dropped"
)

// Metrics receives protocol events. Implementations must be cheap and safe
// for concurrent use: InboundDropped is also called from transport
// goroutines.
type Metrics interface {
	DisseminationFinished(outcome string)
	FailureDetectionFinished(outcome string)
	ProbeFinished(outcome string)
	InboundDropped(kind MsgType)
	SnapshotFailed()
	Peers(alive, suspect, dead int)
}

type nopMetrics struct{}

func (nopMetrics) DisseminationFinished(string)    {}
func (nopMetrics) FailureDetectionFinished(string) {}
func (nopMetrics) ProbeFinished(string)            {}
func (nopMetrics) InboundDropped(MsgType)          {}
func (nopMetrics) SnapshotFailed()                 {}
func (nopMetrics) Peers(int, int, int)             {}
