package gossip

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type inbound struct {
	req   *Request
	reply *Deferred
}

type query struct {
	fn   func(*PeerList)
	done chan struct{}
}

// Controller schedules the gossip protocol. It owns the PeerList and fixed
// pools of protocol machines; when every slot of a pool is busy new work is
// deferred to a later tick instead of queued.
//
// DoWork and the On* handlers must be called from a single goroutine, which
// Run provides. Enqueue and Query are the only entry points safe to call
// from other goroutines.
type Controller struct {
	cfg      Config
	peers    *PeerList
	shuffled *ShuffledPeerList

	disseminations []*Dissemination
	detections     []*FailureDetection
	probes         []*Probe
	suspicion      *Suspicion

	// inboxMu orders sends on inbox against close(stopped), so nothing is
	// queued after shutdown drains it.
	inboxMu  sync.Mutex
	inbox    chan inbound
	queries  chan query
	wake     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	writer  SnapshotWriter
	metrics Metrics
	now     func() time.Time
	log     *zap.Logger

	lastDissemination time.Time
	lastPersist       time.Time
}

// NewController builds a controller for the node reachable at endpoint.
// cfg must be valid.
func NewController(cfg Config, endpoint string, transport Transport, opts ...Option) *Controller {
	o := options{
		log:     zap.NewNop(),
		now:     time.Now,
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.generation == 0 {
		o.generation = o.now().UnixMilli()
	}
	log := o.log.With(zap.String("local", endpoint))

	peers := NewPeerList(PeerRecord{Endpoint: endpoint, Generation: o.generation}, o.now)
	peers.SetTieBreak(cfg.TieBreak)
	shuffled := NewShuffledPeerList(peers, o.rnd)

	c := &Controller{
		cfg:       cfg,
		peers:     peers,
		shuffled:  shuffled,
		suspicion: NewSuspicion(peers, cfg.SuspicionTimeout, o.now, log),
		inbox:     make(chan inbound, cfg.InboxSize),
		queries:   make(chan query, 16),
		wake:      make(chan struct{}, 1),
		stopped:   make(chan struct{}),
		writer:    o.writer,
		metrics:   o.metrics,
		now:       o.now,
		log:       log,
	}
	c.lastPersist = o.now()

	c.detections = make([]*FailureDetection, cfg.FailureDetectorCapacity)
	for i := range c.detections {
		relays := make([]Requestor, cfg.RelayCapacity)
		for j := range relays {
			relays[j] = transport.NewRequestor(cfg.FailureDetectionTimeout)
		}
		c.detections[i] = newFailureDetection(peers, shuffled, relays, log)
	}
	c.disseminations = make([]*Dissemination, cfg.DisseminatorCapacity)
	for i := range c.disseminations {
		c.disseminations[i] = newDissemination(peers, shuffled,
			transport.NewRequestor(cfg.DisseminationTimeout), c.startFailureDetection, log)
	}
	c.probes = make([]*Probe, cfg.ProbeCapacity)
	for i := range c.probes {
		c.probes[i] = newProbe(peers, transport.NewRequestor(cfg.ProbeTimeout), log)
	}
	return c
}

// Peers exposes the peer list to the controller goroutine.
func (c *Controller) Peers() *PeerList { return c.peers }

func (c *Controller) Endpoint() string { return c.peers.Local().Endpoint }

// AddSeeds registers bootstrap peers as ALIVE at generation zero, so any
// record they announce about themselves supersedes the seed entry. Call it
// before Run.
func (c *Controller) AddSeeds(endpoints []string) {
	for _, ep := range endpoints {
		if ep == "" || ep == c.Endpoint() {
			continue
		}
		if _, added := c.peers.Insert(PeerRecord{Endpoint: ep, State: StateAlive}); added {
			c.log.Debug("seed added", zap.String("endpoint", ep))
		}
	}
}

// Restore loads a persisted peer list. The local record is skipped, but a
// stored local generation at or above the current one moves the local
// generation past it. Call it before Run.
func (c *Controller) Restore(s Snapshot) {
	self := c.peers.Local()
	for _, rec := range s.Peers {
		if rec.Endpoint == self.Endpoint {
			if rec.Generation >= self.Incarnation.Generation {
				self.Incarnation = Incarnation{Generation: rec.Generation + 1}
			}
			continue
		}
		c.peers.Insert(rec)
	}
	c.log.Info("peer list restored",
		zap.Int("peers", len(s.Peers)),
		zap.Stringer("incarnation", self.Incarnation))
}

// DoWork runs one non-blocking protocol tick and returns the work done.
func (c *Controller) DoWork() int {
	work := c.advance()
	work += c.ScheduleNextDissemination()
	work += c.suspicion.Process()
	work += c.drainInbox()
	work += c.persist()
	return work
}

func (c *Controller) advance() int {
	work := 0
	for _, d := range c.disseminations {
		work += d.Execute()
		if d.Done() {
			c.metrics.DisseminationFinished(disseminationOutcome(d.State()))
			d.Close()
		}
	}
	for _, f := range c.detections {
		work += f.Execute()
		if f.Done() {
			c.metrics.FailureDetectionFinished(failureDetectionOutcome(f.State()))
			f.Close()
		}
	}
	for _, p := range c.probes {
		work += p.Execute()
		if p.Done() {
			c.metrics.ProbeFinished(probeOutcome(p.State()))
			p.Close()
		}
	}
	return work
}

// ScheduleNextDissemination starts a gossip round once the dissemination
// interval has elapsed. It is a no-op while every disseminator is busy; the
// round is then retried on the next tick.
func (c *Controller) ScheduleNextDissemination() int {
	now := c.now()
	if !c.lastDissemination.IsZero() && now.Sub(c.lastDissemination) < c.cfg.DisseminationInterval {
		return 0
	}
	d := c.freeDissemination()
	if d == nil {
		return 0
	}
	c.peers.Heartbeat()
	if err := d.Begin(); err != nil {
		c.log.Error("dissemination not started", zap.Error(err))
		return 0
	}
	c.lastDissemination = now
	c.metrics.Peers(c.peers.Count())
	return 1
}

func (c *Controller) freeDissemination() *Dissemination {
	for _, d := range c.disseminations {
		if d.State() == DisseminationClosed {
			return d
		}
	}
	return nil
}

// startFailureDetection hands p to a free detector. It reports false when
// every detector is busy or p is already under investigation.
func (c *Controller) startFailureDetection(p *Peer) bool {
	var free *FailureDetection
	for _, f := range c.detections {
		if f.Suspect() == p.Endpoint {
			return false
		}
		if free == nil && f.State() == FailureDetectionClosed {
			free = f
		}
	}
	if free == nil {
		c.log.Debug("no failure detector free", zap.String("endpoint", p.Endpoint))
		return false
	}
	if err := free.Begin(p); err != nil {
		c.log.Error("failure detection not started", zap.Error(err))
		return false
	}
	return true
}

// OnGossipRequest merges the caller's peer list and answers with every
// record this node holds fresher, the refuted local record included.
func (c *Controller) OnGossipRequest(req *Request, reply *Deferred) {
	changed := c.peers.Merge(req.Peers, nil)
	// The refuted local record goes back even when the caller holds it DEAD.
	var diff []PeerRecord
	for _, rec := range changed {
		if rec.Endpoint == c.Endpoint() {
			diff = append(diff, rec)
		}
	}
	diff = c.peers.DiffAgainst(req.Peers, diff)
	if len(changed) > 0 {
		c.log.Debug("gossip merged", zap.String("from", req.From), zap.Int("changed", len(changed)))
	}
	err := reply.Write(&Response{From: c.Endpoint(), Peers: diff})
	if err == nil {
		err = reply.Commit()
	}
	if err != nil {
		c.log.Debug("gossip reply dropped", zap.String("from", req.From), zap.Error(err))
		reply.Abort()
	}
}

// OnProbeRequest hands the request to a free probe. Without a free probe the
// request is dropped and the caller times out.
func (c *Controller) OnProbeRequest(req *Request, reply *Deferred) {
	if req.Target == "" {
		reply.Abort()
		return
	}
	if req.Target == c.Endpoint() {
		c.OnGossipRequest(&Request{From: req.From}, reply)
		return
	}
	p := c.freeProbe()
	if p == nil {
		c.metrics.InboundDropped(MsgProbe)
		c.log.Debug("probe dropped, pool exhausted", zap.String("from", req.From), zap.String("target", req.Target))
		reply.Abort()
		return
	}
	if err := p.Begin(req.Target, reply); err != nil {
		c.log.Error("probe not started", zap.Error(err))
		reply.Abort()
	}
}

func (c *Controller) freeProbe() *Probe {
	for _, p := range c.probes {
		if p.State() == ProbeClosed {
			return p
		}
	}
	return nil
}

// Enqueue hands an inbound request to the controller goroutine. The reply
// arrives on the returned Deferred; an aborted Deferred means no reply.
func (c *Controller) Enqueue(req *Request) (*Deferred, error) {
	c.inboxMu.Lock()
	defer c.inboxMu.Unlock()
	select {
	case <-c.stopped:
		return nil, ErrControllerStopped
	default:
	}
	d := NewDeferred()
	select {
	case c.inbox <- inbound{req: req, reply: d}:
	default:
		c.metrics.InboundDropped(req.Type)
		return nil, ErrInboxFull
	}
	c.signal()
	return d, nil
}

// Query runs fn against the peer list on the controller goroutine and waits
// for it. fn must not retain the list.
func (c *Controller) Query(ctx context.Context, fn func(*PeerList)) error {
	q := query{fn: fn, done: make(chan struct{})}
	select {
	case c.queries <- q:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrControllerStopped
	}
	c.signal()
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrControllerStopped
	}
}

func (c *Controller) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) drainInbox() int {
	work := 0
	for n := cap(c.inbox); n > 0; n-- {
		select {
		case in := <-c.inbox:
			c.dispatch(in)
			work++
		case q := <-c.queries:
			q.fn(c.peers)
			close(q.done)
			work++
		default:
			return work
		}
	}
	return work
}

func (c *Controller) dispatch(in inbound) {
	switch in.req.Type {
	case MsgGossip:
		c.OnGossipRequest(in.req, in.reply)
	case MsgProbe:
		c.OnProbeRequest(in.req, in.reply)
	default:
		c.log.Warn("unknown request type", zap.Uint8("type", uint8(in.req.Type)), zap.String("from", in.req.From))
		in.reply.Abort()
	}
}

func (c *Controller) persist() int {
	if c.writer == nil || c.cfg.PersistInterval <= 0 {
		return 0
	}
	now := c.now()
	if now.Sub(c.lastPersist) < c.cfg.PersistInterval {
		return 0
	}
	c.lastPersist = now
	data, err := EncodeSnapshot(c.Endpoint(), c.peers.Records())
	if err == nil {
		err = c.writer.Write(data)
	}
	if err != nil {
		c.metrics.SnapshotFailed()
		c.log.Warn("peer list snapshot failed", zap.Error(err))
	}
	return 1
}

// Run drives DoWork until ctx is cancelled, waking every tick interval or
// as soon as a request is enqueued. On exit every machine is closed and
// queued requests are aborted.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()
	defer c.shutdown()

	c.log.Info("gossip started",
		zap.Stringer("incarnation", c.peers.Local().Incarnation),
		zap.Int("peers", c.peers.Len()))
	for {
		c.DoWork()
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-c.wake:
		}
	}
}

func (c *Controller) shutdown() {
	c.stopOnce.Do(func() {
		for _, d := range c.disseminations {
			d.Close()
		}
		for _, f := range c.detections {
			f.Close()
		}
		for _, p := range c.probes {
			if p.reply != nil {
				p.reply.Abort()
			}
			p.Close()
		}
		c.inboxMu.Lock()
		close(c.stopped)
		c.inboxMu.Unlock()
		for {
			select {
			case in := <-c.inbox:
				in.reply.Abort()
			default:
				c.log.Info("gossip stopped")
				return
			}
		}
	})
}

func disseminationOutcome(s DisseminationState) string {
	switch s {
	case DisseminationAcknowledged:
		return OutcomeAcknowledged
	case DisseminationSelectionFailed:
		return OutcomeSelectionFailed
	default:
		return OutcomeFailed
	}
}

func failureDetectionOutcome(s FailureDetectionState) string {
	if s == FailureDetectionAcknowledged {
		return OutcomeAcknowledged
	}
	return OutcomeFailed
}

func probeOutcome(s ProbeState) string {
	if s == ProbeAcknowledged {
		return OutcomeAcknowledged
	}
	return OutcomeFailed
}
