package grpctransport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ryandielhenn/zephyrgossip/pkg/gossip"
)

// Pool keeps one client connection per endpoint and hands out requestors.
// It implements gossip.Transport.
type Pool struct {
	mu       sync.Mutex
	conns    map[string]*grpc.ClientConn
	dialOpts []grpc.DialOption
	log      *zap.Logger
}

// NewPool creates a pool. opts are appended to the defaults (plaintext
// credentials and the gossip codec).
func NewPool(log *zap.Logger, opts ...grpc.DialOption) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}
	return &Pool{
		conns:    make(map[string]*grpc.ClientConn),
		dialOpts: append(dialOpts, opts...),
		log:      log,
	}
}

func (p *Pool) NewRequestor(timeout time.Duration) gossip.Requestor {
	return &requestor{pool: p, timeout: timeout}
}

func (p *Pool) conn(endpoint string) (*grpc.ClientConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.conns[endpoint]; ok {
		return c, nil
	}
	c, err := grpc.NewClient(endpoint, p.dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	p.conns[endpoint] = c
	p.log.Debug("gossip connection opened", zap.String("endpoint", endpoint))
	return c, nil
}

// Close closes every connection.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var result *multierror.Error
	for ep, c := range p.conns {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %s: %w", ep, err))
		}
		delete(p.conns, ep)
	}
	return result.ErrorOrNil()
}

type result struct {
	resp *gossip.Response
	err  error
}

// requestor runs each call on its own goroutine; Execute only polls the
// result channel.
type requestor struct {
	pool    *Pool
	timeout time.Duration

	busy    bool
	cancel  context.CancelFunc
	results chan result
	resp    *gossip.Response
	err     error
}

func (r *requestor) Begin(endpoint string, req *gossip.Request) error {
	if r.busy {
		return gossip.ErrRequestorBusy
	}
	conn, err := r.pool.conn(endpoint)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	results := make(chan result, 1)
	r.busy, r.cancel, r.results = true, cancel, results

	cp := *req
	go func() {
		resp := new(gossip.Response)
		if err := conn.Invoke(ctx, methodFor(cp.Type), &cp, resp); err != nil {
			results <- result{err: err}
			return
		}
		results <- result{resp: resp}
	}()
	return nil
}

func (r *requestor) Execute() int {
	if !r.busy || r.resp != nil || r.err != nil {
		return 0
	}
	select {
	case res := <-r.results:
		r.resp, r.err = res.resp, res.err
		if r.err != nil {
			r.pool.log.Debug("gossip call failed", zap.Error(r.err))
		}
		return 1
	default:
		return 0
	}
}

func (r *requestor) IsResponseAvailable() bool { return r.resp != nil }

func (r *requestor) IsFailed() bool { return r.err != nil }

func (r *requestor) Response() *gossip.Response { return r.resp }

func (r *requestor) Close() {
	if r.cancel != nil {
		r.cancel()
	}
	r.busy = false
	r.cancel = nil
	r.results = nil
	r.resp = nil
	r.err = nil
}
