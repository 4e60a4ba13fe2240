// Package discovery bootstraps gossip from etcd: nodes register their
// endpoint under a lease and read each other's endpoints as seeds. Liveness
// after boot is the gossip layer's job, not etcd's.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	retry "github.com/avast/retry-go/v4"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

func NewClient(endpoints []string, dialTimeout time.Duration) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
}

// MembersPrefix is the key prefix under which endpoints are registered.
func MembersPrefix(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/members/"
}

func memberKey(prefix, endpoint string) string {
	return MembersPrefix(prefix) + endpoint
}

// Registration holds a node's leased registration.
type Registration struct {
	cli    *clientv3.Client
	lease  clientv3.LeaseID
	key    string
	cancel context.CancelFunc
}

// RegisterNode writes endpoint under prefix with a lease of ttl seconds and
// keeps the lease alive until Close.
func RegisterNode(ctx context.Context, cli *clientv3.Client, prefix, endpoint string, ttl int64, log *zap.Logger) (*Registration, error) {
	key := memberKey(prefix, endpoint)
	var lease clientv3.LeaseID
	err := retry.Do(
		func() error {
			grant, err := cli.Grant(ctx, ttl)
			if err != nil {
				return err
			}
			if _, err := cli.Put(ctx, key, endpoint, clientv3.WithLease(grant.ID)); err != nil {
				return err
			}
			lease = grant.ID
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(5),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn("etcd registration failed, retrying", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", key, err)
	}

	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := cli.KeepAlive(kaCtx, lease)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("keep lease %x alive: %w", lease, err)
	}
	go func() {
		for range ch {
		}
		if kaCtx.Err() == nil {
			log.Warn("etcd lease keepalive stopped", zap.String("key", key))
		}
	}()
	log.Info("registered with etcd", zap.String("key", key), zap.Int64("ttl", ttl))
	return &Registration{cli: cli, lease: lease, key: key, cancel: cancel}, nil
}

// Close stops the keepalive and revokes the lease, removing the key.
func (r *Registration) Close(ctx context.Context) error {
	r.cancel()
	if _, err := r.cli.Revoke(ctx, r.lease); err != nil {
		return fmt.Errorf("revoke lease for %s: %w", r.key, err)
	}
	return nil
}

// FetchSeeds returns every endpoint registered under prefix.
func FetchSeeds(ctx context.Context, kv clientv3.KV, prefix string) ([]string, error) {
	resp, err := kv.Get(ctx, MembersPrefix(prefix), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	seeds := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		seeds = append(seeds, string(kv.Value))
	}
	return seeds, nil
}
