package peerstore

import (
	"context"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdStore keeps the snapshot under a single etcd key.
type EtcdStore struct {
	kv  clientv3.KV
	key string
}

func NewEtcdStore(kv clientv3.KV, key string) *EtcdStore {
	return &EtcdStore{kv: kv, key: key}
}

func (s *EtcdStore) Save(ctx context.Context, data []byte) error {
	if _, err := s.kv.Put(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("put %s: %w", s.key, err)
	}
	return nil
}

func (s *EtcdStore) Load(ctx context.Context) ([]byte, error) {
	resp, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", s.key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, ErrNotFound
	}
	return resp.Kvs[0].Value, nil
}
