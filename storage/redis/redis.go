// Package redis provides a Redis-backed storage repository.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmcleod/ballotbox/storage"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix  = "ballotbox:"
	defaultTimeout = 5 * time.Second
)

// Store implements storage.Repository on top of a Redis client. Records are
// kept as JSON strings under <prefix><ns>:<type>:<id>, and each namespace has
// an index set under <prefix><ns> listing its record keys.
type Store struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

var _ storage.Repository = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix. The default is "ballotbox:".
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithTimeout bounds every Redis round trip.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewRepository returns a Repository backed by the given Redis client.
func NewRepository(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: defaultPrefix, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) indexKey(ns string) string {
	return s.prefix + ns
}

func (s *Store) dataKey(ns, recordType, recordID string) string {
	return s.prefix + ns + ":" + recordType + ":" + recordID
}

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *Store) Put(ns, recordType, recordID string, envelope *storage.Envelope) error {
	return s.Batch(ns, func(tx storage.BatchTx) error {
		return tx.Put(recordType, recordID, envelope)
	})
}

func (s *Store) Get(ns, recordType, recordID string) (*storage.Envelope, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	data, err := s.client.Get(ctx, s.dataKey(ns, recordType, recordID)).Bytes()
	if errors.Is(err, redis.Nil) {
		n, existsErr := s.client.Exists(ctx, s.indexKey(ns)).Result()
		if existsErr != nil {
			return nil, fmt.Errorf("redis exists: %w", existsErr)
		}
		if n == 0 {
			return nil, fmt.Errorf("%s: %w", ns, storage.ErrNamespaceNotFound)
		}
		return nil, fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var envelope storage.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return &envelope, nil
}

func (s *Store) Delete(ns, recordType, recordID string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	key := s.dataKey(ns, recordType, recordID)
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, key)
		pipe.SRem(ctx, s.indexKey(ns), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) List(ns, recordType string) ([]string, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	keys, err := s.client.SMembers(ctx, s.indexKey(ns)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	prefix := s.dataKey(ns, recordType, "")
	var ids []string
	for _, k := range keys {
		if id, ok := strings.CutPrefix(k, prefix); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Batch buffers the writes of fn and applies them in one MULTI/EXEC block.
// Nothing is sent to Redis if fn returns an error.
func (s *Store) Batch(ns string, fn func(tx storage.BatchTx) error) error {
	btx := &redisBatchTx{store: s, ns: ns}
	if err := fn(btx); err != nil {
		return err
	}
	if len(btx.ops) == 0 {
		return nil
	}

	ctx, cancel := s.ctx()
	defer cancel()
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range btx.ops {
			op(ctx, pipe)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis batch: %w", err)
	}
	return nil
}

type redisBatchTx struct {
	store *Store
	ns    string
	ops   []func(ctx context.Context, pipe redis.Pipeliner)
}

func (tx *redisBatchTx) Put(recordType, recordID string, envelope *storage.Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	key := tx.store.dataKey(tx.ns, recordType, recordID)
	index := tx.store.indexKey(tx.ns)
	tx.ops = append(tx.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Set(ctx, key, data, 0)
		pipe.SAdd(ctx, index, key)
	})
	return nil
}

func (tx *redisBatchTx) Delete(recordType, recordID string) error {
	key := tx.store.dataKey(tx.ns, recordType, recordID)
	index := tx.store.indexKey(tx.ns)
	tx.ops = append(tx.ops, func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, index, key)
	})
	return nil
}
