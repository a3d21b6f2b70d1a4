package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/cockroachdb/pebble"
)

const pebbleStripes = 64

type pebbleEnvelope struct {
	Version int64           `json:"version"`
	Doc     json.RawMessage `json:"doc"`
}

// PebbleStore is an embedded adapter for single-node deployments and
// integration tests. Pebble has no native conditional write, so CAS is a
// read-check-write under a striped per-key mutex; that still gives the
// single-document linearizable ordering the layer relies on.
type PebbleStore struct {
	db      *pebble.DB
	stripes [pebbleStripes]sync.Mutex
}

func OpenPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func (s *PebbleStore) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.stripes[h.Sum32()%pebbleStripes]
}

func (s *PebbleStore) read(key string) (pebbleEnvelope, error) {
	var env pebbleEnvelope
	val, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return env, ErrNotFound
	}
	if err != nil {
		return env, fmt.Errorf("%w: get %q: %v", ErrUnavailable, key, err)
	}
	defer closer.Close()

	if err := json.Unmarshal(val, &env); err != nil {
		return env, fmt.Errorf("failed to decode envelope %q: %w", key, err)
	}
	return env, nil
}

func (s *PebbleStore) write(key string, env pebbleEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope %q: %w", key, err)
	}
	if err := s.db.Set([]byte(key), data, pebble.Sync); err != nil {
		return fmt.Errorf("%w: set %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (s *PebbleStore) Get(ctx context.Context, key string) ([]byte, int64, error) {
	env, err := s.read(key)
	if err != nil {
		return nil, 0, err
	}
	return append([]byte(nil), env.Doc...), env.Version, nil
}

func (s *PebbleStore) Put(ctx context.Context, key string, doc []byte) (int64, error) {
	mu := s.stripe(key)
	mu.Lock()
	defer mu.Unlock()

	env, err := s.read(key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	env.Version++
	env.Doc = append([]byte(nil), doc...)
	if err := s.write(key, env); err != nil {
		return 0, err
	}
	return env.Version, nil
}

func (s *PebbleStore) CompareAndSwap(ctx context.Context, key string, expected int64, doc []byte) (int64, error) {
	mu := s.stripe(key)
	mu.Lock()
	defer mu.Unlock()

	env, err := s.read(key)
	if errors.Is(err, ErrNotFound) {
		env = pebbleEnvelope{}
	} else if err != nil {
		return 0, err
	}
	if env.Version != expected {
		return 0, ErrVersionMismatch
	}

	env.Version++
	env.Doc = append([]byte(nil), doc...)
	if err := s.write(key, env); err != nil {
		return 0, err
	}
	return env.Version, nil
}

func (s *PebbleStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	lower := []byte(prefix)
	upper := append(append([]byte(nil), prefix...), 0xff)

	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("%w: iter %q: %v", ErrUnavailable, prefix, err)
	}
	defer iter.Close()

	var keys []string
	for iter.First(); iter.Valid(); iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("%w: iter %q: %v", ErrUnavailable, prefix, err)
	}
	return keys, nil
}
