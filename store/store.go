// Package store defines the document-store boundary the consistency layer is
// built on: single-document reads and conditional writes, no multi-key
// atomicity of any kind.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no document exists under the key.
	ErrNotFound = errors.New("document not found")
	// ErrVersionMismatch is returned by CompareAndSwap when the document's
	// version no longer matches the expected one.
	ErrVersionMismatch = errors.New("document version mismatch")
	// ErrUnavailable is returned when the backing store cannot be reached;
	// callers must not assume anything about whether the write landed.
	ErrUnavailable = errors.New("store unavailable")
)

// Store is a key-addressed document store with single-document atomic
// read-modify-write via CompareAndSwap. Versions start at 1 on first write
// and increase by 1 on every subsequent write.
type Store interface {
	// Get returns the document bytes and current version under key.
	Get(ctx context.Context, key string) ([]byte, int64, error)

	// Put writes the document unconditionally, creating it if absent, and
	// returns the new version. Intended for document creation and tests;
	// concurrent mutations must go through CompareAndSwap.
	Put(ctx context.Context, key string, doc []byte) (int64, error)

	// CompareAndSwap writes the document only if its current version equals
	// expected. An expected version of 0 creates the document if absent.
	CompareAndSwap(ctx context.Context, key string, expected int64, doc []byte) (int64, error)
}

// Lister is implemented by adapters that can enumerate keys by prefix; the
// repair job uses it to drive checker sweeps.
type Lister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// GetJSON reads and unmarshals the document under key into v, returning the
// document version.
func GetJSON(ctx context.Context, s Store, key string, v any) (int64, error) {
	doc, version, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if err := json.Unmarshal(doc, v); err != nil {
		return 0, fmt.Errorf("failed to decode document %q: %w", key, err)
	}
	return version, nil
}

// PutJSON marshals v and writes it unconditionally under key.
func PutJSON(ctx context.Context, s Store, key string, v any) (int64, error) {
	doc, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("failed to encode document %q: %w", key, err)
	}
	return s.Put(ctx, key, doc)
}

// SwapJSON marshals v and conditionally writes it under key.
func SwapJSON(ctx context.Context, s Store, key string, expected int64, v any) (int64, error) {
	doc, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("failed to encode document %q: %w", key, err)
	}
	return s.CompareAndSwap(ctx, key, expected, doc)
}
