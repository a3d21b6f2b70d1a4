// Package retry implements the bounded optimistic-retry loop used around
// every compare-and-swap cycle.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"social-consistency/metrics"
	"social-consistency/store"
)

// ErrConflict is returned once the retry budget for CAS conflicts is spent.
var ErrConflict = errors.New("too many concurrent writers")

const (
	DefaultAttempts  = 5
	DefaultBaseDelay = 10 * time.Millisecond
)

// Policy bounds a read-check-write retry loop. The zero value uses the
// defaults above.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
}

func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = DefaultAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	return p
}

// Do runs fn, retrying with exponential backoff while it fails with
// store.ErrVersionMismatch. Any other error is surfaced immediately. The op
// label only feeds metrics and error messages.
func (p Policy) Do(ctx context.Context, op string, fn func() error) error {
	p = p.withDefaults()

	delay := p.BaseDelay
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !errors.Is(err, store.ErrVersionMismatch) {
			return err
		}

		metrics.CASConflicts.WithLabelValues(op).Inc()
		if attempt >= p.Attempts {
			return fmt.Errorf("%s: %w (gave up after %d attempts)", op, ErrConflict, attempt)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
}
