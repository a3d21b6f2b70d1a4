package saga

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAllStepsSucceed(t *testing.T) {
	var order []string
	steps := []Step{
		{Name: "one", Run: func(ctx context.Context) error { order = append(order, "one"); return nil }},
		{Name: "two", Run: func(ctx context.Context) error { order = append(order, "two"); return nil }},
	}

	err := NewRunner(nil).Run(context.Background(), "op", steps)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, order)
}

func TestRunCompensatesInReverseOrder(t *testing.T) {
	boom := errors.New("boom")
	var order []string
	steps := []Step{
		{
			Name:       "one",
			Run:        func(ctx context.Context) error { order = append(order, "one"); return nil },
			Compensate: func(ctx context.Context) error { order = append(order, "undo-one"); return nil },
		},
		{
			Name:       "two",
			Run:        func(ctx context.Context) error { order = append(order, "two"); return nil },
			Compensate: func(ctx context.Context) error { order = append(order, "undo-two"); return nil },
		},
		{
			Name: "three",
			Run:  func(ctx context.Context) error { return boom },
		},
	}

	err := NewRunner(nil).Run(context.Background(), "op", steps)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"one", "two", "undo-two", "undo-one"}, order)

	var partial *PartialFailureError
	assert.False(t, errors.As(err, &partial), "full unwind must not report partial failure")
}

func TestRunFirstStepFailureNeedsNoCompensation(t *testing.T) {
	boom := errors.New("boom")
	compensated := false
	steps := []Step{
		{
			Name:       "one",
			Run:        func(ctx context.Context) error { return boom },
			Compensate: func(ctx context.Context) error { compensated = true; return nil },
		},
	}

	err := NewRunner(nil).Run(context.Background(), "op", steps)
	assert.ErrorIs(t, err, boom)
	assert.False(t, compensated)
}

func TestRunPartialFailure(t *testing.T) {
	boom := errors.New("boom")
	undoErr := errors.New("undo failed")
	steps := []Step{
		{
			Name:       "one",
			Run:        func(ctx context.Context) error { return nil },
			Compensate: func(ctx context.Context) error { return undoErr },
		},
		{
			Name: "two",
			Run:  func(ctx context.Context) error { return boom },
		},
	}

	err := NewRunner(nil).Run(context.Background(), "op", steps)
	require.Error(t, err)

	var partial *PartialFailureError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, "two", partial.FailedStep)
	assert.Equal(t, "one", partial.CompensatedStep)
	assert.ErrorIs(t, partial.Cause, boom)
	assert.ErrorIs(t, partial.CompensationErr, undoErr)
	assert.ErrorIs(t, err, boom)
}

// Compensation must still run when the caller's context has already expired.
func TestRunCompensatesAfterCallerDeadline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	compensated := false
	steps := []Step{
		{
			Name: "one",
			Run:  func(ctx context.Context) error { return nil },
			Compensate: func(cctx context.Context) error {
				compensated = cctx.Err() == nil
				return nil
			},
		},
		{
			Name: "two",
			Run:  func(ctx context.Context) error { return ctx.Err() },
		},
	}

	err := NewRunner(nil).Run(ctx, "op", steps)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, compensated, "compensation should run on a live detached context")
}
