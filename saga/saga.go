// Package saga sequences the two single-document writes of a cross-document
// mutation and unwinds the first when the second fails, standing in for the
// multi-document transaction the store does not offer.
package saga

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"social-consistency/metrics"
)

// compensationTimeout bounds the detached context compensations run on, so a
// caller deadline expiring between two writes never strands a half-written
// edge.
const compensationTimeout = 5 * time.Second

// Step is one forward operation with an optional inverse. Compensate must be
// safe to call whenever Run has succeeded, and should itself be idempotent.
type Step struct {
	Name       string
	Run        func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// PartialFailureError reports a failed step whose preceding steps could not
// be unwound; the documents are left inconsistent until a repair pass.
type PartialFailureError struct {
	Op              string
	FailedStep      string
	CompensatedStep string
	Cause           error
	CompensationErr error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s: step %q failed (%v) and compensation of %q failed: %v",
		e.Op, e.FailedStep, e.Cause, e.CompensatedStep, e.CompensationErr)
}

func (e *PartialFailureError) Unwrap() error { return e.Cause }

type Runner struct {
	log *zap.Logger
}

func NewRunner(log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{log: log}
}

// Run executes the steps in order. When step k fails, compensations for steps
// 1..k-1 run in reverse order on a detached, time-bounded context. On full
// unwind the step error is returned wrapped; if a compensation itself fails a
// *PartialFailureError is returned instead.
func (r *Runner) Run(ctx context.Context, op string, steps []Step) error {
	for i, step := range steps {
		err := step.Run(ctx)
		if err == nil {
			continue
		}

		if cerr := r.compensate(op, steps[:i], step.Name, err); cerr != nil {
			return cerr
		}
		return fmt.Errorf("%s: step %q failed: %w", op, step.Name, err)
	}
	return nil
}

func (r *Runner) compensate(op string, done []Step, failedStep string, cause error) error {
	if len(done) == 0 {
		return nil
	}

	// Deliberately not the caller's context: compensation must still be
	// attempted when the caller's deadline expired between the two writes.
	cctx, cancel := context.WithTimeout(context.Background(), compensationTimeout)
	defer cancel()

	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(cctx); err != nil {
			metrics.Compensations.WithLabelValues(op, "failed").Inc()
			r.log.Error("compensation failed",
				zap.String("op", op),
				zap.String("step", step.Name),
				zap.Error(err))
			return &PartialFailureError{
				Op:              op,
				FailedStep:      failedStep,
				CompensatedStep: step.Name,
				Cause:           cause,
				CompensationErr: err,
			}
		}
		metrics.Compensations.WithLabelValues(op, "ok").Inc()
		r.log.Warn("compensated partial failure",
			zap.String("op", op),
			zap.String("step", step.Name),
			zap.NamedError("cause", cause))
	}
	return nil
}
