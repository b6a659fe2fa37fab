package reactive

import (
	"errors"
	"fmt"
)

var (
	// ErrDisposed is returned by any operation on a disposed cell,
	// computed or watcher.
	ErrDisposed = errors.New("reactive: access to disposed signal")

	// ErrCycle is returned when a computed is read while its own
	// derivation is running, i.e. the read closes a dependency cycle.
	ErrCycle = errors.New("reactive: circular dependency")

	// ErrMaxDepth is returned when nested evaluation exceeds the
	// runtime's depth bound. Unlike ErrCycle no cycle exists, the
	// graph is just deeper than the configured limit.
	ErrMaxDepth = errors.New("reactive: max evaluation depth exceeded")

	// ErrFlushOverflow is reported through the error handler when the
	// invalidation or notification queue keeps refilling for more
	// passes than the runtime allows.
	ErrFlushOverflow = errors.New("reactive: flush pass limit exceeded")

	// ErrForeignGoroutine is returned in owner-check mode when the
	// runtime is used from a goroutine other than the one that
	// created it.
	ErrForeignGoroutine = errors.New("reactive: runtime used from foreign goroutine")
)

// ComputationError wraps a failure of a computed's derivation
// function. It is memoized: every Get returns the same error until a
// dependency change marks the computed stale again.
type ComputationError struct {
	Signal string
	Err    error
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("reactive: computed %s failed: %v", e.Signal, e.Err)
}

func (e *ComputationError) Unwrap() error { return e.Err }

// EffectError wraps a failure of an effect body. It is reported to
// the runtime's error handler and never propagated to callers.
type EffectError struct {
	Effect string
	Err    error
}

func (e *EffectError) Error() string {
	return fmt.Sprintf("reactive: effect %s failed: %v", e.Effect, e.Err)
}

func (e *EffectError) Unwrap() error { return e.Err }

// CleanupError wraps a failure of an effect's cleanup function.
// Like EffectError it is reported, not propagated.
type CleanupError struct {
	Effect string
	Err    error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("reactive: cleanup for %s failed: %v", e.Effect, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }
