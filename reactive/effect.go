package reactive

import "fmt"

// CleanupFunc releases whatever an effect run acquired. It runs
// before the next re-run of the same effect and on dispose.
type CleanupFunc func() error

// EffectFunc is an effect body. A non-nil cleanup return value
// becomes the pending cleanup for the run.
type EffectFunc func() (CleanupFunc, error)

// Effect runs fn once synchronously, collects the signals it read and
// re-runs it whenever any of them changes, on the deferred tick.
// Errors from fn or its cleanup are reported to the runtime's error
// handler and never propagate; unrelated effects keep running. The
// returned function disposes the effect and is idempotent.
func Effect(rt *Runtime, fn EffectFunc) (dispose func()) {
	e := &effectRunner{rt: rt, fn: fn}
	e.watcher = NewWatcher(rt, e.rerun)
	e.run()
	return e.dispose
}

type effectRunner struct {
	rt       *Runtime
	fn       EffectFunc
	watcher  *Watcher
	cleanup  CleanupFunc
	disposed bool
}

// run executes the body inside a fresh unowned frame and replaces the
// watcher's subscriptions with the dependency set of this run.
func (e *effectRunner) run() {
	fr := e.rt.pushFrame(nil)
	cleanup, err := runEffectFn(e.fn)
	e.rt.popFrame(fr)
	// A failed run may still have acquired something: keep its cleanup
	// pending so the next rerun or dispose releases it.
	e.cleanup = cleanup
	if err != nil {
		e.rt.reportError(e.watcher, &EffectError{Effect: e.watcher.name, Err: err})
	}
	e.watcher.rewatch(fr.deps)
}

func (e *effectRunner) rerun() {
	if e.disposed {
		return
	}
	e.runCleanup()
	e.run()
}

func (e *effectRunner) runCleanup() {
	if e.cleanup == nil {
		return
	}
	cl := e.cleanup
	e.cleanup = nil
	if err := runCleanupFn(cl); err != nil {
		e.rt.reportError(e.watcher, &CleanupError{Effect: e.watcher.name, Err: err})
	}
}

func (e *effectRunner) dispose() {
	if e.disposed {
		return
	}
	e.disposed = true
	e.runCleanup()
	e.watcher.Dispose()
}

func runEffectFn(fn EffectFunc) (cleanup CleanupFunc, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("effect panic: %v", r)
		}
	}()
	return fn()
}

func runCleanupFn(fn CleanupFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cleanup panic: %v", r)
		}
	}()
	return fn()
}
