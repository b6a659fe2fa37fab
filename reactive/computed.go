package reactive

import (
	"errors"
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// computedCore is the non-generic half of a computed: graph state
// only, so that cores of differently typed computeds can live in the
// same sets.
type computedCore struct {
	sig        *signalCore
	dep        Dependent
	deps       mapset.Set[*signalCore]
	stale      bool
	evaluating bool
}

// retarget replaces the dependency set with the one accumulated by
// the last successful run, removing the subscriber edge from every
// dependency that was not re-read. New edges were already added while
// the run was reading.
func (c *computedCore) retarget(newDeps mapset.Set[*signalCore]) {
	ref := subRef{comp: c}
	for _, old := range c.deps.ToSlice() {
		if !newDeps.Contains(old) {
			old.dropSub(ref)
		}
	}
	c.deps = newDeps
}

// unlinkPartial undoes subscriber edges added by a failed run for
// signals outside the retained dependency set, keeping both edge
// directions consistent with the previous set.
func (c *computedCore) unlinkPartial(read mapset.Set[*signalCore]) {
	ref := subRef{comp: c}
	for _, sc := range read.ToSlice() {
		if !c.deps.Contains(sc) {
			sc.dropSub(ref)
		}
	}
}

// ComputedSignal is a lazy memoized derived signal. Nothing runs
// until the first Get or Peek; after that the cached value (or
// memoized error) is returned until a dependency change marks it
// stale.
type ComputedSignal[T any] struct {
	c      *computedCore
	value  T
	err    error
	derive func() (T, error)
	equals func(a, b T) bool
}

// Computed creates a derived signal from derive. The derivation
// should be pure: it may read any signals of the same runtime and
// those reads become its dependencies for the next round.
func Computed[T any](rt *Runtime, derive func() (T, error), opts ...CellOption[T]) *ComputedSignal[T] {
	cfg := buildCellConfig(opts)
	cs := &ComputedSignal[T]{
		c: &computedCore{
			sig:   rt.newCore("computed", cfg.name),
			deps:  mapset.NewThreadUnsafeSet[*signalCore](),
			stale: true,
		},
		derive: derive,
		equals: cfg.equals,
	}
	cs.c.sig.self = cs
	cs.c.sig.onWatched = cfg.onWatched
	cs.c.sig.onUnwatched = cfg.onUnwatched
	cs.c.dep = cs
	return cs
}

func (cs *ComputedSignal[T]) Name() string      { return cs.c.sig.name }
func (cs *ComputedSignal[T]) IsDisposed() bool  { return cs.c.sig.disposed }
func (cs *ComputedSignal[T]) core() *signalCore { return cs.c.sig }

func (cs *ComputedSignal[T]) sources() []Signal {
	cores := cs.c.deps.ToSlice()
	sort.Slice(cores, func(i, j int) bool { return cores[i].id < cores[j].id })
	out := make([]Signal, 0, len(cores))
	for _, sc := range cores {
		out = append(out, sc.self)
	}
	return out
}

// Get returns the cached value, recomputing first if stale. It
// registers this computed as a dependency of the active frame. A
// memoized derivation error is re-returned on every Get until the
// next invalidation.
func (cs *ComputedSignal[T]) Get() (T, error) {
	var zero T
	if err := cs.c.sig.rt.checkOwner(); err != nil {
		return zero, err
	}
	if cs.c.sig.disposed {
		return zero, cs.c.sig.disposedErr()
	}
	if cs.c.evaluating {
		return zero, fmt.Errorf("%s: %w", cs.c.sig.name, ErrCycle)
	}
	cs.c.sig.touch()
	if cs.c.stale {
		if err := cs.refresh(); err != nil {
			return zero, err
		}
	}
	if cs.err != nil {
		return zero, cs.err
	}
	return cs.value, nil
}

// Peek is Get without dependency registration: the active frame is
// cleared around the staleness-triggered recomputation and restored
// afterwards.
func (cs *ComputedSignal[T]) Peek() (T, error) {
	var zero T
	rt := cs.c.sig.rt
	if err := rt.checkOwner(); err != nil {
		return zero, err
	}
	if cs.c.sig.disposed {
		return zero, cs.c.sig.disposedErr()
	}
	if cs.c.evaluating {
		return zero, fmt.Errorf("%s: %w", cs.c.sig.name, ErrCycle)
	}
	rt.PauseTracking()
	defer rt.ResumeTracking()
	if cs.c.stale {
		if err := cs.refresh(); err != nil {
			return zero, err
		}
	}
	if cs.err != nil {
		return zero, cs.err
	}
	return cs.value, nil
}

// refresh runs the derivation inside a fresh frame. On success the
// value is cached and the dependency set pruned to exactly the reads
// of this run. A derivation failure is memoized as a
// ComputationError; the dependency set keeps its previous edges so a
// later change of any of them still invalidates the error. Cycle and
// depth failures are structural, not data errors: they propagate to
// the caller, are never memoized, and leave the computed stale.
func (cs *ComputedSignal[T]) refresh() error {
	rt := cs.c.sig.rt
	if rt.evalDepth >= rt.maxEvalDepth {
		return fmt.Errorf("%s: %w", cs.c.sig.name, ErrMaxDepth)
	}
	rt.evalDepth++
	fr := rt.pushFrame(cs.c)
	cs.c.evaluating = true

	value, err := runDerive(cs.derive)

	cs.c.evaluating = false
	rt.popFrame(fr)
	rt.evalDepth--

	if err != nil {
		cs.c.unlinkPartial(fr.deps)
		if errors.Is(err, ErrCycle) || errors.Is(err, ErrMaxDepth) {
			return err
		}
		cs.err = &ComputationError{Signal: cs.c.sig.name, Err: err}
		cs.c.stale = false
		return nil
	}

	// Equal results keep the previous value's identity.
	if cs.err != nil || !cs.equals(cs.value, value) {
		cs.value = value
	}
	cs.err = nil
	cs.c.stale = false
	cs.c.retarget(fr.deps)
	return nil
}

// Dispose removes this computed from every dependency's subscriber
// set, drops its own edges and releases the derivation. Idempotent.
func (cs *ComputedSignal[T]) Dispose() {
	if cs.c.sig.disposed {
		return
	}
	ref := subRef{comp: cs.c}
	for _, dep := range cs.c.deps.ToSlice() {
		dep.dropSub(ref)
	}
	cs.c.deps.Clear()
	cs.c.sig.dispose()
	cs.derive = nil
}

func runDerive[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("derivation panic: %v", r)
		}
	}()
	return fn()
}
