package reactive

import (
	"fmt"
	"reflect"

	mapset "github.com/deckarep/golang-set/v2"
)

// Signal is a readable, trackable node of the graph: a state cell or
// a computed. Reading one inside an evaluation frame records a
// dependency edge.
type Signal interface {
	Name() string
	IsDisposed() bool
	core() *signalCore
}

// Dependent is anything that subscribes to signals: a computed or a
// watcher (effects subscribe through their watcher).
type Dependent interface {
	Name() string
	sources() []Signal
}

// subRef is a subscriber edge, resolved to its concrete shape at
// registration time. Exactly one field is non-nil.
type subRef struct {
	comp    *computedCore
	watcher *Watcher
}

func (r subRef) dependent() Dependent {
	if r.comp != nil {
		return r.comp.dep
	}
	return r.watcher
}

func (r subRef) id() uint64 {
	if r.comp != nil {
		return r.comp.sig.id
	}
	return r.watcher.id
}

// signalCore is the signal half shared by state cells and computeds:
// identity, the subscriber set, lifecycle callbacks and the disposed
// flag. Value storage stays in the generic wrappers.
type signalCore struct {
	rt   *Runtime
	id   uint64
	name string
	self Signal

	subs        mapset.Set[subRef]
	onWatched   func()
	onUnwatched func()
	disposed    bool
}

// touch records a read of this signal in the active evaluation frame,
// if any. For frames owned by a computed the subscriber edge is
// registered immediately in both directions; effect frames only
// accumulate and the watcher re-links after the run.
func (sc *signalCore) touch() {
	fr := sc.rt.activeFrame
	if fr == nil {
		return
	}
	fr.deps.Add(sc)
	if fr.owner != nil {
		sc.addSub(subRef{comp: fr.owner})
	}
}

func (sc *signalCore) addSub(ref subRef) {
	if sc.disposed {
		return
	}
	if sc.subs.Add(ref) && sc.subs.Cardinality() == 1 && sc.onWatched != nil {
		sc.onWatched()
	}
}

func (sc *signalCore) dropSub(ref subRef) {
	if !sc.subs.Contains(ref) {
		return
	}
	sc.subs.Remove(ref)
	if sc.subs.Cardinality() == 0 && !sc.disposed && sc.onUnwatched != nil {
		sc.onUnwatched()
	}
}

// dispose clears the subscriber set and unregisters the node from the
// runtime. Idempotent.
func (sc *signalCore) dispose() {
	if sc.disposed {
		return
	}
	sc.disposed = true
	sc.subs.Clear()
	sc.rt.nodes.Remove(sc)
}

func (sc *signalCore) disposedErr() error {
	return fmt.Errorf("%s: %w", sc.name, ErrDisposed)
}

// CellOption configures a state cell or computed at creation.
type CellOption[T any] func(*cellConfig[T])

type cellConfig[T any] struct {
	name        string
	equals      func(a, b T) bool
	onWatched   func()
	onUnwatched func()
}

// WithEquals overrides the equality predicate used to suppress
// no-change writes. The default is structural equality.
func WithEquals[T any](equals func(a, b T) bool) CellOption[T] {
	return func(c *cellConfig[T]) { c.equals = equals }
}

// WithOnWatched registers a callback invoked when the subscriber
// count transitions from zero to one.
func WithOnWatched[T any](fn func()) CellOption[T] {
	return func(c *cellConfig[T]) { c.onWatched = fn }
}

// WithOnUnwatched registers a callback invoked when the subscriber
// count transitions from one to zero.
func WithOnUnwatched[T any](fn func()) CellOption[T] {
	return func(c *cellConfig[T]) { c.onUnwatched = fn }
}

// WithName sets the debug name reported by Name, Sources and Sinks.
func WithName[T any](name string) CellOption[T] {
	return func(c *cellConfig[T]) { c.name = name }
}

func buildCellConfig[T any](opts []CellOption[T]) cellConfig[T] {
	var cfg cellConfig[T]
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.equals == nil {
		cfg.equals = func(a, b T) bool { return reflect.DeepEqual(a, b) }
	}
	return cfg
}
