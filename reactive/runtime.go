package reactive

import (
	"fmt"
	"log"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/petermattis/goid"
)

const (
	// DefaultMaxEvalDepth bounds nested computed evaluation.
	DefaultMaxEvalDepth = 512
	// DefaultMaxFlushPasses bounds both the invalidation flush loop
	// and the deferred watcher-notification loop.
	DefaultMaxFlushPasses = 1024
)

// ErrorHandler receives errors the runtime swallows on purpose:
// effect and cleanup failures, watcher notify panics and flush
// overflows. origin is nil when the error has no single originator.
type ErrorHandler func(origin Dependent, err error)

// frame is one in-flight evaluation: the dependency set being
// accumulated and the computed that owns the run, nil for effect and
// untracked frames. Frames form a stack through prev.
type frame struct {
	owner *computedCore
	deps  mapset.Set[*signalCore]
	prev  *frame
}

// Runtime is one independent reactive graph. All ambient state lives
// here rather than in package globals so that multiple graphs can
// coexist and tests stay isolated. A Runtime is single-threaded by
// contract; see WithOwnerCheck.
type Runtime struct {
	maxEvalDepth   int
	maxFlushPasses int
	onError        ErrorHandler
	ownerGID       int64

	activeFrame *frame
	pauseStack  []*frame
	evalDepth   int

	batchDepth int
	flushing   bool
	queue      []*signalCore

	deferred []*Watcher
	ticking  bool

	nodes  mapset.Set[*signalCore]
	nextID uint64
}

// RuntimeOption configures a Runtime at creation.
type RuntimeOption func(*Runtime)

// WithErrorHandler replaces the default log-based error sink.
func WithErrorHandler(h ErrorHandler) RuntimeOption {
	return func(rt *Runtime) { rt.onError = h }
}

// WithMaxEvalDepth overrides DefaultMaxEvalDepth.
func WithMaxEvalDepth(n int) RuntimeOption {
	return func(rt *Runtime) { rt.maxEvalDepth = n }
}

// WithMaxFlushPasses overrides DefaultMaxFlushPasses.
func WithMaxFlushPasses(n int) RuntimeOption {
	return func(rt *Runtime) { rt.maxFlushPasses = n }
}

// WithOwnerCheck pins the runtime to the goroutine that creates it.
// Operations from any other goroutine fail with ErrForeignGoroutine.
func WithOwnerCheck() RuntimeOption {
	return func(rt *Runtime) { rt.ownerGID = goid.Get() }
}

func NewRuntime(opts ...RuntimeOption) *Runtime {
	rt := &Runtime{
		maxEvalDepth:   DefaultMaxEvalDepth,
		maxFlushPasses: DefaultMaxFlushPasses,
		nodes:          mapset.NewThreadUnsafeSet[*signalCore](),
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.onError == nil {
		rt.onError = func(origin Dependent, err error) {
			if origin != nil {
				log.Printf("reactive: %s: %v", origin.Name(), err)
				return
			}
			log.Printf("reactive: %v", err)
		}
	}
	return rt
}

func (rt *Runtime) newCore(kind, name string) *signalCore {
	rt.nextID++
	if name == "" {
		name = fmt.Sprintf("%s-%d", kind, rt.nextID)
	}
	sc := &signalCore{
		rt:   rt,
		id:   rt.nextID,
		name: name,
		subs: mapset.NewThreadUnsafeSet[subRef](),
	}
	rt.nodes.Add(sc)
	return sc
}

func (rt *Runtime) checkOwner() error {
	if rt.ownerGID != 0 && goid.Get() != rt.ownerGID {
		return ErrForeignGoroutine
	}
	return nil
}

func (rt *Runtime) reportError(origin Dependent, err error) {
	rt.onError(origin, err)
}

// pushFrame enters a fresh evaluation frame. The caller must pop it,
// including on error paths.
func (rt *Runtime) pushFrame(owner *computedCore) *frame {
	fr := &frame{
		owner: owner,
		deps:  mapset.NewThreadUnsafeSet[*signalCore](),
		prev:  rt.activeFrame,
	}
	rt.activeFrame = fr
	return fr
}

func (rt *Runtime) popFrame(fr *frame) {
	rt.activeFrame = fr.prev
}

// PauseTracking clears the active frame so that reads until the
// matching ResumeTracking register no dependencies.
func (rt *Runtime) PauseTracking() {
	rt.pauseStack = append(rt.pauseStack, rt.activeFrame)
	rt.activeFrame = nil
}

func (rt *Runtime) ResumeTracking() {
	lastIdx := len(rt.pauseStack) - 1
	rt.activeFrame = rt.pauseStack[lastIdx]
	rt.pauseStack = rt.pauseStack[:lastIdx]
}

// Untrack runs fn with tracking paused.
func (rt *Runtime) Untrack(fn func()) {
	rt.PauseTracking()
	defer rt.ResumeTracking()
	fn()
}

// StartBatch suspends invalidation flushing until the matching
// EndBatch of the outermost pair.
func (rt *Runtime) StartBatch() {
	rt.batchDepth++
}

func (rt *Runtime) EndBatch() {
	rt.batchDepth--
	if rt.batchDepth == 0 {
		rt.flush()
	}
}

// Batch runs fn with writes coalesced into a single flush at the end
// of the outermost batch. The depth counter is restored even if fn
// panics; the panic propagates.
func (rt *Runtime) Batch(fn func()) {
	rt.StartBatch()
	defer rt.EndBatch()
	fn()
}

// Batch is the value-returning form of Runtime.Batch.
func Batch[T any](rt *Runtime, fn func() (T, error)) (T, error) {
	rt.StartBatch()
	defer rt.EndBatch()
	return fn()
}

// signalChanged hands a changed signal's subscriber set to the
// scheduler. In immediate mode the flush happens before the write
// returns; inside a batch it is deferred to the outermost EndBatch.
func (rt *Runtime) signalChanged(sc *signalCore) {
	rt.queue = append(rt.queue, sc)
	if rt.batchDepth == 0 && !rt.flushing {
		rt.flush()
	}
}

// flush drains the invalidation queue snapshot by snapshot. Staleness
// propagation may enqueue further signals; those are handled in the
// next pass, bounded by maxFlushPasses. After the queue settles the
// deferred watcher notifications run, once, for the whole update.
func (rt *Runtime) flush() {
	rt.flushing = true
	passes := 0
	for len(rt.queue) > 0 {
		if passes >= rt.maxFlushPasses {
			rt.queue = rt.queue[:0]
			rt.reportError(nil, fmt.Errorf("invalidation queue: %w", ErrFlushOverflow))
			break
		}
		passes++
		snapshot := rt.queue
		rt.queue = nil
		for _, sc := range snapshot {
			rt.propagateSafe(sc)
		}
	}
	rt.flushing = false
	if rt.batchDepth == 0 {
		rt.runTick()
	}
}

func (rt *Runtime) propagateSafe(sc *signalCore) {
	defer func() {
		if r := recover(); r != nil {
			rt.reportError(nil, fmt.Errorf("invalidation of %s panicked: %v", sc.name, r))
		}
	}()
	rt.propagate(sc)
}

// propagate routes one changed signal to its current subscribers:
// computeds are marked stale and forward their own subscriber set by
// re-entering the queue, watchers record the change and schedule a
// deferred notification.
func (rt *Runtime) propagate(sc *signalCore) {
	for _, ref := range sc.subs.ToSlice() {
		switch {
		case ref.comp != nil:
			c := ref.comp
			if c.sig.disposed || c.stale {
				continue
			}
			c.stale = true
			rt.queue = append(rt.queue, c.sig)
		case ref.watcher != nil:
			ref.watcher.recordChange(sc)
		}
	}
}

func (rt *Runtime) scheduleWatcher(w *Watcher) {
	if w.scheduled {
		return
	}
	w.scheduled = true
	rt.deferred = append(rt.deferred, w)
}

// runTick is the deferred, coalescing watcher-notification pass. It
// runs once per outermost synchronous update; notifications that
// write signals re-enter the same tick rather than nesting.
func (rt *Runtime) runTick() {
	if rt.ticking {
		return
	}
	rt.ticking = true
	defer func() { rt.ticking = false }()
	passes := 0
	for len(rt.deferred) > 0 {
		if passes >= rt.maxFlushPasses {
			rt.deferred = rt.deferred[:0]
			rt.reportError(nil, fmt.Errorf("watcher queue: %w", ErrFlushOverflow))
			break
		}
		passes++
		snapshot := rt.deferred
		rt.deferred = nil
		for _, w := range snapshot {
			w.scheduled = false
			w.notifyNow()
		}
	}
}
