package reactive

import (
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
)

// Watcher observes an explicit set of signals. Changes accumulate in
// a pending set and the notify callback fires once per scheduling
// tick, however many watched signals changed before it.
type Watcher struct {
	rt     *Runtime
	id     uint64
	name   string
	notify func()

	watched   mapset.Set[*signalCore]
	pending   mapset.Set[*signalCore]
	notifying bool
	scheduled bool
	disposed  bool
}

// NewWatcher creates a watcher with an empty watched set. notify runs
// on the deferred tick; use Pending inside it to see what changed.
func NewWatcher(rt *Runtime, notify func()) *Watcher {
	rt.nextID++
	return &Watcher{
		rt:      rt,
		id:      rt.nextID,
		name:    fmt.Sprintf("watcher-%d", rt.nextID),
		notify:  notify,
		watched: mapset.NewThreadUnsafeSet[*signalCore](),
		pending: mapset.NewThreadUnsafeSet[*signalCore](),
	}
}

func (w *Watcher) Name() string { return w.name }

func (w *Watcher) sources() []Signal {
	return coresToSignals(w.watched.ToSlice())
}

// Watch adds signals to the watched set. Watching a disposed signal
// or a disposed watcher fails; on failure no signal of the call was
// added.
func (w *Watcher) Watch(signals ...Signal) error {
	if err := w.rt.checkOwner(); err != nil {
		return err
	}
	if w.disposed {
		return fmt.Errorf("%s: %w", w.name, ErrDisposed)
	}
	for _, s := range signals {
		if s.core().disposed {
			return s.core().disposedErr()
		}
	}
	ref := subRef{watcher: w}
	for _, s := range signals {
		sc := s.core()
		if w.watched.Add(sc) {
			sc.addSub(ref)
		}
	}
	return nil
}

// Unwatch removes signals from the watched set; unknown signals are
// ignored. Pending entries for removed signals are dropped.
func (w *Watcher) Unwatch(signals ...Signal) {
	ref := subRef{watcher: w}
	for _, s := range signals {
		sc := s.core()
		if w.watched.Contains(sc) {
			w.watched.Remove(sc)
			w.pending.Remove(sc)
			sc.dropSub(ref)
		}
	}
}

// Pending returns the signals that changed since the last
// notification, in creation order.
func (w *Watcher) Pending() []Signal {
	return coresToSignals(w.pending.ToSlice())
}

// Dispose unwatches everything and drops pending changes; later
// invalidations are no-ops. Idempotent.
func (w *Watcher) Dispose() {
	if w.disposed {
		return
	}
	w.disposed = true
	ref := subRef{watcher: w}
	for _, sc := range w.watched.ToSlice() {
		sc.dropSub(ref)
	}
	w.watched.Clear()
	w.pending.Clear()
}

// rewatch replaces the watched set wholesale, the way effects rebuild
// their subscriptions after every run.
func (w *Watcher) rewatch(newSet mapset.Set[*signalCore]) {
	ref := subRef{watcher: w}
	for _, old := range w.watched.ToSlice() {
		if !newSet.Contains(old) {
			w.pending.Remove(old)
			old.dropSub(ref)
		}
	}
	for _, sc := range newSet.ToSlice() {
		if !w.watched.Contains(sc) {
			sc.addSub(ref)
		}
	}
	w.watched = newSet
}

func (w *Watcher) recordChange(sc *signalCore) {
	if w.disposed {
		return
	}
	w.pending.Add(sc)
	w.rt.scheduleWatcher(w)
}

// notifyNow fires the callback if anything is pending and the watcher
// is not already notifying. The pending set is cleared after the
// callback returns, so Pending is meaningful inside it.
func (w *Watcher) notifyNow() {
	if w.disposed || w.notifying || w.pending.Cardinality() == 0 {
		return
	}
	w.notifying = true
	func() {
		defer func() {
			if r := recover(); r != nil {
				w.rt.reportError(w, fmt.Errorf("notify panicked: %v", r))
			}
		}()
		w.notify()
	}()
	w.pending.Clear()
	w.notifying = false
}

func coresToSignals(cores []*signalCore) []Signal {
	sort.Slice(cores, func(i, j int) bool { return cores[i].id < cores[j].id })
	out := make([]Signal, 0, len(cores))
	for _, sc := range cores {
		out = append(out, sc.self)
	}
	return out
}
