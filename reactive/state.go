package reactive

// StateCell is a mutable leaf signal. It is owned by whoever created
// it; the runtime only ever reads it through Get/Peek.
type StateCell[T any] struct {
	c      *signalCore
	value  T
	equals func(a, b T) bool
}

// State creates a new state cell holding initial.
func State[T any](rt *Runtime, initial T, opts ...CellOption[T]) *StateCell[T] {
	cfg := buildCellConfig(opts)
	s := &StateCell[T]{
		c:      rt.newCore("state", cfg.name),
		value:  initial,
		equals: cfg.equals,
	}
	s.c.self = s
	s.c.onWatched = cfg.onWatched
	s.c.onUnwatched = cfg.onUnwatched
	return s
}

func (s *StateCell[T]) Name() string      { return s.c.name }
func (s *StateCell[T]) IsDisposed() bool  { return s.c.disposed }
func (s *StateCell[T]) core() *signalCore { return s.c }

// Get returns the current value and, if an evaluation frame is
// active, registers this cell as a dependency of it.
func (s *StateCell[T]) Get() (T, error) {
	var zero T
	if err := s.c.rt.checkOwner(); err != nil {
		return zero, err
	}
	if s.c.disposed {
		return zero, s.c.disposedErr()
	}
	s.c.touch()
	return s.value, nil
}

// Peek returns the current value without registering a dependency.
func (s *StateCell[T]) Peek() (T, error) {
	var zero T
	if err := s.c.rt.checkOwner(); err != nil {
		return zero, err
	}
	if s.c.disposed {
		return zero, s.c.disposedErr()
	}
	return s.value, nil
}

// Set stores v and schedules invalidation of all current subscribers.
// Writes equal to the current value under the cell's equality
// predicate are no-ops and notify nobody.
func (s *StateCell[T]) Set(v T) error {
	if err := s.c.rt.checkOwner(); err != nil {
		return err
	}
	if s.c.disposed {
		return s.c.disposedErr()
	}
	if s.equals(s.value, v) {
		return nil
	}
	s.value = v
	s.c.rt.signalChanged(s.c)
	return nil
}

// Dispose releases all subscribers; any further access fails with
// ErrDisposed. Idempotent.
func (s *StateCell[T]) Dispose() {
	s.c.dispose()
}
