package relay

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// Subject is the read side of a single latest value that can be observed.
type Subject[T any] interface {
	// RegisterObserver adds obs to the notification list unless it is
	// already registered, and returns obs so it can be unregistered later.
	RegisterObserver(obs Observer[T]) Observer[T]

	// UnregisterObserver removes obs. Removing an unknown observer is a no-op.
	UnregisterObserver(obs Observer[T])

	// Value returns the latest value, or ErrNoValue if none was ever set.
	Value() (T, error)

	// Current returns the latest value and true, or the zero value and false
	// if none was ever set.
	Current() (T, bool)

	// Observers returns the registered observers in notification order.
	// It is intended for diagnostics and tests.
	Observers() []Observer[T]
}

// MutableSubject is a Subject whose value can be set.
//
// A MutableSubject can be handed out as a Subject to give consumers a
// read-only view.
type MutableSubject[T any] interface {
	Subject[T]

	// SetValue stores value and synchronously notifies every registered
	// observer with it before returning.
	SetValue(value T)
}

// Cell is the standard MutableSubject.
//
// Observers are notified in registration order on the goroutine that calls
// SetValue. Each pass works on a snapshot of the observer list taken when the
// pass begins: observers registered during a pass first hear the next value,
// and an observer unregistered during a pass may still receive the value of
// that pass. Registering and unregistering from inside an observer is safe.
//
// A panicking observer does not stop the pass. The panic is recovered,
// recorded as an *ObserverPanic (see LastError), emitted as ObserverPanicked
// and the remaining observers are still notified.
//
// The zero value is an empty Cell ready to use. A Cell must not be copied
// after first use.
type Cell[T any] struct {
	name         string
	clock        clockz.Clock
	metrics      MetricsProvider
	errorHistory *errorRing

	current   atomic.Pointer[T]
	lastError atomic.Pointer[error]

	mu        sync.Mutex
	observers atomic.Pointer[[]Observer[T]]
}

// NewCell creates an empty Cell. Value fails with ErrNoValue until the first
// SetValue.
func NewCell[T any]() *Cell[T] {
	return &Cell[T]{}
}

// NewCellOf creates a Cell that already holds value. No observer is notified.
func NewCellOf[T any](value T) *Cell[T] {
	c := &Cell[T]{}
	c.current.Store(&value)
	return c
}

// -----------------------------------------------------------------------------
// Chainable Instance Configuration
// -----------------------------------------------------------------------------

// Name sets a label used in emitted signals, metrics and panic errors.
// Must be called before the Cell is shared.
func (c *Cell[T]) Name(name string) *Cell[T] {
	c.name = name
	return c
}

// Clock sets the clock used to time notification passes for metrics.
// Default: clockz.RealClock. Must be called before the Cell is shared.
func (c *Cell[T]) Clock(clock clockz.Clock) *Cell[T] {
	c.clock = clock
	return c
}

// Metrics sets a metrics provider. Must be called before the Cell is shared.
func (c *Cell[T]) Metrics(provider MetricsProvider) *Cell[T] {
	c.metrics = provider
	return c
}

// ErrorHistorySize sets the number of recovered observer panics to retain.
// Use 0 (default) to only retain the most recent one via LastError().
// Must be called before the Cell is shared.
func (c *Cell[T]) ErrorHistorySize(n int) *Cell[T] {
	c.errorHistory = newErrorRing(n)
	return c
}

// -----------------------------------------------------------------------------
// Subject
// -----------------------------------------------------------------------------

func (c *Cell[T]) RegisterObserver(obs Observer[T]) Observer[T] {
	mustBeComparable("observer", obs)

	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.list()
	for _, o := range list {
		if o == obs {
			return obs
		}
	}
	next := make([]Observer[T], len(list), len(list)+1)
	copy(next, list)
	next = append(next, obs)
	c.observers.Store(&next)
	return obs
}

func (c *Cell[T]) UnregisterObserver(obs Observer[T]) {
	if !identifiable(obs) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.list()
	for i, o := range list {
		if o != obs {
			continue
		}
		next := make([]Observer[T], 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		c.observers.Store(&next)
		return
	}
}

func (c *Cell[T]) Value() (T, error) {
	v, ok := c.Current()
	if !ok {
		return v, ErrNoValue
	}
	return v, nil
}

func (c *Cell[T]) Current() (T, bool) {
	ptr := c.current.Load()
	if ptr == nil {
		var zero T
		return zero, false
	}
	return *ptr, true
}

func (c *Cell[T]) Observers() []Observer[T] {
	list := c.list()
	if len(list) == 0 {
		return nil
	}
	out := make([]Observer[T], len(list))
	copy(out, list)
	return out
}

// SetValue stores value and notifies the observers registered when the call
// begins, in registration order, before returning.
func (c *Cell[T]) SetValue(value T) {
	v := value
	c.current.Store(&v)

	snapshot := c.list()
	if c.metrics == nil {
		for _, obs := range snapshot {
			c.deliver(obs, value)
		}
		return
	}

	clock := c.clockOrReal()
	start := clock.Now()
	for _, obs := range snapshot {
		c.deliver(obs, value)
	}
	c.metrics.OnNotify(c.name, len(snapshot), clock.Since(start))
}

// LastError returns the most recent recovered observer panic, or nil.
func (c *Cell[T]) LastError() error {
	ptr := c.lastError.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// ErrorHistory returns the recent recovered observer panics, oldest first.
// Returns nil if error history is not enabled (see ErrorHistorySize).
func (c *Cell[T]) ErrorHistory() []error {
	return c.errorHistory.all()
}

// ClearErrors forgets recorded observer panics.
func (c *Cell[T]) ClearErrors() {
	c.lastError.Store(nil)
	c.errorHistory.clear()
}

// list returns the current observer snapshot. The returned slice is never
// mutated.
func (c *Cell[T]) list() []Observer[T] {
	ptr := c.observers.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

func (c *Cell[T]) clockOrReal() clockz.Clock {
	if c.clock == nil {
		return clockz.RealClock
	}
	return c.clock
}

// deliver invokes a single observer, recovering any panic.
func (c *Cell[T]) deliver(obs Observer[T], value T) {
	defer func() {
		if r := recover(); r != nil {
			c.recovered(r)
		}
	}()
	obs.Update(value)
}

func (c *Cell[T]) recovered(r any) {
	var err error = &ObserverPanic{Subject: c.name, Value: r}
	c.lastError.Store(&err)
	c.errorHistory.push(err)

	capitan.Emit(context.Background(), ObserverPanicked,
		KeySubject.Field(c.name),
		KeyError.Field(err.Error()),
	)
	if c.metrics != nil {
		c.metrics.OnObserverPanic(c.name)
	}
}
