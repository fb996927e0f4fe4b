package relay

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// sourceEntry links an upstream subject to the observer installed on it.
type sourceEntry struct {
	source   any
	observer any
	detach   func()
}

// Mediator is a Cell that can itself observe other subjects.
//
// Upstream subscriptions ("sources") are tracked separately from the
// Mediator's own observers. A source observer usually calls SetValue on the
// Mediator, so any number of upstream subjects can feed one downstream
// stream:
//
//	merged := relay.NewMediator[string]()
//	merged.Forward(source1)
//	relay.RegisterSource(merged, source2, relay.Func(func(n int) {
//	    merged.SetValue(strconv.Itoa(n))
//	}))
//
// Sources are held by identity, one entry per upstream subject. Upstream
// subjects keep a reference to the installed observers, so call Close or
// UnregisterSource before dropping a Mediator.
type Mediator[T any] struct {
	Cell[T]

	smu     sync.Mutex
	sources []sourceEntry
}

// NewMediator creates a Mediator with no value, no sources and no observers.
func NewMediator[T any]() *Mediator[T] {
	return &Mediator[T]{}
}

// Name sets a label used in emitted signals, metrics and panic errors.
func (m *Mediator[T]) Name(name string) *Mediator[T] {
	m.Cell.Name(name)
	return m
}

// Clock sets the clock used to time notification passes for metrics.
func (m *Mediator[T]) Clock(clock clockz.Clock) *Mediator[T] {
	m.Cell.Clock(clock)
	return m
}

// Metrics sets a metrics provider for notifications and source changes.
func (m *Mediator[T]) Metrics(provider MetricsProvider) *Mediator[T] {
	m.Cell.Metrics(provider)
	return m
}

// ErrorHistorySize sets the number of recovered observer panics to retain.
func (m *Mediator[T]) ErrorHistorySize(n int) *Mediator[T] {
	m.Cell.ErrorHistorySize(n)
	return m
}

// RegisterSource subscribes obs to source on behalf of m.
//
// If m already has an entry for source nothing changes: the existing observer
// stays installed and obs is not registered. Unregister the source first to
// replace its observer. RegisterSource always returns obs. It panics if
// source is nil, including a nil pointer of a concrete Subject type.
//
// This is a function rather than a method because the source's value type S
// is independent of the Mediator's type T.
func RegisterSource[S, T any](m *Mediator[T], source Subject[S], obs Observer[S]) Observer[S] {
	registerSource(m, source, obs)
	return obs
}

// registerSource reports whether a new entry for source was installed.
func registerSource[S, T any](m *Mediator[T], source Subject[S], obs Observer[S]) bool {
	if isNil(source) {
		panic("relay: nil source")
	}
	mustBeComparable("source", source)
	mustBeComparable("observer", obs)

	n, added := addSource(m, source, obs)
	if added {
		m.sourceChanged(true, n)
	}
	return added
}

// addSource subscribes obs to source and records the entry. The entry is
// only recorded once RegisterObserver has returned.
func addSource[S, T any](m *Mediator[T], source Subject[S], obs Observer[S]) (int, bool) {
	m.smu.Lock()
	defer m.smu.Unlock()

	if m.indexOf(source) >= 0 {
		return len(m.sources), false
	}
	source.RegisterObserver(obs)
	m.sources = append(m.sources, sourceEntry{
		source:   source,
		observer: obs,
		detach:   func() { source.UnregisterObserver(obs) },
	})
	return len(m.sources), true
}

// Forward registers source with an observer that republishes every value
// through m.SetValue. It returns the installed observer.
func (m *Mediator[T]) Forward(source Subject[T]) Observer[T] {
	return RegisterSource(m, source, Func(m.SetValue))
}

// UnregisterSource detaches m from source, removing the source observer from
// the upstream subject. It returns an error wrapping ErrSourceNotFound if
// source is not registered.
func (m *Mediator[T]) UnregisterSource(source any) error {
	if !identifiable(source) {
		return fmt.Errorf("unregister %T: %w", source, ErrSourceNotFound)
	}

	n, ok := m.removeSource(source)
	if !ok {
		capitan.Emit(context.Background(), SourceNotFound,
			KeySubject.Field(m.name),
			KeySources.Field(n),
		)
		return fmt.Errorf("unregister %T: %w", source, ErrSourceNotFound)
	}

	m.sourceChanged(false, n)
	return nil
}

// removeSource drops the entry for source and detaches its observer. It
// returns the number of sources left and whether an entry was found.
func (m *Mediator[T]) removeSource(source any) (int, bool) {
	m.smu.Lock()
	defer m.smu.Unlock()

	i := m.indexOf(source)
	if i < 0 {
		return len(m.sources), false
	}
	entry := m.sources[i]
	m.sources = slices.Delete(m.sources, i, i+1)
	entry.detach()
	return len(m.sources), true
}

// Sources returns the installed source observers, one per registered source,
// in registration order. It is intended for diagnostics and tests.
func (m *Mediator[T]) Sources() []any {
	m.smu.Lock()
	defer m.smu.Unlock()

	if len(m.sources) == 0 {
		return nil
	}
	out := make([]any, len(m.sources))
	for i, e := range m.sources {
		out[i] = e.observer
	}
	return out
}

// Close detaches m from every source. The Mediator keeps its value and its
// own observers and may register new sources afterwards.
func (m *Mediator[T]) Close() {
	entries := m.detachAll()
	for i := range entries {
		m.sourceChanged(false, len(entries)-i-1)
	}
}

func (m *Mediator[T]) detachAll() []sourceEntry {
	m.smu.Lock()
	defer m.smu.Unlock()

	entries := m.sources
	m.sources = nil
	for _, e := range entries {
		e.detach()
	}
	return entries
}

// indexOf returns the position of source in m.sources, or -1.
// Callers must hold m.smu.
func (m *Mediator[T]) indexOf(source any) int {
	for i, e := range m.sources {
		if e.source == source {
			return i
		}
	}
	return -1
}

// sourceChanged reports a registration (added) or removal (!added) that left
// m with the given number of sources.
func (m *Mediator[T]) sourceChanged(added bool, sources int) {
	if added {
		capitan.Emit(context.Background(), SourceRegistered,
			KeySubject.Field(m.name),
			KeySources.Field(sources),
		)
		if m.metrics != nil {
			m.metrics.OnSourceRegistered(m.name)
		}
		return
	}
	capitan.Emit(context.Background(), SourceUnregistered,
		KeySubject.Field(m.name),
		KeySources.Field(sources),
	)
	if m.metrics != nil {
		m.metrics.OnSourceUnregistered(m.name)
	}
}
