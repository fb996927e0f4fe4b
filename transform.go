package relay

import (
	"context"
	"sync"

	"github.com/zoobzio/capitan"
)

// Map returns a Subject that publishes f(v) for every value v set on subject.
// f runs synchronously inside subject's notification pass, once per value.
//
// The returned Subject is a *Mediator; assert to it to Close the upstream
// subscription when the mapping is no longer needed.
//
//	ints := relay.NewCell[int]()
//	labels := relay.Map(ints, strconv.Itoa)
//	ints.SetValue(42) // labels now holds "42"
func Map[T, R any](subject Subject[T], f func(T) R) Subject[R] {
	mapped := NewMediator[R]()
	RegisterSource(mapped, subject, Func(func(v T) {
		mapped.SetValue(f(v))
	}))
	return mapped
}

// SwitchMap returns a Subject that republishes the values of a delegate
// subject chosen by the latest value of trigger.
//
// On every trigger value t, f(t) selects the delegate. Returning the current
// delegate again is a no-op. Otherwise the current delegate is detached and
// the new one attached. Returning nil, or a nil pointer of a Subject type,
// leaves the result without a delegate until a later trigger value selects
// one. Values set on a detached delegate no longer reach the result.
//
// A delegate that is already a source of the result, such as trigger itself,
// is not attached a second time and is never detached by a switch.
//
// The returned Subject is a *Mediator; Close detaches both the trigger and
// the active delegate.
func SwitchMap[T, R any](trigger Subject[T], f func(T) Subject[R]) Subject[R] {
	result := NewMediator[R]()
	RegisterSource(result, trigger, Observer[T](&switcher[T, R]{
		result: result,
		choose: f,
	}))
	return result
}

// switcher is the trigger observer of a SwitchMap. It owns the record of
// which delegate is currently attached.
type switcher[T, R any] struct {
	result *Mediator[R]
	choose func(T) Subject[R]

	mu     sync.Mutex
	active Subject[R]
}

func (s *switcher[T, R]) Update(value T) {
	next := s.choose(value)
	if isNil(next) {
		next = nil
	} else {
		mustBeComparable("delegate", next)
	}

	if !s.switchTo(next) {
		return
	}
	capitan.Emit(context.Background(), SwitchChanged,
		KeySubject.Field(s.result.name),
	)
}

// switchTo detaches the active delegate and attaches next. It reports false
// if next is already the active delegate.
func (s *switcher[T, R]) switchTo(next Subject[R]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if next == s.active {
		return false
	}
	if s.active != nil {
		// Close may already have removed it.
		_ = s.result.UnregisterSource(s.active) //nolint:errcheck // reported via SourceNotFound
		s.active = nil
	}
	if next != nil && registerSource(s.result, next, Func(s.result.SetValue)) {
		s.active = next
	}
	return true
}

// Merge returns a Mediator that republishes every value set on any of
// sources, in arrival order. Duplicate sources are registered once.
func Merge[T any](sources ...Subject[T]) *Mediator[T] {
	merged := NewMediator[T]()
	for _, src := range sources {
		merged.Forward(src)
	}
	return merged
}
