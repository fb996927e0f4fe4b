package relay

import (
	"sync"
	"testing"
	"time"
)

// recorder is an Observer that keeps every value it receives.
type recorder[T any] struct {
	mu   sync.Mutex
	seen []T
}

func newRecorder[T any]() *recorder[T] {
	return &recorder[T]{}
}

func (r *recorder[T]) Update(value T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, value)
}

func (r *recorder[T]) values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.seen))
	copy(out, r.seen)
	return out
}

func (r *recorder[T]) last() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.seen) == 0 {
		var zero T
		return zero, false
	}
	return r.seen[len(r.seen)-1], true
}

// sliceObserver is deliberately uncomparable.
type sliceObserver []int

func (sliceObserver) Update(int) {}

// brokenSubject is a Subject that cannot be subscribed to.
type brokenSubject struct {
	Cell[int]
}

func (*brokenSubject) RegisterObserver(Observer[int]) Observer[int] {
	panic("subscribe failed")
}

// finishes fails the test if fn has not returned within a second.
func finishes(t *testing.T, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("%s did not return", what)
	}
}

type notifyRecord struct {
	subject   string
	observers int
	duration  time.Duration
}

// testMetricsProvider captures metrics calls for testing.
type testMetricsProvider struct {
	mu           sync.Mutex
	notifies     []notifyRecord
	panics       int
	registered   int
	unregistered int
}

func (m *testMetricsProvider) OnNotify(subject string, observers int, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifies = append(m.notifies, notifyRecord{subject, observers, d})
}

func (m *testMetricsProvider) OnObserverPanic(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics++
}

func (m *testMetricsProvider) OnSourceRegistered(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered++
}

func (m *testMetricsProvider) OnSourceUnregistered(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unregistered++
}
