// Package testing provides test utilities for code built on relay subjects.
package testing

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/relay"
)

// TestSettings is a standard value type for Feed tests.
// It implements relay.Validator.
type TestSettings struct {
	Port    int    `yaml:"port" json:"port"`
	Host    string `yaml:"host" json:"host"`
	Timeout int    `yaml:"timeout" json:"timeout"`
}

// Validate implements relay.Validator.
func (s TestSettings) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}
	if s.Host == "" {
		return errors.New("host is required")
	}
	return nil
}

// Recorder is an Observer that keeps every value it receives.
// It is safe for concurrent use.
type Recorder[T any] struct {
	mu     sync.Mutex
	values []T
}

// NewRecorder creates an empty Recorder.
func NewRecorder[T any]() *Recorder[T] {
	return &Recorder[T]{}
}

// Record registers a new Recorder on subject and returns it.
func Record[T any](subject relay.Subject[T]) *Recorder[T] {
	r := NewRecorder[T]()
	subject.RegisterObserver(r)
	return r
}

// Update implements relay.Observer.
func (r *Recorder[T]) Update(value T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, value)
}

// Values returns a copy of the received values in arrival order.
func (r *Recorder[T]) Values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]T, len(r.values))
	copy(out, r.values)
	return out
}

// Len returns the number of values received.
func (r *Recorder[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// Last returns the most recent value and true, or the zero value and false.
func (r *Recorder[T]) Last() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		var zero T
		return zero, false
	}
	return r.values[len(r.values)-1], true
}

// Reset discards the received values.
func (r *Recorder[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = nil
}

// WaitFor polls a condition until it returns true or timeout is reached.
// Returns true if the condition was met, false if timeout occurred.
func WaitFor(t *testing.T, timeout time.Duration, condition func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return condition()
}

// WaitForValue waits until subject holds a value equal to want.
func WaitForValue[T any](t *testing.T, subject relay.Subject[T], want T, timeout time.Duration) bool {
	t.Helper()
	return WaitFor(t, timeout, func() bool {
		got, ok := subject.Current()
		return ok && reflect.DeepEqual(got, want)
	})
}

// RequireValue fails the test immediately if subject has no value or its
// value differs from want.
func RequireValue[T any](t *testing.T, subject relay.Subject[T], want T) {
	t.Helper()
	got, err := subject.Value()
	if err != nil {
		t.Fatalf("expected value %+v, got error: %v", want, err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected value %+v, got %+v", want, got)
	}
}

// RequireNoValue fails the test immediately if subject holds a value.
func RequireNoValue[T any](t *testing.T, subject relay.Subject[T]) {
	t.Helper()
	if got, ok := subject.Current(); ok {
		t.Fatalf("expected no value, got %+v", got)
	}
}

// RequireValues fails the test if the recorder did not receive exactly want,
// in order.
func RequireValues[T any](t *testing.T, r *Recorder[T], want ...T) {
	t.Helper()
	got := r.Values()
	if len(got) != len(want) {
		t.Fatalf("expected %d values %+v, got %d: %+v", len(want), want, len(got), got)
	}
	for i := range want {
		if !reflect.DeepEqual(got[i], want[i]) {
			t.Fatalf("value %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

// NewTestFeed creates a sync-mode Feed over a buffered channel for testing.
// Returns the feed, its target cell and the channel for sending payloads.
func NewTestFeed(t *testing.T) (*relay.Feed[TestSettings], *relay.Cell[TestSettings], chan<- []byte) {
	t.Helper()
	ch := make(chan []byte, 10)
	target := relay.NewCell[TestSettings]()
	feed := relay.NewFeed[TestSettings](relay.NewSyncChannelWatcher(ch), target).SyncMode()
	return feed, target, ch
}
