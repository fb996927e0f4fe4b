package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// DefaultDebounce is the default debounce duration for a Feed.
const DefaultDebounce = 100 * time.Millisecond

// Validator is implemented by values that can check themselves. A Feed
// validates every decoded value whose type (or pointer type) implements it.
type Validator interface {
	Validate() error
}

// Feed drives a MutableSubject from a Watcher.
//
// Each payload the watcher emits is decoded with the configured Codec,
// validated if the value implements Validator, and published with SetValue.
// A payload that fails either step is dropped: the target keeps its previous
// value, the error is recorded and the Feed moves to a degraded state until
// a later payload succeeds.
//
//	settings := relay.NewCell[Settings]()
//	feed := relay.NewFeed[Settings](file.New("/etc/app/settings.yaml"), settings).
//	    Codec(relay.YAMLCodec{})
//
//	if err := feed.Start(ctx); err != nil {
//	    log.Printf("initial settings rejected: %v", err)
//	}
type Feed[T any] struct {
	watcher        Watcher
	target         MutableSubject[T]
	name           string
	codec          Codec
	debounce       time.Duration
	startupTimeout time.Duration
	syncMode       bool
	clock          clockz.Clock
	onStop         func(State)

	state        atomic.Int32
	published    atomic.Bool
	lastError    atomic.Pointer[error]
	errorHistory *errorRing

	mu      sync.Mutex
	started bool

	// sync mode only
	changes <-chan []byte
}

// NewFeed creates a Feed that publishes decoded payloads from watcher to
// target. Configure it with the chainable methods, then call Start.
func NewFeed[T any](watcher Watcher, target MutableSubject[T]) *Feed[T] {
	f := &Feed[T]{
		watcher:  watcher,
		target:   target,
		codec:    JSONCodec{},
		debounce: DefaultDebounce,
		clock:    clockz.RealClock,
	}
	f.state.Store(int32(StateLoading))
	return f
}

// -----------------------------------------------------------------------------
// Chainable Instance Configuration
// -----------------------------------------------------------------------------

// Name sets a label used in emitted signals. Must be called before Start().
func (f *Feed[T]) Name(name string) *Feed[T] {
	f.name = name
	return f
}

// Codec sets the codec for decoding payloads.
// Default: JSONCodec. Must be called before Start().
func (f *Feed[T]) Codec(codec Codec) *Feed[T] {
	f.codec = codec
	return f
}

// Debounce sets how long the Feed waits for the source to settle.
// Payloads arriving within this duration are coalesced and only the last is
// published. Default: 100ms. Must be called before Start().
func (f *Feed[T]) Debounce(d time.Duration) *Feed[T] {
	f.debounce = d
	return f
}

// SyncMode disables the background goroutine. After Start, payloads are only
// handled by explicit calls to Process. Must be called before Start().
func (f *Feed[T]) SyncMode() *Feed[T] {
	f.syncMode = true
	return f
}

// Clock sets the clock used for debouncing and the startup timeout.
// Use clockz.FakeClock for deterministic tests. Must be called before Start().
func (f *Feed[T]) Clock(clock clockz.Clock) *Feed[T] {
	f.clock = clock
	return f
}

// StartupTimeout bounds how long Start waits for the first payload.
// Default: no timeout. Must be called before Start().
func (f *Feed[T]) StartupTimeout(d time.Duration) *Feed[T] {
	f.startupTimeout = d
	return f
}

// OnStop sets a callback invoked with the final state when the Feed stops
// watching. Must be called before Start().
func (f *Feed[T]) OnStop(fn func(State)) *Feed[T] {
	f.onStop = fn
	return f
}

// ErrorHistorySize sets the number of recent errors to retain.
// Use 0 (default) to only retain the most recent error via LastError().
// Must be called before Start().
func (f *Feed[T]) ErrorHistorySize(n int) *Feed[T] {
	f.errorHistory = newErrorRing(n)
	return f
}

// State returns the current state of the Feed.
func (f *Feed[T]) State() State {
	return State(f.state.Load())
}

// LastError returns the last decode or validation error, or nil if the most
// recent payload was published.
func (f *Feed[T]) LastError() error {
	ptr := f.lastError.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// ErrorHistory returns the errors since the last successful payload, oldest
// first. Returns nil if error history is not enabled.
func (f *Feed[T]) ErrorHistory() []error {
	return f.errorHistory.all()
}

// Start begins watching. It blocks until the first payload has been handled
// and returns its error, if any. Rejection of the first payload does not stop
// the Feed: it keeps watching for a valid one.
//
// In sync mode only the first payload is handled; use Process for the rest.
// Start can only be called once.
func (f *Feed[T]) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return errors.New("feed already started")
	}
	f.started = true
	f.mu.Unlock()

	capitan.Emit(ctx, FeedStarted,
		KeySubject.Field(f.name),
		KeyDebounce.Field(f.debounce),
		KeyContentType.Field(f.codec.ContentType()),
	)

	changes, err := f.watcher.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	startupCtx := ctx
	if f.startupTimeout > 0 {
		var cancel context.CancelFunc
		startupCtx, cancel = f.clock.WithTimeout(ctx, f.startupTimeout)
		defer cancel()
	}

	var initialErr error
	select {
	case <-startupCtx.Done():
		if f.startupTimeout > 0 && errors.Is(startupCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("startup timeout: watcher did not emit within %v", f.startupTimeout)
		}
		return startupCtx.Err()
	case raw, ok := <-changes:
		if !ok {
			return errors.New("watcher closed before emitting initial value")
		}
		initialErr = f.process(ctx, raw)
	}

	if f.syncMode {
		f.changes = changes
		return initialErr
	}

	go f.watch(ctx, changes)
	return initialErr
}

// Process handles the next pending payload in sync mode. It returns false if
// the Feed is not in sync mode, nothing is pending, or the watcher closed.
func (f *Feed[T]) Process(ctx context.Context) bool {
	if !f.syncMode {
		return false
	}

	select {
	case raw, ok := <-f.changes:
		if !ok {
			return false
		}
		_ = f.process(ctx, raw) //nolint:errcheck // Errors stored via fail
		return true
	default:
		return false
	}
}

// process decodes, validates and publishes a single payload.
func (f *Feed[T]) process(ctx context.Context, raw []byte) error {
	var value T
	if err := f.codec.Unmarshal(raw, &value); err != nil {
		f.fail(ctx, false, err)
		return fmt.Errorf("decode failed: %w", err)
	}

	if err := validate(&value); err != nil {
		f.fail(ctx, true, err)
		return fmt.Errorf("validation failed: %w", err)
	}

	f.target.SetValue(value)
	f.published.Store(true)
	f.lastError.Store(nil)
	f.errorHistory.clear()
	f.transition(ctx, StateHealthy)
	capitan.Emit(ctx, FeedApplied,
		KeySubject.Field(f.name),
	)
	return nil
}

// validate runs Validate on the value or its address, whichever implements
// Validator.
func validate[T any](value *T) error {
	if v, ok := any(*value).(Validator); ok {
		return v.Validate()
	}
	if v, ok := any(value).(Validator); ok {
		return v.Validate()
	}
	return nil
}

// fail records a rejected payload. validation distinguishes a failed
// Validate from a failed decode.
func (f *Feed[T]) fail(ctx context.Context, validation bool, err error) {
	e := err
	f.lastError.Store(&e)
	f.errorHistory.push(err)

	next := StateEmpty
	if f.published.Load() {
		next = StateDegraded
	}
	f.transition(ctx, next)

	if validation {
		capitan.Emit(ctx, FeedValidationFailed,
			KeySubject.Field(f.name),
			KeyError.Field(err.Error()),
		)
		return
	}
	capitan.Emit(ctx, FeedDecodeFailed,
		KeySubject.Field(f.name),
		KeyError.Field(err.Error()),
	)
}

func (f *Feed[T]) transition(ctx context.Context, next State) {
	prev := State(f.state.Swap(int32(next)))
	if prev == next {
		return
	}
	capitan.Emit(ctx, FeedStateChanged,
		KeySubject.Field(f.name),
		KeyOldState.Field(prev.String()),
		KeyNewState.Field(next.String()),
	)
}

// watch handles payloads from the watcher channel with debouncing.
func (f *Feed[T]) watch(ctx context.Context, changes <-chan []byte) {
	defer func() {
		final := f.State()
		capitan.Emit(ctx, FeedStopped,
			KeySubject.Field(f.name),
			KeyNewState.Field(final.String()),
		)
		if f.onStop != nil {
			f.onStop(final)
		}
	}()

	var (
		timer      clockz.Timer
		pending    []byte
		hasPending bool
	)

	for {
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case raw, ok := <-changes:
			if !ok {
				if hasPending {
					_ = f.process(ctx, pending) //nolint:errcheck // Errors stored via fail
				}
				return
			}

			pending = raw
			hasPending = true

			if timer == nil {
				timer = f.clock.NewTimer(f.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C():
					default:
					}
				}
				timer.Reset(f.debounce)
			}

		case <-timerC:
			if hasPending {
				_ = f.process(ctx, pending) //nolint:errcheck // Errors stored via fail
				hasPending = false
			}
		}
	}
}
