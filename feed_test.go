package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

// testSettings is a simple settings type for Feed tests.
type testSettings struct {
	Port    int    `yaml:"port" json:"port"`
	Host    string `yaml:"host" json:"host"`
	Timeout int    `yaml:"timeout" json:"timeout"`
}

// Validate implements the Validator interface.
func (s testSettings) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if s.Host == "" {
		return errors.New("host is required")
	}
	return nil
}

// pointerValidated implements Validator on its pointer type only.
type pointerValidated struct {
	Name string `json:"name"`
}

func (p *pointerValidated) Validate() error {
	if p.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

type failingWatcher struct{ err error }

func (w failingWatcher) Watch(context.Context) (<-chan []byte, error) {
	return nil, w.err
}

func TestFeed_BasicYAML(t *testing.T) {
	ctx := context.Background()
	ch := make(chan []byte, 1)
	target := NewCell[testSettings]()

	feed := NewFeed[testSettings](NewSyncChannelWatcher(ch), target).
		SyncMode().
		Codec(YAMLCodec{})

	ch <- []byte("port: 8080\nhost: localhost\ntimeout: 30")

	if err := feed.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	v, err := target.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}
	if v.Port != 8080 || v.Host != "localhost" || v.Timeout != 30 {
		t.Errorf("unexpected value: %+v", v)
	}
	if feed.State() != StateHealthy {
		t.Errorf("expected healthy, got %s", feed.State())
	}
}

func TestFeed_DefaultCodecIsJSON(t *testing.T) {
	ch := make(chan []byte, 1)
	target := NewCell[testSettings]()
	feed := NewFeed[testSettings](NewSyncChannelWatcher(ch), target).SyncMode()

	ch <- []byte(`{"port": 9090, "host": "example.com"}`)

	if err := feed.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if v, _ := target.Value(); v.Port != 9090 {
		t.Errorf("expected port 9090, got %d", v.Port)
	}
}

func TestFeed_NotifiesTargetObservers(t *testing.T) {
	ch := make(chan []byte, 2)
	target := NewCell[testSettings]()
	ports := Map(Subject[testSettings](target), func(s testSettings) int { return s.Port })
	observed := newRecorder[int]()
	ports.RegisterObserver(observed)

	feed := NewFeed[testSettings](NewSyncChannelWatcher(ch), target).SyncMode()
	ch <- []byte(`{"port": 1, "host": "localhost"}`)
	ch <- []byte(`{"port": 2, "host": "localhost"}`)

	if err := feed.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !feed.Process(context.Background()) {
		t.Fatal("expected Process to handle the pending payload")
	}

	got := observed.values()
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("expected [1 2], got %v", got)
	}
}

func TestFeed_ValidationFails(t *testing.T) {
	ch := make(chan []byte, 1)
	target := NewCell[testSettings]()
	feed := NewFeed[testSettings](NewSyncChannelWatcher(ch), target).SyncMode()

	ch <- []byte(`{"port": 0, "host": "localhost"}`)

	err := feed.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := target.Value(); !errors.Is(err, ErrNoValue) {
		t.Errorf("expected target untouched, got %v", err)
	}
	if feed.State() != StateEmpty {
		t.Errorf("expected empty, got %s", feed.State())
	}
}

func TestFeed_PointerValidator(t *testing.T) {
	ch := make(chan []byte, 2)
	target := NewCell[pointerValidated]()
	feed := NewFeed[pointerValidated](NewSyncChannelWatcher(ch), target).SyncMode()

	ch <- []byte(`{"name": ""}`)
	ch <- []byte(`{"name": "ok"}`)

	if err := feed.Start(context.Background()); err == nil {
		t.Fatal("expected validation error from pointer receiver")
	}
	feed.Process(context.Background())

	if v, _ := target.Value(); v.Name != "ok" {
		t.Errorf("expected 'ok', got %q", v.Name)
	}
}

func TestFeed_InvalidJSON(t *testing.T) {
	ch := make(chan []byte, 1)
	target := NewCell[testSettings]()
	feed := NewFeed[testSettings](NewSyncChannelWatcher(ch), target).SyncMode()

	ch <- []byte(`{not json`)

	err := feed.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "decode failed") {
		t.Fatalf("expected decode error, got %v", err)
	}
	if feed.LastError() == nil {
		t.Error("expected LastError to be set")
	}
	if feed.State() != StateEmpty {
		t.Errorf("expected empty, got %s", feed.State())
	}
}

func TestFeed_KeepsPreviousValueOnFailure(t *testing.T) {
	ctx := context.Background()
	ch := make(chan []byte, 2)
	target := NewCell[testSettings]()
	feed := NewFeed[testSettings](NewSyncChannelWatcher(ch), target).SyncMode()

	ch <- []byte(`{"port": 8080, "host": "localhost"}`)
	ch <- []byte(`{"port": 99999, "host": "localhost"}`)

	if err := feed.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	feed.Process(ctx)

	if v, _ := target.Value(); v.Port != 8080 {
		t.Errorf("expected previous port 8080, got %d", v.Port)
	}
	if feed.State() != StateDegraded {
		t.Errorf("expected degraded, got %s", feed.State())
	}
}

func TestFeed_RecoverFromDegraded(t *testing.T) {
	ctx := context.Background()
	ch := make(chan []byte, 3)
	target := NewCell[testSettings]()
	feed := NewFeed[testSettings](NewSyncChannelWatcher(ch), target).SyncMode()

	ch <- []byte(`{"port": 8080, "host": "localhost"}`)
	ch <- []byte(`{"port": 0, "host": "localhost"}`)
	ch <- []byte(`{"port": 9090, "host": "localhost"}`)

	if err := feed.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	feed.Process(ctx)
	if feed.State() != StateDegraded {
		t.Fatalf("expected degraded, got %s", feed.State())
	}

	feed.Process(ctx)
	if feed.State() != StateHealthy {
		t.Errorf("expected healthy, got %s", feed.State())
	}
	if feed.LastError() != nil {
		t.Errorf("expected LastError cleared, got %v", feed.LastError())
	}
	if v, _ := target.Value(); v.Port != 9090 {
		t.Errorf("expected port 9090, got %d", v.Port)
	}
}

func TestFeed_CannotStartTwice(t *testing.T) {
	ch := make(chan []byte, 1)
	ch <- []byte(`{"port": 8080, "host": "localhost"}`)
	feed := NewFeed[testSettings](NewSyncChannelWatcher(ch), NewCell[testSettings]()).SyncMode()

	if err := feed.Start(context.Background()); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if err := feed.Start(context.Background()); err == nil {
		t.Error("expected error on second Start")
	}
}

func TestFeed_WatcherError(t *testing.T) {
	sentinel := errors.New("no such source")
	feed := NewFeed[testSettings](failingWatcher{sentinel}, NewCell[testSettings]())

	err := feed.Start(context.Background())
	if !errors.Is(err, sentinel) {
		t.Errorf("expected wrapped watcher error, got %v", err)
	}
}

func TestFeed_WatcherClosedBeforeStart(t *testing.T) {
	ch := make(chan []byte)
	close(ch)
	feed := NewFeed[testSettings](NewSyncChannelWatcher(ch), NewCell[testSettings]()).SyncMode()

	if err := feed.Start(context.Background()); err == nil {
		t.Error("expected error when watcher closes before first value")
	}
}

func TestFeed_ContextCancellationBeforeValue(t *testing.T) {
	ch := make(chan []byte)
	feed := NewFeed[testSettings](NewSyncChannelWatcher(ch), NewCell[testSettings]()).SyncMode()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := feed.Start(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestFeed_ProcessNotInSyncMode(t *testing.T) {
	ch := make(chan []byte, 1)
	ch <- []byte(`{"port": 8080, "host": "localhost"}`)
	feed := NewFeed[testSettings](NewChannelWatcher(ch), NewCell[testSettings]())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := feed.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if feed.Process(ctx) {
		t.Error("expected Process to return false outside sync mode")
	}
}

func TestFeed_ProcessChannelClosed(t *testing.T) {
	ch := make(chan []byte, 1)
	ch <- []byte(`{"port": 8080, "host": "localhost"}`)
	feed := NewFeed[testSettings](NewSyncChannelWatcher(ch), NewCell[testSettings]()).SyncMode()

	if err := feed.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if feed.Process(context.Background()) {
		t.Error("expected Process to return false with nothing pending")
	}
	close(ch)
	if feed.Process(context.Background()) {
		t.Error("expected Process to return false on closed channel")
	}
}

func TestFeed_Debounce_CoalescesRapidChanges(t *testing.T) {
	clock := clockz.NewFakeClock()
	ch := make(chan []byte, 10)
	ch <- []byte(`{"port": 1, "host": "localhost"}`)

	var applied atomic.Int32
	var lastPort atomic.Int32
	target := NewCell[testSettings]()
	target.RegisterObserver(Func(func(s testSettings) {
		applied.Add(1)
		lastPort.Store(int32(s.Port)) //nolint:gosec // Port validated to 1-65535
	}))

	feed := NewFeed[testSettings](NewChannelWatcher(ch), target).
		Debounce(100 * time.Millisecond).
		Clock(clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := feed.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if applied.Load() != 1 {
		t.Errorf("expected 1 publish after start, got %d", applied.Load())
	}

	ch <- []byte(`{"port": 2, "host": "localhost"}`)
	ch <- []byte(`{"port": 3, "host": "localhost"}`)
	ch <- []byte(`{"port": 4, "host": "localhost"}`)

	// Allow goroutine to receive changes
	time.Sleep(10 * time.Millisecond)

	if applied.Load() != 1 {
		t.Errorf("expected still 1 publish (debouncing), got %d", applied.Load())
	}

	clock.Advance(150 * time.Millisecond)
	clock.BlockUntilReady()

	// Allow goroutine to process timer
	time.Sleep(10 * time.Millisecond)

	if applied.Load() != 2 {
		t.Errorf("expected 2 publishes after debounce, got %d", applied.Load())
	}
	if lastPort.Load() != 4 {
		t.Errorf("expected last port 4, got %d", lastPort.Load())
	}
}

func TestFeed_Debounce_ProcessesPendingOnClose(t *testing.T) {
	clock := clockz.NewFakeClock()
	ch := make(chan []byte, 10)
	ch <- []byte(`{"port": 1, "host": "localhost"}`)

	target := NewCell[testSettings]()
	feed := NewFeed[testSettings](NewChannelWatcher(ch), target).
		Debounce(100 * time.Millisecond).
		Clock(clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := feed.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ch <- []byte(`{"port": 99, "host": "localhost"}`)
	time.Sleep(10 * time.Millisecond)

	close(ch)
	time.Sleep(10 * time.Millisecond)

	if v, _ := target.Value(); v.Port != 99 {
		t.Errorf("expected pending port 99 published on close, got %d", v.Port)
	}
}

func TestFeed_StartupTimeout(t *testing.T) {
	clock := clockz.NewFakeClock()
	ch := make(chan []byte) // unbuffered, will block forever

	feed := NewFeed[testSettings](NewSyncChannelWatcher(ch), NewCell[testSettings]()).
		SyncMode().
		StartupTimeout(100 * time.Millisecond).
		Clock(clock)

	errCh := make(chan error, 1)
	go func() {
		errCh <- feed.Start(context.Background())
	}()

	// Wait for timeout context to register with the fake clock
	time.Sleep(10 * time.Millisecond)

	clock.Advance(150 * time.Millisecond)
	clock.BlockUntilReady()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected timeout error")
		}
		if feed.State() != StateLoading {
			t.Errorf("expected loading state, got %s", feed.State())
		}
	case <-time.After(time.Second):
		t.Fatal("Start did not return after timeout")
	}
}

func TestFeed_StartupTimeout_SucceedsBeforeTimeout(t *testing.T) {
	clock := clockz.NewFakeClock()
	ch := make(chan []byte, 1)
	ch <- []byte(`{"port": 8080, "host": "localhost"}`)

	feed := NewFeed[testSettings](NewSyncChannelWatcher(ch), NewCell[testSettings]()).
		SyncMode().
		StartupTimeout(100 * time.Millisecond).
		Clock(clock)

	if err := feed.Start(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if feed.State() != StateHealthy {
		t.Errorf("expected healthy state, got %s", feed.State())
	}
}

func TestFeed_OnStop_CalledOnContextCancel(t *testing.T) {
	ch := make(chan []byte, 1)
	ch <- []byte(`{"port": 8080, "host": "localhost"}`)

	stopCh := make(chan State, 1)
	feed := NewFeed[testSettings](NewChannelWatcher(ch), NewCell[testSettings]()).
		OnStop(func(s State) { stopCh <- s })

	ctx, cancel := context.WithCancel(context.Background())
	if err := feed.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	cancel()

	select {
	case s := <-stopCh:
		if s != StateHealthy {
			t.Errorf("expected StateHealthy at stop, got %s", s)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("expected OnStop to be called")
	}
}

func TestFeed_OnStop_CalledOnChannelClose(t *testing.T) {
	ch := make(chan []byte, 1)
	ch <- []byte(`{"port": 8080, "host": "localhost"}`)

	stopCh := make(chan struct{}, 1)
	feed := NewFeed[testSettings](NewChannelWatcher(ch), NewCell[testSettings]()).
		OnStop(func(State) { stopCh <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := feed.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	close(ch)

	select {
	case <-stopCh:
	case <-time.After(100 * time.Millisecond):
		t.Error("expected OnStop to be called when channel closes")
	}
}

func TestFeed_ErrorHistory(t *testing.T) {
	ctx := context.Background()
	ch := make(chan []byte, 5)
	feed := NewFeed[testSettings](NewSyncChannelWatcher(ch), NewCell[testSettings]()).
		SyncMode().
		ErrorHistorySize(2)

	ch <- []byte(`{"port": 8080, "host": "localhost"}`)
	ch <- []byte(`{bad`)
	ch <- []byte(`{"port": 0, "host": "localhost"}`)
	ch <- []byte(`{"port": 1, "host": ""}`)

	if err := feed.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for feed.Process(ctx) {
	}

	history := feed.ErrorHistory()
	if len(history) != 2 {
		t.Fatalf("expected 2 retained errors, got %d", len(history))
	}
	if !strings.Contains(history[0].Error(), "port") || !strings.Contains(history[1].Error(), "host") {
		t.Errorf("expected oldest evicted, got %v", history)
	}

	ch <- []byte(`{"port": 8081, "host": "localhost"}`)
	feed.Process(ctx)
	if feed.ErrorHistory() != nil {
		t.Errorf("expected history cleared on success, got %v", feed.ErrorHistory())
	}
}

func TestFeed_ErrorHistory_DisabledByDefault(t *testing.T) {
	ch := make(chan []byte, 1)
	ch <- []byte(`{bad`)
	feed := NewFeed[testSettings](NewSyncChannelWatcher(ch), NewCell[testSettings]()).SyncMode()

	_ = feed.Start(context.Background()) //nolint:errcheck // Error expected

	if feed.ErrorHistory() != nil {
		t.Error("expected nil history when disabled")
	}
	if feed.LastError() == nil {
		t.Error("expected LastError to be set")
	}
}
