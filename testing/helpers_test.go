package testing

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/relay"
)

func TestTestSettings_Validate(t *testing.T) {
	tests := []struct {
		name     string
		settings TestSettings
		wantErr  bool
	}{
		{
			name:     "valid settings",
			settings: TestSettings{Port: 8080, Host: "localhost", Timeout: 30},
			wantErr:  false,
		},
		{
			name:     "port too low",
			settings: TestSettings{Port: 0, Host: "localhost"},
			wantErr:  true,
		},
		{
			name:     "port too high",
			settings: TestSettings{Port: 70000, Host: "localhost"},
			wantErr:  true,
		},
		{
			name:     "empty host",
			settings: TestSettings{Port: 8080, Host: ""},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.settings.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecorder_RecordsInOrder(t *testing.T) {
	cell := relay.NewCell[int]()
	r := Record[int](cell)

	cell.SetValue(1)
	cell.SetValue(2)
	cell.SetValue(3)

	RequireValues(t, r, 1, 2, 3)
	if last, ok := r.Last(); !ok || last != 3 {
		t.Errorf("expected last 3, got %d (ok=%v)", last, ok)
	}

	r.Reset()
	if r.Len() != 0 {
		t.Errorf("expected empty recorder after Reset, got %d", r.Len())
	}
	if _, ok := r.Last(); ok {
		t.Error("expected no last value after Reset")
	}
}

func TestRecorder_ConcurrentUpdates(t *testing.T) {
	r := NewRecorder[int]()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			r.Update(v)
		}(i)
	}
	wg.Wait()

	if r.Len() != 50 {
		t.Errorf("expected 50 values, got %d", r.Len())
	}
}

func TestWaitFor(t *testing.T) {
	t.Run("condition met immediately", func(t *testing.T) {
		if !WaitFor(t, 100*time.Millisecond, func() bool { return true }) {
			t.Error("expected WaitFor to return true")
		}
	})

	t.Run("condition never met", func(t *testing.T) {
		if WaitFor(t, 50*time.Millisecond, func() bool { return false }) {
			t.Error("expected WaitFor to return false on timeout")
		}
	})

	t.Run("condition met after delay", func(t *testing.T) {
		var met atomic.Bool
		go func() {
			time.Sleep(30 * time.Millisecond)
			met.Store(true)
		}()
		if !WaitFor(t, time.Second, met.Load) {
			t.Error("expected WaitFor to return true")
		}
	})
}

func TestWaitForValue(t *testing.T) {
	cell := relay.NewCell[string]()
	go func() {
		time.Sleep(20 * time.Millisecond)
		cell.SetValue("ready")
	}()

	if !WaitForValue[string](t, cell, "ready", time.Second) {
		t.Error("expected cell to reach 'ready'")
	}
}

func TestRequireValue(t *testing.T) {
	cell := relay.NewCellOf(TestSettings{Port: 8080, Host: "localhost"})

	// Should not fail for the correct value.
	RequireValue[TestSettings](t, cell, TestSettings{Port: 8080, Host: "localhost"})
}

func TestRequireNoValue(t *testing.T) {
	RequireNoValue[int](t, relay.NewCell[int]())
}

func TestNewTestFeed(t *testing.T) {
	feed, target, ch := NewTestFeed(t)

	ch <- []byte(`{"port": 9090, "host": "example.com"}`)
	if err := feed.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	RequireValue[TestSettings](t, target, TestSettings{Port: 9090, Host: "example.com"})

	ch <- []byte(`{"port": 0, "host": "example.com"}`)
	if !feed.Process(context.Background()) {
		t.Fatal("expected Process to handle the pending payload")
	}
	if feed.State() != relay.StateDegraded {
		t.Errorf("expected degraded, got %s", feed.State())
	}
	RequireValue[TestSettings](t, target, TestSettings{Port: 9090, Host: "example.com"})
}
