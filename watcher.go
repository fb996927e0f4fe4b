package relay

import "context"

// Watcher observes an external source and emits its raw contents on a
// channel. Feed uses a Watcher to drive a MutableSubject.
type Watcher interface {
	// Watch begins observing the source and returns a channel that emits
	// raw bytes when the source changes. The channel is closed when ctx is
	// canceled or an unrecoverable error occurs.
	//
	// Implementations should emit the current contents immediately so the
	// first value is available without waiting for a change.
	Watch(ctx context.Context) (<-chan []byte, error)
}

// ChannelWatcher wraps an existing byte channel as a Watcher.
// Useful for testing and for sources that already produce bytes.
type ChannelWatcher struct {
	ch     <-chan []byte
	direct bool
}

// NewChannelWatcher creates a ChannelWatcher that forwards values from ch
// through its own goroutine, stopping when ctx is canceled.
func NewChannelWatcher(ch <-chan []byte) *ChannelWatcher {
	return &ChannelWatcher{ch: ch}
}

// NewSyncChannelWatcher creates a ChannelWatcher that hands ch back as is.
// Pair it with Feed.SyncMode for deterministic tests.
func NewSyncChannelWatcher(ch <-chan []byte) *ChannelWatcher {
	return &ChannelWatcher{ch: ch, direct: true}
}

func (w *ChannelWatcher) Watch(ctx context.Context) (<-chan []byte, error) {
	if w.direct {
		return w.ch, nil
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-w.ch:
				if !ok {
					return
				}
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
