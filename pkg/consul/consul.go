// Package consul provides a relay.Watcher for a Consul KV key using
// blocking queries.
package consul

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/consul/api"

	"github.com/zoobzio/relay"
)

var _ relay.Watcher = (*Watcher)(nil)

// DefaultRetryInterval is how long a Watcher waits after a failed query.
const DefaultRetryInterval = time.Second

// Watcher emits the value of a Consul KV key whenever its ModifyIndex moves.
// Deleting the key emits nothing; a Feed keeps the last value.
type Watcher struct {
	client     *api.Client
	key        string
	datacenter string
	wait       time.Duration
	retry      time.Duration
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDatacenter queries a specific datacenter instead of the agent's own.
func WithDatacenter(dc string) Option {
	return func(w *Watcher) {
		w.datacenter = dc
	}
}

// WithWaitTime bounds each blocking query. Default: the agent's default.
func WithWaitTime(d time.Duration) Option {
	return func(w *Watcher) {
		w.wait = d
	}
}

// WithRetryInterval sets the pause after a failed query.
// Default: DefaultRetryInterval.
func WithRetryInterval(d time.Duration) Option {
	return func(w *Watcher) {
		w.retry = d
	}
}

// New creates a Watcher for key.
func New(client *api.Client, key string, opts ...Option) *Watcher {
	w := &Watcher{
		client: client,
		key:    key,
		retry:  DefaultRetryInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch reads the key, emits its value if present and then blocks on
// subsequent index changes.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	kv := w.client.KV()

	pair, meta, err := kv.Get(w.key, w.query(ctx, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", w.key, err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)

		index := meta.LastIndex
		var modified uint64
		send := func(p *api.KVPair) bool {
			if p == nil || p.ModifyIndex == modified {
				return true
			}
			modified = p.ModifyIndex
			select {
			case out <- p.Value:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !send(pair) {
			return
		}

		for ctx.Err() == nil {
			pair, meta, err := kv.Get(w.key, w.query(ctx, index))
			if err != nil {
				select {
				case <-ctx.Done():
					return
				case <-time.After(w.retry):
					continue
				}
			}

			// Consul may reset the index; start over from zero then.
			if meta.LastIndex < index {
				index = 0
				continue
			}
			index = meta.LastIndex

			if !send(pair) {
				return
			}
		}
	}()

	return out, nil
}

func (w *Watcher) query(ctx context.Context, index uint64) *api.QueryOptions {
	opts := &api.QueryOptions{
		Datacenter: w.datacenter,
		WaitIndex:  index,
		WaitTime:   w.wait,
	}
	return opts.WithContext(ctx)
}
