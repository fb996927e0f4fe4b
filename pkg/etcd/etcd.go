// Package etcd provides a relay.Watcher for a single etcd key.
package etcd

import (
	"bytes"
	"context"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/zoobzio/relay"
)

var _ relay.Watcher = (*Watcher)(nil)

// Watcher emits the value of an etcd key on every put that changes it.
// Deletes emit nothing; a Feed keeps the last value.
//
// If the watch is canceled by the server, for example after compaction,
// the Watcher reads the key again and resumes from that revision.
type Watcher struct {
	client *clientv3.Client
	key    string
}

// New creates a Watcher for key.
func New(client *clientv3.Client, key string) *Watcher {
	return &Watcher{client: client, key: key}
}

// Watch reads the key, emits its value if it exists and then follows
// changes from the next revision.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	resp, err := w.client.Get(ctx, w.key)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", w.key, err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)

		var last []byte
		send := func(value []byte) bool {
			if last != nil && bytes.Equal(value, last) {
				return true
			}
			last = value
			select {
			case out <- value:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			if len(resp.Kvs) > 0 && !send(resp.Kvs[0].Value) {
				return
			}

			if !w.follow(ctx, resp.Header.Revision+1, send) {
				return
			}

			// The watch ended without ctx being done: resync.
			resp, err = w.client.Get(ctx, w.key)
			if err != nil {
				return
			}
		}
	}()

	return out, nil
}

// follow forwards puts from rev onwards. It returns false when the caller
// should stop, true when the watch must be re-established.
func (w *Watcher) follow(ctx context.Context, rev int64, send func([]byte) bool) bool {
	watchCtx, cancel := context.WithCancel(clientv3.WithRequireLeader(ctx))
	defer cancel()

	changes := w.client.Watch(watchCtx, w.key, clientv3.WithRev(rev))
	for {
		select {
		case <-ctx.Done():
			return false
		case resp, ok := <-changes:
			if !ok || resp.Canceled {
				return ctx.Err() == nil
			}
			if resp.Err() != nil {
				continue
			}
			for _, event := range resp.Events {
				if event.Type != clientv3.EventTypePut {
					continue
				}
				if !send(event.Kv.Value) {
					return false
				}
			}
		}
	}
}
