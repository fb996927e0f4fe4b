// Package zookeeper provides a relay.Watcher for a ZooKeeper znode.
package zookeeper

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/go-zookeeper/zk"

	"github.com/zoobzio/relay"
)

var _ relay.Watcher = (*Watcher)(nil)

// Watcher emits the data of a znode whenever it changes.
//
// ZooKeeper watches fire once, so the Watcher re-arms after every event.
// A missing node is waited for; a deleted node emits nothing until it is
// created again.
type Watcher struct {
	conn *zk.Conn
	path string
}

// New creates a Watcher for the znode at path.
func New(conn *zk.Conn, path string) *Watcher {
	return &Watcher{conn: conn, path: path}
}

// Watch emits the node's current data, if the node exists, and then its data
// after every change.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	if _, _, err := w.conn.Exists(w.path); err != nil {
		return nil, fmt.Errorf("failed to check %s: %w", w.path, err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)

		var last []byte
		for {
			data, events, err := w.arm()
			if err != nil {
				return
			}

			if data != nil && !bytes.Equal(data, last) {
				last = data
				select {
				case out <- data:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case event := <-events:
				if event.Err != nil && !errors.Is(event.Err, zk.ErrNoNode) {
					return
				}
			}
		}
	}()

	return out, nil
}

// arm reads the node and sets a one-shot watch on it. If the node does not
// exist it returns nil data and a watch that fires on creation.
func (w *Watcher) arm() ([]byte, <-chan zk.Event, error) {
	for {
		data, _, events, err := w.conn.GetW(w.path)
		if err == nil {
			return data, events, nil
		}
		if !errors.Is(err, zk.ErrNoNode) {
			return nil, nil, err
		}

		exists, _, events, err := w.conn.ExistsW(w.path)
		if err != nil {
			return nil, nil, err
		}
		if !exists {
			return nil, events, nil
		}
		// Created between the two calls; read it again.
	}
}
