// Package firestore provides a relay.Watcher for a Firestore document using
// realtime snapshot listeners.
package firestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/zoobzio/relay"
)

var _ relay.Watcher = (*Watcher)(nil)

// DefaultField is the document field a Watcher reads unless WithField or
// WholeDocument is used.
const DefaultField = "data"

// Watcher emits a field of a Firestore document whenever the document
// changes. The field may hold bytes or a string. A missing document or field
// emits nothing; a Feed keeps the last value.
type Watcher struct {
	client     *firestore.Client
	collection string
	document   string
	field      string
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithField sets the field to read. Default: DefaultField.
func WithField(field string) Option {
	return func(w *Watcher) {
		w.field = field
	}
}

// WholeDocument makes the Watcher emit the entire document encoded as JSON.
func WholeDocument() Option {
	return func(w *Watcher) {
		w.field = ""
	}
}

// New creates a Watcher for collection/document.
func New(client *firestore.Client, collection, document string, opts ...Option) *Watcher {
	w := &Watcher{
		client:     client,
		collection: collection,
		document:   document,
		field:      DefaultField,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Put writes data to the watched field, creating the document if needed.
// It cannot be used with WholeDocument.
func (w *Watcher) Put(ctx context.Context, data []byte) error {
	if w.field == "" {
		return fmt.Errorf("put %s/%s: watcher reads the whole document", w.collection, w.document)
	}
	_, err := w.ref().Set(ctx, map[string]any{w.field: data}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", w.collection, w.document, err)
	}
	return nil
}

// Watch opens a snapshot listener. The first snapshot carries the current
// document, so an existing value is emitted immediately. The channel closes
// when ctx is canceled or the listener fails.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	out := make(chan []byte)

	go func() {
		defer close(out)

		snapshots := w.ref().Snapshots(ctx)
		defer snapshots.Stop()

		var last []byte
		for {
			snap, err := snapshots.Next()
			if err != nil {
				// The iterator keeps returning the same error once it fails.
				return
			}
			if !snap.Exists() {
				continue
			}

			value, err := w.extract(snap.Data())
			if err != nil || value == nil || bytes.Equal(value, last) {
				continue
			}
			last = value

			select {
			case out <- value:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func (w *Watcher) ref() *firestore.DocumentRef {
	return w.client.Collection(w.collection).Doc(w.document)
}

// extract pulls the watched value out of document data.
func (w *Watcher) extract(data map[string]any) ([]byte, error) {
	if w.field == "" {
		return json.Marshal(data)
	}
	switch v := data[w.field].(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, nil
	}
}
