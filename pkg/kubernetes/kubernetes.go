// Package kubernetes provides a relay.Watcher for one data key of a
// ConfigMap or Secret.
package kubernetes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"

	"github.com/zoobzio/relay"
)

var _ relay.Watcher = (*Watcher)(nil)

// Kind selects the resource a Watcher reads.
type Kind int

const (
	// ConfigMap reads from ConfigMap.Data.
	ConfigMap Kind = iota
	// Secret reads from Secret.Data.
	Secret
)

func (k Kind) String() string {
	if k == Secret {
		return "secret"
	}
	return "configmap"
}

// DefaultRetryInterval is how long a Watcher waits before re-establishing
// a failed or expired watch.
const DefaultRetryInterval = time.Second

var errWatchClosed = errors.New("watch closed")

// Watcher emits one data key of a ConfigMap or Secret whenever it changes.
// A missing key or a deleted resource emits nothing; a Feed keeps the last
// value. Watches that expire are re-established transparently.
type Watcher struct {
	client    kubernetes.Interface
	namespace string
	name      string
	key       string
	kind      Kind
	retry     time.Duration
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithKind sets the resource kind. Default: ConfigMap.
func WithKind(kind Kind) Option {
	return func(w *Watcher) {
		w.kind = kind
	}
}

// WithRetryInterval sets the pause before re-establishing a watch.
// Default: DefaultRetryInterval.
func WithRetryInterval(d time.Duration) Option {
	return func(w *Watcher) {
		w.retry = d
	}
}

// New creates a Watcher for key in the named resource.
func New(client kubernetes.Interface, namespace, name, key string, opts ...Option) *Watcher {
	w := &Watcher{
		client:    client,
		namespace: namespace,
		name:      name,
		key:       key,
		kind:      ConfigMap,
		retry:     DefaultRetryInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch reads the resource, failing if it does not exist, then emits the
// key's current value and every change to it.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	value, version, err := w.get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s/%s: %w", w.kind, w.namespace, w.name, err)
	}

	out := make(chan []byte)

	go func() {
		defer close(out)

		var last []byte
		send := func(v []byte) bool {
			if v == nil || bytes.Equal(v, last) {
				return true
			}
			last = v
			select {
			case out <- v:
				return true
			case <-ctx.Done():
				return false
			}
		}

		initial := value
		for {
			err := w.follow(ctx, version, initial, send)
			if ctx.Err() != nil {
				return
			}
			if err != nil && !errors.Is(err, errWatchClosed) {
				select {
				case <-ctx.Done():
					return
				case <-time.After(w.retry):
				}
			}

			// Resync from the current resource version.
			initial, version, err = w.get(ctx)
			if err != nil {
				initial, version = nil, ""
			}
		}
	}()

	return out, nil
}

// follow opens a watch at version, sends initial once the watch is
// established and then forwards changes until the watch ends.
func (w *Watcher) follow(ctx context.Context, version string, initial []byte, send func([]byte) bool) error {
	opts := metav1.ListOptions{
		FieldSelector:   fields.OneTermEqualSelector("metadata.name", w.name).String(),
		ResourceVersion: version,
	}

	var (
		events watch.Interface
		err    error
	)
	if w.kind == Secret {
		events, err = w.client.CoreV1().Secrets(w.namespace).Watch(ctx, opts)
	} else {
		events, err = w.client.CoreV1().ConfigMaps(w.namespace).Watch(ctx, opts)
	}
	if err != nil {
		return err
	}
	defer events.Stop()

	if !send(initial) {
		return ctx.Err()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events.ResultChan():
			if !ok {
				return errWatchClosed
			}
			switch event.Type {
			case watch.Error:
				return fmt.Errorf("watch error: %v", event.Object)
			case watch.Added, watch.Modified:
				if !send(w.extract(event.Object)) {
					return ctx.Err()
				}
			}
		}
	}
}

// get reads the key's value and the resource version.
func (w *Watcher) get(ctx context.Context) ([]byte, string, error) {
	var obj runtime.Object
	var err error
	if w.kind == Secret {
		obj, err = w.client.CoreV1().Secrets(w.namespace).Get(ctx, w.name, metav1.GetOptions{})
	} else {
		obj, err = w.client.CoreV1().ConfigMaps(w.namespace).Get(ctx, w.name, metav1.GetOptions{})
	}
	if err != nil {
		return nil, "", err
	}

	meta, err := metaOf(obj)
	if err != nil {
		return nil, "", err
	}
	return w.extract(obj), meta.ResourceVersion, nil
}

// extract returns the watched key from obj, or nil if obj is not the watched
// resource or lacks the key.
func (w *Watcher) extract(obj runtime.Object) []byte {
	switch r := obj.(type) {
	case *corev1.ConfigMap:
		if w.kind != ConfigMap || r.Name != w.name {
			return nil
		}
		if v, ok := r.Data[w.key]; ok {
			return []byte(v)
		}
		if v, ok := r.BinaryData[w.key]; ok {
			return v
		}
	case *corev1.Secret:
		if w.kind != Secret || r.Name != w.name {
			return nil
		}
		if v, ok := r.Data[w.key]; ok {
			return v
		}
	}
	return nil
}

func metaOf(obj runtime.Object) (*metav1.ObjectMeta, error) {
	switch r := obj.(type) {
	case *corev1.ConfigMap:
		return &r.ObjectMeta, nil
	case *corev1.Secret:
		return &r.ObjectMeta, nil
	default:
		return nil, fmt.Errorf("unexpected object %T", obj)
	}
}
