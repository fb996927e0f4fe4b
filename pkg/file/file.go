// Package file provides a relay.Watcher backed by a file on disk.
package file

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher emits the contents of a file whenever it changes.
//
// The parent directory is watched rather than the file itself, so editors
// and deploy tools that replace the file by rename are followed. Empty reads
// (a file caught mid-truncate) and unchanged contents are not emitted.
type Watcher struct {
	path string
}

// New creates a Watcher for the file at path.
func New(path string) *Watcher {
	return &Watcher{path: path}
}

// Watch emits the current contents immediately, then again after every
// write, create or rename that changes them. The channel closes when ctx is
// canceled.
func (w *Watcher) Watch(ctx context.Context) (<-chan []byte, error) {
	if _, err := os.Stat(w.path); err != nil {
		return nil, fmt.Errorf("failed to stat file %s: %w", w.path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	target := filepath.Clean(w.path)
	out := make(chan []byte)

	go func() {
		defer close(out)
		defer watcher.Close()

		var last []byte
		emit := func() bool {
			data, err := os.ReadFile(target)
			if err != nil || len(data) == 0 || bytes.Equal(data, last) {
				return true
			}
			last = data
			select {
			case out <- data:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if !emit() {
					return
				}

			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
				// Keep watching; the next event retries the read.
			}
		}
	}()

	return out, nil
}
