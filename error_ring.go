package relay

import "sync"

// errorRing keeps the most recent errors up to a fixed limit.
// A nil ring is valid and discards everything.
type errorRing struct {
	mu    sync.Mutex
	buf   []error
	limit int
}

// newErrorRing returns a ring holding up to size errors, or nil if size <= 0.
func newErrorRing(size int) *errorRing {
	if size <= 0 {
		return nil
	}
	return &errorRing{
		buf:   make([]error, 0, size),
		limit: size,
	}
}

func (r *errorRing) push(err error) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.buf) == r.limit {
		copy(r.buf, r.buf[1:])
		r.buf = r.buf[:len(r.buf)-1]
	}
	r.buf = append(r.buf, err)
}

func (r *errorRing) clear() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.buf)
	r.buf = r.buf[:0]
}

// all returns the retained errors, oldest first.
func (r *errorRing) all() []error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.buf) == 0 {
		return nil
	}
	out := make([]error, len(r.buf))
	copy(out, r.buf)
	return out
}
