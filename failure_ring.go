package prefs

import "sync"

// failureRing keeps the most recent storage failures, oldest first.
// A nil ring discards everything, so history is opt-in.
type failureRing struct {
	mu    sync.RWMutex
	items []Failure
	next  int
	full  bool
}

// newFailureRing returns a ring holding size failures, or nil if size <= 0.
func newFailureRing(size int) *failureRing {
	if size <= 0 {
		return nil
	}
	return &failureRing{items: make([]Failure, size)}
}

func (r *failureRing) push(f Failure) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[r.next] = f
	r.next++
	if r.next == len(r.items) {
		r.next = 0
		r.full = true
	}
}

func (r *failureRing) reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.items)
	r.next = 0
	r.full = false
}

// snapshot returns a copy of the retained failures, oldest first.
func (r *failureRing) snapshot() []Failure {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.full {
		if r.next == 0 {
			return nil
		}
		out := make([]Failure, r.next)
		copy(out, r.items[:r.next])
		return out
	}
	out := make([]Failure, 0, len(r.items))
	out = append(out, r.items[r.next:]...)
	return append(out, r.items[:r.next]...)
}
