// Package cancel implements a lightweight cancellation channel shared by
// one producer and any number of observers.
//
// The producer (Source) is owned by whoever may withdraw the work, the
// observers (Token) are handed to the code doing the work, which polls
// them at its quiescent points. Cancellation is monotonic: once set the
// flag never clears.
package cancel

import (
	"context"
	"sync/atomic"
	"time"
)

// pollInterval is how often Context adapters look at the flag.
const pollInterval = 50 * time.Millisecond

type state struct {
	cancelled atomic.Bool
	observers atomic.Int64
}

// Source is the producing end of a cancellation channel.
type Source struct {
	st *state
}

// NewSource returns a new, not cancelled, Source.
func NewSource() *Source {
	return &Source{st: &state{}}
}

// Cancel sets the flag. Calling it more than once is harmless.
func (s *Source) Cancel() {
	s.st.cancelled.Store(true)
}

// IsCancelled reports whether Cancel has been called.
func (s *Source) IsCancelled() bool {
	return s.st.cancelled.Load()
}

// Token returns a new observer. The caller must Release it when done.
func (s *Source) Token() *Token {
	s.st.observers.Add(1)
	return &Token{st: s.st}
}

// Observers returns the number of live observers of s.
func (s *Source) Observers() int {
	return int(s.st.observers.Load())
}

// Token is an observer of a cancellation channel.
//
// A nil *Token behaves like Never().
type Token struct {
	st       *state
	released atomic.Bool
	deadline time.Time
}

var never = &Token{}

// Never returns an observer that is never cancelled. It is not counted
// as an observer and releasing it does nothing.
func Never() *Token {
	return never
}

// IsCancelled reports whether the producer has cancelled, or the token's
// deadline has passed.
func (t *Token) IsCancelled() bool {
	if t == nil || t.st == nil {
		return false
	}
	if t.st.cancelled.Load() {
		return true
	}
	return !t.deadline.IsZero() && !time.Now().Before(t.deadline)
}

// Expired reports whether the token is cancelled because of its deadline
// rather than because of the producer.
func (t *Token) Expired() bool {
	if t == nil || t.st == nil || t.deadline.IsZero() {
		return false
	}
	return !t.st.cancelled.Load() && !time.Now().Before(t.deadline)
}

// Clone returns a new observer of the same producer, with the same deadline.
func (t *Token) Clone() *Token {
	if t == nil || t.st == nil {
		return never
	}
	t.st.observers.Add(1)
	return &Token{st: t.st, deadline: t.deadline}
}

// WithDeadline returns a new observer that also reports cancellation once
// d has passed. A zero d returns a plain clone.
func (t *Token) WithDeadline(d time.Time) *Token {
	c := t.Clone()
	if c == never || d.IsZero() {
		return c
	}
	if c.deadline.IsZero() || d.Before(c.deadline) {
		c.deadline = d
	}
	return c
}

// Release drops the token from the observer count. Only the first call
// has an effect.
func (t *Token) Release() {
	if t == nil || t.st == nil {
		return
	}
	if t.released.CompareAndSwap(false, true) {
		t.st.observers.Add(-1)
	}
}

// Context returns a context derived from parent that is cancelled once t
// is. The returned CancelFunc must be called to stop the watcher.
func (t *Token) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	if t == nil || t.st == nil {
		return ctx, cancel
	}
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			if t.IsCancelled() {
				cancel()
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return ctx, cancel
}
