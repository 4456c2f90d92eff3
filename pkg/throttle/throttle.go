// Package throttle collapses rapid repeat invocations of an asynchronous
// operation onto one shared in-flight call per cooldown window. It is the
// guard that keeps login-state re-renders and iframe polling from spamming
// the validation endpoint.
package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/platform"
)

// Func is the operation being throttled.
type Func[T any] func(ctx context.Context) (T, error)

// call holds one window's shared outcome. done is closed exactly once, after
// val and err are set.
type call[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func (c *call[T]) wait(ctx context.Context) (T, error) {
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (c *call[T]) settled() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Throttled wraps a Func so that at most one underlying invocation runs per
// delay window. Every caller arriving inside the window shares the window's
// result, whether still in flight or already settled. Errors are shared the
// same way; a caller after the window elapses starts a fresh window and may
// retry.
type Throttled[T any] struct {
	fn    Func[T]
	delay time.Duration
	clock platform.Clock

	mu          sync.Mutex
	lastStart   time.Time
	pending     *call[T]
	onCoalesced func()
}

// OnCoalesced registers a callback invoked each time a caller is served the
// shared window result instead of starting a fresh invocation. Metrics hook.
func (t *Throttled[T]) OnCoalesced(fn func()) {
	t.mu.Lock()
	t.onCoalesced = fn
	t.mu.Unlock()
}

// New wraps fn with a cooldown window of delay using the system clock.
func New[T any](fn Func[T], delay time.Duration) *Throttled[T] {
	return NewWithClock(fn, delay, platform.SystemClock())
}

// NewWithClock is New with an injected clock for deterministic tests.
func NewWithClock[T any](fn Func[T], delay time.Duration, clock platform.Clock) *Throttled[T] {
	return &Throttled[T]{fn: fn, delay: delay, clock: clock}
}

// Do returns the current window's result, invoking the underlying operation
// only when no window is open. A new window never starts before the previous
// window's call has settled, so invocations are strictly sequential.
func (t *Throttled[T]) Do(ctx context.Context) (T, error) {
	t.mu.Lock()
	now := t.clock.Now()

	if t.pending != nil {
		inWindow := now.Sub(t.lastStart) < t.delay
		if inWindow || !t.pending.settled() {
			shared := t.pending
			coalesced := t.onCoalesced
			t.mu.Unlock()
			if coalesced != nil {
				coalesced()
			}
			return shared.wait(ctx)
		}
	}

	current := &call[T]{done: make(chan struct{})}
	t.pending = current
	t.lastStart = now
	t.mu.Unlock()

	val, err := t.fn(ctx)
	current.val, current.err = val, err
	close(current.done)
	return val, err
}

// Pending reports whether a call is currently in flight.
func (t *Throttled[T]) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil && !t.pending.settled()
}
