// Package cancellation provides the one-shot cancellation signal shared by
// the delay endpoints and the cancelling client.
//
// A Signal starts armed and fires exactly once; firing an already-fired
// signal is a no-op. Any number of goroutines may observe the signal
// concurrently through Fired or Done. Timeout triggers, OS interrupts and
// transport disconnects are just different callers of Fire feeding the same
// one-shot abstraction.
package cancellation

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"time"
)

// Cause identifies why a signal fired.
type Cause string

const (
	CauseManual     Cause = "manual"
	CauseTimeout    Cause = "timeout"
	CauseInterrupt  Cause = "interrupt"
	CauseDisconnect Cause = "disconnect"
)

// ErrFired is the error reported by contexts derived from a fired signal.
var ErrFired = errors.New("cancellation signal fired")

// Signal is a one-shot, monotonic cancellation trigger. The zero value is not
// usable; create signals with NewSignal.
type Signal struct {
	once  sync.Once
	done  chan struct{}
	mu    sync.RWMutex
	cause Cause

	// cleanup functions registered by trigger sources, run after firing
	cleanupMu sync.Mutex
	cleanup   []func()
}

// NewSignal returns an armed signal.
func NewSignal() *Signal {
	return &Signal{
		done: make(chan struct{}),
	}
}

// Fire transitions the signal from armed to fired. The first call wins;
// subsequent calls (any cause) have no effect and do not error.
func (s *Signal) Fire(cause Cause) {
	s.once.Do(func() {
		s.mu.Lock()
		s.cause = cause
		s.mu.Unlock()
		close(s.done)

		s.cleanupMu.Lock()
		fns := s.cleanup
		s.cleanup = nil
		s.cleanupMu.Unlock()
		for _, fn := range fns {
			fn()
		}
	})
}

// Fired reports whether the signal has fired. Safe for concurrent use; never
// mutates the signal.
func (s *Signal) Fired() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the signal fires. The same channel is
// returned to every observer.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Cause reports why the signal fired, or the empty cause while still armed.
func (s *Signal) Cause() Cause {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cause
}

// FireAfter arms a timeout trigger: the signal fires with CauseTimeout after
// d unless something else fires it first. The timer is released either way.
func (s *Signal) FireAfter(d time.Duration) {
	t := time.AfterFunc(d, func() {
		s.Fire(CauseTimeout)
	})
	s.onFire(func() { t.Stop() })
}

// BindInterrupt wires OS interrupt delivery to the signal. The interrupt is
// intercepted rather than terminating the process: the first delivery fires
// the signal with CauseInterrupt and in-flight work unwinds through it.
// Notification is released once the signal fires.
func (s *Signal) BindInterrupt(sigs ...os.Signal) {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt}
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	go func() {
		select {
		case <-ch:
			s.Fire(CauseInterrupt)
		case <-s.done:
		}
		signal.Stop(ch)
	}()
}

// Context derives a context cancelled when either the parent is cancelled or
// the signal fires. This is the propagation mechanism threaded through call
// chains; ambient lookups elsewhere are thin accessors over it.
func (s *Signal) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)

	go func() {
		select {
		case <-s.done:
			cancel(ErrFired)
		case <-ctx.Done():
		}
	}()

	return ctx, func() { cancel(context.Canceled) }
}

// onFire registers fn to run once when the signal fires. If the signal has
// already fired, fn runs immediately.
func (s *Signal) onFire(fn func()) {
	s.cleanupMu.Lock()
	if s.Fired() {
		s.cleanupMu.Unlock()
		fn()
		return
	}
	s.cleanup = append(s.cleanup, fn)
	s.cleanupMu.Unlock()
}
