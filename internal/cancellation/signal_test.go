package cancellation

import (
	"context"
	"sync"
	"syscall"
	"testing"
	"time"
)

func TestSignalFiresOnce(t *testing.T) {
	s := NewSignal()

	if s.Fired() {
		t.Fatal("new signal reports fired")
	}
	if s.Cause() != "" {
		t.Fatalf("new signal has cause %q", s.Cause())
	}

	s.Fire(CauseManual)

	if !s.Fired() {
		t.Fatal("signal does not report fired after Fire")
	}
	if got := s.Cause(); got != CauseManual {
		t.Errorf("Cause() = %q, want %q", got, CauseManual)
	}

	// Firing again is a no-op: no panic, cause unchanged.
	s.Fire(CauseTimeout)
	if got := s.Cause(); got != CauseManual {
		t.Errorf("Cause() after second Fire = %q, want %q", got, CauseManual)
	}
}

func TestSignalConcurrentObservers(t *testing.T) {
	s := NewSignal()

	const observers = 16
	var wg sync.WaitGroup
	results := make(chan Cause, observers)

	for i := 0; i < observers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-s.Done()
			results <- s.Cause()
		}()
	}

	s.Fire(CauseDisconnect)
	wg.Wait()
	close(results)

	for c := range results {
		if c != CauseDisconnect {
			t.Errorf("observer saw cause %q, want %q", c, CauseDisconnect)
		}
	}
}

func TestSignalConcurrentFire(t *testing.T) {
	s := NewSignal()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n%2 == 0 {
				s.Fire(CauseTimeout)
			} else {
				s.Fire(CauseInterrupt)
			}
		}(i)
	}
	wg.Wait()

	if !s.Fired() {
		t.Fatal("signal not fired after concurrent Fire calls")
	}
	// Exactly one cause won; it must be one of the two racing causes.
	if c := s.Cause(); c != CauseTimeout && c != CauseInterrupt {
		t.Errorf("Cause() = %q, want timeout or interrupt", c)
	}
}

func TestFireAfter(t *testing.T) {
	s := NewSignal()
	s.FireAfter(30 * time.Millisecond)

	select {
	case <-s.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("FireAfter did not fire the signal")
	}

	if got := s.Cause(); got != CauseTimeout {
		t.Errorf("Cause() = %q, want %q", got, CauseTimeout)
	}
}

func TestFireAfterLosesToEarlierFire(t *testing.T) {
	s := NewSignal()
	s.FireAfter(10 * time.Second)
	s.Fire(CauseManual)

	if got := s.Cause(); got != CauseManual {
		t.Errorf("Cause() = %q, want %q", got, CauseManual)
	}
}

func TestBindInterruptFiresSignal(t *testing.T) {
	s := NewSignal()
	s.BindInterrupt(syscall.SIGUSR1)

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("sending SIGUSR1: %v", err)
	}

	// The interrupt is intercepted, not fatal: the process is still here to
	// observe the signal firing.
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("interrupt did not fire the signal")
	}

	if got := s.Cause(); got != CauseInterrupt {
		t.Errorf("Cause() = %q, want %q", got, CauseInterrupt)
	}
}

func TestBindInterruptLosesToEarlierFire(t *testing.T) {
	s := NewSignal()
	s.BindInterrupt(syscall.SIGUSR2)
	s.Fire(CauseManual)

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR2); err != nil {
		t.Fatalf("sending SIGUSR2: %v", err)
	}

	// Give the delivery goroutine a moment; the cause must not change.
	time.Sleep(50 * time.Millisecond)
	if got := s.Cause(); got != CauseManual {
		t.Errorf("Cause() = %q, want %q", got, CauseManual)
	}
}

func TestContextCancelledBySignal(t *testing.T) {
	s := NewSignal()
	ctx, cancel := s.Context(context.Background())
	defer cancel()

	select {
	case <-ctx.Done():
		t.Fatal("context done before signal fired")
	default:
	}

	s.Fire(CauseManual)

	select {
	case <-ctx.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("context not cancelled after signal fired")
	}

	if cause := context.Cause(ctx); cause != ErrFired {
		t.Errorf("context.Cause() = %v, want %v", cause, ErrFired)
	}
}

func TestContextCancelledByParent(t *testing.T) {
	s := NewSignal()
	parent, parentCancel := context.WithCancel(context.Background())

	ctx, cancel := s.Context(parent)
	defer cancel()

	parentCancel()

	select {
	case <-ctx.Done():
	case <-time.After(500 * time.Millisecond):
		t.Fatal("context not cancelled by parent")
	}

	// The signal itself stays armed: parent cancellation flows down, not up.
	if s.Fired() {
		t.Error("parent cancellation fired the signal")
	}
}
