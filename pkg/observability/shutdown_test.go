package observability

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *Logger {
	return NewLogger(ErrorLevel, &bytes.Buffer{})
}

func TestShutdownManager_RunsRegisteredFuncs(t *testing.T) {
	sm := NewShutdownManager(testLogger(), time.Second)

	var calls int32
	sm.RegisterShutdownFunc("cache", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	sm.RegisterShutdownFunc("scheduler", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	if err := sm.Shutdown(context.Background()); err != nil {
		t.Fatalf("Unexpected shutdown error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("Expected 2 shutdown calls, got %d", got)
	}
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(testLogger(), time.Second)
	sm.RegisterShutdownFunc("cache", func(ctx context.Context) error {
		return errors.New("flush failed")
	})
	sm.RegisterShutdownFunc("scheduler", func(ctx context.Context) error {
		return nil
	})

	if err := sm.Shutdown(context.Background()); err == nil {
		t.Error("Expected error when a shutdown function fails")
	}
}

func TestShutdownManager_Timeout(t *testing.T) {
	sm := NewShutdownManager(testLogger(), time.Second)
	sm.RegisterShutdownFunc("stuck", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := sm.Shutdown(ctx); err == nil {
		t.Error("Expected timeout error")
	}
}

func TestShutdownManager_NoRegistrations(t *testing.T) {
	sm := NewShutdownManager(testLogger(), time.Second)
	if err := sm.Shutdown(context.Background()); err != nil {
		t.Errorf("Empty shutdown should succeed, got %v", err)
	}
}
