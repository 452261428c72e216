// Package testutil provides helpers shared by camhal tests.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Test timeouts
const (
	// DefaultTestTimeout bounds waits on asynchronous completions
	DefaultTestTimeout = 5 * time.Second

	// PollInterval is the tick used with require.Eventually
	PollInterval = 5 * time.Millisecond
)

// WaitForChannel waits for ch to be closed or signalled, failing the test
// with msg after timeout.
func WaitForChannel(t *testing.T, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		require.Fail(t, msg)
	}
}

// Receive returns the next value from ch, failing the test with msg after
// timeout or when ch is closed.
func Receive[T any](t *testing.T, ch <-chan T, timeout time.Duration, msg string) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "%s: channel closed", msg)
		return v
	case <-time.After(timeout):
		require.Fail(t, msg)
	}
	var zero T
	return zero
}
