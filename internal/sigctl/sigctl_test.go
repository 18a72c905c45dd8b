package sigctl

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchGracefulThenForced(t *testing.T) {
	graceful := make(chan struct{}, 1)
	forced := make(chan struct{}, 1)

	Watch(func() { graceful <- struct{}{} }, func() { forced <- struct{}{} })

	proc, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)

	require.NoError(t, proc.Signal(syscall.SIGINT))

	select {
	case <-graceful:
	case <-time.After(2 * time.Second):
		t.Fatal("expected graceful shutdown callback on first SIGINT")
	}

	require.NoError(t, proc.Signal(syscall.SIGINT))

	select {
	case <-forced:
	case <-time.After(2 * time.Second):
		t.Fatal("expected forced shutdown callback on second SIGINT")
	}

	select {
	case <-graceful:
		t.Fatal("graceful callback must fire only once")
	default:
	}
	assert.True(t, true)
}
