package central_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dennisblokland/btleplug-c/internal/central"
)

func TestExecutor_SpawnRunsWork(t *testing.T) {
	e := central.NewExecutor(nil)
	done := make(chan struct{})
	require.NoError(t, e.Spawn("test-work", func(context.Context) { close(done) }))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("spawned work never ran")
	}
	require.NoError(t, e.Shutdown(context.Background()))
}

func TestExecutor_CloseRejectsNewWorkOnly(t *testing.T) {
	e := central.NewExecutor(nil)

	release := make(chan struct{})
	finished := make(chan struct{})
	require.NoError(t, e.Spawn("test-in-flight", func(context.Context) {
		<-release
		close(finished)
	}))

	e.Close()
	err := e.Spawn("test-late", func(context.Context) {
		t.Error("work accepted after close")
	})
	assert.ErrorIs(t, err, central.ErrExecutorClosed)

	// Work accepted before close still runs to completion.
	close(release)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("in-flight work was cancelled by close")
	}
}

func TestExecutor_ShutdownHonorsDeadline(t *testing.T) {
	e := central.NewExecutor(nil)
	require.NoError(t, e.Spawn("test-stuck", func(ctx context.Context) {
		<-ctx.Done()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Shutdown(ctx), context.DeadlineExceeded)
}
