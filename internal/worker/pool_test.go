package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPoolDrainsOnShutdown(t *testing.T) {
	p := NewPool(2, 16, zap.NewNop())
	var ran atomic.Int32

	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(Job{Name: "count", Run: func(context.Context) error {
			ran.Add(1)
			return nil
		}}))
	}

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int32(10), ran.Load())
	assert.ErrorIs(t, p.Submit(Job{Name: "late", Run: func(context.Context) error { return nil }}), ErrPoolClosed)
}

func TestPoolSurvivesFailuresAndPanics(t *testing.T) {
	p := NewPool(1, 4, zap.NewNop())
	var ran atomic.Int32

	require.NoError(t, p.Submit(Job{Name: "fail", Run: func(context.Context) error { return errors.New("boom") }}))
	require.NoError(t, p.Submit(Job{Name: "panic", Run: func(context.Context) error { panic("boom") }}))
	require.NoError(t, p.Submit(Job{Name: "ok", Run: func(context.Context) error {
		ran.Add(1)
		return nil
	}}))

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int32(1), ran.Load())
}

func TestPoolRejectsWhenFull(t *testing.T) {
	p := NewPool(1, 1, zap.NewNop())
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.Submit(Job{Name: "block", Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	<-started
	require.NoError(t, p.Submit(Job{Name: "queued", Run: func(context.Context) error { return nil }}))
	assert.ErrorIs(t, p.Submit(Job{Name: "overflow", Run: func(context.Context) error { return nil }}), ErrQueueFull)

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPoolShutdownTimeoutCancelsJobs(t *testing.T) {
	p := NewPool(1, 1, zap.NewNop())
	started := make(chan struct{})
	require.NoError(t, p.Submit(Job{Name: "slow", Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)
}
