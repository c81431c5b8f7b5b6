package periodic

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, task *Task) {
	t.Helper()
	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("task did not finish")
	}
}

func TestImmediateTickAndMaxTicks(t *testing.T) {
	var n atomic.Int32
	task := New(Options{Interval: 5 * time.Millisecond, Immediate: true, MaxTicks: 3}, func(context.Context) error {
		n.Add(1)
		return nil
	})

	require.True(t, task.Start(context.Background()))
	waitDone(t, task)

	assert.Equal(t, int32(3), n.Load())
	assert.Equal(t, 3, task.Ticks())
	assert.False(t, task.Running())
}

func TestStartWhileRunningIsNoop(t *testing.T) {
	task := New(Options{Interval: time.Hour}, func(context.Context) error { return nil })
	require.True(t, task.Start(context.Background()))
	defer task.Stop()

	assert.False(t, task.Start(context.Background()))
	assert.True(t, task.Running())
}

func TestErrStopEndsTask(t *testing.T) {
	var n atomic.Int32
	task := New(Options{Interval: time.Millisecond, Immediate: true}, func(context.Context) error {
		if n.Add(1) == 2 {
			return ErrStop
		}
		return nil
	})

	task.Start(context.Background())
	waitDone(t, task)
	assert.Equal(t, int32(2), n.Load())
}

func TestErrorsDoNotEndTask(t *testing.T) {
	var errs atomic.Int32
	task := New(Options{
		Interval:  time.Millisecond,
		Immediate: true,
		MaxTicks:  4,
		OnError:   func(error) { errs.Add(1) },
	}, func(context.Context) error {
		return stderrors.New("boom")
	})

	task.Start(context.Background())
	waitDone(t, task)
	assert.Equal(t, int32(4), errs.Load())
}

func TestUntilPredicate(t *testing.T) {
	var n atomic.Int32
	task := New(Options{
		Interval:  time.Millisecond,
		Immediate: true,
		Until:     func() bool { return n.Load() >= 2 },
	}, func(context.Context) error {
		n.Add(1)
		return nil
	})

	task.Start(context.Background())
	waitDone(t, task)
	assert.Equal(t, int32(2), n.Load())
}

func TestStopWaitsForTick(t *testing.T) {
	entered := make(chan struct{})
	var finished atomic.Bool
	task := New(Options{Interval: time.Hour, Immediate: true}, func(ctx context.Context) error {
		close(entered)
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		finished.Store(true)
		return ctx.Err()
	})

	task.Start(context.Background())
	<-entered
	task.Stop()

	assert.True(t, finished.Load())
	assert.False(t, task.Running())
}

func TestRestartAfterStop(t *testing.T) {
	var n atomic.Int32
	task := New(Options{Interval: time.Millisecond, Immediate: true, MaxTicks: 1}, func(context.Context) error {
		n.Add(1)
		return nil
	})

	task.Start(context.Background())
	waitDone(t, task)
	require.True(t, task.Start(context.Background()))
	waitDone(t, task)

	assert.Equal(t, int32(2), n.Load())
}

func TestStopBeforeStart(t *testing.T) {
	task := New(Options{}, func(context.Context) error { return nil })
	task.Stop()
	assert.False(t, task.Running())
}

func TestCancelFromInsideTick(t *testing.T) {
	var task *Task
	task = New(Options{Interval: time.Millisecond, Immediate: true}, func(context.Context) error {
		task.Cancel()
		return nil
	})

	task.Start(context.Background())
	waitDone(t, task)
	assert.Equal(t, 1, task.Ticks())
}
