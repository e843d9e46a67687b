package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bazaarnet/bazaar/libs/log"
)

func TestPoolRunsAllTasks(t *testing.T) {
	defer leaktest.Check(t)()

	p := New(log.NewNopLogger(), 4)
	require.Equal(t, 4, p.Size())

	var count int64
	tasks := make([]*Task, 0, 100)
	for i := 0; i < 100; i++ {
		task, err := p.Submit(func() error {
			atomic.AddInt64(&count, 1)
			return nil
		})
		require.NoError(t, err)
		tasks = append(tasks, task)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, task := range tasks {
		require.NoError(t, task.Wait(ctx))
	}

	p.Stop()
	require.EqualValues(t, 100, atomic.LoadInt64(&count))
}

func TestPoolDefaultSize(t *testing.T) {
	defer leaktest.Check(t)()

	p := New(log.NewNopLogger(), 0)
	defer p.Stop()
	assert.Positive(t, p.Size())
}

func TestSubmitAfterStop(t *testing.T) {
	defer leaktest.Check(t)()

	p := New(log.NewNopLogger(), 2)
	p.Stop()
	p.Stop()

	task, err := p.Submit(func() error { return nil })
	require.ErrorIs(t, err, ErrPoolClosed)
	require.Nil(t, task)
}

func TestStopDrainsQueuedTasks(t *testing.T) {
	defer leaktest.Check(t)()

	p := New(log.NewNopLogger(), 1)

	release := make(chan struct{})
	_, err := p.Submit(func() error {
		<-release
		return nil
	})
	require.NoError(t, err)

	var ran int64
	for i := 0; i < 10; i++ {
		_, err := p.Submit(func() error {
			atomic.AddInt64(&ran, 1)
			return nil
		})
		require.NoError(t, err)
	}

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	close(release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("stop deadlocked")
	}
	require.EqualValues(t, 10, atomic.LoadInt64(&ran))
	require.Zero(t, p.Len())
}

func TestTaskErrorAndPanic(t *testing.T) {
	defer leaktest.Check(t)()

	p := New(log.TestingLogger(), 2)
	defer p.Stop()

	boom := errors.New("boom")
	failing, err := p.Submit(func() error { return boom })
	require.NoError(t, err)
	panicking, err := p.Submit(func() error { panic("kaboom") })
	require.NoError(t, err)

	ctx := context.Background()
	require.ErrorIs(t, failing.Wait(ctx), boom)
	perr := panicking.Wait(ctx)
	require.Error(t, perr)
	require.Contains(t, perr.Error(), "kaboom")

	// the pool keeps serving after a panic
	ok, err := p.Submit(func() error { return nil })
	require.NoError(t, err)
	require.NoError(t, ok.Wait(ctx))
}

func TestTasksRunConcurrently(t *testing.T) {
	defer leaktest.Check(t)()

	const size = 3
	p := New(log.NewNopLogger(), size)
	defer p.Stop()

	var wg sync.WaitGroup
	wg.Add(size)
	barrier := make(chan struct{})
	for i := 0; i < size; i++ {
		_, err := p.Submit(func() error {
			wg.Done()
			<-barrier
			return nil
		})
		require.NoError(t, err)
	}

	// every worker must be busy at once for wg to reach zero
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks did not run in parallel")
	}
	close(barrier)
}

func TestTaskWaitHonorsContext(t *testing.T) {
	defer leaktest.Check(t)()

	p := New(log.NewNopLogger(), 1)
	defer p.Stop()

	release := make(chan struct{})
	defer close(release)
	task, err := p.Submit(func() error {
		<-release
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, task.Wait(ctx), context.DeadlineExceeded)
}
