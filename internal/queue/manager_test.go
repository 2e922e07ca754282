package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongwu-tools/tradebridge/internal/domain"
)

func startManager(t *testing.T, capacity int, cleanup func(ctx context.Context)) *Manager {
	t.Helper()
	m := NewManager(capacity, cleanup, zerolog.Nop())
	go m.Run()
	t.Cleanup(m.Stop)
	return m
}

// gate blocks the worker on the current task until released.
type gate struct {
	release chan struct{}
	started chan struct{}
}

func newGate() *gate {
	return &gate{release: make(chan struct{}), started: make(chan struct{})}
}

func (g *gate) fn(ctx context.Context) (any, error) {
	close(g.started)
	select {
	case <-g.release:
		return "done", nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestSubmitReturnsResult(t *testing.T) {
	m := startManager(t, 4, nil)

	v, err := m.Submit(context.Background(), TaskBalance, time.Second, func(ctx context.Context) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestSingleTaskInFlight(t *testing.T) {
	m := startManager(t, 8, nil)

	var running, maxRunning int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Submit(context.Background(), TaskExport, time.Second, func(ctx context.Context) (any, error) {
				n := atomic.AddInt32(&running, 1)
				for {
					prev := atomic.LoadInt32(&maxRunning)
					if n <= prev || atomic.CompareAndSwapInt32(&maxRunning, prev, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil, nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxRunning))
}

func TestFIFOOrder(t *testing.T) {
	m := startManager(t, 8, nil)

	g := newGate()
	go m.Submit(context.Background(), TaskBalance, time.Minute, g.fn)
	<-g.started

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Submit(context.Background(), TaskExport, time.Minute, func(ctx context.Context) (any, error) {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil, nil
			})
		}()
		// Enqueue strictly in order while the worker is gated.
		require.Eventually(t, func() bool { return m.Pending() >= i }, time.Second, time.Millisecond)
	}

	close(g.release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestOverloadedWhenQueueFull(t *testing.T) {
	m := startManager(t, 1, nil)

	g := newGate()
	go m.Submit(context.Background(), TaskBalance, time.Minute, g.fn)
	<-g.started

	// Fill the single pending slot.
	go m.Submit(context.Background(), TaskExport, time.Minute, func(ctx context.Context) (any, error) {
		return nil, nil
	})
	require.Eventually(t, func() bool { return m.Pending() == 1 }, time.Second, time.Millisecond)

	_, err := m.Submit(context.Background(), TaskTrade, time.Minute, func(ctx context.Context) (any, error) {
		return nil, nil
	})
	require.Error(t, err)
	assert.Equal(t, domain.CodeOverloaded, domain.CodeOf(err))

	close(g.release)
}

func TestDeadlineEnforced(t *testing.T) {
	m := startManager(t, 4, nil)

	deadline := 100 * time.Millisecond
	start := time.Now()
	_, err := m.Submit(context.Background(), TaskTrade, deadline, func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, domain.CodeDeadlineExceeded, domain.CodeOf(err))
	// The submitter learns about the timeout promptly, not eventually.
	assert.Less(t, elapsed, deadline+500*time.Millisecond)
}

func TestStalledTaskIsAbandoned(t *testing.T) {
	m := startManager(t, 4, nil)

	blocked := make(chan struct{})
	defer close(blocked)

	start := time.Now()
	_, err := m.Submit(context.Background(), TaskExport, 50*time.Millisecond, func(ctx context.Context) (any, error) {
		<-blocked // ignores ctx entirely
		return nil, nil
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, domain.CodeDeadlineExceeded, domain.CodeOf(err))
	assert.Less(t, elapsed, time.Second)
}

func TestCancelledBeforeStartIsSkipped(t *testing.T) {
	m := startManager(t, 4, nil)

	g := newGate()
	go m.Submit(context.Background(), TaskBalance, time.Minute, g.fn)
	<-g.started

	var ran atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := m.Submit(ctx, TaskTrade, time.Minute, func(ctx context.Context) (any, error) {
			ran.Store(true)
			return nil, nil
		})
		errCh <- err
	}()
	require.Eventually(t, func() bool { return m.Pending() == 1 }, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	close(g.release)

	// The worker must skip the cancelled task entirely.
	require.Eventually(t, func() bool { return m.Pending() == 0 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestCleanupRunsAfterFailure(t *testing.T) {
	var cleaned atomic.Int32
	m := startManager(t, 4, func(ctx context.Context) {
		cleaned.Add(1)
	})

	_, err := m.Submit(context.Background(), TaskTrade, time.Second, func(ctx context.Context) (any, error) {
		return nil, errors.New("form blew up")
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), cleaned.Load())

	_, err = m.Submit(context.Background(), TaskBalance, time.Second, func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), cleaned.Load(), "cleanup must not run after success")
}

type recordingListener struct {
	mu   sync.Mutex
	recs []TaskRecord
}

func (l *recordingListener) TaskFinished(rec TaskRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recs = append(l.recs, rec)
}

func (l *recordingListener) records() []TaskRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]TaskRecord, len(l.recs))
	copy(out, l.recs)
	return out
}

func TestListenerSeesTerminalStates(t *testing.T) {
	lst := &recordingListener{}
	m := NewManager(4, nil, zerolog.Nop())
	m.AddListener(lst)
	go m.Run()
	t.Cleanup(m.Stop)

	_, err := m.Submit(context.Background(), TaskBalance, time.Second, func(ctx context.Context) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)

	_, err = m.Submit(context.Background(), TaskTrade, time.Second, func(ctx context.Context) (any, error) {
		return nil, domain.NewError(domain.CodeWindowLost, "window vanished")
	})
	require.Error(t, err)

	recs := lst.records()
	require.Len(t, recs, 2)
	assert.Equal(t, TaskSucceeded, recs[0].State)
	assert.Equal(t, TaskFailed, recs[1].State)
	assert.Equal(t, string(domain.CodeWindowLost), recs[1].ErrorCode)
	assert.NotEmpty(t, recs[1].ID)
	assert.False(t, recs[1].FinishedAt.Before(recs[1].StartedAt))
}
