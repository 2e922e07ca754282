// Package queue serializes GUI automation. There is exactly one keyboard,
// one mouse and one foreground window, so at most one task ever touches
// the GUI; everything else waits in a bounded FIFO or is rejected.
package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dongwu-tools/tradebridge/internal/domain"
)

// cleanupGrace bounds how long a task past its deadline may keep running
// before the worker abandons it and reports the timeout. Keeping this
// short keeps the reported deadline honest.
const cleanupGrace = 400 * time.Millisecond

// cleanupTimeout bounds the post-failure dialog cleanup.
const cleanupTimeout = 2 * time.Second

type outcome struct {
	value any
	err   error
}

type task struct {
	id         string
	kind       TaskKind
	fn         TaskFunc
	deadline   time.Duration
	enqueuedAt time.Time
	cancelled  atomic.Bool
	done       chan outcome // buffered, worker never blocks on it
}

// Manager owns the single worker goroutine and the bounded pending queue.
type Manager struct {
	tasks     chan *task
	cleanup   func(ctx context.Context)
	listeners []Listener
	log       zerolog.Logger

	stop    chan struct{}
	stopped chan struct{}
}

// NewManager creates a queue with the given pending capacity. cleanup runs
// after every failed task to dismiss modal dialogs a half-finished flow
// may have left behind; nil disables it.
func NewManager(capacity int, cleanup func(ctx context.Context), log zerolog.Logger) *Manager {
	if capacity < 1 {
		capacity = 1
	}
	return &Manager{
		tasks:   make(chan *task, capacity),
		cleanup: cleanup,
		log:     log.With().Str("component", "queue").Logger(),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// AddListener registers a task-completion listener. Not safe to call after
// Run has started.
func (m *Manager) AddListener(l Listener) {
	m.listeners = append(m.listeners, l)
}

// Pending returns the number of tasks waiting behind the one in flight.
func (m *Manager) Pending() int {
	return len(m.tasks)
}

// Run executes tasks one at a time in FIFO order. Blocks until Stop.
func (m *Manager) Run() {
	defer close(m.stopped)
	for {
		select {
		case <-m.stop:
			m.drain()
			return
		case t := <-m.tasks:
			m.runTask(t)
		}
	}
}

// Stop lets the in-flight task finish, then fails everything still
// pending so no submitter is left blocked.
func (m *Manager) Stop() {
	close(m.stop)
	<-m.stopped
}

func (m *Manager) drain() {
	for {
		select {
		case t := <-m.tasks:
			t.done <- outcome{nil, domain.NewError(domain.CodeOverloaded, "bridge is shutting down")}
		default:
			return
		}
	}
}

// Submit enqueues fn and blocks until it finishes or ctx is cancelled.
// A full queue rejects immediately with Overloaded. When the submitter
// gives up before the task starts, the worker skips it; automation work
// that nobody is waiting for must never touch the GUI.
func (m *Manager) Submit(ctx context.Context, kind TaskKind, deadline time.Duration, fn TaskFunc) (any, error) {
	t := &task{
		id:         uuid.New().String(),
		kind:       kind,
		fn:         fn,
		deadline:   deadline,
		enqueuedAt: time.Now(),
		done:       make(chan outcome, 1),
	}
	select {
	case m.tasks <- t:
	default:
		return nil, domain.Errorf(domain.CodeOverloaded, "queue full with %d pending tasks", cap(m.tasks))
	}
	m.log.Debug().Str("task_id", t.id).Str("kind", string(kind)).Int("pending", len(m.tasks)).Msg("Task enqueued")

	select {
	case out := <-t.done:
		return out.value, out.err
	case <-ctx.Done():
		t.cancelled.Store(true)
		return nil, ctx.Err()
	}
}

func (m *Manager) runTask(t *task) {
	started := time.Now()

	if t.cancelled.Load() {
		m.notify(TaskRecord{
			ID:         t.id,
			Kind:       t.kind,
			State:      TaskCancelled,
			EnqueuedAt: t.enqueuedAt,
			StartedAt:  started,
			FinishedAt: started,
		})
		m.log.Debug().Str("task_id", t.id).Msg("Task cancelled before start, skipped")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.deadline)
	defer cancel()

	resCh := make(chan outcome, 1)
	go func() {
		v, err := t.fn(ctx)
		resCh <- outcome{v, err}
	}()

	var out outcome
	deadlined := false
	select {
	case out = <-resCh:
		// A task that unwound via its own context can surface the raw
		// context error; report it as the typed deadline failure.
		if errors.Is(out.err, context.DeadlineExceeded) {
			deadlined = true
			out.err = domain.Errorf(domain.CodeDeadlineExceeded,
				"%s task exceeded its %s deadline", t.kind, t.deadline)
		}
	case <-ctx.Done():
		deadlined = true
		// Give the task one grace window to unwind through its
		// context-aware sleeps, then abandon it.
		select {
		case <-resCh:
		case <-time.After(cleanupGrace):
			m.log.Warn().Str("task_id", t.id).Str("kind", string(t.kind)).Msg("Task did not unwind after deadline, abandoning")
		}
		out = outcome{nil, domain.Errorf(domain.CodeDeadlineExceeded,
			"%s task exceeded its %s deadline", t.kind, t.deadline)}
	}

	if out.err != nil && m.cleanup != nil {
		cctx, ccancel := context.WithTimeout(context.Background(), cleanupTimeout)
		m.cleanup(cctx)
		ccancel()
	}

	finished := time.Now()
	rec := TaskRecord{
		ID:         t.id,
		Kind:       t.kind,
		State:      TaskSucceeded,
		EnqueuedAt: t.enqueuedAt,
		StartedAt:  started,
		FinishedAt: finished,
	}
	if out.err != nil {
		rec.State = TaskFailed
		rec.ErrorCode = string(domain.CodeOf(out.err))
		rec.Detail = out.err.Error()
	}
	m.notify(rec)

	evt := m.log.Info()
	if out.err != nil {
		evt = m.log.Warn().Err(out.err)
	}
	evt.Str("task_id", t.id).
		Str("kind", string(t.kind)).
		Str("state", string(rec.State)).
		Bool("deadlined", deadlined).
		Dur("queued", started.Sub(t.enqueuedAt)).
		Dur("elapsed", finished.Sub(started)).
		Msg("Task finished")

	t.done <- out
}

func (m *Manager) notify(rec TaskRecord) {
	for _, l := range m.listeners {
		l.TaskFinished(rec)
	}
}
