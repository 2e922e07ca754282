package queue

import (
	"context"
	"time"
)

// TaskKind identifies what a queued task does to the GUI.
type TaskKind string

const (
	TaskBalance   TaskKind = "balance"
	TaskPositions TaskKind = "positions"
	TaskExport    TaskKind = "export"
	TaskTrade     TaskKind = "trade"
)

// TaskState is the terminal state of a finished task.
type TaskState string

const (
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
	TaskCancelled TaskState = "cancelled"
)

// TaskFunc is the unit of work a task runs against the GUI. It must honor
// ctx: all automation waits are context-aware, so a cancelled task unwinds
// within one delay step.
type TaskFunc func(ctx context.Context) (any, error)

// TaskRecord describes a finished task for listeners and the history API.
type TaskRecord struct {
	ID         string    `json:"id"`
	Kind       TaskKind  `json:"kind"`
	State      TaskState `json:"state"`
	ErrorCode  string    `json:"error_code,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Listener is notified after every task reaches a terminal state. Called
// from the worker goroutine; implementations must not block for long.
type Listener interface {
	TaskFinished(rec TaskRecord)
}
