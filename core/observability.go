package core

import (
	"reflect"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultHistoryCapacity = 100

// TaskID identifies one task execution in the history ring.
type TaskID string

func newTaskID() TaskID {
	return TaskID(uuid.NewString())
}

// TaskExecutionRecord captures a completed task execution event.
type TaskExecutionRecord struct {
	ID         TaskID
	Name       string
	Pool       string
	WorkerID   int
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Panicked   bool
}

// PoolStats represents runtime observability state for a thread pool.
type PoolStats struct {
	Name    string
	Workers int
	Queued  int
	Active  int
	Delayed int
	Running bool
}

// QueueStats represents runtime observability state for a task queue.
type QueueStats struct {
	Name     string
	Pending  int
	InFlight int
	Complete bool
}

type executionHistory struct {
	mu    sync.Mutex
	items []TaskExecutionRecord
	head  int
	count int
}

func newExecutionHistory(capacity int) *executionHistory {
	if capacity < 1 {
		capacity = defaultHistoryCapacity
	}
	return &executionHistory{items: make([]TaskExecutionRecord, capacity)}
}

func (h *executionHistory) Add(record TaskExecutionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.items) == 0 {
		return
	}

	h.items[h.head] = record
	h.head = (h.head + 1) % len(h.items)
	if h.count < len(h.items) {
		h.count++
	}
}

// Recent returns up to limit records, newest first. limit <= 0 returns all.
func (h *executionHistory) Recent(limit int) []TaskExecutionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return nil
	}

	if limit <= 0 || limit > h.count {
		limit = h.count
	}

	out := make([]TaskExecutionRecord, 0, limit)
	for i := range limit {
		idx := (h.head - 1 - i + len(h.items)) % len(h.items)
		out = append(out, h.items[idx])
	}
	return out
}

// taskName resolves a human-readable name for a task's body via its function
// symbol; closures come out as pkg.Parent.funcN.
func taskName(t *Task) string {
	if t == nil || t.fn == nil {
		return "anonymous"
	}

	v := reflect.ValueOf(t.fn)
	if v.Kind() != reflect.Func {
		return "anonymous"
	}

	pc := v.Pointer()
	if pc == 0 {
		return "anonymous"
	}

	fn := runtime.FuncForPC(pc)
	if fn == nil || fn.Name() == "" {
		return "anonymous"
	}
	return fn.Name()
}
