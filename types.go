package asyncrun

import "github.com/calder-io/asyncrun/core"

// Re-export commonly used types from the core package so most users only
// import asyncrun.

// Task is the unit of work: a bound callable with optional continuations.
type Task = core.Task

// ResultTask couples a task body with a continuation typed on its result.
type ResultTask[R any] = core.ResultTask[R]

// TaskQueue is an ordered task container with a liveness token and a baton
// mutex for serial dispatch.
type TaskQueue = core.TaskQueue

// ThreadPool is a fixed set of workers sharing one inbox queue.
type ThreadPool = core.ThreadPool

// RunLoop is a single-goroutine time-ordered scheduler.
type RunLoop = core.RunLoop

// PoolConfig holds ThreadPool construction options.
type PoolConfig = core.PoolConfig

// RepeatingHandle controls a repeating scheduled task.
type RepeatingHandle = core.RepeatingHandle

// Token is a queue-scoped liveness flag.
type Token = core.Token

// Logger is the runtime's structured logging surface.
type Logger = core.Logger

// Field is a structured logging key-value pair.
type Field = core.Field

// PoolStats is a point-in-time snapshot of a ThreadPool.
type PoolStats = core.PoolStats

// QueueStats is a point-in-time snapshot of a TaskQueue.
type QueueStats = core.QueueStats

// TaskExecutionRecord captures one completed task execution.
type TaskExecutionRecord = core.TaskExecutionRecord

// Metrics is the pluggable metrics sink.
type Metrics = core.Metrics

// PanicHandler is the pluggable panic observer.
type PanicHandler = core.PanicHandler

// RejectedTaskHandler is the pluggable dropped-submission observer.
type RejectedTaskHandler = core.RejectedTaskHandler

// Constructors and run helpers, re-exported verbatim.
var (
	NewTask                 = core.NewTask
	NewTaskQueue            = core.NewTaskQueue
	NewNamedTaskQueue       = core.NewNamedTaskQueue
	NewThreadPool           = core.NewThreadPool
	NewThreadPoolWithConfig = core.NewThreadPoolWithConfig
	NewRunLoop              = core.NewRunLoop
	DefaultPoolConfig       = core.DefaultPoolConfig
	NewSlogLogger           = core.NewSlogLogger
	NewNopLogger            = core.NewNopLogger
	F                       = core.F

	Run                     = core.Run
	RunFunc                 = core.RunFunc
	RunInline               = core.RunInline
	RunInlineFunc           = core.RunInlineFunc
	RunQueued               = core.RunQueued
	RunQueuedFunc           = core.RunQueuedFunc
	RunSync                 = core.RunSync
	RunSyncFunc             = core.RunSyncFunc
	RunSyncQueued           = core.RunSyncQueued
	RunSyncQueuedFunc       = core.RunSyncQueuedFunc
	Schedule                = core.Schedule
	ScheduleFunc            = core.ScheduleFunc
	ScheduleQueued          = core.ScheduleQueued
	ScheduleQueuedFunc      = core.ScheduleQueuedFunc
	ScheduleOn              = core.ScheduleOn
	ScheduleOnFunc          = core.ScheduleOnFunc
	ScheduleOnQueued        = core.ScheduleOnQueued
	ScheduleOnQueuedFunc    = core.ScheduleOnQueuedFunc
	ScheduleRepeating       = core.ScheduleRepeating
	ScheduleRepeatingQueued = core.ScheduleRepeatingQueued
)

// NewResultTask binds fn, whose result is delivered to the task's typed
// After continuation.
func NewResultTask[R any](fn func() R) *core.ResultTask[R] {
	return core.NewResultTask(fn)
}
