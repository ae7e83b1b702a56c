package core

import "time"

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task body panics during execution. The
// runtime recovers the panic on the worker, reports it here, and keeps the
// worker alive; serial chains have already released their baton by the time
// the handler runs.
//
// Implementations must be safe for concurrent use.
type PanicHandler interface {
	// HandlePanic receives the pool name, the worker that was executing the
	// task, the recovered panic value, and the stack trace at panic time.
	HandlePanic(poolName string, workerID int, panicInfo any, stackTrace []byte)
}

// LogPanicHandler reports panics through a Logger. It is the default
// handler.
type LogPanicHandler struct {
	Log Logger
}

// HandlePanic logs the panic with its stack trace at error level.
func (h *LogPanicHandler) HandlePanic(poolName string, workerID int, panicInfo any, stackTrace []byte) {
	log := h.Log
	if log == nil {
		log = NewSlogLogger(nil)
	}
	log.Error("task panicked",
		F("pool", poolName),
		F("worker", workerID),
		F("panic", panicInfo),
		F("stack", string(stackTrace)),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics collects task execution metrics. Implementations can forward to
// monitoring systems (Prometheus, StatsD, ...). Methods must be fast and
// non-blocking; they run on the worker hot path.
type Metrics interface {
	// RecordTaskDuration records how long a task body took to execute.
	RecordTaskDuration(poolName string, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(poolName string, panicInfo any)

	// RecordQueueDepth records the current depth of a queue. Typically
	// driven periodically by a poller rather than per-task.
	RecordQueueDepth(queueName string, depth int)

	// RecordTaskRejected records that a submission was dropped (shutdown).
	RecordTaskRejected(poolName string, reason string)
}

// NilMetrics is the no-op default when no metrics sink is provided.
type NilMetrics struct{}

// RecordTaskDuration is a no-op.
func (m *NilMetrics) RecordTaskDuration(poolName string, duration time.Duration) {}

// RecordTaskPanic is a no-op.
func (m *NilMetrics) RecordTaskPanic(poolName string, panicInfo any) {}

// RecordQueueDepth is a no-op.
func (m *NilMetrics) RecordQueueDepth(queueName string, depth int) {}

// RecordTaskRejected is a no-op.
func (m *NilMetrics) RecordTaskRejected(poolName string, reason string) {}

// =============================================================================
// RejectedTaskHandler: Interface for handling dropped submissions
// =============================================================================

// RejectedTaskHandler is called when a submission is dropped because the
// pool is shutting down. Dropping is routine during teardown, so the
// default merely logs at warn level.
//
// Implementations must be safe for concurrent use.
type RejectedTaskHandler interface {
	HandleRejectedTask(poolName string, reason string)
}

// LogRejectedTaskHandler logs rejected submissions through a Logger.
type LogRejectedTaskHandler struct {
	Log Logger
}

// HandleRejectedTask logs the rejection at warn level.
func (h *LogRejectedTaskHandler) HandleRejectedTask(poolName string, reason string) {
	log := h.Log
	if log == nil {
		log = NewSlogLogger(nil)
	}
	log.Warn("task rejected", F("pool", poolName), F("reason", reason))
}
