package core

import (
	"sync"
	"sync/atomic"
	"time"
)

// RunLoop is a single dedicated goroutine over a time-ordered TaskQueue.
// It sleeps until the head task's dispatch instant arrives (or a Notify
// lands), then drains every due task by running it on the looper goroutine.
// Schedule wrappers keep the looper light by re-dispatching the real work
// onto a pool.
type RunLoop struct {
	queue *TaskQueue

	// wake carries at most one pending notification; an undelivered token
	// doubles as the dirty flag that defeats missed wakeups.
	wake chan struct{}
	stop chan struct{}

	exiting atomic.Bool
	wg      sync.WaitGroup
	logger  Logger

	closeOnce sync.Once
}

// NewRunLoop creates a run loop and starts its looper goroutine.
func NewRunLoop() *RunLoop {
	return newRunLoop("runloop", NewSlogLogger(nil))
}

func newRunLoop(name string, logger Logger) *RunLoop {
	rl := &RunLoop{
		queue:  NewNamedTaskQueue(name),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		logger: logger,
	}
	rl.wg.Add(1)
	go rl.loop()
	return rl
}

// Queue returns the loop's time-ordered task queue. Tasks added directly
// must carry a dispatch time and be followed by Notify.
func (rl *RunLoop) Queue() *TaskQueue {
	return rl.queue
}

// Notify stably re-sorts pending tasks by dispatch time (ties keep
// insertion order) and wakes the looper. No-op once the loop is closing.
func (rl *RunLoop) Notify() {
	if rl.exiting.Load() {
		return
	}
	rl.queue.Sort(func(a, b *Task) bool {
		return a.dispatchTime.Before(b.dispatchTime)
	})
	select {
	case rl.wake <- struct{}{}:
	default:
	}
}

// Close stops the looper, joins it, and closes the loop's queue, revoking
// its token. Safe to call more than once.
func (rl *RunLoop) Close() {
	rl.closeOnce.Do(func() {
		rl.exiting.Store(true)
		close(rl.stop)
		rl.wg.Wait()
		rl.queue.Close()
		rl.logger.Debug("run loop closed", F("queue", rl.queue.Name()))
	})
}

func (rl *RunLoop) loop() {
	defer rl.wg.Done()

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		if rl.exiting.Load() {
			return
		}

		next := rl.queue.NextDispatchTime()
		now := time.Now()

		if rl.queue.HasNext() && !next.After(now) {
			rl.drainDue()
			continue
		}

		if !rl.queue.HasNext() {
			select {
			case <-rl.wake:
			case <-rl.stop:
				return
			}
			continue
		}

		timer.Reset(next.Sub(now))
		select {
		case <-rl.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-rl.stop:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			return
		case <-timer.C:
		}
	}
}

// drainDue runs every task whose dispatch instant has arrived. A zero
// instant means "now".
func (rl *RunLoop) drainDue() {
	for rl.queue.HasNext() {
		next := rl.queue.NextDispatchTime()
		if next.After(time.Now()) {
			return
		}
		rl.queue.Next()
	}
}
