package manager

import (
	"context"
	"time"

	"github.com/cellgraph/cellgraph/pkg/execctx"
	"github.com/cellgraph/cellgraph/pkg/invalidate"
	"github.com/cellgraph/cellgraph/pkg/metrics"
	"github.com/cellgraph/cellgraph/pkg/task"
	"github.com/cellgraph/cellgraph/pkg/taskevents"
)

// scheduleTask transitions t from Dirty to Scheduled and submits it to the
// pool. A task already Scheduled, InProgress or Done is left alone — the
// coalescing in task.MarkScheduled is what keeps Testable Property #6
// (no duplicate re-execution from a burst of invalidations) true.
func (m *Manager) scheduleTask(t *task.Task) {
	if !t.MarkScheduled() {
		return
	}
	m.beginScheduling()
	metrics.TasksScheduledTotal.Inc()
	m.broker.Publish(taskevents.Event{Kind: taskevents.KindScheduled, Task: t.ID()})
	m.pool.Submit(func() { m.execute(t) })
}

// beginScheduling records that one more task is in flight towards Done,
// starting the quiescence clock on the 0 -> 1 transition.
func (m *Manager) beginScheduling() {
	m.schedMu.Lock()
	defer m.schedMu.Unlock()
	if m.currentlyScheduled == 0 {
		m.quiesceStart = time.Now()
		m.scheduledTotal = 0
	}
	m.currentlyScheduled++
	m.scheduledTotal++
	metrics.ActiveTasks.Set(float64(m.currentlyScheduled))
}

// finishScheduling records that one in-flight task reached a terminal
// point (Done, or discarded with no reschedule pending). On the N -> 0
// transition it snapshots the elapsed quiescence duration and any queued
// idle jobs, then releases schedMu before running them — an idle job
// (e.g. the liveness reaper's sweep) may itself call back into
// scheduleTask, which would deadlock against schedMu if it were still
// held here.
func (m *Manager) finishScheduling() {
	m.schedMu.Lock()
	m.currentlyScheduled--
	metrics.ActiveTasks.Set(float64(m.currentlyScheduled))
	quiescent := m.currentlyScheduled == 0
	var elapsed time.Duration
	var jobs []func()
	if quiescent {
		elapsed = time.Since(m.quiesceStart)
		m.lastElapsed = elapsed
		m.lastTotal = m.scheduledTotal
		jobs = m.idleJobs
		m.idleJobs = nil
		m.schedCond.Broadcast()
	}
	m.schedMu.Unlock()

	if !quiescent {
		return
	}
	metrics.QuiescenceDuration.Observe(elapsed.Seconds())
	m.broker.Publish(taskevents.Event{Kind: taskevents.KindQuiescent})
	for _, job := range jobs {
		job()
	}
}

// execute is the pool job body for one scheduling cycle of t. A task
// invalidated while InProgress is discarded by FinishExecution (committed
// is false); execute re-claims Scheduled directly and runs again rather
// than going back through the pool queue, since the dirtying that
// produced the discard has already happened and a fresh schedule would
// just be redundant queueing delay.
func (m *Manager) execute(t *task.Task) {
	for {
		gen, ok := t.BeginExecution()
		if !ok {
			m.finishScheduling()
			return
		}

		timer := metrics.NewTimer()
		pending := invalidate.NewAccumulator()
		state := &execctx.State{API: m, Task: t.ID(), Pending: pending}
		ctx := execctx.WithState(context.Background(), state)

		m.broker.Publish(taskevents.Event{Kind: taskevents.KindStarted, Task: t.ID(), Message: t.TraceID()})
		result, err := t.Body()(ctx)
		timer.ObserveDuration(metrics.TaskExecutionDuration)
		if err != nil {
			// A failure is sticky: it replaces the output slot's content and
			// any forwarding link, so every reader observes it until a later
			// execution succeeds.
			t.Output().LinkTo(nil)
			t.Output().SetError(pending, err)
		}

		committed := t.FinishExecution(gen, result, err, m)
		if !committed {
			// Invalidated mid-flight; the dirtying path moved t back to
			// Dirty and also calls scheduleTask for it. Whichever of the two
			// claims Scheduled first runs the next attempt: if we win, loop
			// within this scheduling cycle.
			metrics.TasksStaleDiscardedTotal.Inc()
			if !t.MarkScheduled() {
				// scheduleTask already claimed it and counted a scheduling
				// cycle of its own, which its execute call will finish; this
				// cycle ends here.
				m.finishScheduling()
				return
			}
			continue
		}

		if err != nil {
			metrics.TasksFailedTotal.Inc()
			m.broker.Publish(taskevents.Event{Kind: taskevents.KindFailed, Task: t.ID(), Message: err.Error()})
		} else {
			metrics.TasksExecutedTotal.Inc()
			m.broker.Publish(taskevents.Event{Kind: taskevents.KindCompleted, Task: t.ID()})
		}
		m.notifyDependents(pending)
		m.finishScheduling()
		return
	}
}

// notifyDependents invalidates every task this execution's writes marked
// pending, rescheduling the ones that actually flip from non-Dirty into
// Dirty. A task already Dirty or Scheduled is deliberately left alone.
func (m *Manager) notifyDependents(pending *invalidate.Accumulator) {
	for _, id := range pending.Drain() {
		dep, ok := m.taskByID(id)
		if !ok {
			continue
		}
		if dep.Invalidate() {
			m.broker.Publish(taskevents.Event{Kind: taskevents.KindInvalidated, Task: id})
			m.scheduleTask(dep)
		}
	}
}

// WaitDone blocks until no task is scheduled or in progress, returning how
// long that quiescent window took to reach and how many scheduling cycles
// ran to get there (spec §4.5 "wait_done"). It mirrors task.AwaitDone's
// ctx-cancellation pattern: a goroutine broadcasts schedCond when ctx is
// done so a blocked waiter can observe the cancellation promptly.
func (m *Manager) WaitDone(ctx context.Context) (time.Duration, uint64, error) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			m.schedMu.Lock()
			m.schedCond.Broadcast()
			m.schedMu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	m.schedMu.Lock()
	defer m.schedMu.Unlock()
	for m.currentlyScheduled != 0 {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		m.schedCond.Wait()
	}
	return m.lastElapsed, m.lastTotal, nil
}

// RunWhenIdle runs fn the next time the manager becomes quiescent, or
// immediately if it already is. Used by the liveness reaper so a sweep
// never runs concurrently with an execution that might be adding the very
// parent edges the sweep is checking.
func (m *Manager) RunWhenIdle(fn func()) {
	m.schedMu.Lock()
	if m.currentlyScheduled == 0 {
		m.schedMu.Unlock()
		fn()
		return
	}
	m.idleJobs = append(m.idleJobs, fn)
	m.schedMu.Unlock()
}
