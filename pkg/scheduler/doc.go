/*
Package scheduler provides the worker pool that runs task bodies.

Unlike the teacher's pkg/scheduler — a ticker-driven reconciliation loop
that polls services and nodes every five seconds — this pool is a classic
work-stealing-style executor: a fixed number of goroutines pull jobs off a
shared, unbounded queue and run them until told to stop. There is no
polling interval; a job runs as soon as a worker is free.

# Why unbounded

Task bodies recursively submit further jobs into the same pool (a task
spawning children, a stale execution rescheduling itself). A bounded
channel-backed queue can deadlock here: if every worker is blocked trying
to push a new job into a full channel, nothing ever drains it. The queue
here is a plain slice guarded by a mutex and a sync.Cond, so Submit never
blocks the caller — including a worker goroutine submitting from inside a
running job.

# Shape

Pool mirrors the teacher's Scheduler in its Start/Stop/logging idiom
(same structured log lines per lifecycle event) but replaces the
reconciliation cycle with a generic Job: func(). The manager is the only
caller that knows what a Job actually does — the pool itself has no
notion of tasks, slots, or dependency graphs.
*/
package scheduler
