/*
Package task implements the Task state machine (spec §4.4): a memoized
invocation of a native function, a trait dispatch, a resolve-then-call
wrapper, or an anonymous root/once body.

	Dirty ──(manager enqueues)──► Scheduled ──(worker begins)──► InProgress(n)
	  ▲                                                               │
	  │                                                               │
	  └─────────────(dep slot changes, or stale completion)───────────┘
	                                                                   │
	                                              (body resolves, n still
	                                               current) ▼
	                                                      Done

Every transition out of InProgress(n) is guarded by the generation number n
captured when that execution began (BeginExecution). If the task was
invalidated mid-flight, its state has already moved to Dirty by the time
the body resolves, so FinishExecution observes the mismatch and discards
the stale result rather than committing it (spec §4.4, §8 property 5).

This package knows nothing about the manager that owns the task arena,
the scheduler that runs bodies, or how slot ids are allocated — those are
supplied through the small SlotAllocator interface and the caller-owned
*slot.Slot pointers a Task is handed. That keeps the dependency direction
one-way: manager depends on task, never the reverse.
*/
package task
