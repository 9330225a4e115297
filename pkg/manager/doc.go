/*
Package manager is the engine's single stateful core: it owns the task and
slot arenas, the three dedup cache tables, the scheduler pool, and the
ambient context every task body executes under.

It supersedes the teacher's Raft-backed cluster Manager entirely — there is
no consensus, no cluster membership, no persisted log here — but keeps the
teacher's overall shape: a single struct embedding a zerolog.Logger built
via pkg/log, a constructor taking a *config.Config, and Start/Stop methods
bracketing a background pool's lifetime.

# Entry points

Application code drives the engine through:

  - RegisterValueType, RegisterTrait, RegisterFunction, Implement — build
    the static registry of value types, traits and native functions before
    any calls are issued.
  - NativeCall, Call, TraitCall — the three call shapes from spec §4.5.
  - SpawnRoot, SpawnOnce — anonymous, non-deduplicated tasks.
  - Read, Resolve — handle.ReadAPI, used by application code and by
    Typed[T] helpers in pkg/handle.
  - WaitDone, RunWhenIdle — quiescence.
  - CachedTasksIter — introspection.
  - Pin, Unpin — explicit liveness references, since Go has no weak
    pointers or finalizers to observe when an embedder has dropped its
    last reference to a handle (see the Open Question decision in
    DESIGN.md).

Task bodies reach the same Manager through the execctx.CallAPI and
task.SlotAllocator/task.Resolver interfaces — Manager implements all three,
so pkg/task and pkg/execctx never import pkg/manager directly.

# Concurrency

Three locks guard disjoint state, in the order the spec requires (cache
table -> task -> slot):

  - each cacheTable shard's own RWMutex, touched only by getOrInsert/remove;
  - m.mu, guarding the task and slot arenas (id allocation, lookups);
  - each *slot.Slot's own mutex (owned by pkg/slot) and each *task.Task's
    own mutex (owned by pkg/task).

A fourth lock, schedMu, guards the quiescence counters and is never held
while calling into a task or slot — finishScheduling releases it before
running idle jobs or publishing events, specifically to avoid a background
job that calls back into scheduleTask deadlocking against itself.
*/
package manager
