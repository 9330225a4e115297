/*
Package slot implements the Slot / Cell (spec §3, §4.3): a mutable,
versioned storage location holding at most one current value, and the
atomic unit of dependency tracking.

A Slot may only be written by its owner task, and only during that task's
execution — this package doesn't enforce that (it has no notion of "the
current task"; that belongs to pkg/execctx and the callers in pkg/task that
already know they're inside their own body), it only implements the
mechanics: compare-and-update with the value type's equality, the dependent
set, forwarding links, and sticky errors.

CompareAndUpdate is a no-op (no dependent notification) when the new value
equals the current one; otherwise it replaces the value and adds every
current dependent to the caller-supplied invalidate.Accumulator, to be
flushed once the writing task's body completes (spec §4.3, §5).
*/
package slot
