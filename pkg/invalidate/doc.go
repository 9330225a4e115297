/*
Package invalidate holds the notification accumulator described in spec
§4.5 and §5: "a pending-notifications accumulator... slots whose writes
during the current task body must notify their dependents once the body
completes." and "dependents to notify during a task's run accumulate in the
task-local accumulator and are flushed only after the body completes."

Accumulator is deliberately tiny and dependency-free (it imports only ids)
so that both pkg/slot (writing into it on a changed compare-and-update) and
pkg/execctx (carrying one per running task) can depend on it without
creating an import cycle with pkg/task or pkg/manager, which is where the
accumulator's contents actually get turned into Dirty-state transitions and
re-scheduling once a task body returns.
*/
package invalidate
