/*
Package execctx carries the ambient "current task" state that a running
task body needs to call back into the engine: which task it is, which
manager owns it, and the accumulator its writes must flush notifications
into once it returns (spec §4.3, §9).

The source this engine is modeled on keeps this state in task-local
storage, implicit at every call site. Go has no equivalent of Rust's
task-local/thread-local storage that survives across goroutine hops, so
this package makes the same state explicit instead: every function that
a task body calls takes a context.Context carrying an *execctx.State,
attached with execctx.WithState and retrieved with execctx.From. This was
an open question in the distilled spec (Design Notes §9) and this is the
resolution: ambient context becomes explicit context.Context threading,
the idiomatic Go answer when no task-local facility exists.

CallAPI is the narrow slice of Manager that a task body's calls need —
defined here, not imported from pkg/manager, so that execctx (and
everything built on it, including pkg/task) has no dependency on the
manager package. pkg/manager implements CallAPI; it does not need to
import execctx to do so.
*/
package execctx
