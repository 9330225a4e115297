package execctx

import (
	"context"

	"github.com/cellgraph/cellgraph/pkg/handle"
	"github.com/cellgraph/cellgraph/pkg/ids"
	"github.com/cellgraph/cellgraph/pkg/invalidate"
	"github.com/cellgraph/cellgraph/pkg/registry"
	"github.com/cellgraph/cellgraph/pkg/taskinput"
)

// CallAPI is the subset of Manager a task body needs while executing:
// issuing further calls, reading/resolving handles, and obtaining its own
// slots. Defined here so pkg/task depends only on this interface, never on
// the concrete manager.
type CallAPI interface {
	handle.ReadAPI

	// Call schedules (or finds the cached result of) a native function
	// call and returns a TaskOutput handle for it.
	Call(ctx context.Context, fn *registry.NativeFunction, inputs []taskinput.Input) (handle.Handle, error)

	// TraitCall dispatches method on trait for the concrete type behind
	// receiver and returns a TaskOutput handle for the dispatched call.
	TraitCall(ctx context.Context, trait *registry.TraitType, method string, receiver taskinput.Input, inputs []taskinput.Input) (handle.Handle, error)

	// Slot returns the id of the caller task's position-th positional
	// slot, creating it with value type vt on first use within the
	// task's lifetime (spec §4.4 step 2: positional slots are stable
	// across re-executions, identified by call order).
	Slot(caller ids.TaskID, position int, vt *registry.ValueType) ids.SlotID

	// KeyedSlot is the key-addressed counterpart to Slot, identified by
	// an explicit caller-supplied key rather than call order.
	KeyedSlot(caller ids.TaskID, key string, vt *registry.ValueType) ids.SlotID

	// WriteSlot publishes value into the slot identified by id via
	// compare-and-update, coalescing the notification into the calling
	// execution's Pending accumulator. Returns a SlotRef handle to id.
	WriteSlot(ctx context.Context, id ids.SlotID, vt *registry.ValueType, value any) (handle.Handle, error)
}

// State is the ambient data a task execution carries through every
// engine call it makes.
type State struct {
	API CallAPI

	// Task is the id of the task whose body is currently executing.
	Task ids.TaskID

	// Pending accumulates the dependents that must be notified once this
	// execution's writes are flushed (spec §4.3, §5). Shared by every
	// slot write this execution performs, so duplicate notifications
	// coalesce (Testable Property #6) before the writer even returns.
	Pending *invalidate.Accumulator

	// nextSlot is the position counter behind the next unkeyed Slot()
	// call from this execution; reset to zero at the start of every
	// execution attempt (spec §4.4: positional slots are addressed by
	// call order within a single run of the body).
	nextSlot int
}

type contextKey struct{}

// WithState attaches state to ctx, replacing any previously attached
// state (a task body never recurses into another task's own execution
// context; calls into child tasks establish their own).
func WithState(ctx context.Context, state *State) context.Context {
	return context.WithValue(ctx, contextKey{}, state)
}

// From retrieves the State attached to ctx, if any.
func From(ctx context.Context) (*State, bool) {
	s, ok := ctx.Value(contextKey{}).(*State)
	return s, ok
}

// NextSlotPosition returns the next positional-slot index for this
// execution and advances the counter. Calling it twice in one execution
// of a body yields 0 then 1; a fresh execution of the same task resets
// to 0, which is what makes positional slots stable across
// re-executions as long as the body calls slot() in the same order.
func (s *State) NextSlotPosition() int {
	p := s.nextSlot
	s.nextSlot++
	return p
}
