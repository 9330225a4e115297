package handle

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/cellgraph/cellgraph/pkg/ids"
	"github.com/cellgraph/cellgraph/pkg/registry"
	"github.com/cellgraph/cellgraph/pkg/taskerr"
)

// NewDebugToken returns a fresh opaque token identifying one Pin call, so
// an embedder holding several pins on the same handle can Unpin exactly
// one of them independently of the others.
func NewDebugToken() string {
	return uuid.NewString()
}

// Kind distinguishes the two Handle flavors named in spec §3.
type Kind uint8

const (
	KindTaskOutput Kind = iota
	KindSlotRef
)

// Handle is a typed, shareable reference to a task's output slot or to a
// directly addressed slot.
type Handle struct {
	kind   Kind
	taskID ids.TaskID
	slotID ids.SlotID
}

// FromTask builds a TaskOutput handle.
func FromTask(id ids.TaskID) Handle { return Handle{kind: KindTaskOutput, taskID: id} }

// FromSlot builds a SlotRef handle.
func FromSlot(id ids.SlotID) Handle { return Handle{kind: KindSlotRef, slotID: id} }

func (h Handle) Kind() Kind { return h.kind }

func (h Handle) IsTaskOutput() bool { return h.kind == KindTaskOutput }

func (h Handle) IsSlotRef() bool { return h.kind == KindSlotRef }

// TaskID returns the referenced task id; only meaningful when IsTaskOutput.
func (h Handle) TaskID() ids.TaskID { return h.taskID }

// SlotID returns the referenced slot id; only meaningful when IsSlotRef.
func (h Handle) SlotID() ids.SlotID { return h.slotID }

func (h Handle) String() string {
	if h.IsTaskOutput() {
		return fmt.Sprintf("output(%s)", h.taskID)
	}
	return fmt.Sprintf("slot(%s)", h.slotID)
}

// Equal compares two handles by the reference they name, not by the value
// behind it — two SlotRefs to the same slot are equal even before either
// has been read.
func (h Handle) Equal(other Handle) bool {
	if h.kind != other.kind {
		return false
	}
	if h.kind == KindTaskOutput {
		return h.taskID == other.taskID
	}
	return h.slotID == other.slotID
}

// ReadAPI is the subset of Manager that resolving a typed handle needs.
// Defined here (rather than imported from the manager package) so that
// handle stays a leaf package with no dependency on task/slot/manager.
type ReadAPI interface {
	Read(ctx context.Context, h Handle) (any, error)
	Resolve(ctx context.Context, h Handle) (Handle, error)
}

// CellAPI is the subset of Manager needed to construct a handle directly
// over an inline value, with no owning task — the engine's equivalent of
// the source's Vc::cell (original_source/crates/turbo-tasks/src/vc.rs).
type CellAPI interface {
	Cell(vt *registry.ValueType, value any) Handle
}

// Typed layers a phantom Go type over an untyped Handle, mirroring the
// source's Vc<T>.
type Typed[T any] struct {
	h Handle
}

// Cast wraps an untyped Handle with a static type, trusting the caller that
// reads through it will in fact observe a T (Get returns TypeMismatch if
// not).
func Cast[T any](h Handle) Typed[T] { return Typed[T]{h: h} }

// Untyped discards the phantom type.
func (t Typed[T]) Untyped() Handle { return t.h }

// Get reads the handle's current value through api and asserts it is a T.
func Get[T any](ctx context.Context, api ReadAPI, h Typed[T]) (T, error) {
	var zero T
	v, err := api.Read(ctx, h.h)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, taskerr.New(taskerr.TypeMismatch, fmt.Sprintf("handle %s: value of type %T is not of the expected type", h.h, v))
	}
	return typed, nil
}

// Resolve resolves the handle until it points directly at a slot.
func Resolve[T any](ctx context.Context, api ReadAPI, h Typed[T]) (Typed[T], error) {
	resolved, err := api.Resolve(ctx, h.h)
	if err != nil {
		return Typed[T]{}, err
	}
	return Typed[T]{h: resolved}, nil
}

// Cell builds a Typed[T] directly over value, owned by no task — callers
// outside of any task execution use this to seed a value the graph can
// depend on, mirroring Vc::cell's ability to construct a cell without a
// task invocation behind it (spec §6 names slot/keyed_slot only for use
// inside a running task body; Cell is this package's supplement for the
// task-free case, see SPEC_FULL.md §12.1).
func Cell[T any](api CellAPI, vt *registry.ValueType, value T) Typed[T] {
	return Typed[T]{h: api.Cell(vt, value)}
}
