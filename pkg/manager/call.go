package manager

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cellgraph/cellgraph/pkg/execctx"
	"github.com/cellgraph/cellgraph/pkg/handle"
	"github.com/cellgraph/cellgraph/pkg/ids"
	"github.com/cellgraph/cellgraph/pkg/invalidate"
	"github.com/cellgraph/cellgraph/pkg/metrics"
	"github.com/cellgraph/cellgraph/pkg/registry"
	"github.com/cellgraph/cellgraph/pkg/slot"
	"github.com/cellgraph/cellgraph/pkg/task"
	"github.com/cellgraph/cellgraph/pkg/taskerr"
	"github.com/cellgraph/cellgraph/pkg/taskinput"
)

// NativeCall implements the native_call entry point from spec §4.5:
// inputs must already be fully resolved.
func (m *Manager) NativeCall(ctx context.Context, fn *registry.NativeFunction, inputs []taskinput.Input) (handle.Handle, error) {
	for _, in := range inputs {
		if !in.IsResolved() {
			return handle.Handle{}, m.raiseStrict(taskerr.NewUnresolvedInput(fn.Name()))
		}
	}
	entry, ok := m.lookupFn(fn)
	if !ok {
		return handle.Handle{}, fmt.Errorf("manager: native function %q has no registered body", fn.Name())
	}

	identity := task.NativeIdentity(fn, inputs)
	t := m.getOrCreateDedup(m.nativeCache, identity, func(id ids.TaskID, out *slot.Slot) task.Body {
		return m.nativeBody(entry, inputs)
	})
	m.linkParent(ctx, t)
	m.scheduleTask(t)
	return handle.FromTask(t.ID()), nil
}

// Call implements dynamic_call: if every input is already resolved it
// tail-calls NativeCall directly; otherwise it creates a resolve task that
// resolves the remaining inputs first (spec §4.5).
func (m *Manager) Call(ctx context.Context, fn *registry.NativeFunction, inputs []taskinput.Input) (handle.Handle, error) {
	allResolved := true
	for _, in := range inputs {
		if !in.IsResolved() {
			allResolved = false
			break
		}
	}
	if allResolved {
		return m.NativeCall(ctx, fn, inputs)
	}
	return m.resolveCall(ctx, fn, inputs)
}

func (m *Manager) resolveCall(ctx context.Context, fn *registry.NativeFunction, inputs []taskinput.Input) (handle.Handle, error) {
	if _, ok := m.lookupFn(fn); !ok {
		return handle.Handle{}, fmt.Errorf("manager: native function %q has no registered body", fn.Name())
	}

	identity := task.ResolveIdentity(fn, inputs)
	t := m.getOrCreateDedup(m.resolveCache, identity, func(id ids.TaskID, out *slot.Slot) task.Body {
		return m.resolveBody(fn, inputs)
	})
	m.linkParent(ctx, t)
	m.scheduleTask(t)
	return handle.FromTask(t.ID()), nil
}

// resolveBody resolves every Unresolved input to a direct slot reference
// and then tail-calls NativeCall, which for the same fn and now-resolved
// inputs either lands on the same native task this resolution already
// produced, or creates it.
func (m *Manager) resolveBody(fn *registry.NativeFunction, inputs []taskinput.Input) task.Body {
	return func(ctx context.Context) (handle.Handle, error) {
		resolved := make([]taskinput.Input, len(inputs))
		for i, in := range inputs {
			if in.IsResolved() {
				resolved[i] = in
				continue
			}
			h, ok := in.Handle()
			if !ok {
				resolved[i] = in
				continue
			}
			rh, err := m.Resolve(ctx, h)
			if err != nil {
				return handle.Handle{}, err
			}
			resolved[i] = taskinput.FromHandle(rh)
		}
		return m.NativeCall(ctx, fn, resolved)
	}
}

// TraitCall implements trait_call: it creates a task that resolves the
// receiver, looks up its concrete value type in the dispatch table, and
// tail-calls the implementing native function (spec §4.5, §9 "Dynamic
// dispatch").
func (m *Manager) TraitCall(ctx context.Context, trait *registry.TraitType, method string, receiver taskinput.Input, inputs []taskinput.Input) (handle.Handle, error) {
	allInputs := append([]taskinput.Input{receiver}, inputs...)
	identity := task.TraitIdentity(trait, method, allInputs)
	t := m.getOrCreateDedup(m.traitCache, identity, func(id ids.TaskID, out *slot.Slot) task.Body {
		return m.traitBody(trait, method, receiver, inputs)
	})
	m.linkParent(ctx, t)
	m.scheduleTask(t)
	return handle.FromTask(t.ID()), nil
}

func (m *Manager) traitBody(trait *registry.TraitType, method string, receiver taskinput.Input, inputs []taskinput.Input) task.Body {
	return func(ctx context.Context) (handle.Handle, error) {
		h, ok := receiver.Handle()
		if !ok {
			return handle.Handle{}, taskerr.New(taskerr.TypeMismatch, "trait receiver must be a handle, not an inline value")
		}
		resolved, err := m.Resolve(ctx, h)
		if err != nil {
			return handle.Handle{}, err
		}
		target, ok := m.slotByID(resolved.SlotID())
		if !ok {
			return handle.Handle{}, fmt.Errorf("manager: unknown slot %s", resolved.SlotID())
		}
		vt := target.ValueType()
		fn, ok := m.registry.Lookup(vt, trait, method)
		if !ok {
			return handle.Handle{}, taskerr.NewUnknownMethod(trait.Name(), method)
		}
		allInputs := append([]taskinput.Input{taskinput.FromHandle(resolved)}, inputs...)
		return m.NativeCall(ctx, fn, allInputs)
	}
}

// nativeBody wraps a registered NativeFn as a task.Body: it runs the
// function, and if the function returned a plain value (rather than
// tail-calling another handle itself) publishes it into the task's own
// output slot.
func (m *Manager) nativeBody(entry fnEntry, inputs []taskinput.Input) task.Body {
	return func(ctx context.Context) (handle.Handle, error) {
		result, err := entry.fn(ctx, inputs)
		if err != nil {
			return handle.Handle{}, err
		}
		if h, ok := result.(handle.Handle); ok {
			return h, nil
		}

		st, ok := execctx.From(ctx)
		if !ok {
			return handle.Handle{}, m.raiseStrict(taskerr.NewMissingContext("native_call body"))
		}
		t, ok := m.taskByID(st.Task)
		if !ok {
			return handle.Handle{}, fmt.Errorf("manager: executing task %s not found", st.Task)
		}
		return m.WriteSlot(ctx, t.Output().ID(), entry.returnType, result)
	}
}

// SpawnRoot creates a non-deduplicated task that is kept alive until the
// manager shuts down (spec §4.5). Like any other task it re-executes
// whenever a dependency it reads changes.
func (m *Manager) SpawnRoot(body task.Body) ids.TaskID {
	return m.spawnAnonymous(task.RootIdentity(), body)
}

// SpawnOnce creates a non-deduplicated task that runs exactly once.
func (m *Manager) SpawnOnce(body task.Body) ids.TaskID {
	return m.spawnAnonymous(task.OnceIdentity(), body)
}

func (m *Manager) spawnAnonymous(identity task.Identity, body task.Body) ids.TaskID {
	taskID, output := m.allocTask()
	t := task.New(taskID, identity, output, body)
	m.mu.Lock()
	m.tasks[taskID] = t
	m.mu.Unlock()
	m.scheduleTask(t)
	return taskID
}

// Read implements handle.ReadAPI: it waits for h's underlying slot's
// owner task to be Done, registers the calling task (if any) as a
// dependent, and returns the slot's current content.
func (m *Manager) Read(ctx context.Context, h handle.Handle) (any, error) {
	target, err := m.resolveToSlot(ctx, h)
	if err != nil {
		return nil, err
	}
	if st, ok := execctx.From(ctx); ok {
		target.RegisterDependent(st.Task)
		if caller, ok := m.taskByID(st.Task); ok {
			caller.AddDep(target.ID())
		}
	}
	value, rerr := target.Read()
	if rerr != nil {
		return nil, taskerr.NewTaskFailure(rerr)
	}
	return value, nil
}

// Resolve implements handle.ReadAPI: it follows h's forwarding chain to a
// fixed point and returns a SlotRef handle to it, without registering a
// dependent (the caller decides separately whether to Read).
func (m *Manager) Resolve(ctx context.Context, h handle.Handle) (handle.Handle, error) {
	target, err := m.resolveToSlot(ctx, h)
	if err != nil {
		return handle.Handle{}, err
	}
	return handle.FromSlot(target.ID()), nil
}

// resolveToSlot follows h down to the slot that actually owns its
// content, waiting for each hop's owner task to reach Done before
// following any forwarding link that task's completion may have just
// established (spec §4.6 "Reading").
func (m *Manager) resolveToSlot(ctx context.Context, h handle.Handle) (*slot.Slot, error) {
	s, err := m.handleToSlot(h)
	if err != nil {
		return nil, err
	}
	for {
		resolved := s.Resolve()
		if owner, ok := m.taskByID(resolved.Owner()); ok {
			if err := owner.AwaitDone(ctx); err != nil {
				return nil, err
			}
		}
		next := resolved.Resolve()
		if next == resolved {
			return resolved, nil
		}
		s = next
	}
}

func (m *Manager) handleToSlot(h handle.Handle) (*slot.Slot, error) {
	if h.IsSlotRef() {
		sl, ok := m.slotByID(h.SlotID())
		if !ok {
			return nil, fmt.Errorf("manager: unknown slot %s", h.SlotID())
		}
		return sl, nil
	}
	t, ok := m.taskByID(h.TaskID())
	if !ok {
		return nil, fmt.Errorf("manager: unknown task %s", h.TaskID())
	}
	return t.Output(), nil
}

// NewExternalSlot allocates a slot owned by no task, for an embedder to
// seed external input into the graph (spec §6: callers outside any task
// execution still need a way to publish values that task bodies can
// depend on by reading).
func (m *Manager) NewExternalSlot(vt *registry.ValueType) *slot.Slot {
	return m.NewSlot(0, vt)
}

// Cell implements handle.CellAPI: it allocates a fresh externally-owned
// slot, seeds it with value, and returns a SlotRef handle to it — a
// one-shot convenience over NewExternalSlot+Seed for constructing a handle
// directly over an inline value with no owning task (spec §9's "Vc::cell"
// supplement, see SPEC_FULL.md §12.1).
func (m *Manager) Cell(vt *registry.ValueType, value any) handle.Handle {
	s := m.NewExternalSlot(vt)
	m.Seed(s.ID(), vt, value)
	return handle.FromSlot(s.ID())
}

// Seed publishes value into slot id from outside any task execution.
// Unlike WriteSlot, it requires no execctx.State and flushes the
// resulting dependent notifications immediately rather than deferring
// them to the end of some task's execution.
func (m *Manager) Seed(id ids.SlotID, vt *registry.ValueType, value any) bool {
	s, ok := m.slotByID(id)
	if !ok {
		return false
	}
	pending := invalidate.NewAccumulator()
	changed := s.CompareAndUpdate(pending, vt, value)
	metrics.SlotWritesTotal.WithLabelValues(strconv.FormatBool(changed)).Inc()
	if changed {
		m.notifyDependents(pending)
	}
	return changed
}

// Slot implements execctx.CallAPI: the caller's position-th positional
// slot, allocated on first use.
func (m *Manager) Slot(caller ids.TaskID, position int, vt *registry.ValueType) ids.SlotID {
	t, ok := m.taskByID(caller)
	if !ok {
		return 0
	}
	return t.PositionalSlot(m, position, vt).ID()
}

// KeyedSlot implements execctx.CallAPI: the caller's key-addressed slot.
func (m *Manager) KeyedSlot(caller ids.TaskID, key string, vt *registry.ValueType) ids.SlotID {
	t, ok := m.taskByID(caller)
	if !ok {
		return 0
	}
	return t.KeyedSlot(m, key, vt).ID()
}

// WriteSlot implements execctx.CallAPI: it publishes value into the slot
// identified by id via compare-and-update, coalescing notifications into
// the calling execution's Pending accumulator.
func (m *Manager) WriteSlot(ctx context.Context, id ids.SlotID, vt *registry.ValueType, value any) (handle.Handle, error) {
	st, ok := execctx.From(ctx)
	if !ok {
		return handle.Handle{}, m.raiseStrict(taskerr.NewMissingContext("write_slot"))
	}
	s, ok := m.slotByID(id)
	if !ok {
		return handle.Handle{}, fmt.Errorf("manager: unknown slot %s", id)
	}
	changed := s.CompareAndUpdate(st.Pending, vt, value)
	metrics.SlotWritesTotal.WithLabelValues(strconv.FormatBool(changed)).Inc()
	return handle.FromSlot(id), nil
}
