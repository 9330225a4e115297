package task

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/cellgraph/cellgraph/pkg/handle"
	"github.com/cellgraph/cellgraph/pkg/ids"
	"github.com/cellgraph/cellgraph/pkg/log"
	"github.com/cellgraph/cellgraph/pkg/registry"
	"github.com/cellgraph/cellgraph/pkg/slot"
)

// State is one of the four positions in the task lifecycle (spec §4.4).
type State uint8

const (
	Dirty State = iota
	Scheduled
	InProgress
	Done
)

func (s State) String() string {
	switch s {
	case Dirty:
		return "dirty"
	case Scheduled:
		return "scheduled"
	case InProgress:
		return "in_progress"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Body is the function a scheduler worker invokes to execute a task. It
// runs with execctx state already attached to ctx, so it may call back
// into the manager (via execctx.From(ctx).API) to read other handles,
// issue further calls, or publish values into its own slots.
type Body func(ctx context.Context) (handle.Handle, error)

// SlotAllocator allocates fresh slot ids and slot.Slot instances from the
// manager's arena. Tasks don't own slot id generation themselves — that
// would require every task to agree on a single counter — so they ask
// for slots through this interface instead.
type SlotAllocator interface {
	NewSlot(owner ids.TaskID, vt *registry.ValueType) *slot.Slot
}

// Resolver looks up tasks and slots by id, used to follow whatever handle
// a body returned down to the slot the task's own output should link to.
type Resolver interface {
	TaskByID(id ids.TaskID) (*Task, bool)
	SlotByID(id ids.SlotID) (*slot.Slot, bool)
}

// Task is a single memoized invocation: its identity, lifecycle state,
// the slots it owns, and the dynamic caller/callee edges from its most
// recent completed execution.
type Task struct {
	mu sync.Mutex

	id       ids.TaskID
	identity Identity
	isRoot   bool

	state State
	gen     uint64 // execution generation; see doc.go for the discard protocol
	traceID string // correlates one execution attempt's log lines
	cond    *sync.Cond

	output *slot.Slot

	parents  map[ids.TaskID]struct{}
	children map[ids.TaskID]struct{}
	deps     map[ids.SlotID]struct{}

	positional map[int]*slot.Slot
	keyed      map[string]*slot.Slot

	body Body
	err  error // set on the most recent failed execution; informational only
}

// New creates a task in the Dirty state, owning output as its single
// output slot.
func New(id ids.TaskID, identity Identity, output *slot.Slot, body Body) *Task {
	t := &Task{
		id:         id,
		identity:   identity,
		isRoot:     identity.Kind == KindRoot,
		state:      Dirty,
		output:     output,
		parents:    make(map[ids.TaskID]struct{}),
		children:   make(map[ids.TaskID]struct{}),
		deps:       make(map[ids.SlotID]struct{}),
		positional: make(map[int]*slot.Slot),
		keyed:      make(map[string]*slot.Slot),
		body:       body,
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

func (t *Task) ID() ids.TaskID { return t.id }

func (t *Task) Identity() Identity { return t.identity }

func (t *Task) IsRoot() bool { return t.isRoot }

func (t *Task) Output() *slot.Slot { return t.output }

func (t *Task) Body() Body { return t.body }

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// MarkScheduled transitions Dirty -> Scheduled. Returns false if the task
// wasn't Dirty (already Scheduled, InProgress, or Done), in which case the
// caller must not enqueue it again — coalescing duplicate scheduling
// requests is exactly what makes Testable Property #6 hold.
func (t *Task) MarkScheduled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Dirty {
		return false
	}
	t.state = Scheduled
	return true
}

// BeginExecution transitions Scheduled -> InProgress and returns the
// generation number identifying this attempt, used later by
// FinishExecution to detect a stale completion. If another worker already
// won the race (state is no longer Scheduled), ok is false and the
// caller must drop the attempt without running the body.
func (t *Task) BeginExecution() (gen uint64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Scheduled {
		return 0, false
	}
	t.state = InProgress
	t.gen++
	t.traceID = uuid.NewString()
	t.children = make(map[ids.TaskID]struct{})
	t.deps = make(map[ids.SlotID]struct{})
	log.WithTaskID(t.id.String()).Debug().
		Str("trace_id", t.traceID).
		Str("identity", t.identity.String()).
		Uint64("gen", t.gen).
		Msg("task execution started")
	return t.gen, true
}

// TraceID returns the correlation id of the task's most recent execution
// attempt, for tying scheduler and manager log lines back to one run.
func (t *Task) TraceID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.traceID
}

// FinishExecution commits the result of the execution identified by gen,
// provided the task is still InProgress at that same generation. If the
// task was invalidated mid-flight (and is therefore no longer InProgress
// at gen — either it moved to Dirty, or another attempt already started
// and bumped the generation again), the result is discarded and
// committed is false; the caller must then re-schedule the task.
func (t *Task) FinishExecution(gen uint64, result handle.Handle, resultErr error, resolver Resolver) (committed bool) {
	t.mu.Lock()
	if t.state != InProgress || t.gen != gen {
		t.mu.Unlock()
		return false
	}

	if resultErr != nil {
		t.err = resultErr
		log.WithTaskID(t.id.String()).Error().
			Str("trace_id", t.traceID).
			Err(resultErr).
			Msg("task execution failed")
	} else {
		t.err = nil
		t.linkOutput(result, resolver)
	}
	t.state = Done
	t.mu.Unlock()
	t.cond.Broadcast()
	return true
}

// linkOutput wires the task's output slot to whatever the body returned.
// Must be called with t.mu held.
func (t *Task) linkOutput(h handle.Handle, resolver Resolver) {
	if h.IsSlotRef() {
		if target, ok := resolver.SlotByID(h.SlotID()); ok {
			t.output.LinkTo(target)
		}
		return
	}
	if target, ok := resolver.TaskByID(h.TaskID()); ok {
		t.output.LinkTo(target.Output())
	}
}

// Invalidate marks the task Dirty in response to a dependency change.
// Returns true if this call actually moved the task into Dirty and a
// reschedule is therefore needed; false if it was already Dirty or
// Scheduled (already pending, so no duplicate reschedule is needed). Once
// tasks are never invalidated, so they run exactly one time.
func (t *Task) Invalidate() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.identity.Kind == KindOnce {
		return false
	}
	switch t.state {
	case Dirty, Scheduled:
		return false
	default: // InProgress or Done
		t.state = Dirty
		return true
	}
}

// AwaitDone blocks until the task reaches Done, or ctx is cancelled.
func (t *Task) AwaitDone(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			t.mu.Lock()
			t.cond.Broadcast()
			t.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	t.mu.Lock()
	defer t.mu.Unlock()
	for t.state != Done {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.cond.Wait()
	}
	return nil
}

// AddParent records caller as a live referrer of this task. Duplicate
// adds are no-ops (spec §4.4 "Parents are a multiset-free set").
func (t *Task) AddParent(caller ids.TaskID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.parents[caller] = struct{}{}
}

func (t *Task) RemoveParent(caller ids.TaskID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.parents, caller)
}

func (t *Task) Parents() []ids.TaskID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ids.TaskID, 0, len(t.parents))
	for p := range t.parents {
		out = append(out, p)
	}
	return out
}

func (t *Task) HasParents() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.parents) > 0
}

// AddChild records that this task's most recent execution spawned child.
func (t *Task) AddChild(child ids.TaskID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.children[child] = struct{}{}
}

func (t *Task) Children() []ids.TaskID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ids.TaskID, 0, len(t.children))
	for c := range t.children {
		out = append(out, c)
	}
	return out
}

// AddDep records that this task's most recent execution read sID.
func (t *Task) AddDep(sID ids.SlotID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deps[sID] = struct{}{}
}

func (t *Task) Deps() []ids.SlotID {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ids.SlotID, 0, len(t.deps))
	for d := range t.deps {
		out = append(out, d)
	}
	return out
}

// PositionalSlot returns the task's position-th positional slot,
// allocating it on first use within the task's lifetime. Positional slots
// persist across re-executions as long as the body calls Slot in the
// same order every time (spec §4.4, §6).
func (t *Task) PositionalSlot(alloc SlotAllocator, position int, vt *registry.ValueType) *slot.Slot {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.positional[position]; ok {
		return s
	}
	s := alloc.NewSlot(t.id, vt)
	t.positional[position] = s
	return s
}

// KeyedSlot is the key-addressed counterpart to PositionalSlot.
func (t *Task) KeyedSlot(alloc SlotAllocator, key string, vt *registry.ValueType) *slot.Slot {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.keyed[key]; ok {
		return s
	}
	s := alloc.NewSlot(t.id, vt)
	t.keyed[key] = s
	return s
}

// LastError returns the error from the most recently completed execution,
// if it failed. Informational only — the authoritative sticky error a
// reader observes lives on the output slot itself.
func (t *Task) LastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// OwnedSlots returns every slot this task owns: its output slot plus every
// positional and keyed slot allocated so far. Used by the liveness reaper
// to release a deactivated task's storage.
func (t *Task) OwnedSlots() []*slot.Slot {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*slot.Slot, 0, 1+len(t.positional)+len(t.keyed))
	out = append(out, t.output)
	for _, s := range t.positional {
		out = append(out, s)
	}
	for _, s := range t.keyed {
		out = append(out, s)
	}
	return out
}
