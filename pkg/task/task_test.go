package task

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellgraph/cellgraph/pkg/handle"
	"github.com/cellgraph/cellgraph/pkg/ids"
	"github.com/cellgraph/cellgraph/pkg/registry"
	"github.com/cellgraph/cellgraph/pkg/slot"
)

type fakeResolver struct {
	tasks map[ids.TaskID]*Task
	slots map[ids.SlotID]*slot.Slot
}

func (f *fakeResolver) TaskByID(id ids.TaskID) (*Task, bool) {
	t, ok := f.tasks[id]
	return t, ok
}

func (f *fakeResolver) SlotByID(id ids.SlotID) (*slot.Slot, bool) {
	s, ok := f.slots[id]
	return s, ok
}

func newTestTask(id ids.TaskID) (*Task, *slot.Slot) {
	vt := registry.New().Value("Int")
	out := slot.New(ids.SlotID(id), id, vt)
	fn := registry.New().Function("noop", 0)
	body := func(ctx context.Context) (handle.Handle, error) { return handle.Handle{}, nil }
	return New(id, NativeIdentity(fn, nil), out, body), out
}

func TestLifecycleHappyPath(t *testing.T) {
	tk, out := newTestTask(1)
	assert.Equal(t, Dirty, tk.State())

	assert.True(t, tk.MarkScheduled())
	assert.Equal(t, Scheduled, tk.State())
	assert.False(t, tk.MarkScheduled(), "re-scheduling an already-Scheduled task must be a no-op")

	gen, ok := tk.BeginExecution()
	require.True(t, ok)
	assert.Equal(t, InProgress, tk.State())

	other, otherOut := newTestTask(2)
	_ = other
	resolver := &fakeResolver{
		tasks: map[ids.TaskID]*Task{2: other},
		slots: map[ids.SlotID]*slot.Slot{2: otherOut},
	}
	committed := tk.FinishExecution(gen, handle.FromSlot(2), nil, resolver)
	assert.True(t, committed)
	assert.Equal(t, Done, tk.State())
	assert.Same(t, otherOut, out.Resolve())
}

func TestBeginExecutionLoserDropsAttempt(t *testing.T) {
	tk, _ := newTestTask(1)
	require.True(t, tk.MarkScheduled())
	_, ok := tk.BeginExecution()
	require.True(t, ok)

	// A second worker racing the same Scheduled->InProgress transition
	// must observe it already gone and drop without side effects.
	_, ok = tk.BeginExecution()
	assert.False(t, ok)
}

func TestStaleExecutionDiscarded(t *testing.T) {
	tk, _ := newTestTask(1)
	require.True(t, tk.MarkScheduled())
	gen, ok := tk.BeginExecution()
	require.True(t, ok)

	// Invalidated mid-flight: a dependency changed while the body was
	// still running.
	assert.True(t, tk.Invalidate())
	assert.Equal(t, Dirty, tk.State())

	resolver := &fakeResolver{tasks: map[ids.TaskID]*Task{}, slots: map[ids.SlotID]*slot.Slot{}}
	committed := tk.FinishExecution(gen, handle.Handle{}, nil, resolver)
	assert.False(t, committed, "a completion whose generation no longer matches must be discarded")
	assert.Equal(t, Dirty, tk.State(), "the task must remain Dirty, ready for immediate re-scheduling")
}

func TestInvalidateCoalescesWhilePending(t *testing.T) {
	tk, _ := newTestTask(1)
	assert.True(t, tk.Invalidate() == false, "an already-Dirty task reports no new work needed")

	require.True(t, tk.MarkScheduled())
	assert.False(t, tk.Invalidate(), "a Scheduled task is already pending; no duplicate reschedule needed")
	assert.Equal(t, Scheduled, tk.State())
}

func TestErrorIsStickyOnFinish(t *testing.T) {
	tk, _ := newTestTask(1)
	require.True(t, tk.MarkScheduled())
	gen, ok := tk.BeginExecution()
	require.True(t, ok)

	resolver := &fakeResolver{tasks: map[ids.TaskID]*Task{}, slots: map[ids.SlotID]*slot.Slot{}}
	wantErr := errors.New("boom")
	committed := tk.FinishExecution(gen, handle.Handle{}, wantErr, resolver)
	assert.True(t, committed)
	assert.Equal(t, Done, tk.State())
	assert.Equal(t, wantErr, tk.LastError())
}

func TestParentsAreASet(t *testing.T) {
	tk, _ := newTestTask(1)
	tk.AddParent(ids.TaskID(9))
	tk.AddParent(ids.TaskID(9))
	assert.Equal(t, []ids.TaskID{9}, tk.Parents())
	assert.True(t, tk.HasParents())

	tk.RemoveParent(ids.TaskID(9))
	assert.False(t, tk.HasParents())
}

func TestPositionalSlotsStableAcrossReExecutions(t *testing.T) {
	tk, _ := newTestTask(1)
	alloc := &countingAllocator{}
	vt := registry.New().Value("Int")

	a := tk.PositionalSlot(alloc, 0, vt)
	b := tk.PositionalSlot(alloc, 1, vt)
	again := tk.PositionalSlot(alloc, 0, vt)

	assert.Same(t, a, again, "the same position must return the same slot across calls")
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, alloc.calls)
}

func TestKeyedSlotsAreUniquePerKey(t *testing.T) {
	tk, _ := newTestTask(1)
	alloc := &countingAllocator{}
	vt := registry.New().Value("Int")

	a := tk.KeyedSlot(alloc, "foo", vt)
	again := tk.KeyedSlot(alloc, "foo", vt)
	b := tk.KeyedSlot(alloc, "bar", vt)

	assert.Same(t, a, again)
	assert.NotSame(t, a, b)
}

type countingAllocator struct {
	calls int
	next  ids.SlotID
}

func (c *countingAllocator) NewSlot(owner ids.TaskID, vt *registry.ValueType) *slot.Slot {
	c.calls++
	c.next++
	return slot.New(c.next, owner, vt)
}
