package slot

import (
	"reflect"
	"sync"

	"github.com/cellgraph/cellgraph/pkg/ids"
	"github.com/cellgraph/cellgraph/pkg/invalidate"
	"github.com/cellgraph/cellgraph/pkg/registry"
)

// Equaler lets a value type supply its own equality instead of falling
// back to reflect.DeepEqual for the compare-and-update check.
type Equaler interface {
	EqualValue(other any) bool
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if e, ok := a.(Equaler); ok {
		return e.EqualValue(b)
	}
	return reflect.DeepEqual(a, b)
}

// Slot is a versioned storage location holding at most one current value,
// and the dependency unit dependents register against.
type Slot struct {
	mu sync.Mutex

	id        ids.SlotID
	owner     ids.TaskID
	valueType *registry.ValueType

	content any
	err     error // sticky TaskFailure, set instead of content

	dependents map[ids.TaskID]struct{}
	linked     *Slot
}

// New creates an empty slot owned by owner.
func New(id ids.SlotID, owner ids.TaskID, vt *registry.ValueType) *Slot {
	return &Slot{
		id:         id,
		owner:      owner,
		valueType:  vt,
		dependents: make(map[ids.TaskID]struct{}),
	}
}

func (s *Slot) ID() ids.SlotID { return s.id }

func (s *Slot) Owner() ids.TaskID { return s.owner }

// ValueType returns the slot's declared value type. If the slot currently
// forwards to another slot, the forwarded-to slot's type is authoritative;
// callers that need the concrete dynamic type (e.g. trait dispatch) should
// call Resolve first and inspect the result.
func (s *Slot) ValueType() *registry.ValueType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valueType
}

// CompareAndUpdate sets the slot's value. If newValue equals the current
// content under valuesEqual, this is a no-op and no dependents are
// notified; otherwise the value replaces the old one and every current
// dependent is added to pending, to be flushed by the writer once its body
// completes. Returns whether the value actually changed.
func (s *Slot) CompareAndUpdate(pending *invalidate.Accumulator, vt *registry.ValueType, newValue any) bool {
	s.mu.Lock()
	if s.err == nil && valuesEqual(s.content, newValue) {
		s.mu.Unlock()
		return false
	}
	s.content = newValue
	s.err = nil
	s.valueType = vt
	deps := make([]ids.TaskID, 0, len(s.dependents))
	for d := range s.dependents {
		deps = append(deps, d)
	}
	s.mu.Unlock()

	for _, d := range deps {
		pending.Add(d)
	}
	return true
}

// SetError stores a sticky failure: every subsequent read observes err
// until the owning task is invalidated and successfully re-executes (spec
// §7). Like CompareAndUpdate, re-setting the same error string is a no-op —
// otherwise a task stuck failing the same way on every re-execution would
// re-notify its dependents every cycle forever.
func (s *Slot) SetError(pending *invalidate.Accumulator, err error) {
	s.mu.Lock()
	if s.err != nil && err != nil && s.err.Error() == err.Error() {
		s.mu.Unlock()
		return
	}
	s.err = err
	s.content = nil
	deps := make([]ids.TaskID, 0, len(s.dependents))
	for d := range s.dependents {
		deps = append(deps, d)
	}
	s.mu.Unlock()

	for _, d := range deps {
		pending.Add(d)
	}
}

// LinkTo makes this slot transparently forward reads to target, used when
// a task's body resolves to a handle rather than an inline value (spec
// §4.3, §4.4 step 4).
func (s *Slot) LinkTo(target *Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.linked = target
}

// RegisterDependent records that reader has read this slot's current
// content, so a future change notifies it.
func (s *Slot) RegisterDependent(reader ids.TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dependents[reader] = struct{}{}
}

// Dependents returns a snapshot of the current dependent set.
func (s *Slot) Dependents() []ids.TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ids.TaskID, 0, len(s.dependents))
	for d := range s.dependents {
		out = append(out, d)
	}
	return out
}

// LinkedTo returns the slot this one directly forwards to, if any. Unlike
// Resolve, it takes a single hop rather than following the chain to a
// fixed point — used by callers that need to wait on each link's owner
// task individually as they walk the chain.
func (s *Slot) LinkedTo() (*Slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.linked == nil {
		return nil, false
	}
	return s.linked, true
}

// Resolve follows the forwarding chain to a fixed point and returns the
// slot that actually owns the content (spec §4.3: "following forwarding
// links to a fixed point"). It does not hold any lock across hops, only one
// slot's lock at a time, so a concurrent relink elsewhere in the chain
// cannot deadlock against it.
func (s *Slot) Resolve() *Slot {
	cur := s
	for {
		cur.mu.Lock()
		next := cur.linked
		cur.mu.Unlock()
		if next == nil || next == cur {
			return cur
		}
		cur = next
	}
}

// Read returns the content (or sticky error) of the fixed point this slot
// forwards to. It does not itself register a dependent or wait for the
// owning task to finish — that coordination lives in the manager, which
// knows how to find a slot's owning Task and await its Done state.
func (s *Slot) Read() (any, error) {
	target := s.Resolve()
	target.mu.Lock()
	defer target.mu.Unlock()
	return target.content, target.err
}
