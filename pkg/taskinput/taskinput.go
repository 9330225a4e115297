package taskinput

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/cellgraph/cellgraph/pkg/handle"
	"github.com/cellgraph/cellgraph/pkg/ids"
)

// Kind tags which of the four Task Input variants an Input holds.
type Kind uint8

const (
	KindNothing Kind = iota
	KindResolved
	KindUnresolved
	KindValue
)

// Keyable lets a value type supply its own canonical encoding instead of
// falling back to JSON marshaling. Implement it when a type's default JSON
// shape isn't a faithful cache key (e.g. it contains unexported fields, or
// its equality isn't structural).
type Keyable interface {
	CacheKey() []byte
}

// Input is the canonical, hashable encoding of one task call argument.
type Input struct {
	kind   Kind
	slotID ids.SlotID
	taskID ids.TaskID
	typ    string
	bytes  []byte
	hash   uint64
}

// Nothing is the sentinel for an unset/void argument.
func Nothing() Input { return Input{kind: KindNothing} }

// FromHandle encodes a Handle as Resolved(slot) or Unresolved(task)
// depending on its flavor.
func FromHandle(h handle.Handle) Input {
	if h.IsSlotRef() {
		return Input{kind: KindResolved, slotID: h.SlotID()}
	}
	return Input{kind: KindUnresolved, taskID: h.TaskID()}
}

// FromValue encodes an inline owned value. v must be comparable by its
// canonical byte encoding: implement Keyable for custom types, or rely on
// the JSON fallback for plain structs/maps/slices of JSON-able data.
func FromValue(v any) (Input, error) {
	b, err := encode(v)
	if err != nil {
		return Input{}, fmt.Errorf("taskinput: cannot encode value of type %T as a cache key: %w", v, err)
	}
	return Input{
		kind:  KindValue,
		typ:   fmt.Sprintf("%T", v),
		bytes: b,
		hash:  xxhash.Sum64(b),
	}, nil
}

// From encodes any supported argument: a Handle, or an inline value.
// nil encodes as Nothing.
func From(v any) (Input, error) {
	if v == nil {
		return Nothing(), nil
	}
	if h, ok := v.(handle.Handle); ok {
		return FromHandle(h), nil
	}
	return FromValue(v)
}

func encode(v any) ([]byte, error) {
	switch t := v.(type) {
	case Keyable:
		return t.CacheKey(), nil
	case string:
		return []byte(t), nil
	case []byte:
		out := make([]byte, len(t))
		copy(out, t)
		return out, nil
	default:
		// encoding/json sorts map keys and serializes struct fields in
		// declaration order, both stable across the process, so this is
		// deterministic for any JSON-able value even though it is not the
		// most compact encoding.
		return json.Marshal(v)
	}
}

func (i Input) Kind() Kind { return i.kind }

// IsResolved is true iff this input is not Unresolved (spec §4.2).
func (i Input) IsResolved() bool { return i.kind != KindUnresolved }

func (i Input) IsNothing() bool { return i.kind == KindNothing }

// SlotID returns the referenced slot for a Resolved input.
func (i Input) SlotID() ids.SlotID { return i.slotID }

// TaskID returns the referenced task for an Unresolved input.
func (i Input) TaskID() ids.TaskID { return i.taskID }

// Handle reconstructs the Handle a Resolved or Unresolved input was built
// from.
func (i Input) Handle() (handle.Handle, bool) {
	switch i.kind {
	case KindResolved:
		return handle.FromSlot(i.slotID), true
	case KindUnresolved:
		return handle.FromTask(i.taskID), true
	default:
		return handle.Handle{}, false
	}
}

// TryReadAs decodes a Value input back into a T, mirroring the source's
// try_read_as::<T>() used by native function bodies to extract arguments.
// string and []byte mirror encode's raw-bytes fast path rather than going
// through JSON, since encode never JSON-quotes them in the first place.
func TryReadAs[T any](i Input) (T, bool) {
	var zero T
	if i.kind != KindValue {
		return zero, false
	}
	switch any(zero).(type) {
	case string:
		v, ok := any(string(i.bytes)).(T)
		return v, ok
	case []byte:
		b := make([]byte, len(i.bytes))
		copy(b, i.bytes)
		v, ok := any(b).(T)
		return v, ok
	}
	if err := json.Unmarshal(i.bytes, &zero); err != nil {
		return zero, false
	}
	return zero, true
}

// Key returns a canonical, allocation-independent string uniquely
// identifying this input's content — used to build dedup cache keys over
// (function, inputs) tuples. Equal inputs always produce equal keys and
// vice versa.
func (i Input) Key() string {
	switch i.kind {
	case KindNothing:
		return "N"
	case KindResolved:
		return fmt.Sprintf("R:%d", uint64(i.slotID))
	case KindUnresolved:
		return fmt.Sprintf("U:%d", uint64(i.taskID))
	case KindValue:
		return fmt.Sprintf("V:%s:%016x:%s", i.typ, i.hash, i.bytes)
	default:
		return "?"
	}
}

// Equal reports whether two inputs encode to the same canonical key.
func (i Input) Equal(other Input) bool { return i.Key() == other.Key() }

// JoinKeys builds the composite cache key for an ordered argument list,
// used by the manager's dedup caches. Order matters — swapping two
// arguments produces a different key, as it must for a call with distinct
// positional semantics.
func JoinKeys(inputs []Input) string {
	parts := make([]string, len(inputs))
	for idx, in := range inputs {
		parts[idx] = in.Key()
	}
	return fmt.Sprintf("%d|%v", len(parts), parts)
}
