package invalidate

import (
	"sync"

	"github.com/cellgraph/cellgraph/pkg/ids"
)

// Accumulator collects the set of tasks a running task's writes must notify
// once its body completes. It is owned by exactly one in-flight execution
// (see pkg/execctx), so contention is only between the writing goroutine
// and, potentially, Drain called once at the end of that same execution —
// but it is still guarded, since a task body may fan out to goroutines of
// its own while awaiting spawned children.
type Accumulator struct {
	mu  sync.Mutex
	set map[ids.TaskID]struct{}
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{set: make(map[ids.TaskID]struct{})}
}

// Add records id as needing notification. Duplicate adds coalesce into a
// single pending entry, which is what makes "many slot changes dirtying the
// same task still result in a single re-execution" (spec §4.6) hold even
// before the dirtying logic itself runs.
func (a *Accumulator) Add(id ids.TaskID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.set[id] = struct{}{}
}

// Drain returns every accumulated id and resets the accumulator to empty.
func (a *Accumulator) Drain() []ids.TaskID {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ids.TaskID, 0, len(a.set))
	for id := range a.set {
		out = append(out, id)
	}
	a.set = make(map[ids.TaskID]struct{})
	return out
}
