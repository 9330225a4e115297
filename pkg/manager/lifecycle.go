package manager

import (
	"github.com/cellgraph/cellgraph/pkg/handle"
	"github.com/cellgraph/cellgraph/pkg/ids"
	"github.com/cellgraph/cellgraph/pkg/metrics"
	"github.com/cellgraph/cellgraph/pkg/task"
	"github.com/cellgraph/cellgraph/pkg/taskevents"
)

// Pin records a live reference to h's underlying task, keeping it (and
// its transitive dependencies) alive across liveness sweeps even though
// it has no parent and isn't a root. Go has no finalizers or weak
// pointers to observe when an embedder drops its last Go-side reference
// to a handle, so pinning is explicit: every Pin must be matched with an
// Unpin of the token it returns (see DESIGN.md's decision on this).
func (m *Manager) Pin(h handle.Handle) string {
	tid := m.handleTaskID(h)
	token := handle.NewDebugToken()
	m.pinnedMu.Lock()
	defer m.pinnedMu.Unlock()
	set, ok := m.pinned[tid]
	if !ok {
		set = make(map[string]struct{})
		m.pinned[tid] = set
	}
	set[token] = struct{}{}
	return token
}

// Unpin releases one previously returned pin token for tid. Unknown or
// already-released tokens are no-ops.
func (m *Manager) Unpin(tid ids.TaskID, token string) {
	m.pinnedMu.Lock()
	defer m.pinnedMu.Unlock()
	set, ok := m.pinned[tid]
	if !ok {
		return
	}
	delete(set, token)
	if len(set) == 0 {
		delete(m.pinned, tid)
	}
}

func (m *Manager) isPinned(tid ids.TaskID) bool {
	m.pinnedMu.Lock()
	defer m.pinnedMu.Unlock()
	_, ok := m.pinned[tid]
	return ok
}

// handleTaskID resolves h down to the task id owning its current slot,
// without waiting for that task to be Done — pinning is about keeping a
// reference alive, not about reading through it.
func (m *Manager) handleTaskID(h handle.Handle) ids.TaskID {
	if h.IsTaskOutput() {
		return h.TaskID()
	}
	if s, ok := m.slotByID(h.SlotID()); ok {
		return s.Owner()
	}
	return 0
}

// SweepLiveness implements gc.ManagerAPI. It defers the actual sweep
// until the engine is quiescent (via RunWhenIdle), since liveness is only
// well-defined between executions: a task mid-execution may still add
// parent edges to children it hasn't finished spawning yet.
func (m *Manager) SweepLiveness() {
	m.RunWhenIdle(m.sweepLivenessNow)
}

func (m *Manager) sweepLivenessNow() {
	m.mu.Lock()
	candidates := make([]*task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		candidates = append(candidates, t)
	}
	m.mu.Unlock()

	var dead []*task.Task
	for _, t := range candidates {
		if t.IsRoot() || t.HasParents() || m.isPinned(t.ID()) {
			continue
		}
		dead = append(dead, t)
	}
	if len(dead) > 0 {
		m.deactivateTasks(dead)
	}
}

// deactivateTasks removes every dead task's parent edge from its
// children (a child may now itself become a liveness candidate on the
// next sweep), evicts its dedup cache entry so a future identical call
// builds a fresh task rather than resurrecting a half-torn-down one, and
// frees its storage.
func (m *Manager) deactivateTasks(victims []*task.Task) {
	for _, t := range victims {
		for _, childID := range t.Children() {
			if child, ok := m.taskByID(childID); ok {
				child.RemoveParent(t.ID())
			}
		}
		identity := t.Identity()
		if identity.Dedupable() {
			m.cacheFor(identity.Kind).remove(identity.Key(), t.ID())
		}
		m.removeTask(t)
		metrics.TasksDeactivatedTotal.Inc()
		m.broker.Publish(taskevents.Event{Kind: taskevents.KindDeactivated, Task: t.ID()})
	}
}

// removeTask deletes t and every slot it owns from the manager's arenas.
func (m *Manager) removeTask(t *task.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, t.ID())
	for _, s := range t.OwnedSlots() {
		delete(m.slots, s.ID())
	}
}
