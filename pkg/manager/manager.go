package manager

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cellgraph/cellgraph/pkg/config"
	"github.com/cellgraph/cellgraph/pkg/execctx"
	"github.com/cellgraph/cellgraph/pkg/ids"
	"github.com/cellgraph/cellgraph/pkg/log"
	"github.com/cellgraph/cellgraph/pkg/registry"
	"github.com/cellgraph/cellgraph/pkg/scheduler"
	"github.com/cellgraph/cellgraph/pkg/slot"
	"github.com/cellgraph/cellgraph/pkg/task"
	"github.com/cellgraph/cellgraph/pkg/taskerr"
	"github.com/cellgraph/cellgraph/pkg/taskevents"
	"github.com/cellgraph/cellgraph/pkg/taskinput"
)

// NativeFn is the Go implementation behind a registered NativeFunction. It
// receives the call's resolved inputs and returns either a plain value to
// publish into the task's own output slot, or a handle.Handle to tail-call
// (the resolve- and trait-dispatch bodies built by the manager itself use
// this; application code usually returns a plain value).
type NativeFn func(ctx context.Context, inputs []taskinput.Input) (any, error)

type fnEntry struct {
	fn         NativeFn
	returnType *registry.ValueType
}

// Manager is the engine's stateful core (see doc.go).
type Manager struct {
	cfg      *config.Config
	registry *registry.Registry
	logger   zerolog.Logger
	pool     *scheduler.Pool
	broker   *taskevents.Broker

	nativeCache  *cacheTable
	resolveCache *cacheTable
	traitCache   *cacheTable

	mu         sync.Mutex
	tasks      map[ids.TaskID]*task.Task
	slots      map[ids.SlotID]*slot.Slot
	nextTaskID uint64
	nextSlotID uint64

	fnMu sync.Mutex
	fns  map[*registry.NativeFunction]fnEntry

	pinnedMu sync.Mutex
	pinned   map[ids.TaskID]map[string]struct{}

	schedMu            sync.Mutex
	schedCond          *sync.Cond
	currentlyScheduled int
	scheduledTotal     uint64
	quiesceStart       time.Time
	lastElapsed        time.Duration
	lastTotal          uint64
	idleJobs           []func()
}

// New returns a Manager configured from cfg. Pass nil to use
// config.Default(). Call Start before issuing any calls.
func New(cfg *config.Config) *Manager {
	if cfg == nil {
		cfg = config.Default()
	}
	m := &Manager{
		cfg:          cfg,
		registry:     registry.New(),
		logger:       log.WithComponent("manager"),
		nativeCache:  newCacheTable(cfg.CacheShards),
		resolveCache: newCacheTable(cfg.CacheShards),
		traitCache:   newCacheTable(cfg.CacheShards),
		tasks:        make(map[ids.TaskID]*task.Task),
		slots:        make(map[ids.SlotID]*slot.Slot),
		fns:          make(map[*registry.NativeFunction]fnEntry),
		pinned:       make(map[ids.TaskID]map[string]struct{}),
		broker:       taskevents.NewBroker(),
	}
	m.schedCond = sync.NewCond(&m.schedMu)
	m.pool = scheduler.New(cfg.PoolSize)
	return m
}

// Start launches the scheduler pool and event broker.
func (m *Manager) Start() {
	m.pool.Start()
	m.broker.Start()
	m.logger.Info().Int("pool_size", m.cfg.PoolSize).Msg("engine manager started")
}

// Stop drains the pool and stops the event broker. Any task still
// scheduled is allowed to finish its current execution first.
func (m *Manager) Stop() {
	m.pool.Stop()
	m.broker.Stop()
	m.logger.Info().Msg("engine manager stopped")
}

// Events returns the broker application code can subscribe to for
// lifecycle introspection (spec §12 supplement; see pkg/taskevents).
func (m *Manager) Events() *taskevents.Broker { return m.broker }

// RegisterValueType interns a value type by name.
func (m *Manager) RegisterValueType(name string) *registry.ValueType {
	return m.registry.Value(name)
}

// RegisterTrait interns a trait type by name.
func (m *Manager) RegisterTrait(name string, methods []string) *registry.TraitType {
	return m.registry.Trait(name, methods)
}

// RegisterFunction interns a native function descriptor and attaches its
// Go implementation. returnType may be nil for functions that always
// tail-call (return a handle.Handle) rather than publish an inline value.
func (m *Manager) RegisterFunction(name string, arity int, returnType *registry.ValueType, fn NativeFn) *registry.NativeFunction {
	descriptor := m.registry.Function(name, arity)
	m.fnMu.Lock()
	m.fns[descriptor] = fnEntry{fn: fn, returnType: returnType}
	m.fnMu.Unlock()
	return descriptor
}

// Implement registers fn as trait.method's dispatch target for values of
// type vt.
func (m *Manager) Implement(vt *registry.ValueType, trait *registry.TraitType, method string, fn *registry.NativeFunction) error {
	return m.registry.Implement(vt, trait, method, fn)
}

// raiseStrict handles a MissingContext or UnresolvedInput error per spec
// §7: these are "programming errors [that] may abort the process". In
// Strict mode (the default) it panics immediately rather than letting the
// mistake propagate as an ordinary error a caller might swallow; embedders
// that pass config.Strict=false get err back instead so they can recover.
func (m *Manager) raiseStrict(err *taskerr.Error) error {
	if m.cfg.Strict {
		panic(err)
	}
	return err
}

func (m *Manager) lookupFn(fn *registry.NativeFunction) (fnEntry, bool) {
	m.fnMu.Lock()
	defer m.fnMu.Unlock()
	e, ok := m.fns[fn]
	return e, ok
}

// allocTask reserves a fresh task id and allocates its output slot.
func (m *Manager) allocTask() (ids.TaskID, *slot.Slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextTaskID++
	taskID := ids.TaskID(m.nextTaskID)
	m.nextSlotID++
	slotID := ids.SlotID(m.nextSlotID)
	s := slot.New(slotID, taskID, nil)
	m.slots[slotID] = s
	return taskID, s
}

// NewSlot implements task.SlotAllocator, used by Task.PositionalSlot and
// Task.KeyedSlot to mint slots beyond a task's output.
func (m *Manager) NewSlot(owner ids.TaskID, vt *registry.ValueType) *slot.Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSlotID++
	id := ids.SlotID(m.nextSlotID)
	s := slot.New(id, owner, vt)
	m.slots[id] = s
	return s
}

// TaskByID and SlotByID implement task.Resolver, used by
// Task.FinishExecution to link a task's output slot to whatever its body
// returned a handle to.
func (m *Manager) TaskByID(id ids.TaskID) (*task.Task, bool) { return m.taskByID(id) }
func (m *Manager) SlotByID(id ids.SlotID) (*slot.Slot, bool) { return m.slotByID(id) }

func (m *Manager) taskByID(id ids.TaskID) (*task.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	return t, ok
}

func (m *Manager) slotByID(id ids.SlotID) (*slot.Slot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	return s, ok
}

func (m *Manager) cacheFor(kind task.Kind) *cacheTable {
	switch kind {
	case task.KindNative:
		return m.nativeCache
	case task.KindResolve:
		return m.resolveCache
	case task.KindTrait:
		return m.traitCache
	default:
		return nil
	}
}

// getOrCreateDedup implements the get_or_insert entry point described in
// spec §4.5: on a cache miss, makeBody builds the task's body closure
// before the task is published, so a racing caller can never observe a
// half-constructed task.
func (m *Manager) getOrCreateDedup(cache *cacheTable, identity task.Identity, makeBody func(id ids.TaskID, out *slot.Slot) task.Body) *task.Task {
	key := identity.Key()
	var created *task.Task
	id, _ := cache.getOrInsert(key, func() ids.TaskID {
		taskID, output := m.allocTask()
		body := makeBody(taskID, output)
		t := task.New(taskID, identity, output, body)
		m.mu.Lock()
		m.tasks[taskID] = t
		m.mu.Unlock()
		created = t
		return taskID
	})
	if created != nil {
		return created
	}
	t, ok := m.taskByID(id)
	if !ok {
		// The entry was removed by a liveness sweep between getOrInsert's
		// read and our lookup; treat it as a fresh miss.
		return m.getOrCreateDedup(cache, identity, makeBody)
	}
	return t
}

// linkParent registers the currently executing task (if any) as a parent
// of callee, and callee as one of its children (spec §4.4 "Parent
// linking").
func (m *Manager) linkParent(ctx context.Context, callee *task.Task) {
	st, ok := execctx.From(ctx)
	if !ok {
		return
	}
	callee.AddParent(st.Task)
	if caller, ok := m.taskByID(st.Task); ok {
		caller.AddChild(callee.ID())
	}
}

// TaskSummary is a read-only snapshot of one task, returned by
// CachedTasksIter for introspection.
type TaskSummary struct {
	ID       ids.TaskID
	Identity string
	State    string
	Parents  int
	Children int
}

// CachedTasksIter returns a snapshot of every task currently in the
// arena, for an embedder's dashboard or test assertions.
func (m *Manager) CachedTasksIter() []TaskSummary {
	m.mu.Lock()
	tasks := make([]*task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	m.mu.Unlock()

	out := make([]TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, TaskSummary{
			ID:       t.ID(),
			Identity: t.Identity().String(),
			State:    t.State().String(),
			Parents:  len(t.Parents()),
			Children: len(t.Children()),
		})
	}
	return out
}
