package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellgraph/cellgraph/pkg/config"
	"github.com/cellgraph/cellgraph/pkg/execctx"
	"github.com/cellgraph/cellgraph/pkg/handle"
	"github.com/cellgraph/cellgraph/pkg/taskerr"
	"github.com/cellgraph/cellgraph/pkg/taskinput"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	cfg := config.Default()
	cfg.PoolSize = 4
	cfg.CacheShards = 4
	m := New(cfg)
	m.Start()
	t.Cleanup(m.Stop)
	return m
}

func mustWaitDone(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := m.WaitDone(ctx)
	require.NoError(t, err)
}

// S1: register add(x, y); call(add, [2,3]) reads 5; re-calling with the
// same inputs returns the same task and never re-executes the body.
func TestAddMemoizationAndDedup(t *testing.T) {
	m := testManager(t)
	intType := m.RegisterValueType("int")

	var runs int64
	add := m.RegisterFunction("add", 2, intType, func(ctx context.Context, inputs []taskinput.Input) (any, error) {
		atomic.AddInt64(&runs, 1)
		x, _ := taskinput.TryReadAs[int](inputs[0])
		y, _ := taskinput.TryReadAs[int](inputs[1])
		return x + y, nil
	})

	in2, err := taskinput.FromValue(2)
	require.NoError(t, err)
	in3, err := taskinput.FromValue(3)
	require.NoError(t, err)

	ctx := context.Background()
	h1, err := m.NativeCall(ctx, add, []taskinput.Input{in2, in3})
	require.NoError(t, err)
	mustWaitDone(t, m)

	v, err := m.Read(ctx, h1)
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	h2, err := m.NativeCall(ctx, add, []taskinput.Input{in2, in3})
	require.NoError(t, err)
	mustWaitDone(t, m)

	assert.True(t, h1.Equal(h2), "equal inputs must resolve to the same task instance")
	assert.Equal(t, int64(1), atomic.LoadInt64(&runs), "scheduler must execute add exactly once")
}

// S2: double(n) = add(n, n), where n is read from an external seed slot
// rather than baked into double's call identity. Reseeding must re-run
// double, which then calls add with the new value, exactly once per change.
func TestDoubleReactsToSeedChange(t *testing.T) {
	m := testManager(t)
	intType := m.RegisterValueType("int")

	var addRuns int64
	add := m.RegisterFunction("add", 2, intType, func(ctx context.Context, inputs []taskinput.Input) (any, error) {
		atomic.AddInt64(&addRuns, 1)
		x, _ := taskinput.TryReadAs[int](inputs[0])
		y, _ := taskinput.TryReadAs[int](inputs[1])
		return x + y, nil
	})

	seed := m.NewExternalSlot(intType)
	require.True(t, m.Seed(seed.ID(), intType, 4))

	double := m.RegisterFunction("double", 0, nil, func(ctx context.Context, inputs []taskinput.Input) (any, error) {
		st, _ := execctx.From(ctx)
		n, err := st.API.Read(ctx, handle.FromSlot(seed.ID()))
		if err != nil {
			return nil, err
		}
		val := n.(int)
		a, err := taskinput.FromValue(val)
		if err != nil {
			return nil, err
		}
		return st.API.Call(ctx, add, []taskinput.Input{a, a})
	})

	ctx := context.Background()
	h, err := m.NativeCall(ctx, double, nil)
	require.NoError(t, err)
	mustWaitDone(t, m)

	v, err := m.Read(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, 8, v)
	assert.Equal(t, int64(1), atomic.LoadInt64(&addRuns))

	require.True(t, m.Seed(seed.ID(), intType, 5))
	mustWaitDone(t, m)

	v, err = m.Read(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, 10, v)
	assert.Equal(t, int64(2), atomic.LoadInt64(&addRuns), "add must re-execute exactly once after the reseed")

	// Reseeding with the same value must not dirty anything further.
	require.False(t, m.Seed(seed.ID(), intType, 5))
	mustWaitDone(t, m)
	assert.Equal(t, int64(2), atomic.LoadInt64(&addRuns))
}

// S3: two callers invoking heavy(7) concurrently collapse onto a single
// task; the body's counter increments exactly once.
func TestConcurrentCallsDedupToOneTask(t *testing.T) {
	m := testManager(t)
	intType := m.RegisterValueType("int")

	var runs int64
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	heavy := m.RegisterFunction("heavy", 1, intType, func(ctx context.Context, inputs []taskinput.Input) (any, error) {
		atomic.AddInt64(&runs, 1)
		once.Do(func() { close(started) })
		<-release
		n, _ := taskinput.TryReadAs[int](inputs[0])
		return n * n, nil
	})

	in7, err := taskinput.FromValue(7)
	require.NoError(t, err)

	var h1, h2 handle.Handle
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h1, _ = m.Call(context.Background(), heavy, []taskinput.Input{in7})
	}()
	go func() {
		defer wg.Done()
		h2, _ = m.Call(context.Background(), heavy, []taskinput.Input{in7})
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("heavy never started")
	}
	close(release)
	wg.Wait()
	mustWaitDone(t, m)

	assert.True(t, h1.Equal(h2), "both callers must observe the same output handle")
	assert.Equal(t, int64(1), atomic.LoadInt64(&runs), "heavy must execute exactly once")

	v, err := m.Read(context.Background(), h1)
	require.NoError(t, err)
	assert.Equal(t, 49, v)
}

// S4: a task reading two slots is dirtied by a change to either one, but
// an equal rewrite of the first must not dirty it, and wait_done after
// both writes yields exactly one re-execution.
func TestEqualWriteDoesNotDirtyDependent(t *testing.T) {
	m := testManager(t)
	intType := m.RegisterValueType("int")

	s1 := m.NewExternalSlot(intType)
	s2 := m.NewExternalSlot(intType)
	require.True(t, m.Seed(s1.ID(), intType, 1))
	require.True(t, m.Seed(s2.ID(), intType, 1))

	var runs int64
	combine := m.RegisterFunction("combine", 0, intType, func(ctx context.Context, inputs []taskinput.Input) (any, error) {
		atomic.AddInt64(&runs, 1)
		st, _ := execctx.From(ctx)
		a, err := st.API.Read(ctx, handle.FromSlot(s1.ID()))
		if err != nil {
			return nil, err
		}
		b, err := st.API.Read(ctx, handle.FromSlot(s2.ID()))
		if err != nil {
			return nil, err
		}
		return a.(int) + b.(int), nil
	})

	ctx := context.Background()
	h, err := m.NativeCall(ctx, combine, nil)
	require.NoError(t, err)
	mustWaitDone(t, m)
	assert.Equal(t, int64(1), atomic.LoadInt64(&runs))

	// Equal rewrite: must not dirty combine.
	assert.False(t, m.Seed(s1.ID(), intType, 1))
	mustWaitDone(t, m)
	assert.Equal(t, int64(1), atomic.LoadInt64(&runs))

	// Differing write to the other dependency: must dirty exactly once.
	assert.True(t, m.Seed(s2.ID(), intType, 2))
	mustWaitDone(t, m)
	assert.Equal(t, int64(2), atomic.LoadInt64(&runs))

	v, err := m.Read(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

// S5: a trait method implemented by two distinct value types dispatches
// to distinct tasks; invalidating one receiver re-runs only its own
// dispatch task.
func TestTraitDispatchIsPerConcreteType(t *testing.T) {
	m := testManager(t)
	fooType := m.RegisterValueType("Foo")
	barType := m.RegisterValueType("Bar")
	stringType := m.RegisterValueType("string")
	describable := m.RegisterTrait("Describable", []string{"describe"})

	fooSeed := m.NewExternalSlot(fooType)
	require.True(t, m.Seed(fooSeed.ID(), fooType, "foo-1"))
	barSeed := m.NewExternalSlot(barType)
	require.True(t, m.Seed(barSeed.ID(), barType, "bar-1"))

	makeFoo := m.RegisterFunction("makeFoo", 0, fooType, func(ctx context.Context, inputs []taskinput.Input) (any, error) {
		st, _ := execctx.From(ctx)
		v, err := st.API.Read(ctx, handle.FromSlot(fooSeed.ID()))
		return v, err
	})
	makeBar := m.RegisterFunction("makeBar", 0, barType, func(ctx context.Context, inputs []taskinput.Input) (any, error) {
		st, _ := execctx.From(ctx)
		v, err := st.API.Read(ctx, handle.FromSlot(barSeed.ID()))
		return v, err
	})

	var fooRuns, barRuns int64
	describeFoo := m.RegisterFunction("describeFoo", 1, stringType, func(ctx context.Context, inputs []taskinput.Input) (any, error) {
		atomic.AddInt64(&fooRuns, 1)
		st, _ := execctx.From(ctx)
		h, _ := inputs[0].Handle()
		v, err := st.API.Read(ctx, h)
		if err != nil {
			return nil, err
		}
		return "Foo:" + v.(string), nil
	})
	describeBar := m.RegisterFunction("describeBar", 1, stringType, func(ctx context.Context, inputs []taskinput.Input) (any, error) {
		atomic.AddInt64(&barRuns, 1)
		st, _ := execctx.From(ctx)
		h, _ := inputs[0].Handle()
		v, err := st.API.Read(ctx, h)
		if err != nil {
			return nil, err
		}
		return "Bar:" + v.(string), nil
	})
	require.NoError(t, m.Implement(fooType, describable, "describe", describeFoo))
	require.NoError(t, m.Implement(barType, describable, "describe", describeBar))

	ctx := context.Background()
	fooHandle, err := m.NativeCall(ctx, makeFoo, nil)
	require.NoError(t, err)
	barHandle, err := m.NativeCall(ctx, makeBar, nil)
	require.NoError(t, err)
	mustWaitDone(t, m)

	fooDesc, err := m.TraitCall(ctx, describable, "describe", taskinput.FromHandle(fooHandle), nil)
	require.NoError(t, err)
	barDesc, err := m.TraitCall(ctx, describable, "describe", taskinput.FromHandle(barHandle), nil)
	require.NoError(t, err)
	mustWaitDone(t, m)

	assert.False(t, fooDesc.Equal(barDesc), "distinct concrete types must dispatch to distinct tasks")

	v, err := m.Read(ctx, fooDesc)
	require.NoError(t, err)
	assert.Equal(t, "Foo:foo-1", v)
	v, err = m.Read(ctx, barDesc)
	require.NoError(t, err)
	assert.Equal(t, "Bar:bar-1", v)
	assert.Equal(t, int64(1), atomic.LoadInt64(&fooRuns))
	assert.Equal(t, int64(1), atomic.LoadInt64(&barRuns))

	require.True(t, m.Seed(fooSeed.ID(), fooType, "foo-2"))
	mustWaitDone(t, m)

	v, err = m.Read(ctx, fooDesc)
	require.NoError(t, err)
	assert.Equal(t, "Foo:foo-2", v)
	assert.Equal(t, int64(2), atomic.LoadInt64(&fooRuns), "only the Foo dispatch task re-runs")
	assert.Equal(t, int64(1), atomic.LoadInt64(&barRuns), "Bar's dispatch task must be untouched")
}

// Property 7: a task with no parents, no root status and no pin is
// removed by the next liveness sweep.
func TestSweepLivenessRemovesUnreferencedTask(t *testing.T) {
	m := testManager(t)
	intType := m.RegisterValueType("int")

	var runs int64
	noop := m.RegisterFunction("noop", 0, intType, func(ctx context.Context, inputs []taskinput.Input) (any, error) {
		atomic.AddInt64(&runs, 1)
		return 1, nil
	})

	in := []taskinput.Input{}
	h, err := m.NativeCall(context.Background(), noop, in)
	require.NoError(t, err)
	mustWaitDone(t, m)

	before := len(m.CachedTasksIter())
	assert.GreaterOrEqual(t, before, 1)

	m.SweepLiveness()
	mustWaitDone(t, m)

	require.Eventually(t, func() bool {
		return len(m.CachedTasksIter()) < before
	}, time.Second, time.Millisecond, "unreferenced task must be deactivated")

	// A fresh identical call after deactivation must build a new task
	// rather than resurrect the removed one, and re-execute the body.
	h2, err := m.NativeCall(context.Background(), noop, in)
	require.NoError(t, err)
	mustWaitDone(t, m)
	assert.False(t, h.Equal(h2), "a deactivated task's identity must not be resurrected")
	assert.Equal(t, int64(2), atomic.LoadInt64(&runs))
}

// A pinned task survives a liveness sweep even with no parents.
func TestPinKeepsTaskAlive(t *testing.T) {
	m := testManager(t)
	intType := m.RegisterValueType("int")
	pinned := m.RegisterFunction("pinned", 0, intType, func(ctx context.Context, inputs []taskinput.Input) (any, error) {
		return 1, nil
	})

	h, err := m.NativeCall(context.Background(), pinned, nil)
	require.NoError(t, err)
	mustWaitDone(t, m)

	token := m.Pin(h)
	before := len(m.CachedTasksIter())

	m.SweepLiveness()
	mustWaitDone(t, m)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, len(m.CachedTasksIter()), "a pinned task must survive the sweep")

	m.Unpin(h.TaskID(), token)
	m.SweepLiveness()
	mustWaitDone(t, m)
	require.Eventually(t, func() bool {
		return len(m.CachedTasksIter()) < before
	}, time.Second, time.Millisecond)
}

// Calling WriteSlot outside of any task execution is a MissingContext
// programming error. In Strict mode (the default) it must panic rather
// than return a value an inattentive caller could ignore (spec §7).
func TestStrictModePanicsOnMissingContext(t *testing.T) {
	cfg := config.Default()
	cfg.PoolSize = 1
	cfg.CacheShards = 1
	m := New(cfg)
	m.Start()
	t.Cleanup(m.Stop)

	intType := m.RegisterValueType("int")
	s := m.NewExternalSlot(intType)

	assert.Panics(t, func() {
		_, _ = m.WriteSlot(context.Background(), s.ID(), intType, 1)
	})
}

// With Strict disabled, the same misuse returns a MissingContext error
// instead of panicking, for embedders that want to recover from it.
func TestNonStrictModeReturnsMissingContextError(t *testing.T) {
	cfg := config.Default()
	cfg.PoolSize = 1
	cfg.CacheShards = 1
	cfg.Strict = false
	m := New(cfg)
	m.Start()
	t.Cleanup(m.Stop)

	intType := m.RegisterValueType("int")
	s := m.NewExternalSlot(intType)

	_, err := m.WriteSlot(context.Background(), s.ID(), intType, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, taskerr.ErrMissingContext)
}
