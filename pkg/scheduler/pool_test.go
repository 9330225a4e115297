package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsSubmittedJobs(t *testing.T) {
	p := New(4)
	p.Start()
	defer p.Stop()

	var count int64
	var wg sync.WaitGroup
	wg.Add(100)
	for i := 0; i < 100; i++ {
		p.Submit(func() {
			atomic.AddInt64(&count, 1)
			wg.Done()
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for jobs to run")
	}
	assert.Equal(t, int64(100), atomic.LoadInt64(&count))
}

func TestPoolAllowsRecursiveSubmit(t *testing.T) {
	p := New(2)
	p.Start()
	defer p.Stop()

	var depth int32
	bottomedOut := make(chan struct{})

	var recurse func(n int)
	recurse = func(n int) {
		if n == 0 {
			atomic.AddInt32(&depth, 1)
			close(bottomedOut)
			return
		}
		p.Submit(func() { recurse(n - 1) })
	}
	p.Submit(func() { recurse(5) })

	select {
	case <-bottomedOut:
	case <-time.After(time.Second):
		t.Fatal("recursive submission deadlocked")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&depth))
}

func TestPoolStopWaitsForWorkers(t *testing.T) {
	p := New(1)
	p.Start()

	started := make(chan struct{})
	release := make(chan struct{})
	p.Submit(func() {
		close(started)
		<-release
	})

	<-started
	close(release)
	p.Stop()
}

func TestPoolQueueDepthReflectsPendingJobs(t *testing.T) {
	p := New(1)
	p.Start()
	defer p.Stop()

	block := make(chan struct{})
	p.Submit(func() { <-block })

	for i := 0; i < 5; i++ {
		p.Submit(func() {})
	}

	require.Eventually(t, func() bool {
		return p.QueueDepth() >= 5
	}, time.Second, time.Millisecond)

	close(block)
}
