package scheduler

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/cellgraph/cellgraph/pkg/log"
	"github.com/cellgraph/cellgraph/pkg/metrics"
)

// Job is a unit of work submitted to the pool. The manager's Job bodies
// run a task to completion and handle re-scheduling; the pool itself
// never inspects what a Job does.
type Job func()

// Pool is a fixed-size worker pool draining an unbounded job queue.
// Submit never blocks, so task bodies may safely submit further jobs
// from inside a running job without risking deadlock against a full
// channel.
type Pool struct {
	logger zerolog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Job
	closed  bool
	workers int

	wg sync.WaitGroup
}

// New returns a Pool with the given number of worker goroutines. Call
// Start to launch them.
func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		logger:  log.WithComponent("scheduler"),
		workers: workers,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the pool's worker goroutines.
func (p *Pool) Start() {
	p.logger.Info().Int("workers", p.workers).Msg("scheduler pool started")
	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go p.worker(i)
	}
}

// Submit enqueues job for execution. It never blocks, even when called
// from inside a running job on the same pool.
func (p *Pool) Submit(job Job) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, job)
	metrics.SchedulerQueueDepth.Set(float64(len(p.queue)))
	p.mu.Unlock()
	p.cond.Signal()
}

// QueueDepth reports the number of jobs waiting to run.
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Stop signals every worker to exit once the queue drains and blocks
// until they have. Jobs submitted after Stop is called are dropped.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
	p.logger.Info().Msg("scheduler pool stopped")
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		job, ok := p.next()
		if !ok {
			return
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error().Interface("panic", r).Int("worker", id).Msg("job panicked")
				}
			}()
			job()
		}()
	}
}

// next blocks until a job is available or the pool is closed and the
// queue is empty, in which case it returns ok=false.
func (p *Pool) next() (Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.queue) == 0 {
		if p.closed {
			return nil, false
		}
		p.cond.Wait()
	}
	job := p.queue[0]
	p.queue = p.queue[1:]
	metrics.SchedulerQueueDepth.Set(float64(len(p.queue)))
	return job, true
}
