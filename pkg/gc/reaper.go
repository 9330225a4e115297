package gc

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/cellgraph/cellgraph/pkg/log"
)

// ManagerAPI is the subset of Manager the reaper needs: one method that
// sweeps dead tasks, deferring the actual work until the manager is
// quiescent (spec §4.6: deactivation is a background job).
type ManagerAPI interface {
	SweepLiveness()
}

// Reaper runs ManagerAPI.SweepLiveness on a fixed interval until stopped.
type Reaper struct {
	mgr      ManagerAPI
	interval time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New returns a Reaper that isn't yet running; call Start to begin its
// ticker loop.
func New(mgr ManagerAPI, interval time.Duration) *Reaper {
	return &Reaper{
		mgr:      mgr,
		interval: interval,
		logger:   log.WithComponent("gc"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the reaper's ticker loop in a new goroutine.
func (r *Reaper) Start() {
	go r.run()
}

// Stop halts the loop and waits for the in-flight cycle, if any, to
// return.
func (r *Reaper) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Reaper) run() {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("liveness reaper started")
	for {
		select {
		case <-ticker.C:
			r.mgr.SweepLiveness()
		case <-r.stopCh:
			r.logger.Info().Msg("liveness reaper stopped")
			return
		}
	}
}
