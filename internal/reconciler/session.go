package reconciler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raysh454/zapdash/internal/logging"
)

// Session is a running reconciliation loop. Stop is the only way to end it
// besides cancelling the context given to Start.
type Session struct {
	r        *Reconciler
	cancel   context.CancelFunc
	done     chan struct{}
	ticks    sync.WaitGroup
	live     atomic.Bool
	stopOnce sync.Once
}

// Start launches the polling loop: one tick after InitialDelay, then one
// every Interval. Ticks are started on schedule even while an earlier tick
// is still waiting on slow queries. Starting while a session is live
// returns ErrAlreadyRunning.
//
// In-flight queries run under ctx and are not cancelled by Stop; their
// results are discarded once the session has stopped.
func (r *Reconciler) Start(ctx context.Context) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		return nil, ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s := &Session{r: r, cancel: cancel, done: make(chan struct{})}
	s.live.Store(true)
	r.session = s
	r.metrics.Sessions.Set(1)

	r.logger.Info("reconciliation session started",
		logging.Field{Key: "interval", Value: r.cfg.Interval.String()},
		logging.Field{Key: "initial_delay", Value: r.cfg.InitialDelay.String()})

	go s.loop(loopCtx, ctx)
	return s, nil
}

// Running reports whether a session is live.
func (r *Reconciler) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil
}

func (s *Session) loop(loopCtx, workCtx context.Context) {
	defer close(s.done)
	defer s.Stop()

	timer := time.NewTimer(s.r.cfg.InitialDelay)
	defer timer.Stop()
	select {
	case <-loopCtx.Done():
		return
	case <-timer.C:
	}
	s.fire(workCtx)

	ticker := time.NewTicker(s.r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-loopCtx.Done():
			return
		case <-ticker.C:
			s.fire(workCtx)
		}
	}
}

func (s *Session) fire(ctx context.Context) {
	if !s.Live() {
		return
	}
	s.ticks.Add(1)
	go func() {
		defer s.ticks.Done()
		_, _ = s.r.tick(ctx, s.Live)
	}()
}

// Live reports whether the session has not been stopped.
func (s *Session) Live() bool { return s.live.Load() }

// Stop ends the session. It is safe to call more than once.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.live.Store(false)
		s.cancel()

		s.r.mu.Lock()
		if s.r.session == s {
			s.r.session = nil
		}
		s.r.mu.Unlock()
		s.r.metrics.Sessions.Set(0)
		s.r.logger.Info("reconciliation session stopped")
	})
}

// Done is closed once the loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the loop has exited and every tick it started has
// finished.
func (s *Session) Wait() {
	<-s.done
	s.ticks.Wait()
}
