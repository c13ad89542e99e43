package app

import (
	"errors"
	"sync"

	"github.com/raysh454/zapdash/internal/logging"
	"github.com/raysh454/zapdash/internal/reconciler"
)

// OpenSession registers an open dashboard. The first open dashboard starts
// the reconciler and closing the last one stops it. The returned release
// func is safe to call more than once.
func (s *Service) OpenSession() (release func(), err error) {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	if s.ctx.Err() != nil {
		return nil, ErrServiceClosed
	}

	if s.sessions == 0 && s.reconciler != nil {
		sess, err := s.reconciler.Start(s.ctx)
		switch {
		case errors.Is(err, reconciler.ErrAlreadyRunning):
			// Started outside the service; leave it to its owner.
		case err != nil:
			return nil, err
		default:
			s.session = sess
		}
	}
	s.sessions++
	s.logger.Debug("dashboard session opened", logging.Field{Key: "open", Value: s.sessions})

	var once sync.Once
	return func() { once.Do(s.closeSession) }, nil
}

func (s *Service) closeSession() {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	if s.sessions == 0 {
		return
	}
	s.sessions--
	s.logger.Debug("dashboard session closed", logging.Field{Key: "open", Value: s.sessions})
	if s.sessions == 0 && s.session != nil {
		s.session.Stop()
		s.session = nil
	}
}

// OpenSessions returns how many dashboards are open.
func (s *Service) OpenSessions() int {
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	return s.sessions
}

// Transitions streams applied record transitions until cancel is called or
// the service is closed. Slow readers drop events.
func (s *Service) Transitions() (<-chan reconciler.Transition, func()) {
	ch := make(chan reconciler.Transition, 16)

	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextW
	s.nextW++
	s.watchers[id] = ch

	return ch, func() {
		s.watchMu.Lock()
		defer s.watchMu.Unlock()
		if c, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(c)
		}
	}
}

func (s *Service) fanOut(events <-chan reconciler.Transition) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev := <-events:
			s.watchMu.Lock()
			for _, ch := range s.watchers {
				// Non-blocking send; drop if buffer is full.
				select {
				case ch <- ev:
				default:
				}
			}
			s.watchMu.Unlock()
		}
	}
}

// Close stops any running session and ends every transition stream.
func (s *Service) Close() {
	s.sessMu.Lock()
	if s.session != nil {
		s.session.Stop()
		s.session.Wait()
		s.session = nil
	}
	s.sessions = 0
	s.cancel()
	s.sessMu.Unlock()

	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	s.closed = true
	for id, ch := range s.watchers {
		delete(s.watchers, id)
		close(ch)
	}
}
