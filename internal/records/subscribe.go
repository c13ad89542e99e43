package records

import (
	"context"

	"github.com/raysh454/zapdash/internal/logging"
	"github.com/raysh454/zapdash/internal/model"
)

// Subscribe returns a channel that yields the full record set now and after
// every change. Slow readers only see the latest set. The cancel func closes
// the channel and is safe to call more than once.
func (s *Store) Subscribe(ctx context.Context) (<-chan []model.ScanRecord, func(), error) {
	snapshot, err := s.List(ctx)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan []model.ScanRecord, 1)
	ch <- snapshot

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel, nil
}

// publish pushes the current record set to every subscriber.
func (s *Store) publish(ctx context.Context) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	n := len(s.subs)
	s.mu.Unlock()
	if n == 0 {
		return
	}

	snapshot, err := s.List(context.WithoutCancel(ctx))
	if err != nil {
		s.logger.Warn("failed to snapshot records for subscribers", logging.Field{Key: "error", Value: err})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		// Replace any unread snapshot with the newer one.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}
