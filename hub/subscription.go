package hub

import (
	"context"
	"io"
	"sync"

	"roundify/models"
)

// Subscription is one consumer's view of a job's events. Publishers never
// block on it: consecutive progress (or queued) events coalesce to the
// latest value while the consumer is behind.
type Subscription struct {
	Job string

	st     *jobState
	mu     sync.Mutex
	queue  []models.Event
	notify chan struct{}
	ended  bool // terminal enqueued or subscription closed
	closed bool
}

func newSubscription(job string, st *jobState) *Subscription {
	return &Subscription{Job: job, st: st, notify: make(chan struct{}, 1)}
}

func (s *Subscription) push(e models.Event) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	if n := len(s.queue); n > 0 && coalesces(s.queue[n-1].Type) && s.queue[n-1].Type == e.Type {
		s.queue[n-1] = e
	} else {
		s.queue = append(s.queue, e)
	}
	if e.IsTerminal() {
		s.ended = true
	}
	s.mu.Unlock()
	s.wake()
}

func coalesces(t models.EventType) bool {
	return t == models.EventProgress || t == models.EventQueued
}

func (s *Subscription) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available. It returns io.EOF once the
// terminal event has been consumed or the subscription is closed.
func (s *Subscription) Next(ctx context.Context) (models.Event, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return models.Event{}, io.EOF
		}
		if len(s.queue) > 0 {
			e := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return e, nil
		}
		ended := s.ended
		s.mu.Unlock()
		if ended {
			return models.Event{}, io.EOF
		}

		select {
		case <-ctx.Done():
			return models.Event{}, ctx.Err()
		case <-s.notify:
		}
	}
}

// Close detaches the subscription. Pending events are discarded.
func (s *Subscription) Close() {
	s.st.mu.Lock()
	delete(s.st.subs, s)
	s.st.mu.Unlock()
	s.shutdown()
}

func (s *Subscription) shutdown() {
	s.mu.Lock()
	s.closed = true
	s.ended = true
	s.queue = nil
	s.mu.Unlock()
	s.wake()
}
