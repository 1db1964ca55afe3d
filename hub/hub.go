// Package hub fans job events out to push-channel subscribers.
//
// Per job the hub keeps the last queued position, the last status, the
// latest progress and the terminal event. Progress never regresses and is
// clamped to the clip length. Queue positions stop once a status arrives,
// nothing is accepted after a terminal event, and a new subscriber first
// receives the retained state.
package hub

import (
	"sync"

	"roundify/models"
)

type jobState struct {
	mu       sync.Mutex
	clipMS   int64
	queued   *models.Event
	status   *models.Event
	progress *models.Event
	terminal *models.Event
	subs     map[*Subscription]struct{}
}

// Hub routes events by job id.
type Hub struct {
	mu   sync.Mutex
	jobs map[string]*jobState
}

// New returns an empty hub.
func New() *Hub {
	return &Hub{jobs: make(map[string]*jobState)}
}

func (h *Hub) state(job string) *jobState {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.jobs[job]
	if !ok {
		st = &jobState{subs: make(map[*Subscription]struct{})}
		h.jobs[job] = st
	}
	return st
}

// SetClip sets the progress ceiling for job in milliseconds.
func (h *Hub) SetClip(job string, clipMS int64) {
	st := h.state(job)
	st.mu.Lock()
	st.clipMS = clipMS
	st.mu.Unlock()
}

// Publish records e and forwards it to the job's subscribers. It reports
// false when the event was dropped: after a terminal, a queue position
// after processing began, or a progress value that would regress.
func (h *Hub) Publish(e models.Event) bool {
	st := h.state(e.Job)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.terminal != nil {
		return false
	}

	switch e.Type {
	case models.EventProgress:
		if e.MS < 0 {
			e.MS = 0
		}
		if st.clipMS > 0 && e.MS > st.clipMS {
			e.MS = st.clipMS
		}
		if st.progress != nil && e.MS <= st.progress.MS {
			return false
		}
		st.progress = &e
	case models.EventQueued:
		if st.status != nil {
			return false // already picked up by a worker
		}
		st.queued = &e
	case models.EventStatus:
		st.queued = nil
		st.status = &e
	case models.EventDone, models.EventError:
		st.terminal = &e
	default:
		return false
	}

	for sub := range st.subs {
		sub.push(e)
	}
	if e.IsTerminal() {
		st.subs = make(map[*Subscription]struct{})
	}
	return true
}

// Subscribe attaches a new subscription to job, pre-loaded with the
// retained state. A finished job yields only its terminal event.
func (h *Hub) Subscribe(job string) *Subscription {
	st := h.state(job)
	sub := newSubscription(job, st)

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.terminal != nil {
		sub.push(*st.terminal)
		return sub
	}
	for _, e := range []*models.Event{st.queued, st.status, st.progress} {
		if e != nil {
			sub.push(*e)
		}
	}
	st.subs[sub] = struct{}{}
	return sub
}

// Terminal returns the job's terminal event if it has one.
func (h *Hub) Terminal(job string) (models.Event, bool) {
	h.mu.Lock()
	st, ok := h.jobs[job]
	h.mu.Unlock()
	if !ok {
		return models.Event{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.terminal == nil {
		return models.Event{}, false
	}
	return *st.terminal, true
}

// Replay returns what a new subscriber to job would receive first.
func (h *Hub) Replay(job string) []models.Event {
	h.mu.Lock()
	st, ok := h.jobs[job]
	h.mu.Unlock()
	if !ok {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.terminal != nil {
		return []models.Event{*st.terminal}
	}
	var events []models.Event
	for _, e := range []*models.Event{st.queued, st.status, st.progress} {
		if e != nil {
			events = append(events, *e)
		}
	}
	return events
}

// Forget drops all state for job. Open subscriptions are closed.
func (h *Hub) Forget(job string) {
	h.mu.Lock()
	st, ok := h.jobs[job]
	delete(h.jobs, job)
	h.mu.Unlock()
	if !ok {
		return
	}
	st.mu.Lock()
	subs := st.subs
	st.subs = make(map[*Subscription]struct{})
	st.mu.Unlock()
	for sub := range subs {
		sub.shutdown()
	}
}

// Jobs returns the number of jobs with retained state.
func (h *Hub) Jobs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.jobs)
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	states := make([]*jobState, 0, len(h.jobs))
	for _, st := range h.jobs {
		states = append(states, st)
	}
	h.mu.Unlock()

	total := 0
	for _, st := range states {
		st.mu.Lock()
		total += len(st.subs)
		st.mu.Unlock()
	}
	return total
}
