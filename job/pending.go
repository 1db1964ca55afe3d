package job

import (
	"context"
	"sync"
)

type cancelResult int

const (
	cancelNone cancelResult = iota
	cancelDequeued
	cancelSignalled
)

// scheduler is the FIFO of queued job ids plus the cancel functions of
// running jobs, all behind one mutex.
type scheduler struct {
	mu        sync.Mutex
	cond      *sync.Cond
	pending   []string                      // queued job ids, oldest first
	active    map[string]context.CancelFunc // job id -> cancel of its processing context
	cancelled map[string]bool               // running jobs the user asked to cancel
	settled   map[string]bool               // running jobs past the point of cancellation
	stopped   bool
	stopFn    context.CancelFunc
	wg        sync.WaitGroup
}

func (q *scheduler) init() {
	q.cond = sync.NewCond(&q.mu)
	q.active = make(map[string]context.CancelFunc)
	q.cancelled = make(map[string]bool)
	q.settled = make(map[string]bool)
}

// enqueue appends id and returns its 1-based position.
func (q *scheduler) enqueue(id string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return 0, ErrShuttingDown
	}
	q.pending = append(q.pending, id)
	q.cond.Signal()
	return len(q.pending), nil
}

func (q *scheduler) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// position returns the 1-based queue position of id, or 0 if not queued.
func (q *scheduler) position(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, p := range q.pending {
		if p == id {
			return i + 1
		}
	}
	return 0
}

func (q *scheduler) snapshot() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.pending...)
}

// cancel removes a queued id or signals a running one.
func (q *scheduler) cancel(id string) cancelResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, p := range q.pending {
		if p == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return cancelDequeued
		}
	}
	if cancel, ok := q.active[id]; ok && !q.settled[id] {
		q.cancelled[id] = true
		cancel()
		return cancelSignalled
	}
	return cancelNone
}

// settle makes a running job immune to cancellation. It reports whether
// ctx was still live, i.e. no cancel or shutdown got in first.
func (q *scheduler) settle(ctx context.Context, id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.settled[id] = true
	return ctx.Err() == nil
}

func (q *scheduler) wasCancelled(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancelled[id]
}

// next blocks until a job is queued and marks it active. ok is false once
// the scheduler stops.
func (q *scheduler) next(parent context.Context) (id string, ctx context.Context, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pending) == 0 && !q.stopped {
		q.cond.Wait()
	}
	if q.stopped {
		return "", nil, false
	}
	id = q.pending[0]
	q.pending = q.pending[1:]
	ctx, cancel := context.WithCancel(parent)
	q.active[id] = cancel
	return id, ctx, true
}

func (q *scheduler) done(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if cancel, ok := q.active[id]; ok {
		cancel()
	}
	delete(q.active, id)
	delete(q.cancelled, id)
	delete(q.settled, id)
}

// start runs workers that pass each dequeued job to process. shrunk is
// called after every dequeue so waiting jobs learn their new position.
func (q *scheduler) start(parent context.Context, workers int, process func(ctx context.Context, id string), shrunk func()) {
	ctx, stop := context.WithCancel(parent)
	q.mu.Lock()
	q.stopFn = stop
	q.mu.Unlock()

	go func() {
		<-ctx.Done()
		q.mu.Lock()
		q.stopped = true
		q.cond.Broadcast()
		q.mu.Unlock()
	}()

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				id, jobCtx, ok := q.next(ctx)
				if !ok {
					return
				}
				shrunk()
				process(jobCtx, id)
				q.done(id)
			}
		}()
	}
}

// stop cancels running jobs and waits for the workers to exit.
func (q *scheduler) stop() {
	q.mu.Lock()
	q.stopped = true
	stop := q.stopFn
	q.cond.Broadcast()
	q.mu.Unlock()
	if stop != nil {
		stop()
	}
	q.wg.Wait()
}
