package hub

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"roundify/models"
)

func next(t *testing.T, sub *Subscription) models.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	e, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	return e
}

func expectEOF(t *testing.T, sub *Subscription) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := sub.Next(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("Expected io.EOF, got %v", err)
	}
}

func TestPublishOrderAndTerminal(t *testing.T) {
	h := New()
	h.SetClip("j", 15000)
	sub := h.Subscribe("j")

	h.Publish(models.QueuedEvent("j", 1))
	h.Publish(models.StatusEvent("j", "processing"))
	h.Publish(models.ProgressEvent("j", 0))
	h.Publish(models.DoneEvent("j", "http://x/download/t", 60, false))

	want := []models.EventType{models.EventQueued, models.EventStatus, models.EventProgress, models.EventDone}
	for i, typ := range want {
		if e := next(t, sub); e.Type != typ {
			t.Fatalf("Event %d: expected %s, got %s", i, typ, e.Type)
		}
	}
	expectEOF(t, sub)
}

func TestProgressMonotonicAndClamped(t *testing.T) {
	h := New()
	h.SetClip("j", 15000)

	if !h.Publish(models.ProgressEvent("j", 5000)) {
		t.Fatal("Expected first progress to be accepted")
	}
	if h.Publish(models.ProgressEvent("j", 4000)) {
		t.Error("Expected regression to be dropped")
	}
	if h.Publish(models.ProgressEvent("j", 5000)) {
		t.Error("Expected repeated value to be dropped")
	}
	h.Publish(models.ProgressEvent("j", 99000))

	replay := h.Replay("j")
	if len(replay) != 1 || replay[0].MS != 15000 {
		t.Fatalf("Expected progress clamped to 15000, got %+v", replay)
	}
}

func TestNothingAfterTerminal(t *testing.T) {
	h := New()
	if !h.Publish(models.ErrorEvent("j", "boom")) {
		t.Fatal("Expected terminal to be accepted")
	}
	for _, e := range []models.Event{
		models.DoneEvent("j", "u", 60, false),
		models.ProgressEvent("j", 10),
		models.StatusEvent("j", "processing"),
	} {
		if h.Publish(e) {
			t.Errorf("Expected %s after terminal to be dropped", e.Type)
		}
	}
	term, ok := h.Terminal("j")
	if !ok || term.Message != "boom" {
		t.Errorf("Expected error terminal, got %+v", term)
	}
}

func TestReplayOnSubscribe(t *testing.T) {
	h := New()
	h.Publish(models.QueuedEvent("j", 3))
	h.Publish(models.QueuedEvent("j", 2))
	h.Publish(models.StatusEvent("j", "processing"))
	h.Publish(models.ProgressEvent("j", 100))
	h.Publish(models.ProgressEvent("j", 200))

	sub := h.Subscribe("j")
	defer sub.Close()

	if e := next(t, sub); e.Type != models.EventStatus || e.Status != "processing" {
		t.Errorf("Expected status processing, got %+v", e)
	}
	if e := next(t, sub); e.Type != models.EventProgress || e.MS != 200 {
		t.Errorf("Expected progress 200, got %+v", e)
	}
}

func TestReplayWhileQueued(t *testing.T) {
	h := New()
	h.Publish(models.QueuedEvent("j", 3))
	h.Publish(models.QueuedEvent("j", 2))

	replay := h.Replay("j")
	if len(replay) != 1 || replay[0].Position != 2 {
		t.Fatalf("Expected last queued position 2, got %+v", replay)
	}
}

func TestQueuedAfterStatusDropped(t *testing.T) {
	h := New()
	h.Publish(models.StatusEvent("j", "processing"))
	if h.Publish(models.QueuedEvent("j", 1)) {
		t.Error("Expected late queue position to be dropped")
	}
}

func TestReconnectSeesTerminalOnce(t *testing.T) {
	h := New()
	first := h.Subscribe("j")
	h.Publish(models.DoneEvent("j", "u", 60, true))

	if e := next(t, first); e.Type != models.EventDone {
		t.Fatalf("Expected done, got %+v", e)
	}
	expectEOF(t, first)

	second := h.Subscribe("j")
	e := next(t, second)
	if e.Type != models.EventDone || !e.Telegram {
		t.Fatalf("Expected replayed done, got %+v", e)
	}
	expectEOF(t, second)
}

func TestSlowSubscriberCoalescesProgress(t *testing.T) {
	h := New()
	sub := h.Subscribe("j")
	for ms := int64(1); ms <= 1000; ms++ {
		h.Publish(models.ProgressEvent("j", ms))
	}
	h.Publish(models.StatusEvent("j", "finalizing"))
	h.Publish(models.DoneEvent("j", "u", 60, false))

	if e := next(t, sub); e.Type != models.EventProgress || e.MS != 1000 {
		t.Errorf("Expected coalesced progress 1000, got %+v", e)
	}
	if e := next(t, sub); e.Type != models.EventStatus {
		t.Errorf("Expected status, got %+v", e)
	}
	if e := next(t, sub); e.Type != models.EventDone {
		t.Errorf("Expected done, got %+v", e)
	}
	expectEOF(t, sub)
}

func TestConcurrentPublishersSingleTerminal(t *testing.T) {
	h := New()
	sub := h.Subscribe("j")

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var e models.Event
			if i%2 == 0 {
				e = models.DoneEvent("j", "u", 60, false)
			} else {
				e = models.ErrorEvent("j", "x")
			}
			if h.Publish(e) {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if accepted != 1 {
		t.Fatalf("Expected exactly one accepted terminal, got %d", accepted)
	}
	if e := next(t, sub); !e.IsTerminal() {
		t.Fatalf("Expected terminal, got %+v", e)
	}
	expectEOF(t, sub)
}

func TestCloseAndForget(t *testing.T) {
	h := New()
	a := h.Subscribe("j")
	b := h.Subscribe("j")
	if n := h.Subscribers(); n != 2 {
		t.Fatalf("Expected 2 subscribers, got %d", n)
	}
	a.Close()
	if n := h.Subscribers(); n != 1 {
		t.Fatalf("Expected 1 subscriber after close, got %d", n)
	}
	expectEOF(t, a)

	h.Forget("j")
	expectEOF(t, b)
	if h.Jobs() != 0 {
		t.Errorf("Expected no retained jobs, got %d", h.Jobs())
	}
	if _, ok := h.Terminal("j"); ok {
		t.Error("Expected no terminal after forget")
	}
}

func TestNextHonoursContext(t *testing.T) {
	h := New()
	sub := h.Subscribe("j")
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := sub.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}
