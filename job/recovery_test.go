package job

import (
	"context"
	"testing"
	"time"

	"roundify/hub"
	"roundify/models"
)

func TestRecoverAfterRestart(t *testing.T) {
	env := newTestEnv(t, 1)
	ctx := context.Background()

	queued := env.upload()
	if _, err := env.svc.Convert(ctx, queued.ID, clip(0, 5)); err != nil {
		t.Fatalf("Convert failed: %v", err)
	}

	interrupted := env.upload()
	rec, _ := env.store.Get(interrupted.ID)
	rec.Status = models.StatusProcessing
	rec.Options = &models.ClipOptions{Duration: 5, Size: 640, Encoder: "round"}
	env.store.Put(rec)

	finished := env.upload()
	expires := env.clock.Now().Add(time.Minute)
	rec, _ = env.store.Get(finished.ID)
	rec.Status = models.StatusDone
	rec.Download = "http://clips.test/download/tok"
	rec.TTL = 60
	rec.ExpiresAt = &expires
	env.store.Put(rec)

	// simulate a restart: fresh hub and service over the same store
	env.svc.Stop()
	env.hub = hub.New()
	env.svc = env.newService()
	if err := env.svc.Recover(); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}

	term, ok := env.hub.Terminal(interrupted.ID)
	if !ok || term.Message != MsgInterrupted {
		t.Errorf("Expected interrupted job to fail, got %+v", term)
	}
	term, ok = env.hub.Terminal(finished.ID)
	if !ok || term.Type != models.EventDone || term.Download != "http://clips.test/download/tok" {
		t.Errorf("Expected done terminal to be restored, got %+v", term)
	}
	if _, pos, _ := env.svc.Get(queued.ID); pos != 1 {
		t.Errorf("Expected queued job back at position 1, got %d", pos)
	}

	env.svc.Start(ctx)
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	done, err := env.svc.Wait(wctx, queued.ID)
	if err != nil || done.Type != models.EventDone {
		t.Errorf("Expected recovered job to finish, got %+v, %v", done, err)
	}
}

func TestTerminalMessage(t *testing.T) {
	cases := map[string]string{
		"job cancelled":                         MsgCancelled,
		"conversion failed: encoding failed: x": MsgFailed,
		"something else":                        MsgFailed,
		"interrupted by restart":                MsgInterrupted,
	}
	for stored, want := range cases {
		if got := terminalMessage(&models.Job{Error: stored}); got != want {
			t.Errorf("terminalMessage(%q) = %q, want %q", stored, got, want)
		}
	}
}
