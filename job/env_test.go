package job

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"roundify/config"
	"roundify/credentials"
	"roundify/encoder"
	"roundify/failures"
	"roundify/hub"
	"roundify/models"
	"roundify/success"
	taskqueue "roundify/taskQueue"
)

var testSigningKey = []byte("test-signing-key-0123456789abcdef")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type sentNote struct {
	token, chat, path string
	length            int
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sentNote
	err    error
	onSend func() // runs after the note is recorded
}

func (f *fakeSender) SendVideoNote(ctx context.Context, token, chat, path string, length int) error {
	f.mu.Lock()
	f.sent = append(f.sent, sentNote{token, chat, path, length})
	err, onSend := f.err, f.onSend
	f.mu.Unlock()
	if onSend != nil {
		onSend()
	}
	return err
}

// testEnv wires a Service to temp directories, fake probing and fake
// encoders. Sources whose content starts with "VIDEO" probe as 30 s 1920x1080.
type testEnv struct {
	t       *testing.T
	cfg     *config.Config
	store   *taskqueue.JobStore
	hub     *hub.Hub
	svc     *Service
	clock   *fakeClock
	sender  *fakeSender
	release chan struct{} // closed to let the "blocking" encoder finish
	failEnc error
}

func newTestEnv(t *testing.T, workers int) *testEnv {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.Paths{
		DataDir:  filepath.Join(root, "data"),
		WorkDir:  filepath.Join(root, "work"),
		ServeDir: filepath.Join(root, "serve"),
	}
	cfg.Limits.MaxUploadBytes = 1024
	cfg.Limits.Workers = workers
	cfg.Server.PublicURL = "http://clips.test"
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	if err := success.Init(cfg.Paths.SuccessDBPath()); err != nil {
		t.Fatalf("success.Init failed: %v", err)
	}
	if err := failures.Init(cfg.Paths.FailuresDBPath()); err != nil {
		t.Fatalf("failures.Init failed: %v", err)
	}
	if err := credentials.OpenDB(cfg.Paths.CredentialsDBPath()); err != nil {
		t.Fatalf("credentials.OpenDB failed: %v", err)
	}
	store, err := taskqueue.OpenJobStore(cfg.Paths.JobsDBPath())
	if err != nil {
		t.Fatalf("OpenJobStore failed: %v", err)
	}

	env := &testEnv{
		t:       t,
		cfg:     &cfg,
		store:   store,
		hub:     hub.New(),
		clock:   &fakeClock{t: time.Now()},
		sender:  &fakeSender{},
		release: make(chan struct{}),
	}
	env.svc = env.newService()

	t.Cleanup(func() {
		env.svc.Stop()
		store.Close()
		success.Close()
		failures.Close()
		credentials.CloseDB()
	})
	return env
}

func (e *testEnv) newService() *Service {
	svc, err := NewService(Deps{
		Config:     e.cfg,
		Store:      e.store,
		Hub:        e.hub,
		Probe:      fakeProbe,
		Encoders:   e.encoders,
		Sender:     e.sender,
		SigningKey: testSigningKey,
		Now:        e.clock.Now,
	})
	if err != nil {
		e.t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func fakeProbe(ctx context.Context, path string) (models.SourceMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.SourceMeta{}, err
	}
	if !bytes.HasPrefix(data, []byte("VIDEO")) {
		return models.SourceMeta{}, errors.New("no video stream")
	}
	return models.SourceMeta{Duration: 30, Width: 1920, Height: 1080, Size: int64(len(data))}, nil
}

func (e *testEnv) encoders(name string) (encoder.EncodeFunc, bool) {
	switch name {
	case "round", "trim":
		return e.fastEncode, true
	case "blocking":
		return e.blockingEncode, true
	}
	return nil, false
}

// fastEncode reports progress in whole seconds and writes a small output.
func (e *testEnv) fastEncode(ctx context.Context, in, out string, opts encoder.EncodeOptions, onProgress encoder.ProgressFunc) error {
	if e.failEnc != nil {
		return e.failEnc
	}
	for ms := int64(0); ms <= int64(opts.Duration*1000); ms += 1000 {
		onProgress(ms)
	}
	return os.WriteFile(out, []byte("mp4"), 0o644)
}

func (e *testEnv) blockingEncode(ctx context.Context, in, out string, opts encoder.EncodeOptions, onProgress encoder.ProgressFunc) error {
	onProgress(500)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.release:
	}
	return os.WriteFile(out, []byte("mp4"), 0o644)
}

func (e *testEnv) upload() *models.Job {
	e.t.Helper()
	j, err := e.svc.Upload(context.Background(), "holiday.MP4", strings.NewReader("VIDEO payload"))
	if err != nil {
		e.t.Fatalf("Upload failed: %v", err)
	}
	return j
}

// collect reads events from sub until the terminal event or timeout.
func collect(t *testing.T, sub *hub.Subscription) []models.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var events []models.Event
	for {
		ev, err := sub.Next(ctx)
		if errors.Is(err, io.EOF) {
			return events
		}
		if err != nil {
			t.Fatalf("Next failed after %d events: %v", len(events), err)
		}
		events = append(events, ev)
	}
}

// waitFor reads events from sub until pred matches.
func waitFor(t *testing.T, sub *hub.Subscription, pred func(models.Event) bool) models.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			t.Fatalf("Event never arrived: %v", err)
		}
		if pred(ev) {
			return ev
		}
	}
}

func clip(offset, duration float64) models.ClipOptions {
	return models.ClipOptions{Offset: offset, Duration: duration}
}
