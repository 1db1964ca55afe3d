package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
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
	"roundify/job"
	"roundify/metrics"
	"roundify/models"
	"roundify/success"
	taskqueue "roundify/taskQueue"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testServer struct {
	*httptest.Server
	cfg     *config.Config
	svc     *job.Service
	clock   *testClock
	metrics *metrics.Metrics
}

// newTestServer runs the full router over a job service whose prober
// accepts content starting with "VIDEO" (30 s, 1280x720) and whose
// encoders write a tiny mp4 after reporting progress.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.Paths{
		DataDir:  filepath.Join(root, "data"),
		WorkDir:  filepath.Join(root, "work"),
		ServeDir: filepath.Join(root, "serve"),
	}
	cfg.Limits.MaxUploadBytes = 1024
	cfg.Limits.Workers = 1
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

	clock := &testClock{t: time.Now()}
	m := metrics.New()
	svc, err := job.NewService(job.Deps{
		Config:     &cfg,
		Store:      store,
		Hub:        hub.New(),
		Probe:      testProbe,
		Encoders:   testEncoders,
		Metrics:    m,
		SigningKey: []byte("routes-test-signing-key-0123456789"),
		Now:        clock.Now,
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)

	srv := httptest.NewServer(NewRouter(svc, m))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		svc.Stop()
		store.Close()
		success.Close()
		failures.Close()
		credentials.CloseDB()
	})
	return &testServer{Server: srv, cfg: &cfg, svc: svc, clock: clock, metrics: m}
}

func testProbe(ctx context.Context, path string) (models.SourceMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.SourceMeta{}, err
	}
	if !bytes.HasPrefix(data, []byte("VIDEO")) {
		return models.SourceMeta{}, errors.New("no video stream")
	}
	return models.SourceMeta{Duration: 30, Width: 1280, Height: 720}, nil
}

func testEncoders(name string) (encoder.EncodeFunc, bool) {
	if name != "round" && name != "trim" {
		return nil, false
	}
	return func(ctx context.Context, in, out string, opts encoder.EncodeOptions, onProgress encoder.ProgressFunc) error {
		for ms := int64(0); ms <= int64(opts.Duration*1000); ms += 500 {
			onProgress(ms)
		}
		return os.WriteFile(out, []byte("mp4"), 0o644)
	}, true
}

// upload posts content as the given multipart field.
func (s *testServer) upload(t *testing.T, field, filename, content string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	io.WriteString(fw, content)
	mw.Close()

	resp, err := http.Post(s.URL+"/api/upload", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("Upload request failed: %v", err)
	}
	return resp
}

// uploadJob uploads a valid video and returns its job id.
func (s *testServer) uploadJob(t *testing.T) string {
	t.Helper()
	resp := s.upload(t, "video", "clip.mp4", "VIDEO data")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected upload status 200, got %d", resp.StatusCode)
	}
	var up UploadResponse
	decode(t, resp, &up)
	return up.JobID
}

func (s *testServer) postForm(t *testing.T, path string, form map[string]string) *http.Response {
	t.Helper()
	var values []string
	for k, v := range form {
		values = append(values, k+"="+v)
	}
	resp, err := http.Post(s.URL+path, "application/x-www-form-urlencoded", strings.NewReader(strings.Join(values, "&")))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]string
	decode(t, resp, &body)
	return body["error"]
}
