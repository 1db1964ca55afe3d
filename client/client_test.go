package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"roundify/models"

	"github.com/gorilla/websocket"
)

func fakeUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("video")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "file field missing"})
		return
	}
	data, _ := io.ReadAll(file)
	if !strings.HasPrefix(string(data), "VIDEO") {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "Invalid video file"})
		return
	}
	json.NewEncoder(w).Encode(Metadata{JobID: "job-" + header.Filename, Duration: 30, Width: 640, Height: 480, SizeMB: 0.01})
}

// fakeServer mimics the upload, convert and push-channel endpoints.
func fakeServer(t *testing.T, script []models.Event) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/upload", fakeUpload)
	mux.HandleFunc("/api/convert", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("duration") == "99" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "Duration cannot exceed 60 seconds."})
			return
		}
		json.NewEncoder(w).Encode(Ack{Status: "ok", JobID: r.FormValue("job_id"), Position: 1})
	})
	mux.HandleFunc("/ws/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var msg models.ClientMessage
		if err := conn.ReadJSON(&msg); err != nil || msg.Type != "start_conversion" || msg.Options.Duration <= 0 {
			conn.WriteJSON(models.RejectedEvent("x", "bad start message"))
			return
		}
		for _, ev := range script {
			conn.WriteJSON(ev)
		}
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeVideo(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestUploadAndConvert(t *testing.T) {
	srv := fakeServer(t, nil)
	c, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	meta, err := c.UploadFile(context.Background(), writeVideo(t, "VIDEO bytes"))
	if err != nil {
		t.Fatalf("UploadFile failed: %v", err)
	}
	if meta.JobID != "job-clip.mp4" || meta.Duration != 30 {
		t.Errorf("Unexpected metadata: %+v", meta)
	}

	ack, err := c.Convert(context.Background(), meta.JobID, models.ClipOptions{Duration: 10})
	if err != nil || ack.Position != 1 {
		t.Errorf("Expected position 1, got %+v, %v", ack, err)
	}

	_, err = c.Convert(context.Background(), meta.JobID, models.ClipOptions{Duration: 99})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest || apiErr.Message != "Duration cannot exceed 60 seconds." {
		t.Errorf("Expected APIError with server message, got %v", err)
	}
}

func TestUploadErrors(t *testing.T) {
	srv := fakeServer(t, nil)
	c, _ := New(srv.URL)

	_, err := c.UploadFile(context.Background(), writeVideo(t, "not a video"))
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Invalid video file" {
		t.Errorf("Expected invalid video APIError, got %v", err)
	}

	c.MaxUploadBytes = 4
	if _, err := c.UploadFile(context.Background(), writeVideo(t, "VIDEO")); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("Expected ErrFileTooLarge before upload, got %v", err)
	}

	tooLarge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	}))
	defer tooLarge.Close()
	c, _ = New(tooLarge.URL)
	if _, err := c.UploadFile(context.Background(), writeVideo(t, "VIDEO")); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("Expected ErrFileTooLarge from 413, got %v", err)
	}

	unreachable := httptest.NewServer(http.NotFoundHandler())
	unreachable.Close()
	c, _ = New(unreachable.URL)
	if _, err := c.UploadFile(context.Background(), writeVideo(t, "VIDEO")); !errors.Is(err, ErrConnection) {
		t.Errorf("Expected ErrConnection, got %v", err)
	}
}

func TestClipFlow(t *testing.T) {
	srv := fakeServer(t, []models.Event{
		models.QueuedEvent("job-clip.mp4", 1),
		models.StatusEvent("job-clip.mp4", "processing"),
		models.ProgressEvent("job-clip.mp4", 15000),
		models.ProgressEvent("job-clip.mp4", 30000),
		models.DoneEvent("job-clip.mp4", "/download/tok", 60, false),
	})
	c, _ := New(srv.URL)
	s := NewSession(0, nil)

	var progress []float64
	res, err := c.Clip(context.Background(), s, writeVideo(t, "VIDEO"), models.ClipOptions{}, 60, func(s *Session, ev models.Event) {
		progress = append(progress, s.Progress())
	})
	if err != nil {
		t.Fatalf("Clip failed: %v", err)
	}
	if res.Download != srv.URL+"/download/tok" || res.TTL != 60 {
		t.Errorf("Unexpected result: %+v", res)
	}
	if s.State() != Completed {
		t.Errorf("Expected Completed, got %s", s.State())
	}
	// the default clip is the whole 30 s source
	want := []float64{0, 0, 0.5, 1, 1}
	for i, p := range want {
		if progress[i] != p {
			t.Errorf("Event %d: expected progress %v, got %v", i, p, progress[i])
		}
	}
}

func TestClipErrorEvent(t *testing.T) {
	srv := fakeServer(t, []models.Event{
		models.StatusEvent("job-clip.mp4", "processing"),
		models.ErrorEvent("job-clip.mp4", "conversion failed"),
	})
	c, _ := New(srv.URL)
	s := NewSession(0, nil)

	_, err := c.Clip(context.Background(), s, writeVideo(t, "VIDEO"), models.ClipOptions{Duration: 5}, 60, nil)
	if err == nil || err.Error() != "conversion failed" {
		t.Errorf("Expected conversion failed, got %v", err)
	}
	if s.State() != Idle {
		t.Errorf("Expected Idle, got %s", s.State())
	}
}

func TestClipStreamClosedEarly(t *testing.T) {
	srv := fakeServer(t, []models.Event{models.ProgressEvent("job-clip.mp4", 100)})
	c, _ := New(srv.URL)

	_, err := c.Clip(context.Background(), NewSession(0, nil), writeVideo(t, "VIDEO"), models.ClipOptions{Duration: 5}, 60, nil)
	if !errors.Is(err, ErrConnection) {
		t.Errorf("Expected ErrConnection, got %v", err)
	}
}

func TestClipRejectedReturnsToReady(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/upload", fakeUpload)
	mux.HandleFunc("/ws/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var msg models.ClientMessage
		conn.ReadJSON(&msg)
		conn.WriteJSON(models.RejectedEvent("job-clip.mp4", "Offset + duration exceeds the video length."))
		conn.ReadMessage()
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c, _ := New(srv.URL)
	s := NewSession(0, nil)

	_, err := c.Clip(context.Background(), s, writeVideo(t, "VIDEO"), models.ClipOptions{Duration: 5, Offset: 28}, 60, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !strings.Contains(apiErr.Message, "exceeds the video length") {
		t.Fatalf("Expected rejection message, got %v", err)
	}
	// the upload survives a rejection, so the user can submit again
	if s.State() != Ready {
		t.Errorf("Expected Ready, got %s", s.State())
	}
	if _, ok := s.Metadata(); !ok {
		t.Error("Expected metadata to be kept")
	}
}

func TestClipResumesAfterDrop(t *testing.T) {
	var dials atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/upload", fakeUpload)
	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"job_id": "job-clip.mp4", "status": "processing"})
	})
	mux.HandleFunc("/ws/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if dials.Add(1) == 1 {
			// Step 1: accept the request, then drop without a close frame
			var msg models.ClientMessage
			conn.ReadJSON(&msg)
			conn.WriteJSON(models.StatusEvent("job-clip.mp4", "processing"))
			conn.WriteJSON(models.ProgressEvent("job-clip.mp4", 2000))
			return
		}
		// Step 2: replay current state and finish
		conn.WriteJSON(models.StatusEvent("job-clip.mp4", "processing"))
		conn.WriteJSON(models.ProgressEvent("job-clip.mp4", 1000))
		conn.WriteJSON(models.DoneEvent("job-clip.mp4", "/download/tok", 60, false))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	c, _ := New(srv.URL)
	s := NewSession(0, nil)

	var progress []float64
	res, err := c.Clip(context.Background(), s, writeVideo(t, "VIDEO"), models.ClipOptions{Duration: 4}, 60, func(s *Session, ev models.Event) {
		progress = append(progress, s.Progress())
	})
	if err != nil {
		t.Fatalf("Clip failed: %v", err)
	}
	if res.Download != srv.URL+"/download/tok" {
		t.Errorf("Unexpected result: %+v", res)
	}
	if got := dials.Load(); got != 2 {
		t.Errorf("Expected 2 dials, got %d", got)
	}
	// replayed progress never moves the bar backwards
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Errorf("Progress regressed: %v", progress)
		}
	}
}

func TestResolveURL(t *testing.T) {
	c, _ := New("http://clips.example:8000/")
	if got := c.ResolveURL("/download/abc"); got != "http://clips.example:8000/download/abc" {
		t.Errorf("Unexpected relative resolution: %s", got)
	}
	if got := c.ResolveURL("https://cdn.example/x"); got != "https://cdn.example/x" {
		t.Errorf("Expected absolute link untouched, got %s", got)
	}
	if _, err := New("ftp://x"); err == nil {
		t.Error("Expected error for non-http scheme")
	}
}
