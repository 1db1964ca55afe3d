package routes

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"roundify/models"

	"github.com/gorilla/websocket"
)

func dialJob(t *testing.T, srv *testServer, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + id
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("Dial failed (status %d): %v", status, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev models.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	return ev
}

func TestWebSocketConversion(t *testing.T) {
	srv := newTestServer(t)
	id := srv.uploadJob(t)
	conn := dialJob(t, srv, id)

	err := conn.WriteJSON(models.ClientMessage{
		Type:    "start_conversion",
		Options: models.ClipOptions{Size: 640, Duration: 15, Offset: 10},
	})
	if err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	var last int64 = -1
	for {
		ev := readEvent(t, conn)
		if ev.Job != id {
			t.Fatalf("Event for wrong job: %+v", ev)
		}
		if ev.Type == models.EventProgress {
			if ev.MS < last || ev.MS > 15000 {
				t.Errorf("Progress regressed or overflowed: %d after %d", ev.MS, last)
			}
			last = ev.MS
		}
		if ev.Type == models.EventError {
			t.Fatalf("Unexpected error: %s", ev.Message)
		}
		if ev.Type == models.EventDone {
			if ev.TTL != 60 || !strings.Contains(ev.Download, "/download/") {
				t.Errorf("Unexpected done event: %+v", ev)
			}
			break
		}
	}

	// the server closes the channel after the terminal event
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("Expected normal closure, got %v", err)
	}

	// reconnecting replays only the terminal event
	again := dialJob(t, srv, id)
	if ev := readEvent(t, again); ev.Type != models.EventDone {
		t.Errorf("Expected replayed done, got %+v", ev)
	}
}

func TestWebSocketRejectsBadOptions(t *testing.T) {
	srv := newTestServer(t)
	id := srv.uploadJob(t)
	conn := dialJob(t, srv, id)

	conn.WriteJSON(models.ClientMessage{Type: "start_conversion", Options: models.ClipOptions{Duration: 25, Offset: 10}})
	ev := readEvent(t, conn)
	if ev.Type != models.EventRejected || !strings.Contains(ev.Message, "exceeds the video length") {
		t.Errorf("Expected validation error, got %+v", ev)
	}

	conn.WriteJSON(map[string]string{"type": "ping"})
	var pong map[string]string
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&pong); err != nil || pong["type"] != "pong" {
		t.Errorf("Expected pong, got %v, %v", pong, err)
	}
}

func TestWebSocketUnknownJob(t *testing.T) {
	srv := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + strings.Repeat("d", 32)
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 handshake response, got %v", resp)
	}
}

func TestWebSocketRejectionKeepsStreamOpen(t *testing.T) {
	srv := newTestServer(t)
	id := srv.uploadJob(t)
	conn := dialJob(t, srv, id)

	// Step 1: messages the server cannot act on
	conn.WriteJSON(map[string]string{"type": "bogus"})
	ev := readEvent(t, conn)
	if ev.Type != models.EventRejected || ev.IsTerminal() {
		t.Fatalf("Expected non-terminal rejection, got %+v", ev)
	}
	conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
	if ev := readEvent(t, conn); ev.Type != models.EventRejected {
		t.Fatalf("Expected rejection for malformed message, got %+v", ev)
	}

	// Step 2: a valid request on the same connection still converts
	conn.WriteJSON(models.ClientMessage{
		Type:    "start_conversion",
		Options: models.ClipOptions{Size: 320, Duration: 5},
	})
	terminals := 0
	for terminals == 0 {
		ev := readEvent(t, conn)
		if ev.IsTerminal() {
			terminals++
			if ev.Type != models.EventDone {
				t.Fatalf("Expected done, got %+v", ev)
			}
		}
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var ev models.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Errorf("Expected normal closure, got %v", err)
			}
			break
		}
		if ev.IsTerminal() {
			t.Errorf("Expected a single terminal event, got another: %+v", ev)
		}
	}

	// reconnecting replays the one terminal event
	again := dialJob(t, srv, id)
	if ev := readEvent(t, again); ev.Type != models.EventDone {
		t.Fatalf("Expected replayed done, got %+v", ev)
	}
}
