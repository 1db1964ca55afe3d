package routes

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"roundify/job"
	"roundify/logger"
	"roundify/models"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// pushConn serializes writes to a WebSocket connection.
type pushConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *pushConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

func (c *pushConn) close(code int, text string) {
	c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
}

// WebSocketHandler streams a job's events. The client may start the
// conversion on the same connection with a start_conversion message.
func (h *Handlers) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("WebSocket request: remoteAddr=%s", r.RemoteAddr)

	id := mux.Vars(r)["job_id"]
	if _, _, err := h.Jobs.Get(id); err != nil {
		writeJobError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		logger.Warnf("WebSocket upgrade failed for job %s: %v", id, err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	pc := &pushConn{conn: conn}
	sub := h.Jobs.Hub().Subscribe(id)
	defer sub.Close()

	go h.readPump(ctx, cancel, pc, id)
	go keepAlive(ctx, pc)

	for {
		ev, err := sub.Next(ctx)
		if errors.Is(err, io.EOF) {
			pc.close(websocket.CloseNormalClosure, "")
			return
		}
		if err != nil {
			return
		}
		if err := pc.writeJSON(ev); err != nil {
			logger.Debugf("WebSocket write for job %s failed: %v", id, err)
			return
		}
	}
}

// readPump handles client messages until the connection fails.
func (h *Handlers) readPump(ctx context.Context, cancel context.CancelFunc, pc *pushConn, id string) {
	defer cancel()
	pc.conn.SetReadLimit(maxMessageSize)
	pc.conn.SetReadDeadline(time.Now().Add(pongWait))
	pc.conn.SetPongHandler(func(string) error {
		return pc.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := pc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debugf("WebSocket for job %s closed: %v", id, err)
			}
			return
		}

		var msg models.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			pc.writeJSON(models.RejectedEvent(id, "invalid message"))
			continue
		}
		switch msg.Type {
		case "start_conversion":
			if _, err := h.Jobs.Convert(ctx, id, msg.Options); err != nil {
				// Rejections go to this client only; the job stays open for a retry.
				_, text := jobErrorStatus(err)
				if errors.Is(err, job.ErrJobNotFound) {
					text = "Original file not found for this job_id"
				}
				pc.writeJSON(models.RejectedEvent(id, text))
			}
		case "ping":
			pc.writeJSON(map[string]string{"type": "pong"})
		default:
			pc.writeJSON(models.RejectedEvent(id, "unknown message type "+strings.TrimSpace(msg.Type)))
		}
	}
}

func keepAlive(ctx context.Context, pc *pushConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := pc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
