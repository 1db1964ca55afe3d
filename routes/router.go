package routes

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"roundify/job"
	"roundify/logger"
	"roundify/metrics"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Handlers serves the job endpoints on top of a job.Service.
type Handlers struct {
	Jobs    *job.Service
	Metrics *metrics.Metrics

	upgrader websocket.Upgrader
}

// NewRouter registers every HTTP and WebSocket route.
func NewRouter(jobs *job.Service, m *metrics.Metrics) *mux.Router {
	h := &Handlers{
		Jobs:    jobs,
		Metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/upload", h.UploadHandler)
	r.HandleFunc("/api/convert", h.ConvertHandler)
	r.HandleFunc("/api/jobs/{job_id}", h.JobStatusHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/jobs/{job_id}", h.CancelJobHandler).Methods(http.MethodDelete)
	r.HandleFunc("/api/credentials", RegisterCredentialsHandler)
	r.HandleFunc("/download/{token}", h.DownloadHandler)
	r.HandleFunc("/ws/{job_id}", h.WebSocketHandler)

	r.HandleFunc("/success", SuccessQueryHandler)
	r.HandleFunc("/success/list", SuccessListHandler)
	r.HandleFunc("/failures", FailureQueryHandler)
	r.HandleFunc("/failures/list", FailureListHandler)

	r.HandleFunc("/health", HealthHandler)
	r.HandleFunc("/version", VersionHandler)
	r.HandleFunc("/ping", PingHandler)
	r.Handle("/metrics", m.Handler())
	return r
}

// writeJSON sends v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}

// writeError sends {"error": msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeJobError maps job service errors to status codes and messages.
func writeJobError(w http.ResponseWriter, err error) {
	status, msg := jobErrorStatus(err)
	if status == http.StatusInternalServerError {
		logger.Errorf("Request failed: %v", err)
	}
	writeError(w, status, msg)
}

func jobErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, job.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "File too large"
	case errors.Is(err, job.ErrInvalidVideo):
		return http.StatusBadRequest, "Invalid video file"
	case errors.Is(err, job.ErrInvalidOptions):
		return http.StatusBadRequest, strings.TrimPrefix(err.Error(), job.ErrInvalidOptions.Error()+": ")
	case errors.Is(err, job.ErrJobNotFound):
		return http.StatusNotFound, "job not found"
	case errors.Is(err, job.ErrAlreadySubmitted), errors.Is(err, job.ErrNotCancellable):
		return http.StatusConflict, err.Error()
	case errors.Is(err, job.ErrExpired):
		return http.StatusGone, "link expired"
	case errors.Is(err, job.ErrShuttingDown):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	logger.Warnf("Invalid method %s for %s", r.Method, r.URL.Path)
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}
