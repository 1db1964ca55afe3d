package routes

import (
	"net/http"
	"time"

	"roundify/logger"
	"roundify/models"

	"github.com/gorilla/mux"
)

// JobStatusResponse is the public snapshot of a job.
type JobStatusResponse struct {
	JobID      string              `json:"job_id"`
	Status     models.JobStatus    `json:"status"`
	Position   int                 `json:"position,omitempty"`
	ProgressMS int64               `json:"progress_ms"`
	Source     models.SourceMeta   `json:"source"`
	Options    *models.ClipOptions `json:"options,omitempty"`
	Download   string              `json:"download,omitempty"`
	TTL        int                 `json:"ttl,omitempty"`
	ExpiresAt  *time.Time          `json:"expires_at,omitempty"`
	Telegram   bool                `json:"telegram,omitempty"`
	Error      string              `json:"error,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

// JobStatusHandler returns the state of a job by id
func (h *Handlers) JobStatusHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Job status request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

	id := mux.Vars(r)["job_id"]
	j, position, err := h.Jobs.Get(id)
	if err != nil {
		writeJobError(w, err)
		return
	}

	resp := JobStatusResponse{
		JobID:      j.ID,
		Status:     j.Status,
		Position:   position,
		ProgressMS: j.ProgressMS,
		Source:     j.Source,
		Download:   j.Download,
		TTL:        j.TTL,
		ExpiresAt:  j.ExpiresAt,
		Telegram:   j.Delivered,
		Error:      j.Error,
		CreatedAt:  j.CreatedAt,
	}
	if j.Options != nil {
		opts := *j.Options
		opts.Token = "" // bot tokens never leave the server
		resp.Options = &opts
	}

	logger.Debugf("Job status: id=%s, status=%s, position=%d", id, j.Status, position)
	writeJSON(w, http.StatusOK, resp)
}
