package routes

import (
	"net/http"

	"roundify/logger"

	"github.com/gorilla/mux"
)

// CancelJobHandler cancels a queued or running job by id
func (h *Handlers) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Cancel job request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

	id := mux.Vars(r)["job_id"]
	logger.Infof("Attempting to cancel job: %s", id)
	if err := h.Jobs.Cancel(id); err != nil {
		logger.Warnf("Failed to cancel job %s: %v", id, err)
		writeJobError(w, err)
		return
	}

	logger.Infof("Job cancelled successfully: %s", id)
	w.WriteHeader(http.StatusNoContent)
}
