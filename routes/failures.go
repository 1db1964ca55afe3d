package routes

import (
	"net/http"

	"roundify/failures"
	"roundify/logger"
)

// FailureQueryHandler handles queries for failed conversions
func FailureQueryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}

	id := r.URL.Query().Get("job")
	if id == "" {
		writeError(w, http.StatusBadRequest, "job parameter required")
		return
	}

	record, err := failures.GetFailure(id)
	if err != nil {
		logger.Errorf("Failed to query failure for job %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if record == nil {
		// No failure recorded; the job succeeded, is still running or never existed
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"job":     id,
			"status":  "not_found",
			"message": "No failure recorded for this job",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job":       record.Job,
		"status":    "failed",
		"timestamp": record.Timestamp,
		"error":     record.Error,
		"job_data":  record.JobData,
	})
}

// FailureListHandler handles listing all failures (admin endpoint)
func FailureListHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}

	failuresList, err := failures.ListFailures()
	if err != nil {
		logger.Errorf("Failed to list failures: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"failures": failuresList,
		"count":    len(failuresList),
	})
}
