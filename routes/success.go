package routes

import (
	"net/http"
	"time"

	"roundify/logger"
	"roundify/success"
)

// SuccessQueryHandler handles queries for finished clips
func SuccessQueryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}

	id := r.URL.Query().Get("job")
	if id == "" {
		writeError(w, http.StatusBadRequest, "job parameter required")
		return
	}

	record, err := success.GetSuccess(id)
	if err != nil {
		logger.Errorf("Failed to query success for job %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if record == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"job":     id,
			"status":  "not_found",
			"message": "No success record found for this job",
		})
		return
	}

	status := "success"
	if record.Expired(time.Now()) {
		// The janitor has not swept it yet, but the link no longer works.
		status = "expired"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job":        record.Job,
		"status":     status,
		"timestamp":  record.Timestamp,
		"file":       record.File,
		"download":   record.Download,
		"expires_at": record.ExpiresAt,
		"telegram":   record.Telegram,
		"mirrored":   record.Mirrored,
		"job_data":   record.JobData,
	})
}

// SuccessListHandler handles listing all success records (admin endpoint)
func SuccessListHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}

	// TODO: Add authentication check for admin access

	records, err := success.ListSuccessRecords()
	if err != nil {
		logger.Errorf("Failed to list success records: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success_records": records,
		"count":           len(records),
	})
}
