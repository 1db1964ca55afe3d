package routes

import (
	"encoding/json"
	"net/http"

	"roundify/credentials"
	"roundify/logger"
	"roundify/models"
	writerbackends "roundify/writerBackends"
)

// RegisterCredentialsHandler stores mirror backend credentials and
// returns the access key that conversions pass as storage_key.
func RegisterCredentialsHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Register credentials request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}

	var target models.StorageTarget
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&target); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !writerbackends.IsKnownBackend(target.Type) {
		writeError(w, http.StatusBadRequest, "unknown storage type")
		return
	}
	if len(target.Credentials) == 0 {
		writeError(w, http.StatusBadRequest, "credentials missing")
		return
	}

	key, err := credentials.Register(target)
	if err != nil {
		logger.Errorf("Failed to store credentials: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to store credentials")
		return
	}

	logger.Infof("Registered %s credentials", target.Type)
	writeJSON(w, http.StatusOK, map[string]string{"access_key": key})
}
