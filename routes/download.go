package routes

import (
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"roundify/logger"

	"github.com/gorilla/mux"
)

// DownloadHandler serves a finished clip for as long as its token is valid.
func (h *Handlers) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Download request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r)
		return
	}

	path, claims, err := h.Jobs.VerifyDownload(mux.Vars(r)["token"])
	if err != nil {
		logger.Debugf("Download refused: %v", err)
		writeJobError(w, err)
		return
	}

	maxAge := int(time.Until(time.Unix(claims.ExpiresAt, 0)).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	w.Header().Set("Cache-Control", fmt.Sprintf("private, max-age=%d", maxAge))
	http.ServeFile(w, r, path)
}
