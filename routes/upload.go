package routes

import (
	"errors"
	"io"
	"net/http"

	"roundify/logger"
)

// multipartOverhead is the allowance for boundaries and part headers on
// top of the configured upload limit.
const multipartOverhead = 64 << 10

// UploadResponse is returned for an accepted video.
type UploadResponse struct {
	JobID    string  `json:"job_id"`
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	SizeMB   float64 `json:"size_mb"`
}

// UploadHandler accepts a multipart upload with the video in the "video"
// field and creates a job for it.
func (h *Handlers) UploadHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Upload request: method=%s, remoteAddr=%s, length=%d", r.Method, r.RemoteAddr, r.ContentLength)

	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}

	limit := h.Jobs.Config().Limits.MaxUploadBytes
	if r.ContentLength > limit+multipartOverhead {
		logger.Warnf("Rejecting upload of %d bytes from %s", r.ContentLength, r.RemoteAddr)
		h.Metrics.UploadRejected("too_large")
		writeError(w, http.StatusRequestEntityTooLarge, "File too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field missing")
		return
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				h.Metrics.UploadRejected("too_large")
				writeError(w, http.StatusRequestEntityTooLarge, "File too large")
				return
			}
			writeError(w, http.StatusBadRequest, "Failed to parse multipart form")
			return
		}
		if part.FormName() != "video" || part.FileName() == "" {
			part.Close()
			continue
		}

		j, err := h.Jobs.Upload(r.Context(), part.FileName(), part)
		part.Close()
		if err != nil {
			writeJobError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, UploadResponse{
			JobID:    j.ID,
			Duration: j.Source.Duration,
			Width:    j.Source.Width,
			Height:   j.Source.Height,
			SizeMB:   j.Source.SizeMB(),
		})
		return
	}
	writeError(w, http.StatusBadRequest, "file field missing")
}
