package routes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"roundify/job"
	"roundify/logger"
	"roundify/models"
)

// ConvertRequest carries the conversion parameters of POST /api/convert,
// sent either as a form or as JSON.
type ConvertRequest struct {
	JobID      string  `json:"job_id"`
	Size       int     `json:"size"`
	Duration   float64 `json:"duration"`
	Offset     float64 `json:"offset"`
	Token      string  `json:"token,omitempty"`
	Chat       string  `json:"chat,omitempty"`
	StorageKey string  `json:"storage_key,omitempty"`
	Encoder    string  `json:"encoder,omitempty"`
	Wait       bool    `json:"wait,omitempty"`
}

// Options returns the clip options of the request.
func (c ConvertRequest) Options() models.ClipOptions {
	return models.ClipOptions{
		Encoder:    c.Encoder,
		Size:       c.Size,
		Duration:   c.Duration,
		Offset:     c.Offset,
		Token:      c.Token,
		Chat:       c.Chat,
		StorageKey: c.StorageKey,
	}
}

// ConvertResponse acknowledges a queued conversion.
type ConvertResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	JobID    string `json:"job_id"`
	Position int    `json:"position"`
}

// ConvertResult is returned instead when the caller asked to wait.
type ConvertResult struct {
	Download  string `json:"download"`
	TTL       int    `json:"ttl"`
	ExpiresIn int    `json:"expires_in"`
	Sent      bool   `json:"sent"`
}

// ConvertHandler queues a conversion for an uploaded job.
func (h *Handlers) ConvertHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Convert request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

	if r.Method != http.MethodPost {
		methodNotAllowed(w, r)
		return
	}

	req, err := parseConvertRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.JobID == "" {
		writeError(w, http.StatusBadRequest, "job_id missing")
		return
	}

	position, err := h.Jobs.Convert(r.Context(), req.JobID, req.Options())
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "Original file not found for this job_id")
			return
		}
		writeJobError(w, err)
		return
	}

	if !req.Wait {
		writeJSON(w, http.StatusOK, ConvertResponse{
			Status:   "ok",
			Message:  "Conversion queued",
			JobID:    req.JobID,
			Position: position,
		})
		return
	}
	h.waitForResult(r.Context(), w, req.JobID)
}

func (h *Handlers) waitForResult(ctx context.Context, w http.ResponseWriter, id string) {
	term, err := h.Jobs.Wait(ctx, id)
	if err != nil {
		logger.Warnf("Client stopped waiting for job %s: %v", id, err)
		return
	}
	if term.Type == models.EventError {
		writeError(w, http.StatusInternalServerError, term.Message)
		return
	}

	expiresIn := term.TTL
	if j, _, err := h.Jobs.Get(id); err == nil && j.ExpiresAt != nil {
		expiresIn = int(time.Until(*j.ExpiresAt).Seconds())
		if expiresIn < 0 {
			expiresIn = 0
		}
	}
	writeJSON(w, http.StatusOK, ConvertResult{
		Download:  term.Download,
		TTL:       term.TTL,
		ExpiresIn: expiresIn,
		Sent:      term.Telegram,
	})
}

func parseConvertRequest(r *http.Request) (ConvertRequest, error) {
	var req ConvertRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, errors.New("invalid request body")
		}
	} else {
		if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return req, errors.New("invalid form")
		}
		req.JobID = r.FormValue("job_id")
		req.Token = r.FormValue("token")
		req.Chat = r.FormValue("chat")
		req.StorageKey = r.FormValue("storage_key")
		req.Encoder = r.FormValue("encoder")

		var err error
		if req.Size, err = formInt(r, "size"); err != nil {
			return req, err
		}
		if req.Duration, err = formFloat(r, "duration"); err != nil {
			return req, err
		}
		if req.Offset, err = formFloat(r, "offset"); err != nil {
			return req, err
		}
		req.Wait = formBool(r.FormValue("wait"))
	}
	if formBool(r.URL.Query().Get("wait")) {
		req.Wait = true
	}
	req.JobID = strings.TrimSpace(req.JobID)
	return req, nil
}

func formInt(r *http.Request, key string) (int, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func formFloat(r *http.Request, key string) (float64, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return f, nil
}

func formBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}
