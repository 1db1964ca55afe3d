// Package client talks to a roundify server: it uploads videos, requests
// conversions and follows a job's push channel.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"roundify/models"

	"github.com/gorilla/websocket"
)

// DefaultMaxUploadBytes matches the server's default upload limit.
const DefaultMaxUploadBytes = 600 << 20

var (
	// ErrConnection wraps transport failures: refused connections,
	// broken WebSockets, timeouts.
	ErrConnection = errors.New("connection error")
	// ErrFileTooLarge is returned before uploading a file over the limit,
	// and for a 413 from the server.
	ErrFileTooLarge = errors.New("file too large")
)

// APIError is a non-2xx reply carrying the server's message, or an error
// event from the push channel (Status 0).
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Metadata describes an uploaded source as reported by the server.
type Metadata struct {
	JobID    string  `json:"job_id"`
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	SizeMB   float64 `json:"size_mb"`
}

// DefaultClip is the clip length offered for the source: the whole video,
// capped at maxClip seconds.
func (m Metadata) DefaultClip(maxClip float64) float64 {
	if m.Duration < maxClip {
		return m.Duration
	}
	return maxClip
}

// Client is safe for concurrent use.
type Client struct {
	BaseURL        *url.URL
	HTTP           *http.Client
	Dialer         *websocket.Dialer
	MaxUploadBytes int64
}

// New returns a client for the server at baseURL.
func New(baseURL string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}
	return &Client{
		BaseURL:        u,
		HTTP:           &http.Client{},
		Dialer:         &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		MaxUploadBytes: DefaultMaxUploadBytes,
	}, nil
}

func (c *Client) endpoint(path string) string {
	return c.BaseURL.String() + path
}

// ResolveURL turns a possibly relative download link into an absolute one.
func (c *Client) ResolveURL(link string) string {
	ref, err := url.Parse(link)
	if err != nil {
		return link
	}
	return c.BaseURL.ResolveReference(ref).String()
}

// UploadFile uploads the video at path.
func (c *Client) UploadFile(ctx context.Context, path string) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return c.Upload(ctx, filepath.Base(path), f, info.Size())
}

// Upload streams r as the "video" field. size is checked against
// MaxUploadBytes before anything is sent.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader, size int64) (*Metadata, error) {
	if c.MaxUploadBytes > 0 && size > c.MaxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrFileTooLarge, size, c.MaxUploadBytes)
	}

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		part, err := form.CreateFormFile("video", filename)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = form.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/upload"), pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var meta Metadata
	if err := c.do(req, &meta); err != nil {
		pr.CloseWithError(err)
		return nil, err
	}
	return &meta, nil
}

// Ack is the server's reply to a queued conversion.
type Ack struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	JobID    string `json:"job_id"`
	Position int    `json:"position"`
}

// Convert requests a conversion over HTTP and returns the queue ack.
func (c *Client) Convert(ctx context.Context, jobID string, opts models.ClipOptions) (*Ack, error) {
	form := url.Values{}
	form.Set("job_id", jobID)
	form.Set("duration", strconv.FormatFloat(opts.Duration, 'f', -1, 64))
	form.Set("offset", strconv.FormatFloat(opts.Offset, 'f', -1, 64))
	if opts.Size > 0 {
		form.Set("size", strconv.Itoa(opts.Size))
	}
	for key, value := range map[string]string{
		"token":       opts.Token,
		"chat":        opts.Chat,
		"storage_key": opts.StorageKey,
		"encoder":     opts.Encoder,
	} {
		if value != "" {
			form.Set(key, value)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/convert"), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var ack Ack
	if err := c.do(req, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// JobStatus is the server's snapshot of a job.
type JobStatus struct {
	JobID      string           `json:"job_id"`
	Status     models.JobStatus `json:"status"`
	Position   int              `json:"position"`
	ProgressMS int64            `json:"progress_ms"`
	Download   string           `json:"download"`
	TTL        int              `json:"ttl"`
	Telegram   bool             `json:"telegram"`
	Error      string           `json:"error"`
}

// Status fetches the current state of a job.
func (c *Client) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/api/jobs/"+url.PathEscape(jobID)), nil)
	if err != nil {
		return nil, err
	}
	var st JobStatus
	if err := c.do(req, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Cancel asks the server to cancel a queued or running job.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint("/api/jobs/"+url.PathEscape(jobID)), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// do sends req and decodes a 2xx JSON body into out.
func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		return fmt.Errorf("%w: rejected by server", ErrFileTooLarge)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: invalid response: %v", ErrConnection, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &payload) == nil {
		apiErr.Message = payload.Error
		if apiErr.Message == "" {
			apiErr.Message = payload.Detail
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
