package models

import "time"

// JobStatus is the lifecycle position of a job.
type JobStatus string

const (
	StatusCreated    JobStatus = "created" // uploaded, no conversion requested yet
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusDone       JobStatus = "done"
	StatusError      JobStatus = "error"
)

// IsTerminal reports whether no further events can follow.
func (s JobStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusError
}

// SourceMeta describes an uploaded video.
type SourceMeta struct {
	Filename string  `json:"filename"`
	Duration float64 `json:"duration"` // seconds
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Size     int64   `json:"size"` // bytes
}

// SizeMB returns the source size in MiB rounded to two decimals.
func (m SourceMeta) SizeMB() float64 {
	mb := float64(m.Size) / (1 << 20)
	return float64(int64(mb*100+0.5)) / 100
}

// ClipOptions are the conversion parameters attached to a job.
type ClipOptions struct {
	Encoder    string  `json:"encoder,omitempty"`
	Size       int     `json:"size"`     // output side in pixels
	Duration   float64 `json:"clip_sec"` // seconds
	Offset     float64 `json:"offset"`   // seconds
	Token      string  `json:"token,omitempty"`
	Chat       string  `json:"chat,omitempty"`
	StorageKey string  `json:"storage_key,omitempty"`
}

// Delivers reports whether the clip should be sent to Telegram.
func (o ClipOptions) Delivers() bool {
	return o.Token != "" && o.Chat != ""
}

// ClipMillis is the clip length in milliseconds, the ceiling for progress.
func (o ClipOptions) ClipMillis() int64 {
	return int64(o.Duration * 1000)
}

// Job is the persisted state of one conversion request.
type Job struct {
	ID         string       `json:"job_id"`
	Status     JobStatus    `json:"status"`
	Source     SourceMeta   `json:"source"`
	SourcePath string       `json:"source_path"`
	Options    *ClipOptions `json:"options,omitempty"`
	ProgressMS int64        `json:"progress_ms"`
	Artifact   string       `json:"artifact,omitempty"` // filename in the serve dir
	Download   string       `json:"download,omitempty"`
	TTL        int          `json:"ttl,omitempty"` // seconds
	ExpiresAt  *time.Time   `json:"expires_at,omitempty"`
	Delivered  bool         `json:"delivered,omitempty"`
	Error      string       `json:"error,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	QueuedAt   *time.Time   `json:"queued_at,omitempty"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

// Clone returns a copy that shares no pointers with j.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Options != nil {
		opts := *j.Options
		c.Options = &opts
	}
	c.ExpiresAt = cloneTime(j.ExpiresAt)
	c.QueuedAt = cloneTime(j.QueuedAt)
	c.StartedAt = cloneTime(j.StartedAt)
	c.FinishedAt = cloneTime(j.FinishedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
