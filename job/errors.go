package job

import "errors"

var (
	ErrFileTooLarge     = errors.New("file too large")
	ErrInvalidVideo     = errors.New("invalid video file")
	ErrInvalidOptions   = errors.New("invalid clip options")
	ErrJobNotFound      = errors.New("job not found")
	ErrAlreadySubmitted = errors.New("conversion already requested for this job")
	ErrNotCancellable   = errors.New("job cannot be cancelled")
	ErrExpired          = errors.New("artifact has expired")
	ErrShuttingDown     = errors.New("service is shutting down")
)

// Messages carried by terminal error events.
const (
	MsgCancelled   = "job cancelled"
	MsgInterrupted = "interrupted by restart"
	MsgFailed      = "conversion failed"
	MsgUploadGone  = "upload expired before conversion"
	MsgSourceGone  = "source file missing"
)

// Status texts carried by status_update events.
const (
	StatusTextProcessing = "processing"
	StatusTextFinalizing = "finalizing"
	StatusTextSending    = "sending to telegram"
)
