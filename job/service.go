package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"roundify/config"
	"roundify/credentials"
	"roundify/encoder"
	"roundify/hub"
	"roundify/logger"
	"roundify/metrics"
	"roundify/models"
	"roundify/probe"
	taskqueue "roundify/taskQueue"
	"roundify/utils"

	"github.com/dustin/go-humanize"
)

// Sender delivers a finished clip to a chat.
type Sender interface {
	SendVideoNote(ctx context.Context, token, chat, path string, length int) error
}

// Deps are the collaborators of a Service. Probe, Encoders and Now default
// to the ffprobe prober, the encoder registry and time.Now.
type Deps struct {
	Config     *config.Config
	Store      *taskqueue.JobStore
	Hub        *hub.Hub
	Probe      probe.Prober
	Encoders   func(name string) (encoder.EncodeFunc, bool)
	Sender     Sender
	Metrics    *metrics.Metrics
	SigningKey []byte
	Now        func() time.Time
}

// Service owns the job lifecycle from upload to artifact expiry.
type Service struct {
	cfg        *config.Config
	store      *taskqueue.JobStore
	hub        *hub.Hub
	probe      probe.Prober
	encoders   func(name string) (encoder.EncodeFunc, bool)
	sender     Sender
	metrics    *metrics.Metrics
	signingKey []byte
	now        func() time.Time

	sched   scheduler
	submitM sync.Mutex // serializes created → queued transitions
}

// NewService validates deps and returns a stopped service; call Start.
func NewService(d Deps) (*Service, error) {
	if d.Config == nil || d.Store == nil || d.Hub == nil {
		return nil, errors.New("job service needs config, store and hub")
	}
	if len(d.SigningKey) < config.MinSigningKeyBytes {
		return nil, fmt.Errorf("job service needs a signing key of at least %d bytes", config.MinSigningKeyBytes)
	}
	s := &Service{
		cfg:        d.Config,
		store:      d.Store,
		hub:        d.Hub,
		probe:      d.Probe,
		encoders:   d.Encoders,
		sender:     d.Sender,
		metrics:    d.Metrics,
		signingKey: d.SigningKey,
		now:        d.Now,
	}
	if s.probe == nil {
		s.probe = probe.New(d.Config.Encoding.FFprobePath)
	}
	if s.encoders == nil {
		s.encoders = encoder.Get
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.sched.init()
	s.metrics.Gauge("queue_depth", "Jobs waiting for a worker.", func() float64 { return float64(s.sched.depth()) })
	s.metrics.Gauge("ws_subscribers", "Open push-channel subscriptions.", func() float64 { return float64(s.hub.Subscribers()) })
	return s, nil
}

// Hub exposes the event hub for push-channel handlers.
func (s *Service) Hub() *hub.Hub { return s.hub }

// Config returns the service configuration.
func (s *Service) Config() *config.Config { return s.cfg }

func (s *Service) jobDir(id string) string {
	return filepath.Join(s.cfg.Paths.WorkDir, id)
}

// Upload stores the video read from r, probes it and creates a job in the
// created state. Nothing is allocated for oversized or unreadable input.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader) (*models.Job, error) {
	incoming := filepath.Join(s.cfg.Paths.WorkDir, "incoming")
	if err := os.MkdirAll(incoming, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	tmp, err := os.CreateTemp(incoming, "upload-*"+sourceExt(filename))
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}
	tmpPath := tmp.Name()
	keep := false
	defer func() {
		if !keep {
			os.Remove(tmpPath)
		}
	}()

	limit := s.cfg.Limits.MaxUploadBytes
	n, err := io.Copy(tmp, io.LimitReader(r, limit+1))
	closeErr := tmp.Close()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.metrics.UploadRejected("too_large")
			return nil, ErrFileTooLarge
		}
		return nil, fmt.Errorf("failed to receive upload: %w", err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to store upload: %w", closeErr)
	}
	if n > limit {
		s.metrics.UploadRejected("too_large")
		return nil, ErrFileTooLarge
	}

	meta, err := s.probe(ctx, tmpPath)
	if err != nil {
		logger.Warnf("Rejecting upload %q: %v", filename, err)
		s.metrics.UploadRejected("invalid_video")
		return nil, fmt.Errorf("%w: %v", ErrInvalidVideo, err)
	}
	meta.Filename = filepath.Base(filename)
	meta.Size = n

	id := utils.NewJobID()
	dir := s.jobDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create job directory: %w", err)
	}
	sourcePath := filepath.Join(dir, "source"+sourceExt(filename))
	if err := os.Rename(tmpPath, sourcePath); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to move upload: %w", err)
	}
	keep = true

	j := &models.Job{
		ID:         id,
		Status:     models.StatusCreated,
		Source:     meta,
		SourcePath: sourcePath,
		CreatedAt:  s.now(),
	}
	if err := s.store.Put(j); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	s.metrics.UploadAccepted()
	logger.Infof("Job %s created from %q (%s, %.2fs, %dx%d)", id, meta.Filename,
		humanize.IBytes(uint64(meta.Size)), meta.Duration, meta.Width, meta.Height)
	return j.Clone(), nil
}

// sourceExt keeps a short alphanumeric extension so ffmpeg can guess the
// container; anything else is dropped.
func sourceExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return ext
}

// Convert attaches options to a created job and queues it. It returns the
// job's 1-based queue position.
func (s *Service) Convert(ctx context.Context, id string, opts models.ClipOptions) (int, error) {
	s.submitM.Lock()
	defer s.submitM.Unlock()

	j, err := s.load(id)
	if err != nil {
		return 0, err
	}
	if j.Status != models.StatusCreated {
		return 0, ErrAlreadySubmitted
	}

	opts, err = NormalizeOptions(s.cfg, j.Source, opts)
	if err != nil {
		return 0, err
	}
	if _, ok := s.encoders(opts.Encoder); !ok {
		return 0, fmt.Errorf("%w: encoder %q is not available", ErrInvalidOptions, opts.Encoder)
	}
	if opts.StorageKey != "" && !credentials.Exists(opts.StorageKey) {
		return 0, fmt.Errorf("%w: unknown storage_key", ErrInvalidOptions)
	}

	now := s.now()
	j.Options = &opts
	j.Status = models.StatusQueued
	j.QueuedAt = &now
	if err := s.store.Put(j); err != nil {
		return 0, fmt.Errorf("failed to persist job: %w", err)
	}

	s.hub.SetClip(id, opts.ClipMillis())
	position, err := s.sched.enqueue(id)
	if err != nil {
		return 0, err
	}
	s.hub.Publish(models.QueuedEvent(id, position))
	s.metrics.Submitted()
	logger.Infof("Job %s queued at position %d (offset %.2fs, %.2fs, %dpx, %s)", id, position, opts.Offset, opts.Duration, opts.Size, opts.Encoder)
	return position, nil
}

// Wait blocks until id reaches a terminal event or ctx ends.
func (s *Service) Wait(ctx context.Context, id string) (models.Event, error) {
	sub := s.hub.Subscribe(id)
	defer sub.Close()
	for {
		e, err := sub.Next(ctx)
		if err != nil {
			return models.Event{}, err
		}
		if e.IsTerminal() {
			return e, nil
		}
	}
}

// Get returns the persisted job with live progress and queue position.
func (s *Service) Get(id string) (*models.Job, int, error) {
	j, err := s.load(id)
	if err != nil {
		return nil, 0, err
	}
	if j.Status == models.StatusProcessing {
		for _, e := range s.hub.Replay(id) {
			if e.Type == models.EventProgress {
				j.ProgressMS = e.MS
			}
		}
	}
	return j, s.sched.position(id), nil
}

// Cancel stops a queued or processing job. The job ends with an error
// event carrying MsgCancelled.
func (s *Service) Cancel(id string) error {
	s.submitM.Lock()
	defer s.submitM.Unlock()

	j, err := s.load(id)
	if err != nil {
		return err
	}

	switch s.sched.cancel(id) {
	case cancelDequeued:
		s.fail(j, MsgCancelled, errors.New(MsgCancelled))
		s.publishPositions()
		logger.Infof("Job %s cancelled while queued", id)
		return nil
	case cancelSignalled:
		logger.Infof("Job %s cancellation requested while processing", id)
		return nil
	default:
		return ErrNotCancellable
	}
}

func (s *Service) load(id string) (*models.Job, error) {
	if !utils.IsJobID(id) {
		return nil, ErrJobNotFound
	}
	j, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, taskqueue.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return j, nil
}

// VerifyDownload resolves a download token to the artifact path on disk.
func (s *Service) VerifyDownload(token string) (string, *models.DownloadClaims, error) {
	claims, err := utils.VerifyDownload(token, utils.VerifyConfig{
		SecretKey:      s.signingKey,
		ExpectedIssuer: utils.DownloadIssuer,
		Now:            s.now,
	})
	if err != nil {
		if errors.Is(err, utils.ErrTokenExpired) {
			return "", nil, ErrExpired
		}
		return "", nil, fmt.Errorf("%w: %v", ErrJobNotFound, err)
	}
	path := filepath.Join(s.cfg.Paths.ServeDir, filepath.Base(claims.File))
	if _, err := os.Stat(path); err != nil {
		return "", nil, ErrExpired
	}
	return path, claims, nil
}

func (s *Service) downloadURL(token string) string {
	return s.cfg.Server.PublicURL + "/download/" + token
}

func (s *Service) publishPositions() {
	for i, id := range s.sched.snapshot() {
		s.hub.Publish(models.QueuedEvent(id, i+1))
	}
}

// Start launches the worker pool. Workers stop when ctx ends or Stop is called.
func (s *Service) Start(ctx context.Context) {
	s.sched.start(ctx, s.cfg.Limits.Workers, s.process, s.publishPositions)
	logger.Infof("Started %d conversion workers", s.cfg.Limits.Workers)
}

// Stop halts the workers and waits for them. Jobs interrupted here stay
// persisted as processing and are failed by the next Recover.
func (s *Service) Stop() {
	s.sched.stop()
}
