package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"roundify/credentials"
	"roundify/encoder"
	"roundify/failures"
	"roundify/logger"
	"roundify/models"
	"roundify/success"
	"roundify/utils"
	writerbackends "roundify/writerBackends"
)

// ArtifactName is the served filename of a job's clip.
func ArtifactName(id, encoderName string) string {
	return fmt.Sprintf("%s_%s.mp4", id, encoderName)
}

// process runs one dequeued job to its terminal event.
func (s *Service) process(ctx context.Context, id string) {
	j, err := s.load(id)
	if err != nil {
		logger.Errorf("Dropping job %s: %v", id, err)
		return
	}
	if j.Status != models.StatusQueued || j.Options == nil {
		logger.Warnf("Skipping job %s in state %s", id, j.Status)
		return
	}

	s.metrics.WorkerBusy(1)
	defer s.metrics.WorkerBusy(-1)

	started := s.now()
	j.Status = models.StatusProcessing
	j.StartedAt = &started
	if err := s.store.Put(j); err != nil {
		logger.Errorf("Failed to persist job %s: %v", id, err)
	}
	s.hub.Publish(models.StatusEvent(id, StatusTextProcessing))
	logger.Infof("Processing job %s", id)

	artifactPath, err := s.encode(ctx, j)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.abort(ctx, j, err)
		return
	}

	s.hub.Publish(models.StatusEvent(id, StatusTextFinalizing))
	s.finish(ctx, j, artifactPath)
}

// encode runs the job's encoder into the job directory and returns the
// output path.
func (s *Service) encode(ctx context.Context, j *models.Job) (string, error) {
	opts := *j.Options
	enc, ok := s.encoders(opts.Encoder)
	if !ok {
		return "", fmt.Errorf("encoder %s not found", opts.Encoder)
	}

	maxMB := s.cfg.Encoding.MaxMB
	if opts.Delivers() {
		maxMB = s.cfg.Encoding.DeliveryMaxMB
	}
	audio := s.cfg.Encoding.AudioBitrateKbps
	encodeOpts := encoder.EncodeOptions{
		FFmpegPath: s.cfg.Encoding.FFmpegPath,
		Offset:     opts.Offset,
		Duration:   opts.Duration,
		Size:       opts.Size,
		VideoKbps:  encoder.VideoBitrate(maxMB, opts.Duration, audio),
		AudioKbps:  audio,
	}

	if _, err := os.Stat(j.SourcePath); err != nil {
		return "", fmt.Errorf("%s: %w", MsgSourceGone, err)
	}
	output := filepath.Join(s.jobDir(j.ID), "output.mp4")

	begin := time.Now()
	err := enc(ctx, j.SourcePath, output, encodeOpts, func(ms int64) {
		s.hub.Publish(models.ProgressEvent(j.ID, ms))
	})
	s.metrics.Encoded(time.Since(begin).Seconds())
	if err != nil {
		return "", fmt.Errorf("encoding failed: %w", err)
	}

	info, err := os.Stat(output)
	if err != nil || info.Size() == 0 {
		return "", errors.New("encoder produced no output")
	}
	return output, nil
}

// finish publishes the artifact, mirrors and delivers it, then emits done.
// Once delivery is over the job can no longer be cancelled.
func (s *Service) finish(ctx context.Context, j *models.Job, output string) {
	opts := *j.Options
	artifact := ArtifactName(j.ID, opts.Encoder)

	reader, err := os.Open(output)
	if err != nil {
		s.abort(ctx, j, fmt.Errorf("failed to open output: %w", err))
		return
	}
	err = writerbackends.WriteArtifact(ctx, map[string]string{
		"baseDir":  s.cfg.Paths.ServeDir,
		"filename": artifact,
	}, reader, writerbackends.BackendDirectServe)
	reader.Close()
	if err != nil {
		s.abort(ctx, j, err)
		return
	}
	served := filepath.Join(s.cfg.Paths.ServeDir, artifact)

	mirrored := ""
	if opts.StorageKey != "" {
		if backend, err := s.mirror(ctx, opts.StorageKey, served, artifact); err != nil {
			logger.Errorf("Failed to mirror %s: %v", artifact, err)
		} else {
			mirrored = backend
		}
	}

	delivered := false
	if opts.Delivers() && s.sender != nil {
		s.hub.Publish(models.StatusEvent(j.ID, StatusTextSending))
		if err := s.sender.SendVideoNote(ctx, opts.Token, opts.Chat, served, opts.Size); err != nil {
			logger.Errorf("Failed to deliver job %s to telegram: %v", j.ID, err)
		} else {
			delivered = true
		}
		s.metrics.Delivered(delivered)
	}

	// A clip already sent to the chat is kept even if a cancel raced the
	// delivery.
	if !s.sched.settle(ctx, j.ID) && !delivered {
		writerbackends.DeleteFromDirectServe(s.cfg.Paths.ServeDir, "", artifact)
		s.abort(ctx, j, ctx.Err())
		return
	}

	completed := s.now()
	ttl := s.cfg.Artifacts.TTLSeconds
	expires := completed.Add(time.Duration(ttl) * time.Second)
	token, err := utils.SignDownload(s.signingKey, j.ID, artifact, completed, expires)
	if err != nil {
		writerbackends.DeleteFromDirectServe(s.cfg.Paths.ServeDir, "", artifact)
		s.abort(ctx, j, err)
		return
	}
	download := s.downloadURL(token)

	j.Status = models.StatusDone
	j.ProgressMS = opts.ClipMillis()
	j.Artifact = artifact
	j.Download = download
	j.TTL = ttl
	j.ExpiresAt = &expires
	j.Delivered = delivered
	j.FinishedAt = &completed
	if err := s.store.Put(j); err != nil {
		logger.Errorf("Failed to persist job %s: %v", j.ID, err)
	}

	record := success.SuccessRecord{
		Job:       j.ID,
		File:      artifact,
		Download:  download,
		TTL:       ttl,
		ExpiresAt: expires,
		Telegram:  delivered,
		Mirrored:  mirrored,
		Timestamp: completed,
	}
	if err := success.StoreSuccess(record, redacted(j)); err != nil {
		// Don't fail the job for success storage errors
		logger.Errorf("Failed to store success record for %s: %v", j.ID, err)
	}

	// The source never outlives its job.
	if err := os.RemoveAll(s.jobDir(j.ID)); err != nil {
		logger.Errorf("Failed to cleanup job directory for %s: %v", j.ID, err)
	}

	s.metrics.Finished("done")
	s.hub.Publish(models.DoneEvent(j.ID, download, ttl, delivered))
	logger.Infof("Job %s done: %s valid for %ds (telegram: %t)", j.ID, artifact, ttl, delivered)
}

// mirror copies the served artifact to the backend registered under key.
func (s *Service) mirror(ctx context.Context, key, path, artifact string) (string, error) {
	target, err := credentials.GetCredentials(key)
	if err != nil {
		return "", err
	}
	accessInfo := make(map[string]string, len(target.Credentials)+2)
	for k, v := range target.Credentials {
		accessInfo[k] = v
	}
	accessInfo["filename"] = artifact
	if target.Type == writerbackends.BackendDirectServe && accessInfo["baseDir"] == "" {
		return "", errors.New("directServe mirror needs a baseDir")
	}

	reader, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer reader.Close()
	if err := writerbackends.WriteArtifact(ctx, accessInfo, reader, target.Type); err != nil {
		return "", err
	}
	return target.Type, nil
}

// abort ends a job that was dequeued but did not finish. A user cancel
// becomes MsgCancelled; a shutdown leaves the job and its source for
// Recover.
func (s *Service) abort(ctx context.Context, j *models.Job, cause error) {
	if ctx.Err() != nil {
		if s.sched.wasCancelled(j.ID) {
			s.fail(j, MsgCancelled, errors.New(MsgCancelled))
			logger.Infof("Job %s cancelled", j.ID)
			return
		}
		logger.Warnf("Job %s interrupted by shutdown", j.ID)
		return
	}
	logger.Errorf("Job %s failed: %v", j.ID, cause)
	s.fail(j, MsgFailed, cause)
}

// fail persists an error terminal, records the failure and publishes it.
func (s *Service) fail(j *models.Job, message string, cause error) {
	finished := s.now()
	j.Status = models.StatusError
	j.Error = message
	if cause != nil && cause.Error() != message {
		j.Error = message + ": " + cause.Error()
	}
	j.FinishedAt = &finished
	if err := s.store.Put(j); err != nil {
		logger.Errorf("Failed to persist job %s: %v", j.ID, err)
	}
	if err := failures.StoreFailure(j.ID, errors.New(j.Error), redacted(j)); err != nil {
		logger.Errorf("Failed to store failure for %s: %v", j.ID, err)
	}
	if err := os.RemoveAll(s.jobDir(j.ID)); err != nil {
		logger.Errorf("Failed to cleanup job directory for %s: %v", j.ID, err)
	}
	s.metrics.Finished("error")
	s.hub.Publish(models.ErrorEvent(j.ID, message))
}

// redacted is the copy of j kept in success and failure records.
func redacted(j *models.Job) *models.Job {
	c := j.Clone()
	if c.Options != nil {
		c.Options.Token = ""
	}
	return c
}
