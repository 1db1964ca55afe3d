package job

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"roundify/failures"
	"roundify/logger"
	"roundify/models"
	"roundify/success"
	writerbackends "roundify/writerBackends"
)

// SweepReport counts what one janitor pass removed.
type SweepReport struct {
	Artifacts int // expired clips deleted from the serve dir
	Uploads   int // uploads never converted within the upload TTL
	Jobs      int // job records dropped
	Failures  int // failure records past retention
	Strays    int // orphaned files in the work or serve dirs
}

// Sweep removes everything that has outlived its lifetime at now.
func (s *Service) Sweep(now time.Time) (SweepReport, error) {
	var report SweepReport

	expired, err := success.CleanupExpired(now)
	if err != nil {
		logger.Errorf("Failed to sweep success records: %v", err)
	}
	for _, rec := range expired {
		if err := writerbackends.DeleteFromDirectServe(s.cfg.Paths.ServeDir, "", rec.File); err != nil {
			logger.Errorf("Failed to delete artifact %s: %v", rec.File, err)
		}
		report.Artifacts++
	}

	jobs, err := s.store.List()
	if err != nil {
		return report, err
	}
	known := make(map[string]bool, len(jobs))
	retention := s.cfg.FailureRetention()
	for _, j := range jobs {
		known[j.ID] = true
		switch j.Status {
		case models.StatusCreated:
			if now.Sub(j.CreatedAt) < s.cfg.UploadTTL() {
				continue
			}
			if s.expireUpload(j.ID) {
				report.Uploads++
			}
		case models.StatusDone:
			if j.ExpiresAt == nil || now.Before(*j.ExpiresAt) {
				continue
			}
			if !containsJob(expired, j.ID) && j.Artifact != "" {
				// success record was lost; remove the file by name
				if err := writerbackends.DeleteFromDirectServe(s.cfg.Paths.ServeDir, "", j.Artifact); err != nil {
					logger.Errorf("Failed to delete artifact %s: %v", j.Artifact, err)
				}
			}
			s.drop(j.ID)
			report.Jobs++
		case models.StatusError:
			if j.FinishedAt == nil || now.Sub(*j.FinishedAt) < retention {
				continue
			}
			s.drop(j.ID)
			report.Jobs++
		}
	}

	if n, err := failures.CleanupOldRecords(retention); err != nil {
		logger.Errorf("Failed to cleanup old failure records: %v", err)
	} else {
		report.Failures = n
	}

	report.Strays += s.sweepWorkDir(now, known)
	report.Strays += s.sweepServeDir(now)

	s.metrics.Expired(report.Artifacts)
	return report, nil
}

// expireUpload fails a job that is still waiting for its conversion
// request. It holds submitM so a concurrent Convert either wins or sees
// the error.
func (s *Service) expireUpload(id string) bool {
	s.submitM.Lock()
	defer s.submitM.Unlock()
	j, err := s.load(id)
	if err != nil || j.Status != models.StatusCreated {
		return false
	}
	s.fail(j, MsgUploadGone, nil)
	return true
}

func containsJob(records []success.SuccessRecord, id string) bool {
	for _, r := range records {
		if r.Job == id {
			return true
		}
	}
	return false
}

func (s *Service) drop(id string) {
	if err := s.store.Delete(id); err != nil {
		logger.Errorf("Failed to delete job record %s: %v", id, err)
	}
	s.hub.Forget(id)
}

// sweepWorkDir removes job directories without a record and abandoned
// partial uploads older than the upload TTL.
func (s *Service) sweepWorkDir(now time.Time, known map[string]bool) int {
	removed := 0
	cutoff := now.Add(-s.cfg.UploadTTL())
	entries, err := os.ReadDir(s.cfg.Paths.WorkDir)
	if err != nil {
		return 0
	}
	for _, entry := range entries {
		path := filepath.Join(s.cfg.Paths.WorkDir, entry.Name())
		if entry.Name() == "incoming" {
			removed += removeOlderThan(path, cutoff)
			continue
		}
		if !entry.IsDir() || known[entry.Name()] {
			continue
		}
		if info, err := entry.Info(); err == nil && info.ModTime().Before(cutoff) {
			if err := os.RemoveAll(path); err == nil {
				removed++
			}
		}
	}
	return removed
}

// sweepServeDir removes served files whose age exceeds the artifact TTL,
// covering files whose records were lost.
func (s *Service) sweepServeDir(now time.Time) int {
	return removeOlderThan(s.cfg.Paths.ServeDir, now.Add(-s.cfg.ArtifactTTL()))
}

func removeOlderThan(dir string, cutoff time.Time) int {
	removed := 0
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps every interval until ctx ends.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	logger.Infof("Janitor started - will run every %v", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Janitor stopped due to context cancellation")
			return
		case <-ticker.C:
			report, err := s.Sweep(s.now())
			if err != nil {
				logger.Errorf("Janitor pass failed: %v", err)
				continue
			}
			if report != (SweepReport{}) {
				logger.Infof("Janitor removed %d artifacts, %d uploads, %d jobs, %d failures, %d strays",
					report.Artifacts, report.Uploads, report.Jobs, report.Failures, report.Strays)
			}
		}
	}
}
