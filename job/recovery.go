package job

import (
	"errors"
	"os"

	"roundify/logger"
	"roundify/models"
)

// Recover rebuilds in-memory state from the job store. Call it once,
// before Start. Queued jobs are re-enqueued in creation order, jobs caught
// mid-processing are failed, and finished jobs get their terminal event
// back so reconnecting clients still see it.
func (s *Service) Recover() error {
	jobs, err := s.store.List()
	if err != nil {
		return err
	}

	requeued, interrupted := 0, 0
	now := s.now()
	for _, j := range jobs {
		switch j.Status {
		case models.StatusQueued:
			if j.Options == nil {
				s.fail(j, MsgFailed, errors.New("queued without options"))
				continue
			}
			if _, err := os.Stat(j.SourcePath); err != nil {
				s.fail(j, MsgSourceGone, err)
				continue
			}
			s.hub.SetClip(j.ID, j.Options.ClipMillis())
			if _, err := s.sched.enqueue(j.ID); err != nil {
				return err
			}
			requeued++
		case models.StatusProcessing:
			s.fail(j, MsgInterrupted, nil)
			interrupted++
		case models.StatusDone:
			if j.ExpiresAt != nil && now.Before(*j.ExpiresAt) {
				s.hub.Publish(models.DoneEvent(j.ID, j.Download, j.TTL, j.Delivered))
			}
		case models.StatusError:
			s.hub.Publish(models.ErrorEvent(j.ID, terminalMessage(j)))
		}
	}
	s.publishPositions()

	if requeued > 0 || interrupted > 0 {
		logger.Infof("Recovered %d queued jobs, failed %d interrupted jobs", requeued, interrupted)
	}
	return nil
}

// terminalMessage returns the message the job's error event carried.
func terminalMessage(j *models.Job) string {
	for _, msg := range []string{MsgCancelled, MsgInterrupted, MsgSourceGone, MsgUploadGone, MsgFailed} {
		if len(j.Error) >= len(msg) && j.Error[:len(msg)] == msg {
			return msg
		}
	}
	return MsgFailed
}
