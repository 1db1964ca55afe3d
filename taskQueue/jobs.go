package taskqueue

import (
	"encoding/json"
	"fmt"
	"sort"

	"roundify/logger"
	"roundify/models"
)

// JobStore persists job records in a DBQueue keyed by job id.
type JobStore struct {
	q *DBQueue
}

// OpenJobStore opens the job database at path.
func OpenJobStore(path string) (*JobStore, error) {
	q, err := OpenQueue(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open job store: %w", err)
	}
	return &JobStore{q: q}, nil
}

// Put writes j, replacing any previous record.
func (s *JobStore) Put(j *models.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", j.ID, err)
	}
	return s.q.Add(j.ID, data)
}

// Get loads a job. A missing job returns ErrNotFound.
func (s *JobStore) Get(id string) (*models.Job, error) {
	data, err := s.q.Get(id)
	if err != nil {
		return nil, err
	}
	var j models.Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	return &j, nil
}

// Delete removes a job record.
func (s *JobStore) Delete(id string) error {
	return s.q.Delete(id)
}

// List returns every readable job ordered by creation time.
func (s *JobStore) List() ([]*models.Job, error) {
	var jobs []*models.Job
	err := s.q.Each(func(key, value []byte) error {
		var j models.Job
		if err := json.Unmarshal(value, &j); err != nil {
			logger.Warnf("skipping unreadable job record %s: %v", key, err)
			return nil
		}
		jobs = append(jobs, &j)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(jobs, func(a, b int) bool {
		return jobs[a].CreatedAt.Before(jobs[b].CreatedAt)
	})
	return jobs, nil
}

// Close closes the underlying database.
func (s *JobStore) Close() error {
	return s.q.Close()
}
