package success

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pebble "github.com/cockroachdb/pebble"
)

// SuccessRecord describes a finished artifact and how long it stays reachable.
type SuccessRecord struct {
	Job       string    `json:"job"`
	File      string    `json:"file"` // artifact filename in the serve dir
	Download  string    `json:"download"`
	TTL       int       `json:"ttl"` // seconds
	ExpiresAt time.Time `json:"expires_at"`
	Telegram  bool      `json:"telegram"`
	Mirrored  string    `json:"mirrored,omitempty"` // backend type the artifact was copied to
	Timestamp time.Time `json:"timestamp"`          // completion time
	JobData   string    `json:"job_data"`           // JSON string of the job record
}

// Expired reports whether the artifact is no longer downloadable at now.
func (r SuccessRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

var db *pebble.DB

// Init initializes the success store
func Init(dbPath string) error {
	var err error
	db, err = pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return fmt.Errorf("failed to open success store: %w", err)
	}
	return nil
}

// Close closes the success store
func Close() error {
	if db != nil {
		err := db.Close()
		db = nil
		return err
	}
	return nil
}

// StoreSuccess stores a finished artifact. jobData is kept for inspection.
func StoreSuccess(record SuccessRecord, jobData interface{}) error {
	if db == nil {
		return fmt.Errorf("success store not initialized")
	}

	jobJSON, jsonErr := json.Marshal(jobData)
	if jsonErr != nil {
		jobJSON = []byte(fmt.Sprintf("failed to marshal job data: %v", jsonErr))
	}
	record.JobData = string(jobJSON)
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal success record: %w", err)
	}
	return db.Set([]byte(record.Job), data, pebble.Sync)
}

// GetSuccess retrieves a success record by job id. A missing record
// returns nil, nil.
func GetSuccess(job string) (*SuccessRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("success store not initialized")
	}

	data, closer, err := db.Get([]byte(job))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil // Not found is not an error
		}
		return nil, err
	}
	defer closer.Close()

	var record SuccessRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal success record: %w", err)
	}
	return &record, nil
}

// DeleteSuccess removes a success record
func DeleteSuccess(job string) error {
	if db == nil {
		return fmt.Errorf("success store not initialized")
	}
	return db.Delete([]byte(job), pebble.Sync)
}

// ListSuccessRecords returns all success records (for admin/debugging)
func ListSuccessRecords() ([]SuccessRecord, error) {
	if db == nil {
		return nil, fmt.Errorf("success store not initialized")
	}

	var records []SuccessRecord
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var record SuccessRecord
		if err := json.Unmarshal(iter.Value(), &record); err != nil {
			continue // Skip invalid records
		}
		records = append(records, record)
	}
	return records, iter.Error()
}

// CleanupExpired removes records whose artifact expired at or before now
// and returns them so the caller can delete the files. The deletions are
// committed as one batch.
func CleanupExpired(now time.Time) ([]SuccessRecord, error) {
	records, err := ListSuccessRecords()
	if err != nil {
		return nil, err
	}

	batch := db.NewBatch()
	defer batch.Close()
	var removed []SuccessRecord
	for _, record := range records {
		if !record.Expired(now) {
			continue
		}
		if err := batch.Delete([]byte(record.Job), nil); err != nil {
			return nil, fmt.Errorf("failed to queue expired success record: %w", err)
		}
		removed = append(removed, record)
	}
	if len(removed) == 0 {
		return nil, nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return nil, fmt.Errorf("failed to delete expired success records: %w", err)
	}
	return removed, nil
}

// CheckHealth performs a basic health check on the success database
func CheckHealth() error {
	if db == nil {
		return fmt.Errorf("success database not initialized")
	}

	_, closer, err := db.Get([]byte("__health_check__"))
	if err != nil && !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("database health check failed: %w", err)
	}
	if closer != nil {
		closer.Close()
	}
	return nil
}
