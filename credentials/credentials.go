package credentials

import (
	"encoding/json"
	"errors"
	"fmt"

	"roundify/logger"
	"roundify/models"
	"roundify/utils"

	"github.com/cockroachdb/pebble"
)

// ErrNotFound is returned for an unknown access key.
var ErrNotFound = errors.New("credentials not found")

var db *pebble.DB

// OpenDB opens the Pebble DB for credentials at the specified path
func OpenDB(dbPath string) error {
	var err error
	db, err = pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		logger.Errorf("Failed to open Pebble DB: %v", err)
		return err
	}
	return nil
}

// CloseDB closes the DB
func CloseDB() error {
	if db != nil {
		err := db.Close()
		db = nil
		return err
	}
	return nil
}

// Register stores target under a freshly generated access key and
// returns the key.
func Register(target models.StorageTarget) (string, error) {
	key, err := utils.GenerateRandomHex(16)
	if err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	if err := StoreCredentials(key, target); err != nil {
		return "", err
	}
	return key, nil
}

// GetCredentials loads the mirror target registered under key.
func GetCredentials(key string) (models.StorageTarget, error) {
	if db == nil {
		return models.StorageTarget{}, fmt.Errorf("credentials store not initialized")
	}
	value, closer, err := db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return models.StorageTarget{}, ErrNotFound
		}
		return models.StorageTarget{}, err
	}
	defer closer.Close()

	var target models.StorageTarget
	if err := json.Unmarshal(value, &target); err != nil {
		return models.StorageTarget{}, err
	}
	return target, nil
}

// Exists reports whether key is registered.
func Exists(key string) bool {
	_, err := GetCredentials(key)
	return err == nil
}

// StoreCredentials stores the target under the given key
func StoreCredentials(key string, target models.StorageTarget) error {
	if db == nil {
		return fmt.Errorf("credentials store not initialized")
	}
	encoded, err := json.Marshal(target)
	if err != nil {
		return err
	}
	return db.Set([]byte(key), encoded, pebble.Sync)
}

// DeleteCredentials deletes the credentials for the given key
func DeleteCredentials(key string) error {
	if db == nil {
		return fmt.Errorf("credentials store not initialized")
	}
	return db.Delete([]byte(key), pebble.Sync)
}
