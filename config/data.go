package config

import (
	"os"
	"path/filepath"
)

// getDataDir determines the data directory path from environment or default.
// Priority: ROUNDIFY_DATA_DIR environment variable > "./data" default
func getDataDir() string {
	if dir := os.Getenv("ROUNDIFY_DATA_DIR"); dir != "" {
		return dir
	}
	return "./data"
}

// GetDataDir returns the data directory used when no config file sets one.
// Checked at call time so tests and wrappers can change the environment.
func GetDataDir() string {
	return getDataDir()
}

// GetWorkDir returns the directory holding uploaded sources while their
// jobs are pending. Configurable via ROUNDIFY_WORK_DIR, defaults to
// {os.TempDir()}/roundify.
func GetWorkDir() string {
	if dir := os.Getenv("ROUNDIFY_WORK_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(os.TempDir(), "roundify")
}

// GetDirectServeBaseDir returns the base directory for finished artifacts.
// Files here are only reachable through signed download links.
// Configurable via ROUNDIFY_SERVE_DIR for server administrators.
// Defaults to "./serve" relative to the executable.
func GetDirectServeBaseDir() string {
	if dir := os.Getenv("ROUNDIFY_SERVE_DIR"); dir != "" {
		return dir
	}
	return "./serve"
}

// CredentialsDBPath returns the full path to the credentials database.
// The credentials database stores mirror backend access information.
// Path: {DataDir}/credentials.db
func (p Paths) CredentialsDBPath() string {
	return filepath.Join(p.DataDir, "credentials.db")
}

// FailuresDBPath returns the full path to the failures database.
// Path: {DataDir}/failures.db
func (p Paths) FailuresDBPath() string {
	return filepath.Join(p.DataDir, "failures.db")
}

// SuccessDBPath returns the full path to the success database.
// The success database tracks finished artifacts and their expiry.
// Path: {DataDir}/success.db
func (p Paths) SuccessDBPath() string {
	return filepath.Join(p.DataDir, "success.db")
}

// JobsDBPath returns the full path to the job record database.
// Path: {DataDir}/jobs.db
func (p Paths) JobsDBPath() string {
	return filepath.Join(p.DataDir, "jobs.db")
}
