package cron

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"cronwake/internal/constants"
	"cronwake/internal/logger"
)

// StoreFile is the entire persisted job document. It is read and written as
// one unit; there are no per-job partial writes.
type StoreFile struct {
	Version int        `json:"version"`
	Jobs    []*CronJob `json:"jobs"`
}

// Store reads and writes the job document at a fixed path.
type Store struct {
	filePath string
	logger   *logger.Logger
}

// NewStore creates a store for the document at filePath.
func NewStore(filePath string, log *logger.Logger) *Store {
	return &Store{
		filePath: filePath,
		logger:   log,
	}
}

// DefaultStorePath returns the conventional jobs file location inside a
// workspace directory.
func DefaultStorePath(workspacePath string) string {
	return filepath.Join(workspacePath, constants.CronSubdirectory, constants.CronJobsFile)
}

// Path returns the document path.
func (s *Store) Path() string {
	return s.filePath
}

// Load reads the job document. A missing file yields an empty current-version
// document rather than an error.
func (s *Store) Load() (*StoreFile, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &StoreFile{Version: constants.CronStoreVersion}, nil
		}
		return nil, fmt.Errorf("failed to read jobs file: %w", err)
	}

	var doc StoreFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse jobs file: %w", err)
	}
	if doc.Version == 0 {
		doc.Version = constants.CronStoreVersion
	}
	if doc.Jobs == nil {
		doc.Jobs = []*CronJob{}
	}
	return &doc, nil
}

// Save writes the whole job document using an atomic replace: the document
// is written to a temporary file, synced, then renamed over the target.
func (s *Store) Save(doc *StoreFile) error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal jobs: %w", err)
	}

	tmpPath := s.filePath + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temporary jobs file: %w", err)
	}

	if _, err := file.Write(append(data, '\n')); err != nil {
		file.Close()
		return fmt.Errorf("failed to write jobs file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync jobs file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close jobs file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("failed to replace jobs file: %w", err)
	}

	s.logger.Debug("job store saved",
		logger.Field{Key: "count", Value: len(doc.Jobs)},
		logger.Field{Key: "file", Value: s.filePath})
	return nil
}
