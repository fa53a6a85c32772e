package scheduler

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mkravets/omnibot/internal/logger"
)

const (
	// JobsFilename is the durable job file inside the scheduler directory.
	JobsFilename = "jobs.jsonl"
)

// Storage persists jobs as JSONL, one job per line, rewritten atomically on
// every change so a crash mid-write never leaves a torn file. Every change
// is a load-modify-save of the whole file, so writes are serialized with a
// mutex: pool workers fire jobs concurrently and an unserialized rewrite
// would erase one job's transition with another's stale snapshot.
type Storage struct {
	filePath string
	logger   *logger.Logger

	mu sync.Mutex
}

// NewStorage creates job storage under dir.
func NewStorage(dir string, log *logger.Logger) *Storage {
	return &Storage{
		filePath: filepath.Join(dir, JobsFilename),
		logger:   log,
	}
}

// Load reads all persisted jobs. A missing file is an empty job set;
// malformed lines are skipped so one bad record cannot take out the rest.
func (s *Storage) Load() ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Storage) load() ([]Job, error) {
	file, err := os.Open(s.filePath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open job storage: %w", err)
	}
	defer file.Close()

	var jobs []Job
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var job Job
		if err := json.Unmarshal(line, &job); err != nil {
			s.logger.Error("failed to unmarshal job line", err,
				logger.Field{Key: "file", Value: s.filePath},
				logger.Field{Key: "line", Value: lineNum})
			continue
		}
		jobs = append(jobs, job)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan job storage: %w", err)
	}
	return jobs, nil
}

// Save writes the full job set with an atomic tmp-file rename.
func (s *Storage) Save(jobs []Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(jobs)
}

func (s *Storage) save(jobs []Job) error {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	tmpPath := s.filePath + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create temporary job file: %w", err)
	}
	defer file.Close()

	for _, job := range jobs {
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
		}
		if _, err := file.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write job %s: %w", job.ID, err)
		}
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync job file: %w", err)
	}
	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("failed to replace job file: %w", err)
	}

	s.logger.Debug("jobs saved",
		logger.Field{Key: "count", Value: len(jobs)},
		logger.Field{Key: "file", Value: s.filePath})
	return nil
}

// Upsert replaces the stored record for job.ID, or appends it if new. The
// read-modify-write is one critical section so concurrent upserts of
// different jobs cannot overwrite each other's records.
func (s *Storage) Upsert(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return err
	}

	found := false
	for i := range jobs {
		if jobs[i].ID == job.ID {
			jobs[i] = job
			found = true
			break
		}
	}
	if !found {
		jobs = append(jobs, job)
	}
	return s.save(jobs)
}

// Remove deletes the stored record for jobID.
func (s *Storage) Remove(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return err
	}

	filtered := jobs[:0]
	for _, job := range jobs {
		if job.ID != jobID {
			filtered = append(filtered, job)
		}
	}
	return s.save(filtered)
}
