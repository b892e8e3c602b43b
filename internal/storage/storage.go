// Package storage archives backfill run reports so operators can see what
// each run selected, appended and skipped.
//
// Local deployments write JSON files under storage.local_path; AWS
// deployments write the full record to S3 and an index item per run to
// DynamoDB. The most recent runs are also kept in memory.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ignite/podmatch/internal/config"
	"github.com/ignite/podmatch/internal/domain"
	"github.com/ignite/podmatch/internal/pkg/logger"
)

// ErrRunNotFound is returned by GetRun for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

const maxRecent = 200

// RunRecord is everything archived about one backfill run.
type RunRecord struct {
	Summary      domain.BackfillSummary `json:"summary"`
	SelectedIDs  []string               `json:"selected_ids"`
	FilterReason string                 `json:"filter_reason,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// Storage is the run archive.
type Storage struct {
	config config.StorageConfig
	mu     sync.RWMutex

	// AWS storage (optional)
	aws *AWSStorage

	recent []RunRecord
}

// New creates a Storage for cfg.Type ("local" or "aws").
func New(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	switch cfg.Type {
	case "aws":
		awsStorage, err := NewAWSStorage(ctx, cfg.DynamoDBTable, cfg.S3Bucket, cfg.AWSRegion, cfg.GetAWSProfile(), cfg.RetentionDays)
		if err != nil {
			return nil, fmt.Errorf("initializing AWS storage: %w", err)
		}
		return NewWithAWS(cfg, awsStorage), nil
	}

	s := &Storage{config: cfg, recent: make([]RunRecord, 0, 16)}
	switch cfg.Type {
	case "local", "":
		if err := os.MkdirAll(cfg.LocalPath, 0755); err != nil {
			return nil, fmt.Errorf("creating storage directory: %w", err)
		}
		if err := s.loadFromDisk(); err != nil {
			logger.Warn("could not load archived runs", "path", cfg.LocalPath, "error", err)
		}
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
	return s, nil
}

// NewWithAWS wraps an existing AWS backend.
func NewWithAWS(cfg config.StorageConfig, a *AWSStorage) *Storage {
	cfg.Type = "aws"
	return &Storage{config: cfg, aws: a}
}

// SaveRun archives rec.
func (s *Storage) SaveRun(ctx context.Context, rec RunRecord) error {
	if rec.Summary.RunID == "" {
		return fmt.Errorf("run id is required")
	}

	s.mu.Lock()
	s.recent = append(s.recent, rec)
	if len(s.recent) > maxRecent {
		s.recent = s.recent[len(s.recent)-maxRecent:]
	}
	s.mu.Unlock()

	switch s.config.Type {
	case "aws":
		if s.aws != nil {
			return s.aws.SaveRun(ctx, rec)
		}
	default:
		return s.saveToFile(rec)
	}
	return nil
}

// GetRun returns an archived run.
func (s *Storage) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	s.mu.RLock()
	for i := len(s.recent) - 1; i >= 0; i-- {
		if s.recent[i].Summary.RunID == runID {
			rec := s.recent[i]
			s.mu.RUnlock()
			return &rec, nil
		}
	}
	s.mu.RUnlock()

	if s.aws != nil {
		return s.aws.GetRun(ctx, runID)
	}
	return nil, ErrRunNotFound
}

// RecentRuns returns up to limit runs for profileID, newest first. Local
// archives list all profiles when profileID is empty. The AWS index is
// keyed by profile, so there profileID is required.
func (s *Storage) RecentRuns(ctx context.Context, profileID string, limit int) ([]domain.BackfillSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	if s.aws != nil {
		if profileID == "" {
			return nil, fmt.Errorf("%w: profile_id is required when runs are archived to AWS", domain.ErrValidation)
		}
		return s.aws.ListRuns(ctx, profileID, limit)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.BackfillSummary, 0, limit)
	for i := len(s.recent) - 1; i >= 0 && len(out) < limit; i-- {
		if profileID == "" || s.recent[i].Summary.ProfileID == profileID {
			out = append(out, s.recent[i].Summary)
		}
	}
	return out, nil
}

// saveToFile writes runs/<YYYY-MM-DD>/<run id>.json.
func (s *Storage) saveToFile(rec RunRecord) error {
	day := rec.Summary.StartedAt.UTC().Format("2006-01-02")
	dir := filepath.Join(s.config.LocalPath, "runs", day)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path := filepath.Join(dir, filepath.Base(rec.Summary.RunID)+".json")
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rec)
}

// loadFromDisk reloads runs from the retention window into memory.
func (s *Storage) loadFromDisk() error {
	runsDir := filepath.Join(s.config.LocalPath, "runs")
	days, err := os.ReadDir(runsDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays()).Format("2006-01-02")
	var loaded []RunRecord
	for _, day := range days {
		if !day.IsDir() || day.Name() < cutoff {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(runsDir, day.Name()))
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
				continue
			}
			data, err := os.ReadFile(filepath.Join(runsDir, day.Name(), entry.Name()))
			if err != nil {
				continue
			}
			var rec RunRecord
			if err := json.Unmarshal(data, &rec); err == nil {
				loaded = append(loaded, rec)
			}
		}
	}

	sort.Slice(loaded, func(i, j int) bool {
		return loaded[i].Summary.StartedAt.Before(loaded[j].Summary.StartedAt)
	})
	if len(loaded) > maxRecent {
		loaded = loaded[len(loaded)-maxRecent:]
	}
	s.recent = loaded
	return nil
}

func (s *Storage) retentionDays() int {
	if s.config.RetentionDays <= 0 {
		return 90
	}
	return s.config.RetentionDays
}
