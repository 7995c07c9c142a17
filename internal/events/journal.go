package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/altinn-access/go-core/pkg/types"
)

// journalRecord is one JSON line in the journal file.
type journalRecord struct {
	EventID   string                  `json:"eventId"`
	Timestamp time.Time               `json:"timestamp"`
	Change    *types.DelegationChange `json:"change"`
}

// FileJournal appends delegation change events to a rotated JSON-lines
// file. Used in local/single-instance runs where no broker is available.
type FileJournal struct {
	logger  *lumberjack.Logger
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewFileJournal creates a journal at the given path with rotation.
func NewFileJournal(filename string, maxSizeMB, maxAgeDays, maxBackups int) (*FileJournal, error) {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	rotated := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSizeMB,
		MaxAge:     maxAgeDays,
		MaxBackups: maxBackups,
		LocalTime:  true,
		Compress:   true,
	}

	return &FileJournal{
		logger:  rotated,
		encoder: json.NewEncoder(rotated),
	}, nil
}

// Push appends the change as one JSON line.
func (j *FileJournal) Push(_ context.Context, change *types.DelegationChange) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	record := journalRecord{
		EventID:   uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Change:    change,
	}
	if err := j.encoder.Encode(record); err != nil {
		return fmt.Errorf("write journal record: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.logger.Close()
}
