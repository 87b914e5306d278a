package sinks

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/JakeFAU/lore-harvester/internal/progress"
)

// JournalSink appends every event as one JSON line to a file, giving each
// output directory an audit trail of the runs that filled it.
type JournalSink struct {
	f *os.File
	w *bufio.Writer
}

type journalLine struct {
	RunID string `json:"run_id"`
	progress.Event
}

// NewJournalSink opens path for appending, creating parent directories.
func NewJournalSink(path string) (*JournalSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &JournalSink{f: f, w: bufio.NewWriter(f)}, nil
}

// Consume writes the batch and flushes it to disk.
func (s *JournalSink) Consume(_ context.Context, batch []progress.Event) error {
	enc := json.NewEncoder(s.w)
	for _, evt := range batch {
		if err := enc.Encode(journalLine{RunID: evt.RunUUID().String(), Event: evt}); err != nil {
			return fmt.Errorf("encode journal line: %w", err)
		}
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	return nil
}

// Close flushes and closes the file.
func (s *JournalSink) Close(context.Context) error {
	if err := s.w.Flush(); err != nil {
		_ = s.f.Close()
		return fmt.Errorf("flush journal: %w", err)
	}
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("close journal: %w", err)
	}
	return nil
}
