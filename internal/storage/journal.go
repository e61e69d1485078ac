package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SnapshotJournal appends aggregate message views to a JSONL file. It is the
// outbound state-snapshot surface: every mutated aggregate gets one line that
// downstream consumers can tail.
type SnapshotJournal struct {
	path string
	mu   sync.Mutex
}

func NewSnapshotJournal(path string) *SnapshotJournal {
	return &SnapshotJournal{path: path}
}

type snapshotLine struct {
	Kind       string         `json:"kind"`
	RecordedAt string         `json:"recorded_at"`
	Snapshot   map[string]any `json:"snapshot"`
}

// Append writes one snapshot line per view. A nil journal is a no-op so
// callers can leave the journal unconfigured.
func (j *SnapshotJournal) Append(kind string, views ...map[string]any) error {
	if j == nil || j.path == "" || len(views) == 0 {
		return nil
	}

	dir := filepath.Dir(j.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	recordedAt := time.Now().UTC().Format(time.RFC3339Nano)
	for _, view := range views {
		line, err := json.Marshal(snapshotLine{Kind: kind, RecordedAt: recordedAt, Snapshot: view})
		if err != nil {
			return fmt.Errorf("marshal snapshot: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}

	return nil
}
