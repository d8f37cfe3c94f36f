// Package ledger implements the append-only audit trail as line-delimited
// JSON on disk. Segments rotate by size; rotated segments are immutable and
// may be archived or compacted by external housekeeping, never by the writer.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alanyoungcy/tradexec/internal/domain"
)

// AuditWriter appends audit entries to the current segment file. It is safe
// for concurrent appends from multiple pipeline tasks; entries for the same
// order arrive from its single owning task and so stay strictly ordered.
type AuditWriter struct {
	dir        string
	maxSegment int64 // bytes before rotation

	mu      sync.Mutex
	current *os.File
	size    int64
}

// NewAuditWriter opens (or creates) the current segment in dir. maxSegment
// bounds segment size in bytes; zero disables rotation.
func NewAuditWriter(dir string, maxSegment int64) (*AuditWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ledger: create audit dir: %w", err)
	}
	w := &AuditWriter{dir: dir, maxSegment: maxSegment}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *AuditWriter) currentPath() string {
	return filepath.Join(w.dir, "audit.jsonl")
}

func (w *AuditWriter) open() error {
	fh, err := os.OpenFile(w.currentPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("ledger: open audit segment: %w", err)
	}
	info, err := fh.Stat()
	if err != nil {
		_ = fh.Close()
		return fmt.Errorf("ledger: stat audit segment: %w", err)
	}
	w.current = fh
	w.size = info.Size()
	return nil
}

// Append implements domain.AuditSink. Each entry becomes one JSON line.
func (w *AuditWriter) Append(ctx context.Context, entry domain.AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("ledger: marshal audit entry: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.maxSegment > 0 && w.size+int64(len(data)) > w.maxSegment {
		if err := w.rotateLocked(); err != nil {
			return err
		}
	}
	n, err := w.current.Write(data)
	w.size += int64(n)
	if err != nil {
		return fmt.Errorf("ledger: append audit entry: %w", err)
	}
	return nil
}

// Rotate closes the current segment under a timestamped name and starts a
// fresh one. Exposed so the archiver can force a rotation before upload.
func (w *AuditWriter) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotateLocked()
}

func (w *AuditWriter) rotateLocked() error {
	if w.size == 0 {
		return nil
	}
	if err := w.current.Close(); err != nil {
		return fmt.Errorf("ledger: close audit segment: %w", err)
	}
	rotated := filepath.Join(w.dir, fmt.Sprintf("audit-%s.jsonl", time.Now().UTC().Format("20060102T150405.000000000")))
	if err := os.Rename(w.currentPath(), rotated); err != nil {
		return fmt.Errorf("ledger: rotate audit segment: %w", err)
	}
	return w.open()
}

// RotatedSegments lists completed (rotated) segment paths, oldest first.
func (w *AuditWriter) RotatedSegments() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("ledger: list audit dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == "audit.jsonl" {
			continue
		}
		if filepath.Ext(name) == ".jsonl" {
			out = append(out, filepath.Join(w.dir, name))
		}
	}
	return out, nil
}

// Close flushes and closes the current segment.
func (w *AuditWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return nil
	}
	err := w.current.Close()
	w.current = nil
	return err
}

var _ domain.AuditSink = (*AuditWriter)(nil)
