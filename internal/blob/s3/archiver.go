package s3blob

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/alanyoungcy/tradexec/internal/domain"
)

// SegmentSource yields completed audit segments for archival. The audit
// writer satisfies this: Rotate seals the active segment and
// RotatedSegments lists sealed files oldest first.
type SegmentSource interface {
	Rotate() error
	RotatedSegments() ([]string, error)
}

// Archiver uploads sealed audit segments to object storage and removes the
// local copy once the upload succeeds. Segments are immutable after rotation,
// so a re-run after a partial failure re-uploads the same bytes.
type Archiver struct {
	writer   domain.BlobWriter
	segments SegmentSource
	interval time.Duration
	logger   *slog.Logger
}

// NewArchiver creates an Archiver that sweeps for sealed segments every
// interval.
func NewArchiver(writer domain.BlobWriter, segments SegmentSource, interval time.Duration, logger *slog.Logger) *Archiver {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Archiver{
		writer:   writer,
		segments: segments,
		interval: interval,
		logger:   logger.With("component", "audit_archiver"),
	}
}

// Run sweeps on a fixed interval until the context is cancelled. A final
// sweep with forced rotation runs on shutdown so the active segment is not
// stranded locally.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := a.segments.Rotate(); err != nil {
				a.logger.Warn("final rotation failed", "error", err)
			}
			if _, err := a.Sweep(flushCtx); err != nil {
				a.logger.Warn("final archive sweep failed", "error", err)
			}
			return ctx.Err()
		case <-ticker.C:
			if n, err := a.Sweep(ctx); err != nil {
				a.logger.Warn("archive sweep failed", "error", err)
			} else if n > 0 {
				a.logger.Info("archived audit segments", "count", n)
			}
		}
	}
}

// Sweep uploads every sealed segment and deletes each local file after its
// upload succeeds. It returns the number of segments archived.
func (a *Archiver) Sweep(ctx context.Context) (int, error) {
	paths, err := a.segments.RotatedSegments()
	if err != nil {
		return 0, fmt.Errorf("s3blob: list sealed segments: %w", err)
	}

	archived := 0
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return archived, fmt.Errorf("s3blob: read segment %s: %w", path, err)
		}

		key := archiveKey(path)
		if err := a.writer.Put(ctx, key, data, "application/x-ndjson"); err != nil {
			return archived, fmt.Errorf("s3blob: upload segment %s: %w", path, err)
		}

		if err := os.Remove(path); err != nil {
			return archived, fmt.Errorf("s3blob: remove archived segment %s: %w", path, err)
		}
		archived++
		a.logger.Debug("segment archived", "key", key)
	}
	return archived, nil
}

// archiveKey builds the object key for a sealed segment, partitioned by
// year-month so listings stay manageable:
//
//	audit/2026-08/audit-20260830T120000.000000000.jsonl
func archiveKey(path string) string {
	return fmt.Sprintf("audit/%s/%s", time.Now().UTC().Format("2006-01"), filepath.Base(path))
}
