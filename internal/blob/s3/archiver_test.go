package s3blob

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memBlobWriter captures uploads in memory.
type memBlobWriter struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newMemBlobWriter() *memBlobWriter {
	return &memBlobWriter{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (w *memBlobWriter) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if w.err != nil {
		return w.err
	}
	w.objects[key] = data
	w.types[key] = contentType
	return nil
}

// dirSegments serves sealed segments from a directory.
type dirSegments struct {
	dir     string
	rotated int
}

func (s *dirSegments) Rotate() error {
	s.rotated++
	return nil
}

func (s *dirSegments) RotatedSegments() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		out = append(out, filepath.Join(s.dir, e.Name()))
	}
	return out, nil
}

func writeSegment(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestSweepUploadsAndRemovesSegments(t *testing.T) {
	dir := t.TempDir()
	writeSegment(t, dir, "audit-20260830T120000.000000000.jsonl", `{"kind":"INTENT"}`+"\n")
	writeSegment(t, dir, "audit-20260830T130000.000000000.jsonl", `{"kind":"RESULT"}`+"\n")

	writer := newMemBlobWriter()
	a := NewArchiver(writer, &dirSegments{dir: dir}, time.Hour, testLogger())

	n, err := a.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "uploaded segments must be removed locally")

	month := time.Now().UTC().Format("2006-01")
	key := "audit/" + month + "/audit-20260830T120000.000000000.jsonl"
	assert.Equal(t, []byte(`{"kind":"INTENT"}`+"\n"), writer.objects[key])
	assert.Equal(t, "application/x-ndjson", writer.types[key])
}

func TestSweepEmptyDirectoryArchivesNothing(t *testing.T) {
	writer := newMemBlobWriter()
	a := NewArchiver(writer, &dirSegments{dir: t.TempDir()}, time.Hour, testLogger())

	n, err := a.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, writer.objects)
}

func TestSweepKeepsLocalFileOnUploadFailure(t *testing.T) {
	dir := t.TempDir()
	writeSegment(t, dir, "audit-20260830T120000.000000000.jsonl", "{}\n")

	writer := newMemBlobWriter()
	writer.err = errors.New("bucket unavailable")
	a := NewArchiver(writer, &dirSegments{dir: dir}, time.Hour, testLogger())

	n, err := a.Sweep(context.Background())
	require.Error(t, err)
	assert.Zero(t, n)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "a failed upload must leave the segment for the next sweep")
}

func TestRunFinalSweepRotatesOnShutdown(t *testing.T) {
	dir := t.TempDir()
	writeSegment(t, dir, "audit-20260830T120000.000000000.jsonl", "{}\n")

	writer := newMemBlobWriter()
	segments := &dirSegments{dir: dir}
	a := NewArchiver(writer, segments, time.Hour, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := a.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 1, segments.rotated, "shutdown must seal the active segment")
	assert.Len(t, writer.objects, 1)
}
