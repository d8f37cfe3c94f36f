package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradexec/internal/domain"
)

func testEntry(kind domain.AuditKind, correlationID string) domain.AuditEntry {
	return domain.AuditEntry{
		TS:            time.Now().UTC(),
		Kind:          kind,
		CorrelationID: correlationID,
		Payload:       map[string]any{"stage": "risk_gate"},
	}
}

func TestAuditWriterAppendsJSONLines(t *testing.T) {
	dir := t.TempDir()
	w, err := NewAuditWriter(dir, 0)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Append(context.Background(), testEntry(domain.AuditKindIntent, "c1")))
	require.NoError(t, w.Append(context.Background(), testEntry(domain.AuditKindResult, "c1")))

	fh, err := os.Open(filepath.Join(dir, "audit.jsonl"))
	require.NoError(t, err)
	defer fh.Close()

	var kinds []domain.AuditKind
	sc := bufio.NewScanner(fh)
	for sc.Scan() {
		var entry domain.AuditEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &entry))
		kinds = append(kinds, entry.Kind)
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []domain.AuditKind{domain.AuditKindIntent, domain.AuditKindResult}, kinds)
}

func TestAuditWriterRotatesBySize(t *testing.T) {
	dir := t.TempDir()
	w, err := NewAuditWriter(dir, 256)
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 20; i++ {
		require.NoError(t, w.Append(context.Background(), testEntry(domain.AuditKindStage, "c1")))
	}

	rotated, err := w.RotatedSegments()
	require.NoError(t, err)
	assert.NotEmpty(t, rotated, "appends past the segment bound must rotate")

	// The live segment is never listed as rotated.
	for _, p := range rotated {
		assert.NotEqual(t, "audit.jsonl", filepath.Base(p))
	}
}

func TestAuditWriterRotateOnEmptySegmentIsNoop(t *testing.T) {
	dir := t.TempDir()
	w, err := NewAuditWriter(dir, 0)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Rotate())

	rotated, err := w.RotatedSegments()
	require.NoError(t, err)
	assert.Empty(t, rotated)
}

func TestAuditWriterExplicitRotateStartsFreshSegment(t *testing.T) {
	dir := t.TempDir()
	w, err := NewAuditWriter(dir, 0)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Append(context.Background(), testEntry(domain.AuditKindIntent, "c1")))
	require.NoError(t, w.Rotate())
	require.NoError(t, w.Append(context.Background(), testEntry(domain.AuditKindResult, "c2")))

	rotated, err := w.RotatedSegments()
	require.NoError(t, err)
	require.Len(t, rotated, 1)

	info, err := os.Stat(filepath.Join(dir, "audit.jsonl"))
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestAuditWriterConcurrentAppends(t *testing.T) {
	dir := t.TempDir()
	w, err := NewAuditWriter(dir, 0)
	require.NoError(t, err)
	defer w.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.NoError(t, w.Append(context.Background(), testEntry(domain.AuditKindStage, "c1")))
			}
		}()
	}
	wg.Wait()

	fh, err := os.Open(filepath.Join(dir, "audit.jsonl"))
	require.NoError(t, err)
	defer fh.Close()

	lines := 0
	sc := bufio.NewScanner(fh)
	for sc.Scan() {
		var entry domain.AuditEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &entry), "interleaved writes must not tear lines")
		lines++
	}
	assert.Equal(t, 400, lines)
}

// failingSink always errors.
type failingSink struct{}

func (failingSink) Append(ctx context.Context, entry domain.AuditEntry) error {
	return errors.New("sink down")
}

// countingSink records appends.
type countingSink struct {
	mu    sync.Mutex
	count int
}

func (s *countingSink) Append(ctx context.Context, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	return nil
}

func TestFanoutSinkAppendsToEverySink(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	fan := NewFanoutSink(a, b)

	require.NoError(t, fan.Append(context.Background(), testEntry(domain.AuditKindIntent, "c1")))
	assert.Equal(t, 1, a.count)
	assert.Equal(t, 1, b.count)
}

func TestFanoutSinkKeepsWritingPastFailures(t *testing.T) {
	healthy := &countingSink{}
	fan := NewFanoutSink(failingSink{}, healthy)

	err := fan.Append(context.Background(), testEntry(domain.AuditKindIntent, "c1"))
	require.Error(t, err)
	assert.Equal(t, 1, healthy.count, "a failing sink must not starve the others")
}
