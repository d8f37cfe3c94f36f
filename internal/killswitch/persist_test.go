package killswitch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradexec/internal/domain"
)

func TestFileStoreLoadMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "state.json"), t.TempDir(), 10)

	_, found, err := store.Load()
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "state.json"), filepath.Join(dir, "backups"), 10)

	want := Snapshot{
		State:               StateRecovering,
		TriggeredAt:         time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		TriggerReason:       "drawdown breach",
		RecoveryRequestedAt: time.Date(2026, 8, 30, 13, 0, 0, 0, time.UTC),
		PositionLimitFactor: 0.5,
		RecoveryStage:       RecoveryStage1,
		UpdatedAt:           time.Date(2026, 8, 30, 13, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Persist(want))

	got, found, err := store.Load()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want, got)
}

func TestFileStorePersistLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	store := NewFileStore(path, filepath.Join(dir, "backups"), 10)

	require.NoError(t, store.Persist(Snapshot{State: StateActive, PositionLimitFactor: 1.0}))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreLoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{truncated"), 0o644))

	store := NewFileStore(path, filepath.Join(dir, "backups"), 10)
	_, _, err := store.Load()
	require.ErrorIs(t, err, domain.ErrStateCorrupt)
}

func TestFileStoreLoadUnknownState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"state":"EXPLODED"}`), 0o644))

	store := NewFileStore(path, filepath.Join(dir, "backups"), 10)
	_, _, err := store.Load()
	require.ErrorIs(t, err, domain.ErrStateCorrupt)
	assert.Contains(t, err.Error(), "EXPLODED")
}

func TestFileStoreBacksUpPreviousState(t *testing.T) {
	dir := t.TempDir()
	backups := filepath.Join(dir, "backups")
	store := NewFileStore(filepath.Join(dir, "state.json"), backups, 10)

	require.NoError(t, store.Persist(Snapshot{State: StateActive, PositionLimitFactor: 1.0}))
	require.NoError(t, store.Persist(Snapshot{State: StateKilled}))

	entries, err := os.ReadDir(backups)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "second persist must back up the first record")
}

func TestFileStorePrunesOldBackups(t *testing.T) {
	dir := t.TempDir()
	backups := filepath.Join(dir, "backups")
	store := NewFileStore(filepath.Join(dir, "state.json"), backups, 3)

	for i := 0; i < 8; i++ {
		require.NoError(t, store.Persist(Snapshot{State: StateActive, PositionLimitFactor: 1.0}))
	}

	entries, err := os.ReadDir(backups)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(entries), 3)
}
