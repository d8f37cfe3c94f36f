package killswitch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/alanyoungcy/tradexec/internal/domain"
)

// FileStore persists the switch state as a single JSON record on disk. Every
// write first copies the previous record to a timestamped backup, then writes
// the new record to a temp file and renames it into place, so a crash never
// leaves a half-written current state.
type FileStore struct {
	path      string
	backupDir string
	retain    int // backups kept; older ones are pruned
}

// NewFileStore creates a FileStore writing the current state to path and
// backups into backupDir. retain bounds how many backups are kept; zero or
// negative keeps them all.
func NewFileStore(path, backupDir string, retain int) *FileStore {
	return &FileStore{path: path, backupDir: backupDir, retain: retain}
}

// Persist durably records the snapshot.
func (f *FileStore) Persist(snap Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("killswitch: create state dir: %w", err)
	}

	if err := f.backupCurrent(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("killswitch: marshal state: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("killswitch: write state tmp: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("killswitch: commit state file: %w", err)
	}
	return nil
}

// Load reads the persisted snapshot. It returns found=false when no state
// file exists yet. A file that exists but cannot be parsed, or that holds an
// unknown state value, returns an error wrapping domain.ErrStateCorrupt so
// the switch can fail closed.
func (f *FileStore) Load() (Snapshot, bool, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("killswitch: read state file: %w (%w)", err, domain.ErrStateCorrupt)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("killswitch: parse state file: %w (%w)", err, domain.ErrStateCorrupt)
	}
	switch snap.State {
	case StateActive, StateKilled, StateRecovering:
	default:
		return Snapshot{}, false, fmt.Errorf("killswitch: unknown state %q: %w", snap.State, domain.ErrStateCorrupt)
	}
	return snap, true, nil
}

// backupCurrent copies the existing state file, if any, into the backup
// directory under a timestamped name, then prunes old backups.
func (f *FileStore) backupCurrent() error {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("killswitch: read state for backup: %w", err)
	}

	if err := os.MkdirAll(f.backupDir, 0o755); err != nil {
		return fmt.Errorf("killswitch: create backup dir: %w", err)
	}
	name := fmt.Sprintf("state-%s.json", time.Now().UTC().Format("20060102T150405.000000000"))
	if err := os.WriteFile(filepath.Join(f.backupDir, name), data, 0o644); err != nil {
		return fmt.Errorf("killswitch: write backup: %w", err)
	}
	f.prune()
	return nil
}

// prune removes the oldest backups beyond the retain bound. Errors are
// ignored: pruning is housekeeping, not part of the commit path.
func (f *FileStore) prune() {
	if f.retain <= 0 {
		return
	}
	entries, err := os.ReadDir(f.backupDir)
	if err != nil {
		return
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) <= f.retain {
		return
	}
	sort.Strings(names)
	for _, n := range names[:len(names)-f.retain] {
		_ = os.Remove(filepath.Join(f.backupDir, n))
	}
}
