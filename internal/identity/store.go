package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	pidFileName   = "potterd.pid"
	buildFileName = "potterd.build.json"
	lockFileName  = "potterd.lock"

	lockRetryDelay = 50 * time.Millisecond
)

var (
	// ErrRaceDetected is returned by Claim when the persisted owner no longer
	// matches the expectation snapshot. The caller should re-run detection.
	ErrRaceDetected = errors.New("identity: claim race detected")
	// ErrNotOwner is returned by Clear when the persisted records belong to a
	// different process.
	ErrNotOwner = errors.New("identity: records owned by another process")
)

// Store persists instance identity records in a state directory.
// All mutations run under an exclusive file lock so that two launchers
// racing for ownership serialize their read-check-write sections.
type Store struct {
	dir string
}

func NewStore(dir string) *Store { return &Store{dir: dir} }

func (s *Store) Dir() string       { return s.dir }
func (s *Store) PIDPath() string   { return filepath.Join(s.dir, pidFileName) }
func (s *Store) buildPath() string { return filepath.Join(s.dir, buildFileName) }
func (s *Store) lockPath() string  { return filepath.Join(s.dir, lockFileName) }

// Load reads both records. Absent files yield nil fields. A file that exists
// but cannot be parsed sets Corrupt instead of failing; corrupted state is
// reclaimable by classification.
func (s *Store) Load() (Identity, error) {
	var id Identity

	b, err := os.ReadFile(s.PIDPath())
	switch {
	case err == nil:
		var mtime time.Time
		if st, serr := os.Stat(s.PIDPath()); serr == nil {
			mtime = st.ModTime().UTC()
		}
		rec, perr := parsePIDRecord(b, mtime)
		if perr != nil {
			id.Corrupt = fmt.Sprintf("pid record: %v", perr)
		} else {
			id.Process = rec
		}
	case os.IsNotExist(err):
		// no prior process record
	default:
		return id, err
	}

	bb, err := os.ReadFile(s.buildPath())
	switch {
	case err == nil:
		var rec BuildRecord
		if perr := json.Unmarshal(bb, &rec); perr != nil {
			if id.Corrupt != "" {
				id.Corrupt += "; "
			}
			id.Corrupt += fmt.Sprintf("build record: %v", perr)
		} else {
			id.Build = &rec
		}
	case os.IsNotExist(err):
		// no prior build record
	default:
		return id, err
	}

	return id, nil
}

// Claim atomically installs self as the instance owner. It re-reads the
// persisted state under the lock and refuses with ErrRaceDetected when the
// current owner differs from the expectation snapshot taken at classification
// time. The build record is written before the pid record so a pid record
// never exists without one.
func (s *Store) Claim(ctx context.Context, self, expect Identity) error {
	if self.Process == nil || self.Build == nil {
		return errors.New("identity: claim requires process and build records")
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return err
	}

	fl := flock.New(s.lockPath())
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return err
	}
	if !locked {
		return errors.New("identity: claim lock not acquired")
	}
	defer func() { _ = fl.Unlock() }()

	cur, err := s.Load()
	if err != nil {
		return err
	}
	if !sameOwner(cur, expect) {
		return ErrRaceDetected
	}

	if err := writeFileAtomic(s.buildPath(), encodeBuildRecord(self.Build), 0o600); err != nil {
		return err
	}
	return writeFileAtomic(s.PIDPath(), encodePIDRecord(self.Process), 0o600)
}

// Clear removes the records when they still belong to owner. Removing the pid
// record first preserves the no-pid-without-build ordering for readers. It is
// idempotent: absent records are success. Records held by a different live
// owner are left alone and ErrNotOwner is returned.
func (s *Store) Clear(ctx context.Context, owner Identity) error {
	fl := flock.New(s.lockPath())
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return err
	}
	if !locked {
		return errors.New("identity: clear lock not acquired")
	}
	defer func() { _ = fl.Unlock() }()

	cur, err := s.Load()
	if err != nil {
		return err
	}
	if cur.Empty() {
		return nil
	}
	// Corrupt state has no identifiable owner and may always be cleared.
	if cur.Process != nil && owner.Process != nil {
		if cur.Process.PID != owner.Process.PID || cur.Process.LaunchID != owner.Process.LaunchID {
			return ErrNotOwner
		}
	}
	return s.removeRecords()
}

// ForceClear removes the records unconditionally. Operator escape hatch.
func (s *Store) ForceClear(ctx context.Context) error {
	fl := flock.New(s.lockPath())
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return err
	}
	if !locked {
		return errors.New("identity: clear lock not acquired")
	}
	defer func() { _ = fl.Unlock() }()
	return s.removeRecords()
}

func (s *Store) removeRecords() error {
	if err := os.Remove(s.PIDPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(s.buildPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// sameOwner reports whether the freshly loaded state still shows the owner
// the caller classified against. An owner appearing where none was expected,
// or a changed pid/launch, means another launcher won the window.
func sameOwner(cur, expect Identity) bool {
	if cur.Process == nil {
		// Expected owner is gone or was never there. Either way nobody
		// else claimed; the claim may proceed.
		return true
	}
	if expect.Process == nil {
		return false
	}
	if cur.Process.PID != expect.Process.PID || cur.Process.LaunchID != expect.Process.LaunchID {
		return false
	}
	if cur.Build != nil && expect.Build != nil && cur.Build.BuildID != expect.Build.BuildID {
		return false
	}
	return true
}

// parsePIDRecord decodes the pid file: first line the pid, optional second
// line a JSON meta payload. mtime becomes RecordedAt.
func parsePIDRecord(data []byte, mtime time.Time) (*ProcessRecord, error) {
	pidLine, rest, _ := strings.Cut(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	pidStr := strings.TrimSpace(pidLine)
	if pidStr == "" {
		return nil, errors.New("empty pid line")
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid pid %q: %w", pidStr, err)
	}
	if pid <= 0 {
		return nil, fmt.Errorf("non-positive pid %d", pid)
	}
	rec := &ProcessRecord{PID: pid, RecordedAt: mtime}
	rest = strings.TrimSpace(rest)
	if rest != "" {
		// Meta is best-effort: a pid with garbage meta is still a valid record.
		var meta struct {
			LaunchID  string `json:"launch_id"`
			StartUnix int64  `json:"start_unix"`
		}
		if jerr := json.Unmarshal([]byte(rest), &meta); jerr == nil {
			rec.LaunchID = meta.LaunchID
			rec.StartUnix = meta.StartUnix
		}
	}
	return rec, nil
}

func encodePIDRecord(rec *ProcessRecord) []byte {
	meta, _ := json.Marshal(struct {
		LaunchID  string `json:"launch_id"`
		StartUnix int64  `json:"start_unix,omitempty"`
	}{LaunchID: rec.LaunchID, StartUnix: rec.StartUnix})
	return []byte(strconv.Itoa(rec.PID) + "\n" + string(meta) + "\n")
}

func encodeBuildRecord(rec *BuildRecord) []byte {
	b, _ := json.MarshalIndent(rec, "", "  ")
	return append(b, '\n')
}

// writeFileAtomic writes via a temp file in the same directory and renames it
// into place so readers never observe a partial record.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
