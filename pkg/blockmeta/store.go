package blockmeta

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blockd/blockd/internal/logger"
	"github.com/blockd/blockd/pkg/blockmeta/lock"
)

const lockFileName = "meta.lock"

// Store is a metadata store rooted at a configurable directory of
// per-volume subdirectories (<Root>/<volume>/<block>).
type Store struct {
	root  string
	locks *lock.Manager
}

// NewStore creates a metadata store rooted at root. root must already
// exist on the shared filesystem mount.
func NewStore(root string) *Store {
	return &Store{root: root, locks: lock.NewManager()}
}

// OpenVolume ensures the volume's directory exists and is reachable,
// returning the path callers pass to the remaining Store methods.
func (s *Store) OpenVolume(volume string) (string, error) {
	dir := filepath.Join(s.root, volume)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", newErr(ErrVolumeUnavailable, volume, "", fmt.Sprintf("open volume: %v", err))
	}
	return dir, nil
}

// Lock blocks until the volume's exclusive metadata lock is held or ctx is
// done. The returned Token must be released via Unlock when the caller's
// command boundary ends.
func (s *Store) Lock(ctx context.Context, volume string) (*lock.Token, error) {
	dir, err := s.OpenVolume(volume)
	if err != nil {
		return nil, err
	}
	tok, err := s.locks.Acquire(ctx, volume, filepath.Join(dir, lockFileName))
	if err != nil {
		if errors.Is(err, lock.ErrBusy) {
			return nil, newErr(ErrLockBusy, volume, "", "lock busy")
		}
		return nil, newErr(ErrIO, volume, "", err.Error())
	}
	return tok, nil
}

func (s *Store) blockPath(volume, block string) string {
	return filepath.Join(s.root, volume, block)
}

// Access reports whether a block's metadata file exists.
func (s *Store) Access(volume, block string) bool {
	_, err := os.Stat(s.blockPath(volume, block))
	return err == nil
}

// ReadMeta parses a block's metadata log into a MetaInfo projection.
// Callers must hold Lock(volume) first.
func (s *Store) ReadMeta(volume, block string) (*MetaInfo, error) {
	f, err := os.Open(s.blockPath(volume, block))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newErr(ErrNotFound, volume, block, "block not found")
		}
		return nil, newErr(ErrIO, volume, block, err.Error())
	}
	defer f.Close()

	m, err := parseLog(volume, block, f)
	if err != nil {
		return nil, newErr(ErrCorrupt, volume, block, err.Error())
	}
	return m, nil
}

// ReadRawLog returns a block's metadata log verbatim, for archival.
// Callers must hold Lock(volume) first.
func (s *Store) ReadRawLog(volume, block string) ([]byte, error) {
	data, err := os.ReadFile(s.blockPath(volume, block))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, newErr(ErrNotFound, volume, block, "block not found")
		}
		return nil, newErr(ErrIO, volume, block, err.Error())
	}
	return data, nil
}

// AppendMeta atomically appends a single "KEY: VALUE" line to the block's
// metadata log. Callers must hold Lock(volume).
func (s *Store) AppendMeta(volume, block, line string) error {
	f, err := os.OpenFile(s.blockPath(volume, block), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return newErr(ErrIO, volume, block, err.Error())
	}
	defer f.Close()

	if _, err := f.WriteString(line + "\n"); err != nil {
		return newErr(ErrIO, volume, block, err.Error())
	}
	return nil
}

// AppendHostStatus appends a "<addr>: STATUS" transition line.
func (s *Store) AppendHostStatus(volume, block, addr string, status Status) error {
	return s.AppendMeta(volume, block, fmt.Sprintf("%s: %s", addr, status))
}

// AppendEntryStatus appends an unprefixed entry-level lifecycle line, e.g.
// "ENTRYCREATE: INPROGRESS".
func (s *Store) AppendEntryStatus(volume, block string, phase EntryPhase, outcome EntryOutcome) error {
	return s.AppendMeta(volume, block, fmt.Sprintf("%s: %s", phase.Key(), outcome))
}

// AppendHeader writes a "KEY: VALUE" header line (VOLUME, GBID, HA, SIZE,
// PASSWORD).
func (s *Store) AppendHeader(volume, block, key, value string) error {
	return s.AppendMeta(volume, block, fmt.Sprintf("%s: %s", key, value))
}

// ListBlocks scans the volume directory, excluding ".", "..", the lock
// file and the ".data-<block>" backing files.
func (s *Store) ListBlocks(volume string) ([]string, error) {
	dir, err := s.OpenVolume(volume)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, newErr(ErrIO, volume, "", err.Error())
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || e.Name() == lockFileName || strings.HasPrefix(e.Name(), ".data-") {
			continue
		}
		out = append(out, e.Name())
	}
	return out, nil
}

// DeleteMeta removes a block's metadata file. Callers must have already
// recorded ENTRYDELETE:SUCCESS.
func (s *Store) DeleteMeta(volume, block string) error {
	if err := os.Remove(s.blockPath(volume, block)); err != nil && !os.IsNotExist(err) {
		return newErr(ErrIO, volume, block, err.Error())
	}
	return nil
}

// CreateBackingFile creates the block's data file in the volume at the
// given size. When prealloc is true the file is fully allocated (written
// with real blocks) rather than left sparse.
func (s *Store) CreateBackingFile(volume, block string, size int64, prealloc bool) error {
	path := filepath.Join(s.root, volume, ".data-"+block)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return newErr(ErrIO, volume, block, fmt.Sprintf("create backing file: %v", err))
	}
	defer f.Close()

	if err := f.Truncate(size); err != nil {
		return newErr(ErrIO, volume, block, fmt.Sprintf("truncate backing file: %v", err))
	}
	if prealloc {
		if err := preallocate(f, size); err != nil {
			return newErr(ErrIO, volume, block, fmt.Sprintf("preallocate backing file: %v", err))
		}
	}
	return nil
}

// BackingFilePath returns the path of a block's backing data file.
func (s *Store) BackingFilePath(volume, block string) string {
	return filepath.Join(s.root, volume, ".data-"+block)
}

// RemoveBackingFile unlinks the block's backing data file.
func (s *Store) RemoveBackingFile(volume, block string) error {
	if err := os.Remove(s.BackingFilePath(volume, block)); err != nil && !os.IsNotExist(err) {
		return newErr(ErrIO, volume, block, err.Error())
	}
	return nil
}

// preallocate writes zero blocks across the full file so every byte is
// materialized on the shared filesystem rather than left sparse.
func preallocate(f *os.File, size int64) error {
	const chunk = 4 << 20
	buf := make([]byte, chunk)
	var written int64
	for written < size {
		n := int64(len(buf))
		if remaining := size - written; remaining < n {
			n = remaining
		}
		if _, err := f.WriteAt(buf[:n], written); err != nil {
			return err
		}
		written += n
	}
	return f.Sync()
}

// LogDuration logs the wall-clock time an operation spent under the
// metadata lock, for slow-lock diagnosis.
func LogDuration(ctx context.Context, op, volume string, start time.Time) {
	logger.DebugCtx(ctx, "metadata operation complete",
		logger.Op(op), logger.Volume(volume), logger.DurationMs(logger.Duration(start)))
}
