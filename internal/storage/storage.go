// Package storage owns the on-disk model layout: one directory per model id
// holding the weights file and its manifest. No other component writes under
// the base directory.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"edgellm/internal/common/fsutil"
	"edgellm/pkg/types"
)

// SpaceSafetyMargin is the multiplier applied to a download's size before
// comparing against free disk space.
const SpaceSafetyMargin = 1.2

// checksumChunkSize bounds peak memory while hashing; weights files can
// exceed 3 GB.
const checksumChunkSize = 1 << 20

// ModelFileName is the primary weights file name inside a model directory.
const ModelFileName = "model.gguf"

// ManifestFileName is the manifest file name inside a model directory.
const ManifestFileName = "manifest.json"

// Store manages all filesystem state under one base directory.
type Store struct {
	baseDir string
	log     zerolog.Logger

	// freeSpace is swappable for tests; defaults to a statfs-based probe.
	freeSpace func(path string) (int64, error)
}

// New creates the base directory if needed and returns a Store.
func New(baseDir string, log zerolog.Logger) (*Store, error) {
	dir, err := fsutil.ExpandHome(baseDir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create models dir: %w", err)
	}
	return &Store{baseDir: abs, log: log, freeSpace: platformFreeSpace}, nil
}

// BaseDir returns the absolute models directory.
func (s *Store) BaseDir() string { return s.baseDir }

// ModelDir returns the directory holding the given file id's artifacts.
func (s *Store) ModelDir(id string) string { return filepath.Join(s.baseDir, id) }

// ModelPath returns the path of the weights file for a file id.
func (s *Store) ModelPath(id string) string {
	return filepath.Join(s.ModelDir(id), ModelFileName)
}

// IsDownloaded reports whether the weights file for id exists on disk.
func (s *Store) IsDownloaded(id string) bool {
	return fsutil.PathExists(s.ModelPath(id))
}

// FileSize returns the weights file size; ok is false when absent.
func (s *Store) FileSize(id string) (int64, bool) {
	fi, err := os.Stat(s.ModelPath(id))
	if err != nil {
		return 0, false
	}
	return fi.Size(), true
}

// HasEnoughSpace reports whether free space covers requiredMB plus the 20%
// safety margin. Exactly the margin counts as enough. Probe failures count
// as not enough; the caller surfaces the explicit error path.
func (s *Store) HasEnoughSpace(requiredMB int64) bool {
	free, err := s.freeSpace(s.baseDir)
	if err != nil {
		s.log.Warn().Err(err).Msg("free space probe failed")
		return false
	}
	need := int64(float64(requiredMB) * SpaceSafetyMargin * 1024 * 1024)
	return free >= need
}

// VerifyChecksum streams the weights file for id through sha256 and compares
// against expected ("sha256:<hex>", case-insensitive). The sentinel value
// passes without reading the file. A mismatch is (false, nil); only I/O
// problems are errors.
func (s *Store) VerifyChecksum(id, expected string) (bool, error) {
	if expected == types.ChecksumNone || expected == "" {
		return true, nil
	}
	want, ok := strings.CutPrefix(strings.ToLower(expected), "sha256:")
	if !ok {
		return false, fmt.Errorf("unsupported checksum format: %q", expected)
	}
	f, err := os.Open(s.ModelPath(id))
	if err != nil {
		return false, fmt.Errorf("open for verify: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	buf := make([]byte, checksumChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return false, fmt.Errorf("hash: %w", err)
	}
	got := hex.EncodeToString(h.Sum(nil))
	return got == want, nil
}

// SaveManifest atomically persists the manifest for its id.
func (s *Store) SaveManifest(m types.ModelManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	path := filepath.Join(s.ModelDir(m.ID), ManifestFileName)
	return fsutil.AtomicWrite(path, data, 0o644)
}

// LoadManifest reads the manifest for id. Absent or corrupt manifests are
// (zero, false), never an error; only unexpected I/O failures are reported.
func (s *Store) LoadManifest(id string) (types.ModelManifest, bool, error) {
	path := filepath.Join(s.ModelDir(id), ManifestFileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return types.ModelManifest{}, false, nil
	}
	if err != nil {
		return types.ModelManifest{}, false, fmt.Errorf("read manifest: %w", err)
	}
	var m types.ModelManifest
	if err := json.Unmarshal(data, &m); err != nil {
		s.log.Warn().Str("model", id).Err(err).Msg("corrupt manifest ignored")
		return types.ModelManifest{}, false, nil
	}
	return m, true, nil
}

// Delete removes the file id's whole directory subtree. Idempotent.
func (s *Store) Delete(id string) error {
	if err := os.RemoveAll(s.ModelDir(id)); err != nil {
		return fmt.Errorf("delete model dir: %w", err)
	}
	return nil
}

// MoveToFinal moves a finished temporary download into the model's final
// location. The move completes before return: callers invoke this inside
// transfer-completion callbacks whose temp file is deleted once the callback
// returns.
func (s *Store) MoveToFinal(tempPath, id string) error {
	if err := fsutil.MoveFile(tempPath, s.ModelPath(id)); err != nil {
		return fmt.Errorf("move to final location: %w", err)
	}
	return nil
}

// TotalUsageBytes sums the size of all files under the base directory.
func (s *Store) TotalUsageBytes() (int64, error) {
	var total int64
	err := filepath.WalkDir(s.baseDir, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return nil // file vanished mid-walk
		}
		total += fi.Size()
		return nil
	})
	return total, err
}
