package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"edgellm/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

// writeModelFile places content as the weights file for id and returns its
// sha256 checksum string.
func writeModelFile(t *testing.T, s *Store, id string, content []byte) string {
	t.Helper()
	p := s.ModelPath(id)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, content, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	sum := sha256.Sum256(content)
	return "sha256:" + hex.EncodeToString(sum[:])
}

func TestIsDownloadedAndFileSize(t *testing.T) {
	s := newTestStore(t)
	if s.IsDownloaded("m1") {
		t.Fatalf("expected not downloaded")
	}
	if _, ok := s.FileSize("m1"); ok {
		t.Fatalf("expected no size for absent file")
	}
	writeModelFile(t, s, "m1", []byte("0123456789"))
	if !s.IsDownloaded("m1") {
		t.Fatalf("expected downloaded")
	}
	if n, ok := s.FileSize("m1"); !ok || n != 10 {
		t.Fatalf("size=%d ok=%v", n, ok)
	}
}

func TestVerifyChecksum(t *testing.T) {
	s := newTestStore(t)
	content := make([]byte, 100)
	for i := range content {
		content[i] = byte(i)
	}
	sum := writeModelFile(t, s, "m1", content)

	ok, err := s.VerifyChecksum("m1", sum)
	if err != nil || !ok {
		t.Fatalf("verify: ok=%v err=%v", ok, err)
	}
	// Idempotent on an unmodified file.
	ok, err = s.VerifyChecksum("m1", sum)
	if err != nil || !ok {
		t.Fatalf("re-verify: ok=%v err=%v", ok, err)
	}
	// Case-insensitive compare.
	ok, err = s.VerifyChecksum("m1", strings.ToUpper(sum))
	if err != nil || !ok {
		t.Fatalf("uppercase verify: ok=%v err=%v", ok, err)
	}

	// Flip one byte: previously-true result goes false.
	content[42] ^= 0x01
	writeModelFile(t, s, "m1", content)
	ok, err = s.VerifyChecksum("m1", sum)
	if err != nil {
		t.Fatalf("verify after corruption: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch after flipping a byte")
	}
}

func TestVerifyChecksumSentinelSkipsRead(t *testing.T) {
	s := newTestStore(t)
	// No file on disk at all: the sentinel still passes.
	ok, err := s.VerifyChecksum("absent", types.ChecksumNone)
	if err != nil || !ok {
		t.Fatalf("sentinel: ok=%v err=%v", ok, err)
	}
}

func TestVerifyChecksumBadFormat(t *testing.T) {
	s := newTestStore(t)
	writeModelFile(t, s, "m1", []byte("x"))
	if _, err := s.VerifyChecksum("m1", "md5:abcd"); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}

func TestHasEnoughSpaceBoundary(t *testing.T) {
	s := newTestStore(t)
	const mb = 1024 * 1024
	// Exactly 1.2x counts as enough.
	s.freeSpace = func(string) (int64, error) { return 120 * mb, nil }
	if !s.HasEnoughSpace(100) {
		t.Fatalf("exactly 1.2x must be enough")
	}
	s.freeSpace = func(string) (int64, error) { return 120*mb - 1, nil }
	if s.HasEnoughSpace(100) {
		t.Fatalf("one byte under 1.2x must not be enough")
	}
}

func TestManifestRoundTripAndCorrupt(t *testing.T) {
	s := newTestStore(t)
	m := types.ModelManifest{
		ID:               "m1",
		Version:          "1.0",
		DownloadedAt:     time.Now().UTC().Truncate(time.Second),
		FileSize:         10,
		Checksum:         types.ChecksumNone,
		ChecksumVerified: true,
	}
	if err := s.SaveManifest(m); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := s.LoadManifest("m1")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got.ID != m.ID || !got.ChecksumVerified || !got.DownloadedAt.Equal(m.DownloadedAt) {
		t.Fatalf("unexpected manifest: %+v", got)
	}

	// Absent manifest is (zero, false, nil).
	if _, ok, err := s.LoadManifest("absent"); ok || err != nil {
		t.Fatalf("absent: ok=%v err=%v", ok, err)
	}

	// Corrupt manifest is also (zero, false, nil), never an error.
	p := filepath.Join(s.ModelDir("m1"), ManifestFileName)
	if err := os.WriteFile(p, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	if _, ok, err := s.LoadManifest("m1"); ok || err != nil {
		t.Fatalf("corrupt load: ok=%v err=%v", ok, err)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	s := newTestStore(t)
	writeModelFile(t, s, "m1", []byte("x"))
	if err := s.SaveManifest(types.ModelManifest{ID: "m1"}); err != nil {
		t.Fatalf("save manifest: %v", err)
	}
	if err := s.Delete("m1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if s.IsDownloaded("m1") {
		t.Fatalf("still downloaded after delete")
	}
	if _, ok, _ := s.LoadManifest("m1"); ok {
		t.Fatalf("manifest survived delete")
	}
	// Deleting again is a no-op.
	if err := s.Delete("m1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestMoveToFinal(t *testing.T) {
	s := newTestStore(t)
	tmp := filepath.Join(t.TempDir(), "partial")
	if err := os.WriteFile(tmp, []byte("weights"), 0o644); err != nil {
		t.Fatalf("write tmp: %v", err)
	}
	if err := s.MoveToFinal(tmp, "m1"); err != nil {
		t.Fatalf("move: %v", err)
	}
	if !s.IsDownloaded("m1") {
		t.Fatalf("expected downloaded after move")
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Fatalf("temp file still present")
	}
}

func TestTotalUsageBytes(t *testing.T) {
	s := newTestStore(t)
	writeModelFile(t, s, "m1", make([]byte, 100))
	writeModelFile(t, s, "m2", make([]byte, 50))
	total, err := s.TotalUsageBytes()
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if total != 150 {
		t.Fatalf("total=%d want 150", total)
	}
}
