package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestExpandHome(t *testing.T) {
	// Set a deterministic HOME for the duration of this test so we never skip.
	origHome, hadHome := os.LookupEnv("HOME")
	origUserProfile, hadUserProfile := os.LookupEnv("USERPROFILE")
	t.Cleanup(func() {
		if hadHome {
			_ = os.Setenv("HOME", origHome)
		} else {
			_ = os.Unsetenv("HOME")
		}
		if hadUserProfile {
			_ = os.Setenv("USERPROFILE", origUserProfile)
		} else {
			_ = os.Unsetenv("USERPROFILE")
		}
	})

	home := t.TempDir()
	// Configure both env vars for cross-platform behavior of os.UserHomeDir.
	_ = os.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		_ = os.Setenv("USERPROFILE", home)
	}
	// raw path unaffected
	if got, err := ExpandHome("/tmp"); err != nil || got != "/tmp" {
		t.Fatalf("got %q err=%v", got, err)
	}
	// empty path
	if got, err := ExpandHome(""); err != nil || got != "" {
		t.Fatalf("got %q err=%v", got, err)
	}
	// ~ expansion
	p, err := ExpandHome("~")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if p != home {
		t.Fatalf("expected %q, got %q", home, p)
	}
	// ~/subdir
	sub := "test-sub"
	exp, err := ExpandHome("~/" + sub)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if runtime.GOOS == "windows" {
		if filepath.Base(exp) != sub {
			t.Fatalf("unexpected expanded path: %q", exp)
		}
	} else {
		expected := filepath.Join(home, sub)
		if exp != expected {
			t.Fatalf("expected %q, got %q", expected, exp)
		}
	}
}

func TestAtomicWrite(t *testing.T) {
	d := t.TempDir()
	p := filepath.Join(d, "sub", "manifest.json")
	if err := AtomicWrite(p, []byte(`{"ok":true}`), 0o644); err != nil {
		t.Fatalf("atomic write: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(b) != `{"ok":true}` {
		t.Fatalf("unexpected content: %q", b)
	}
	// no temp file left behind
	if PathExists(p + ".tmp") {
		t.Fatalf("temp file not cleaned up")
	}
	// overwrite succeeds
	if err := AtomicWrite(p, []byte("v2"), 0o644); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	b, _ = os.ReadFile(p)
	if string(b) != "v2" {
		t.Fatalf("unexpected content after overwrite: %q", b)
	}
}

func TestMoveFile(t *testing.T) {
	d := t.TempDir()
	src := filepath.Join(d, "tmp-download")
	dst := filepath.Join(d, "models", "m1", "model.gguf")
	if err := os.WriteFile(src, []byte("weights"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}
	if err := MoveFile(src, dst); err != nil {
		t.Fatalf("move: %v", err)
	}
	if PathExists(src) {
		t.Fatalf("source still present after move")
	}
	b, err := os.ReadFile(dst)
	if err != nil || string(b) != "weights" {
		t.Fatalf("target wrong: %q err=%v", b, err)
	}
}
