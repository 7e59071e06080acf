package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"edgellm/pkg/types"
)

func TestDefaultCatalogValid(t *testing.T) {
	c := Default()
	if len(c.List()) == 0 {
		t.Fatalf("expected built-in models")
	}
	for _, m := range c.List() {
		if _, ok := c.Get(m.ID); !ok {
			t.Fatalf("Get(%q) missing", m.ID)
		}
	}
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New([]types.ModelDescriptor{
		{ID: "a", URL: "u", SizeMB: 1, Checksum: types.ChecksumNone},
		{ID: "a", URL: "u", SizeMB: 1, Checksum: types.ChecksumNone},
	})
	if err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestNewRejectsBadChecksum(t *testing.T) {
	_, err := New([]types.ModelDescriptor{
		{ID: "a", URL: "u", SizeMB: 1, Checksum: "sha256:short"},
	})
	if err == nil {
		t.Fatalf("expected checksum format error")
	}
}

func TestGetAbsentIsNotError(t *testing.T) {
	c := Default()
	if _, ok := c.Get("no-such-model"); ok {
		t.Fatalf("expected absent model")
	}
}

func TestRecommendedPicksLargestFit(t *testing.T) {
	c, err := New([]types.ModelDescriptor{
		{ID: "small", URL: "u", SizeMB: 100, MinMemoryMB: 2000, Checksum: types.ChecksumNone},
		{ID: "big", URL: "u", SizeMB: 400, MinMemoryMB: 6000, Checksum: types.ChecksumNone},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if m, ok := c.Recommended(8000); !ok || m.ID != "big" {
		t.Fatalf("expected big, got %+v ok=%v", m, ok)
	}
	if m, ok := c.Recommended(3000); !ok || m.ID != "small" {
		t.Fatalf("expected small, got %+v ok=%v", m, ok)
	}
	if _, ok := c.Recommended(1000); ok {
		t.Fatalf("expected no fit for 1000 MB")
	}
}

func TestRecommendedNoneBelowFloor(t *testing.T) {
	c, err := New([]types.ModelDescriptor{
		{ID: "m", URL: "u", SizeMB: 100, MinMemoryMB: 6000, Checksum: types.ChecksumNone},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := c.Recommended(4000); ok {
		t.Fatalf("expected none for 4000 MB against 6000 MB floor")
	}
	if got := c.Compatible(4000); len(got) != 0 {
		t.Fatalf("expected no compatible models, got %d", len(got))
	}
}

func TestLoadFileYAML(t *testing.T) {
	d := t.TempDir()
	p := filepath.Join(d, "catalog.yaml")
	data := "models:\n  - id: m1\n    name: M1\n    version: \"1\"\n    size_mb: 10\n    url: https://example.com/m1.gguf\n    checksum: unverified\n    min_memory_mb: 1000\n    prompt_format: raw\n"
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := LoadFile(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	m, ok := c.Get("m1")
	if !ok || m.SizeMB != 10 || m.PromptFormat != types.PromptFormatRaw {
		t.Fatalf("unexpected entry: %+v ok=%v", m, ok)
	}
}

func TestLoadFileUnsupportedExtension(t *testing.T) {
	d := t.TempDir()
	p := filepath.Join(d, "catalog.txt")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadFile(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
	if _, err := LoadFile(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
}

func TestAuxIDDerivation(t *testing.T) {
	c := Default()
	for _, m := range c.List() {
		if m.HasAux() && m.AuxID() != m.ID+"-aux" {
			t.Fatalf("aux id %q not derived from %q", m.AuxID(), m.ID)
		}
	}
}
