package types

import "testing"

func TestPresetLookup(t *testing.T) {
	cases := []struct {
		name      string
		ok        bool
		maxTokens int
	}{
		{"", true, 512},
		{"chat", true, 512},
		{"summarize", true, 1024},
		{"classify", true, 32},
		{"poetry", false, 0},
	}
	for _, tc := range cases {
		cfg, ok := Preset(tc.name)
		if ok != tc.ok {
			t.Fatalf("Preset(%q) ok = %v, want %v", tc.name, ok, tc.ok)
		}
		if ok && cfg.MaxTokens != tc.maxTokens {
			t.Fatalf("Preset(%q).MaxTokens = %d, want %d", tc.name, cfg.MaxTokens, tc.maxTokens)
		}
	}
}

func TestWithDefaultsFillsOnlyZeroFields(t *testing.T) {
	base := PresetChat()
	got := GenerationConfig{Temperature: 0.2, MaxTokens: 64}.WithDefaults(base)
	if got.Temperature != 0.2 || got.MaxTokens != 64 {
		t.Fatalf("explicit fields overwritten: %+v", got)
	}
	if got.TopK != base.TopK || got.TopP != base.TopP || got.RepeatPenalty != base.RepeatPenalty {
		t.Fatalf("zero fields not filled: %+v", got)
	}
}

func TestDescriptorAux(t *testing.T) {
	text := ModelDescriptor{ID: "m", SizeMB: 100}
	if text.HasAux() {
		t.Fatal("text-only descriptor reports aux")
	}
	vision := ModelDescriptor{ID: "m", SizeMB: 100, AuxURL: "https://x/proj.gguf", AuxSizeMB: 20}
	if !vision.HasAux() {
		t.Fatal("aux descriptor reports no aux")
	}
	if vision.AuxID() != "m-aux" {
		t.Fatalf("AuxID = %q", vision.AuxID())
	}
	if vision.TotalSizeMB() != 120 {
		t.Fatalf("TotalSizeMB = %d", vision.TotalSizeMB())
	}
}

func TestStageTerminal(t *testing.T) {
	for _, s := range []DownloadStage{StageCompleted, StageFailed, StageCancelled} {
		if !s.Terminal() {
			t.Fatalf("%s not terminal", s)
		}
	}
	for _, s := range []DownloadStage{StagePending, StageDownloading, StageVerifying, StageExtracting} {
		if s.Terminal() {
			t.Fatalf("%s terminal", s)
		}
	}
}

func TestProgressFraction(t *testing.T) {
	if f := (DownloadProgress{BytesTransferred: 50, TotalBytes: 200}).Fraction(); f != 0.25 {
		t.Fatalf("Fraction = %v", f)
	}
	if f := (DownloadProgress{BytesTransferred: 50}).Fraction(); f != 0 {
		t.Fatalf("unknown total Fraction = %v", f)
	}
	if f := (DownloadProgress{BytesTransferred: 300, TotalBytes: 200}).Fraction(); f != 1 {
		t.Fatalf("overshoot Fraction = %v", f)
	}
}
