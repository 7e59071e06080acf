package engine

import (
	"strings"
	"testing"
)

func TestPostprocessStopTruncation(t *testing.T) {
	out := postprocess("the answer is 42<|im_end|>trailing junk", []string{"<|im_end|>"}, 0)
	if out != "the answer is 42" {
		t.Fatalf("out=%q", out)
	}
}

func TestPostprocessWithinBudgetUntouched(t *testing.T) {
	out := postprocess("Short answer.", nil, 512)
	if out != "Short answer." {
		t.Fatalf("out=%q", out)
	}
}

func TestPostprocessBudgetCutsAtSentence(t *testing.T) {
	// Budget of 8 tokens = 32 chars. The second sentence crosses it, so the
	// cut lands after the first sentence.
	raw := "First sentence here. Second one keeps going well past the budget."
	out := postprocess(raw, nil, 8)
	if out != "First sentence here." {
		t.Fatalf("out=%q", out)
	}
}

func TestPostprocessBudgetHardCut(t *testing.T) {
	raw := strings.Repeat("x", 100)
	out := postprocess(raw, nil, 4)
	if out != strings.Repeat("x", 16) {
		t.Fatalf("out=%q (len %d)", out, len(out))
	}
}

func TestPostprocessStopThenBudget(t *testing.T) {
	raw := "One. Two. Three and more words here.\nSTOP everything after"
	out := postprocess(raw, []string{"STOP"}, 3)
	// Stop trims the tail first, then the 12-char budget cuts after "Two.".
	if out != "One. Two." {
		t.Fatalf("out=%q", out)
	}
}
