package engine

import "strings"

// charsPerToken approximates the character budget implied by a max-token
// setting.
const charsPerToken = 4

var sentenceEnders = []string{". ", "! ", "? ", ".\n", "!\n", "?\n"}

// postprocess truncates raw output at the first stop sequence, then enforces
// the token budget: output past maxTokens*charsPerToken is cut at the last
// sentence boundary inside the budget, or hard-cut when none exists.
func postprocess(raw string, stops []string, maxTokens int) string {
	out := raw
	for _, stop := range stops {
		if stop == "" {
			continue
		}
		if i := strings.Index(out, stop); i >= 0 {
			out = out[:i]
		}
	}
	if maxTokens <= 0 {
		return out
	}
	budget := maxTokens * charsPerToken
	if len(out) <= budget {
		return out
	}
	window := out[:budget]
	cut := -1
	for _, end := range sentenceEnders {
		if i := strings.LastIndex(window, end); i >= 0 && i+1 > cut {
			cut = i + 1
		}
	}
	if cut < 0 {
		// No sentence boundary inside the budget: hard character cut.
		return window
	}
	return strings.TrimRight(window[:cut], " ")
}
