package types

// GenerationConfig carries sampling parameters for one generation call.
// Zero values mean "use the preset default" at the engine boundary.
type GenerationConfig struct {
	Temperature   float32  `json:"temperature,omitempty"`
	TopK          int      `json:"top_k,omitempty"`
	TopP          float32  `json:"top_p,omitempty"`
	MaxTokens     int      `json:"max_tokens,omitempty"`
	RepeatPenalty float32  `json:"repeat_penalty,omitempty"`
	Seed          int      `json:"seed,omitempty"`
	Stop          []string `json:"stop,omitempty"`
}

// Named generation presets. Chat favors variety, summarize favors
// determinism with room for long output, classify wants short
// near-deterministic answers.
func PresetChat() GenerationConfig {
	return GenerationConfig{
		Temperature:   0.8,
		TopK:          40,
		TopP:          0.95,
		MaxTokens:     512,
		RepeatPenalty: 1.1,
	}
}

func PresetSummarize() GenerationConfig {
	return GenerationConfig{
		Temperature:   0.3,
		TopK:          20,
		TopP:          0.9,
		MaxTokens:     1024,
		RepeatPenalty: 1.05,
	}
}

func PresetClassify() GenerationConfig {
	return GenerationConfig{
		Temperature:   0.1,
		TopK:          5,
		TopP:          0.5,
		MaxTokens:     32,
		RepeatPenalty: 1.0,
		Stop:          []string{"\n"},
	}
}

// Preset resolves a preset by name; ok is false for unknown names. The
// empty name means chat.
func Preset(name string) (GenerationConfig, bool) {
	switch name {
	case "", "chat":
		return PresetChat(), true
	case "summarize":
		return PresetSummarize(), true
	case "classify":
		return PresetClassify(), true
	default:
		return GenerationConfig{}, false
	}
}

// WithDefaults fills zero fields from def and returns the merged config.
func (c GenerationConfig) WithDefaults(def GenerationConfig) GenerationConfig {
	if c.Temperature == 0 {
		c.Temperature = def.Temperature
	}
	if c.TopK == 0 {
		c.TopK = def.TopK
	}
	if c.TopP == 0 {
		c.TopP = def.TopP
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = def.MaxTokens
	}
	if c.RepeatPenalty == 0 {
		c.RepeatPenalty = def.RepeatPenalty
	}
	if c.Seed == 0 {
		c.Seed = def.Seed
	}
	if len(c.Stop) == 0 {
		c.Stop = def.Stop
	}
	return c
}
