package types

// Feature names a capability a model supports.
type Feature string

const (
	FeatureText       Feature = "text"
	FeatureVision     Feature = "vision"
	FeatureSummarize  Feature = "summarize"
	FeatureClassify   Feature = "classify"
)

// PromptFormat identifies the turn-formatting convention a model was
// trained with. It is independent of the engine backend that runs the model.
type PromptFormat string

const (
	// PromptFormatChatML is the generic structured-turn format
	// (<|im_start|>role ... <|im_end|>).
	PromptFormatChatML PromptFormat = "chatml"
	// PromptFormatInstruct is the bracketed [INST] ... [/INST] format.
	PromptFormatInstruct PromptFormat = "instruct"
	// PromptFormatRaw passes the prompt through untouched.
	PromptFormatRaw PromptFormat = "raw"
)

// ChecksumNone is the sentinel checksum for models whose hash is not yet
// pinned. Verification against it always passes without reading the file.
const ChecksumNone = "unverified"

// ModelDescriptor is the immutable catalog entry for a downloadable model.
type ModelDescriptor struct {
	// Stable identifier, unique within the catalog.
	// example: gemma-2b-q4
	ID string `json:"id" yaml:"id" toml:"id"`
	// Human-friendly name.
	Name string `json:"name" yaml:"name" toml:"name"`
	// Artifact version tag.
	Version string `json:"version" yaml:"version" toml:"version"`
	// Size of the primary weights file in MB.
	SizeMB int64 `json:"size_mb" yaml:"size_mb" toml:"size_mb"`
	// Quantization level or variant string, e.g. Q4_K_M.
	Quant string `json:"quant" yaml:"quant" toml:"quant"`
	// Context window length in tokens.
	ContextLength int `json:"context_length" yaml:"context_length" toml:"context_length"`
	// URL of the primary weights file.
	URL string `json:"url" yaml:"url" toml:"url"`
	// Expected checksum: "sha256:<64 hex chars>" or ChecksumNone.
	Checksum string `json:"checksum" yaml:"checksum" toml:"checksum"`
	// Minimum device memory required to load this model, in MB.
	MinMemoryMB int64 `json:"min_memory_mb" yaml:"min_memory_mb" toml:"min_memory_mb"`
	// Capabilities the model supports.
	Features []Feature `json:"features,omitempty" yaml:"features,omitempty" toml:"features,omitempty"`
	// Turn-formatting family for prompt construction.
	PromptFormat PromptFormat `json:"prompt_format" yaml:"prompt_format" toml:"prompt_format"`
	// Optional multimodal projector file. Empty AuxURL means text-only.
	AuxURL    string `json:"aux_url,omitempty" yaml:"aux_url,omitempty" toml:"aux_url,omitempty"`
	AuxSizeMB int64  `json:"aux_size_mb,omitempty" yaml:"aux_size_mb,omitempty" toml:"aux_size_mb,omitempty"`
	// Optional expected checksum of the projector file.
	AuxChecksum string `json:"aux_checksum,omitempty" yaml:"aux_checksum,omitempty" toml:"aux_checksum,omitempty"`
}

// HasAux reports whether the model requires a companion projector file.
func (d ModelDescriptor) HasAux() bool { return d.AuxURL != "" }

// AuxID returns the derived identifier of the companion projector artifact.
func (d ModelDescriptor) AuxID() string { return AuxID(d.ID) }

// TotalSizeMB is the combined size of all files for the model.
func (d ModelDescriptor) TotalSizeMB() int64 { return d.SizeMB + d.AuxSizeMB }

// HasFeature reports whether the descriptor lists the given capability.
func (d ModelDescriptor) HasFeature(f Feature) bool {
	for _, have := range d.Features {
		if have == f {
			return true
		}
	}
	return false
}

// AuxID derives the projector-file identifier for a model id.
func AuxID(id string) string { return id + "-aux" }
