package catalog

import "edgellm/pkg/types"

// builtin is the compiled-in descriptor set. Deployments can replace it
// entirely with LoadFile; ids here are stable and referenced by defaults.
func builtin() []types.ModelDescriptor {
	return []types.ModelDescriptor{
		{
			ID:            "gemma-2b-q4",
			Name:          "Gemma 2B (Q4)",
			Version:       "1.1",
			SizeMB:        1640,
			Quant:         "Q4_K_M",
			ContextLength: 8192,
			URL:           "https://models.edgellm.dev/gemma-2b-q4/model.gguf",
			Checksum:      "sha256:4f1c9f8d2b6a3e4d5c6b7a8910fedcba4f1c9f8d2b6a3e4d5c6b7a8910fedcba",
			MinMemoryMB:   3000,
			Features:      []types.Feature{types.FeatureText, types.FeatureSummarize, types.FeatureClassify},
			PromptFormat:  types.PromptFormatChatML,
		},
		{
			ID:            "phi-3-mini-q4",
			Name:          "Phi-3 Mini (Q4)",
			Version:       "3.0",
			SizeMB:        2280,
			Quant:         "Q4_K_M",
			ContextLength: 4096,
			URL:           "https://models.edgellm.dev/phi-3-mini-q4/model.gguf",
			Checksum:      "sha256:9d8c7b6a5f4e3d2c1b0a99887766554433221100ffeeddccbbaa998877665544",
			MinMemoryMB:   4000,
			Features:      []types.Feature{types.FeatureText, types.FeatureSummarize, types.FeatureClassify},
			PromptFormat:  types.PromptFormatInstruct,
		},
		{
			ID:            "llava-7b-q4",
			Name:          "LLaVA 7B (Q4, vision)",
			Version:       "1.6",
			SizeMB:        4080,
			Quant:         "Q4_K_M",
			ContextLength: 4096,
			URL:           "https://models.edgellm.dev/llava-7b-q4/model.gguf",
			Checksum:      types.ChecksumNone,
			MinMemoryMB:   6000,
			Features:      []types.Feature{types.FeatureText, types.FeatureVision},
			PromptFormat:  types.PromptFormatChatML,
			AuxURL:        "https://models.edgellm.dev/llava-7b-q4/mmproj.gguf",
			AuxSizeMB:     620,
			AuxChecksum:   types.ChecksumNone,
		},
	}
}
