package types

// ErrorResponse is the JSON error payload of the HTTP surface.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// ModelInfo pairs a catalog descriptor with its lifecycle state for
// listing endpoints.
type ModelInfo struct {
	ModelDescriptor
	State      LifecycleState `json:"state"`
	Downloaded bool           `json:"downloaded"`
}

// StatusResponse is the aggregate runtime snapshot.
type StatusResponse struct {
	ActiveModelID string                    `json:"active_model_id,omitempty"`
	Models        map[string]LifecycleState `json:"models"`
	StorageBytes  int64                     `json:"storage_bytes"`
	Device        DeviceCapability          `json:"device"`
}

// GenerateRequest is the body of a generation call. Config overrides the
// preset field by field when both are given.
type GenerateRequest struct {
	Prompt string `json:"prompt"`
	// Preset is one of "chat", "summarize", "classify"; empty means chat.
	Preset string            `json:"preset,omitempty"`
	Config *GenerationConfig `json:"config,omitempty"`
	// ImageBase64 conditions generation on an image; requires a loaded
	// multimodal model.
	ImageBase64 string `json:"image_base64,omitempty"`
	Stream      bool   `json:"stream,omitempty"`
}

// GenerateResponse is the non-streaming generation result.
type GenerateResponse struct {
	Text string `json:"text"`
}

// GenerateChunk is one NDJSON line of a streaming generation.
type GenerateChunk struct {
	Text  string `json:"text,omitempty"`
	Done  bool   `json:"done,omitempty"`
	Error string `json:"error,omitempty"`
}

// PauseResponse carries the opaque resume token for a paused download.
type PauseResponse struct {
	Token string `json:"token"`
}

// ResumeRequest restarts a paused download from its token.
type ResumeRequest struct {
	Token string `json:"token"`
}

// AutoSelectRequest asks the runtime to pick and prepare the best model
// for the given memory budget; zero means "use the detected device memory".
type AutoSelectRequest struct {
	MemoryMB int64 `json:"memory_mb,omitempty"`
}
