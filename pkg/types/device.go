package types

// EngineType selects an inference backend.
type EngineType string

const (
	// EngineSystem is the OS-managed model runtime.
	EngineSystem EngineType = "system"
	// EngineEmbedded is the bundled native token-generation engine.
	EngineEmbedded EngineType = "embedded"
	// EngineNone means no compatible engine exists on this device.
	EngineNone EngineType = "none"
)

// RuntimeAvailability distinguishes the three observable states of the
// OS-managed runtime. Eligible (OS new enough but the component is not
// installed) drives a "download the OS component" prompt upstream, so it
// must stay distinct from both Ready and Unsupported.
type RuntimeAvailability string

const (
	RuntimeReady       RuntimeAvailability = "ready"
	RuntimeEligible    RuntimeAvailability = "eligible"
	RuntimeUnsupported RuntimeAvailability = "unsupported"
)

// DeviceTier buckets devices by memory headroom.
type DeviceTier string

const (
	TierUnsupported DeviceTier = "unsupported"
	TierBasic       DeviceTier = "basic"
	TierStandard    DeviceTier = "standard"
	TierAdvanced    DeviceTier = "advanced"
)

// DeviceCapability is a point-in-time snapshot of the host hardware and the
// engine/model recommendation derived from it. Computed on demand, never
// persisted.
type DeviceCapability struct {
	HasAccelerator     bool                `json:"has_accelerator"`
	TotalMemoryMB      int64               `json:"total_memory_mb"`
	AvailableMemoryMB  int64               `json:"available_memory_mb"`
	ChipFamily         string              `json:"chip_family"`
	OSVersion          string              `json:"os_version"`
	SystemRuntime      RuntimeAvailability `json:"system_runtime"`
	RecommendedEngine  EngineType          `json:"recommended_engine"`
	RecommendedModelID string              `json:"recommended_model_id,omitempty"`
	Tier               DeviceTier          `json:"tier"`
}
