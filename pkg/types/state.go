package types

import "time"

// LifecyclePhase is the current phase of a model id's journey from absent
// to loaded. Exactly one phase holds per model id at any time.
type LifecyclePhase string

const (
	PhaseNotDownloaded LifecyclePhase = "not_downloaded"
	PhaseDownloading   LifecyclePhase = "downloading"
	PhaseVerifying     LifecyclePhase = "verifying"
	PhaseDownloaded    LifecyclePhase = "downloaded"
	PhaseLoading       LifecyclePhase = "loading"
	PhaseLoaded        LifecyclePhase = "loaded"
	PhaseUnloading     LifecyclePhase = "unloading"
	PhaseError         LifecyclePhase = "error"
)

// LifecycleState is the tagged per-model state owned by the lifecycle
// manager. Progress is meaningful only while Phase is PhaseDownloading;
// Message only while Phase is PhaseError.
type LifecycleState struct {
	Phase    LifecyclePhase `json:"phase"`
	Progress float64        `json:"progress,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// StateChange is published on every lifecycle transition, even when no
// subscriber currently cares.
type StateChange struct {
	ModelID   string         `json:"model_id"`
	Previous  LifecycleState `json:"previous"`
	Current   LifecycleState `json:"current"`
	Timestamp time.Time      `json:"timestamp"`
}

// DownloadStage is the sub-state of one file transfer.
type DownloadStage string

const (
	StagePending     DownloadStage = "pending"
	StageDownloading DownloadStage = "downloading"
	StageVerifying   DownloadStage = "verifying"
	StageExtracting  DownloadStage = "extracting"
	StageCompleted   DownloadStage = "completed"
	StageFailed      DownloadStage = "failed"
	StageCancelled   DownloadStage = "cancelled"
)

// Terminal reports whether the stage ends a transfer.
func (s DownloadStage) Terminal() bool {
	return s == StageCompleted || s == StageFailed || s == StageCancelled
}

// DownloadProgress is one event on a transfer's progress stream. FileID is
// the model id for the primary weights or AuxID(model id) for the projector.
type DownloadProgress struct {
	ModelID          string        `json:"model_id"`
	FileID           string        `json:"file_id"`
	BytesTransferred int64         `json:"bytes_transferred"`
	TotalBytes       int64         `json:"total_bytes"`
	Stage            DownloadStage `json:"stage"`
	// Err carries the failure reason when Stage is StageFailed.
	Err string `json:"error,omitempty"`
	// ResumedFrom is the byte offset a resumed transfer continued at. A
	// resume forced to restart reports 0 here so the restart is observable.
	ResumedFrom int64 `json:"resumed_from,omitempty"`
}

// Fraction derives completion in [0,1]; 0 when the total is unknown.
func (p DownloadProgress) Fraction() float64 {
	if p.TotalBytes <= 0 {
		return 0
	}
	f := float64(p.BytesTransferred) / float64(p.TotalBytes)
	if f > 1 {
		f = 1
	}
	return f
}
