package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions carrying no parameters.
// Use errors.Is() to check for them.
var (
	ErrChecksumMismatch    = errors.New("checksum mismatch")
	ErrDownloadCancelled   = errors.New("download cancelled")
	ErrEngineNotLoaded     = errors.New("engine not loaded")
	ErrFeatureNotSupported = errors.New("feature not supported")
	ErrDeviceNotSupported  = errors.New("no compatible model or engine for this device")
)

// ModelNotFoundError indicates the id is absent from the catalog.
type ModelNotFoundError struct{ ID string }

func (e *ModelNotFoundError) Error() string { return "model not found: " + e.ID }

// IsModelNotFound reports whether err indicates a missing model id.
func IsModelNotFound(err error) bool {
	var e *ModelNotFoundError
	return errors.As(err, &e)
}

// ModelNotDownloadedError indicates an operation requiring on-disk bytes was
// attempted before the model was downloaded.
type ModelNotDownloadedError struct{ ID string }

func (e *ModelNotDownloadedError) Error() string { return "model not downloaded: " + e.ID }

func IsModelNotDownloaded(err error) bool {
	var e *ModelNotDownloadedError
	return errors.As(err, &e)
}

// InsufficientStorageError indicates free disk space below the required
// margin for a download.
type InsufficientStorageError struct{ RequiredMB int64 }

func (e *InsufficientStorageError) Error() string {
	return fmt.Sprintf("insufficient storage: need %d MB plus safety margin", e.RequiredMB)
}

func IsInsufficientStorage(err error) bool {
	var e *InsufficientStorageError
	return errors.As(err, &e)
}

// InsufficientMemoryError indicates the device cannot hold the model.
type InsufficientMemoryError struct{ RequiredMB, AvailableMB int64 }

func (e *InsufficientMemoryError) Error() string {
	return fmt.Sprintf("insufficient memory: need %d MB, have %d MB", e.RequiredMB, e.AvailableMB)
}

func IsInsufficientMemory(err error) bool {
	var e *InsufficientMemoryError
	return errors.As(err, &e)
}

// DownloadFailedError wraps a transfer failure with its reason.
type DownloadFailedError struct {
	Reason string
	Err    error
}

func (e *DownloadFailedError) Error() string { return "download failed: " + e.Reason }
func (e *DownloadFailedError) Unwrap() error { return e.Err }

func IsDownloadFailed(err error) bool {
	var e *DownloadFailedError
	return errors.As(err, &e)
}

// EngineLoadFailedError indicates engine construction or model load failed.
type EngineLoadFailedError struct {
	Reason string
	Err    error
}

func (e *EngineLoadFailedError) Error() string { return "engine load failed: " + e.Reason }
func (e *EngineLoadFailedError) Unwrap() error { return e.Err }

func IsEngineLoadFailed(err error) bool {
	var e *EngineLoadFailedError
	return errors.As(err, &e)
}

// GenerationFailedError indicates a native generation call failed.
type GenerationFailedError struct {
	Reason string
	Err    error
}

func (e *GenerationFailedError) Error() string { return "generation failed: " + e.Reason }
func (e *GenerationFailedError) Unwrap() error { return e.Err }

func IsGenerationFailed(err error) bool {
	var e *GenerationFailedError
	return errors.As(err, &e)
}
