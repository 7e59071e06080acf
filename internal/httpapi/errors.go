package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"edgellm/pkg/types"
)

// statusFor maps runtime errors onto HTTP status codes. Unknown errors are
// internal; conflicts (wrong lifecycle phase, busy transfer) are 409/429 so
// bindings can distinguish retryable conditions.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case types.IsModelNotFound(err):
		return http.StatusNotFound
	case types.IsModelNotDownloaded(err), errors.Is(err, types.ErrEngineNotLoaded):
		return http.StatusConflict
	case types.IsInsufficientStorage(err):
		return http.StatusInsufficientStorage
	case types.IsInsufficientMemory(err),
		errors.Is(err, types.ErrFeatureNotSupported),
		errors.Is(err, types.ErrDeviceNotSupported):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, types.ErrDownloadCancelled):
		return http.StatusBadRequest
	case types.IsDownloadFailed(err):
		if strings.Contains(err.Error(), "already in progress") {
			return http.StatusTooManyRequests
		}
		return http.StatusBadGateway
	case types.IsEngineLoadFailed(err), types.IsGenerationFailed(err):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	if status == http.StatusTooManyRequests {
		IncrementBackpressure("download")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
