//go:build !llama

package engine

import "errors"

// This file compiles when the 'llama' build tag is NOT set, keeping default
// builds and CI CGO-free. The real backend lives in llama.go (tagged).

const llamaBuilt = false

func openSession(opts Options) (session, error) {
	return nil, errors.New("llama support not built (missing 'llama' build tag)")
}
