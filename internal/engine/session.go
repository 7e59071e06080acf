package engine

import "edgellm/pkg/types"

// predictParams is the flattened parameter set handed to the native session.
type predictParams struct {
	types.GenerationConfig
	Threads   int
	BatchSize int
}

// session is the minimal surface of one native generation session. The
// build-tagged llama files provide the real implementation; tests inject
// fakes. A session is not reentrant: the engine serializes access to it.
type session interface {
	// Predict generates text for prompt, invoking onToken per fragment.
	// Returning false from onToken stops generation early without error.
	Predict(prompt string, p predictParams, onToken func(string) bool) (string, error)
	// PredictWithImage is like Predict with an image conditioning input.
	PredictWithImage(prompt string, image []byte, p predictParams, onToken func(string) bool) (string, error)
	// Close frees the native resources.
	Close() error
}
