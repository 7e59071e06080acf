// Package engine defines the inference capability interface and the
// embedded token-generation backend. Engines are constructed only by the
// lifecycle manager; building one elsewhere breaks the single-loaded-model
// invariant.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"edgellm/pkg/types"
)

// Fragment is one streamed piece of generated text. Err is set on the final
// fragment of a failed stream; the channel closes afterwards either way.
type Fragment struct {
	Text string
	Err  error
}

// Engine is the capability interface over one loaded model.
type Engine interface {
	// IsLoaded reports whether the native session is usable.
	IsLoaded() bool
	// Generate runs one blocking generation call.
	Generate(ctx context.Context, prompt string, cfg types.GenerationConfig) (string, error)
	// GenerateStream yields fragments lazily. Consumers stop by cancelling
	// ctx or calling Cancel.
	GenerateStream(ctx context.Context, prompt string, cfg types.GenerationConfig) (<-chan Fragment, error)
	// GenerateWithImage conditions generation on an image. Only valid for
	// engines constructed with a projector file.
	GenerateWithImage(ctx context.Context, prompt string, image []byte, cfg types.GenerationConfig) (string, error)
	// Cancel flags the in-flight (or next) generation to stop between
	// fragments. Returns false when the engine is not loaded.
	Cancel() bool
	// Unload releases the native session. Idempotent.
	Unload() error
}

// Options configures engine construction.
type Options struct {
	ModelPath string
	// AuxPath is the multimodal projector file; empty means text-only.
	AuxPath      string
	PromptFormat types.PromptFormat
	ContextSize  int
	Threads      int
	BatchSize    int
	// GPULayers is the accelerator-layer offload count; 0 keeps everything
	// on CPU.
	GPULayers int
	Logger    zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.ContextSize <= 0 {
		o.ContextSize = 2048
	}
	if o.Threads <= 0 {
		o.Threads = 4
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 512
	}
	if o.PromptFormat == "" {
		o.PromptFormat = types.PromptFormatRaw
	}
	return o
}

// Constructor builds an engine backend for one engine type.
type Constructor func(opts Options) (Engine, error)

var (
	backendsMu sync.RWMutex
	backends   = map[types.EngineType]Constructor{}
)

// Register installs a backend constructor. Platform bindings use this to
// plug in the OS-managed runtime; the embedded backend registers itself.
func Register(t types.EngineType, c Constructor) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[t] = c
}

func init() {
	Register(types.EngineEmbedded, func(opts Options) (Engine, error) {
		return newEmbedded(opts)
	})
}

// New maps (engineType, options) to a backend instance.
func New(t types.EngineType, opts Options) (Engine, error) {
	backendsMu.RLock()
	c, ok := backends[t]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("engine type %q: %w", t, types.ErrFeatureNotSupported)
	}
	return c(opts.withDefaults())
}
