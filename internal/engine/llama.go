//go:build llama

package engine

import (
	"errors"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"
)

// llamaBuilt indicates this binary carries the native llama runtime.
const llamaBuilt = true

// llamaSession adapts go-llama.cpp to the session interface. One loaded
// model per session; freed on Close.
type llamaSession struct {
	model *llama.LLama
}

func openSession(opts Options) (session, error) {
	if strings.TrimSpace(opts.ModelPath) == "" {
		return nil, errors.New("model path is empty")
	}
	mo := []llama.ModelOption{
		llama.SetContext(opts.ContextSize),
		llama.SetNBatch(opts.BatchSize),
	}
	if opts.GPULayers > 0 {
		mo = append(mo, llama.SetGPULayers(opts.GPULayers))
	}
	m, err := llama.New(opts.ModelPath, mo...)
	if err != nil {
		return nil, err
	}
	return &llamaSession{model: m}, nil
}

func (s *llamaSession) Predict(prompt string, p predictParams, onToken func(string) bool) (string, error) {
	if s.model == nil {
		return "", errors.New("llama model not initialized")
	}
	s.model.SetTokenCallback(onToken)
	defer s.model.SetTokenCallback(nil)
	return s.model.Predict(prompt, predictOptions(p)...)
}

func (s *llamaSession) PredictWithImage(prompt string, image []byte, p predictParams, onToken func(string) bool) (string, error) {
	// go-llama.cpp carries no projector support; the engine layer gates
	// image input on the aux file, and this backend rejects what remains.
	return "", errors.New("image input not supported by the llama backend")
}

func (s *llamaSession) Close() error {
	if s.model != nil {
		s.model.Free()
		s.model = nil
	}
	return nil
}

func predictOptions(p predictParams) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(maxInt(1, p.MaxTokens)),
		llama.SetThreads(maxInt(1, p.Threads)),
		llama.SetTemperature(p.Temperature),
		llama.SetTopK(p.TopK),
		llama.SetTopP(p.TopP),
		llama.SetPenalty(p.RepeatPenalty),
	}
	if p.Seed != 0 {
		po = append(po, llama.SetSeed(p.Seed))
	}
	if len(p.Stop) > 0 {
		po = append(po, llama.SetStopWords(p.Stop...))
	}
	return po
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
