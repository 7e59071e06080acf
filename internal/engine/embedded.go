package engine

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"edgellm/pkg/types"
)

// crashSignatures are substrings of native error messages that indicate the
// session is unusable afterwards. Matching one forces an unload so a retry
// never reuses a broken session. go-llama.cpp exposes no structured error
// code for these, so text matching is the only handle available.
var crashSignatures = []string{
	"ggml_assert",
	"ggml assert",
	"segmentation fault",
	"bad alloc",
	"out of memory",
	"illegal instruction",
	"failed to allocate",
	"kv cache",
}

// spin-with-backoff bounds for session acquisition. Generation calls are
// rare relative to their own duration, so contention is short-lived.
const (
	acquireInitialBackoff = 2 * time.Millisecond
	acquireMaxBackoff     = 100 * time.Millisecond
)

// embedded wraps exactly one native generation session. The session is not
// reentrant, so every generation path acquires busy before touching it and
// releases it on every exit.
type embedded struct {
	opts Options
	log  zerolog.Logger

	sess      session
	loaded    atomic.Bool
	busy      atomic.Bool
	cancelled atomic.Bool
}

// newEmbedded opens the native session for the model (and projector, when
// configured) at construction, so a returned engine is immediately loaded.
func newEmbedded(opts Options) (Engine, error) {
	sess, err := openSession(opts)
	if err != nil {
		return nil, &types.EngineLoadFailedError{Reason: err.Error(), Err: err}
	}
	e := &embedded{opts: opts, log: opts.Logger, sess: sess}
	e.loaded.Store(true)
	return e, nil
}

func (e *embedded) IsLoaded() bool { return e.loaded.Load() }

// acquire claims exclusive session access, spinning with backoff.
func (e *embedded) acquire(ctx context.Context) error {
	backoff := acquireInitialBackoff
	for {
		if !e.loaded.Load() {
			return types.ErrEngineNotLoaded
		}
		if e.busy.CompareAndSwap(false, true) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > acquireMaxBackoff {
			backoff = acquireMaxBackoff
		}
	}
}

func (e *embedded) release() { e.busy.Store(false) }

func (e *embedded) params(cfg types.GenerationConfig) predictParams {
	cfg = cfg.WithDefaults(types.PresetChat())
	cfg.Stop = append(cfg.Stop, stopsFor(e.opts.PromptFormat)...)
	return predictParams{GenerationConfig: cfg, Threads: e.opts.Threads, BatchSize: e.opts.BatchSize}
}

func (e *embedded) Generate(ctx context.Context, prompt string, cfg types.GenerationConfig) (string, error) {
	return e.generate(ctx, prompt, nil, cfg)
}

func (e *embedded) GenerateWithImage(ctx context.Context, prompt string, image []byte, cfg types.GenerationConfig) (string, error) {
	if e.opts.AuxPath == "" {
		return "", types.ErrFeatureNotSupported
	}
	return e.generate(ctx, prompt, image, cfg)
}

func (e *embedded) generate(ctx context.Context, prompt string, image []byte, cfg types.GenerationConfig) (string, error) {
	if err := e.acquire(ctx); err != nil {
		return "", err
	}
	defer e.release()
	if e.cancelled.Swap(false) {
		return "", nil
	}

	p := e.params(cfg)
	full := BuildPrompt(e.opts.PromptFormat, prompt)
	onToken := func(string) bool {
		return ctx.Err() == nil && !e.cancelled.Load()
	}

	var raw string
	var err error
	if image != nil {
		raw, err = e.sess.PredictWithImage(full, image, p, onToken)
	} else {
		raw, err = e.sess.Predict(full, p, onToken)
	}
	wasCancelled := e.cancelled.Swap(false)
	if err != nil {
		if fatal := e.handleNativeError(err); fatal != nil {
			return "", fatal
		}
		return "", &types.GenerationFailedError{Reason: err.Error(), Err: err}
	}
	if wasCancelled || ctx.Err() != nil {
		// Stopped early: return what was produced so far, post-processed.
		return postprocess(raw, p.Stop, p.MaxTokens), ctx.Err()
	}
	return postprocess(raw, p.Stop, p.MaxTokens), nil
}

func (e *embedded) GenerateStream(ctx context.Context, prompt string, cfg types.GenerationConfig) (<-chan Fragment, error) {
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	out := make(chan Fragment, 16)
	if e.cancelled.Swap(false) {
		// Already-cancelled engine: zero fragments, clean completion.
		e.release()
		close(out)
		return out, nil
	}

	p := e.params(cfg)
	full := BuildPrompt(e.opts.PromptFormat, prompt)

	go func() {
		defer close(out)
		defer e.release()

		var budget int
		if p.MaxTokens > 0 {
			budget = p.MaxTokens * charsPerToken
		}
		var emitted int
		onToken := func(tok string) bool {
			// The flag is inspected between fragments so a cancel takes
			// effect within one fragment without corrupting the session.
			if ctx.Err() != nil || e.cancelled.Load() {
				return false
			}
			if stopped, trimmed := cutAtStop(tok, p.Stop); stopped {
				if trimmed != "" {
					e.send(ctx, out, Fragment{Text: trimmed})
				}
				return false
			}
			if budget > 0 && emitted+len(tok) > budget {
				if room := budget - emitted; room > 0 {
					e.send(ctx, out, Fragment{Text: tok[:room]})
				}
				return false
			}
			emitted += len(tok)
			return e.send(ctx, out, Fragment{Text: tok})
		}

		_, err := e.sess.Predict(full, p, onToken)
		e.cancelled.Store(false)
		if err != nil {
			if fatal := e.handleNativeError(err); fatal != nil {
				e.send(ctx, out, Fragment{Err: fatal})
				return
			}
			e.send(ctx, out, Fragment{Err: &types.GenerationFailedError{Reason: err.Error(), Err: err}})
		}
	}()
	return out, nil
}

// send delivers a fragment unless the consumer is gone; reports whether
// generation should continue.
func (e *embedded) send(ctx context.Context, out chan<- Fragment, f Fragment) bool {
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

// cutAtStop checks a fragment for any stop sequence, returning the retained
// prefix when one is found.
func cutAtStop(tok string, stops []string) (bool, string) {
	for _, stop := range stops {
		if stop == "" {
			continue
		}
		if i := strings.Index(tok, stop); i >= 0 {
			return true, tok[:i]
		}
	}
	return false, ""
}

// Cancel flags the current (or next) generation to stop. Returns false when
// nothing is loaded to cancel.
func (e *embedded) Cancel() bool {
	if !e.loaded.Load() {
		return false
	}
	e.cancelled.Store(true)
	return true
}

// Unload releases the native session. Safe to call twice. It waits for any
// in-flight generation to release the session first; callers wanting a fast
// unload call Cancel beforehand.
func (e *embedded) Unload() error {
	if !e.loaded.Load() {
		return nil
	}
	backoff := acquireInitialBackoff
	for !e.busy.CompareAndSwap(false, true) {
		time.Sleep(backoff)
		if backoff *= 2; backoff > acquireMaxBackoff {
			backoff = acquireMaxBackoff
		}
	}
	defer e.release()
	if !e.loaded.Swap(false) {
		return nil
	}
	err := e.sess.Close()
	e.sess = nil
	if err != nil {
		return &types.GenerationFailedError{Reason: "session close: " + err.Error(), Err: err}
	}
	return nil
}

// handleNativeError inspects a native failure for crash signatures. A match
// drops the session immediately rather than leaving a load-claimed-but-broken
// handle for the next caller.
func (e *embedded) handleNativeError(err error) error {
	msg := strings.ToLower(err.Error())
	for _, sig := range crashSignatures {
		if strings.Contains(msg, sig) {
			e.log.Error().Err(err).Msg("crash-adjacent native error, dropping session")
			if e.loaded.Swap(false) && e.sess != nil {
				_ = e.sess.Close()
				e.sess = nil
			}
			return &types.EngineLoadFailedError{Reason: "native session crashed: " + err.Error(), Err: err}
		}
	}
	return nil
}
