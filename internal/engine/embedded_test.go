package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"edgellm/pkg/types"
)

// fakeSession scripts native behavior and records whether the engine ever
// entered it concurrently.
type fakeSession struct {
	tokens []string
	err    error
	delay  time.Duration

	inUse     atomic.Bool
	reentered atomic.Bool
	calls     atomic.Int32
	closed    atomic.Bool
}

func (f *fakeSession) run(onToken func(string) bool) (string, error) {
	if !f.inUse.CompareAndSwap(false, true) {
		f.reentered.Store(true)
	}
	defer f.inUse.Store(false)
	f.calls.Add(1)
	var b strings.Builder
	for _, tok := range f.tokens {
		if f.delay > 0 {
			time.Sleep(f.delay)
		}
		if onToken != nil && !onToken(tok) {
			break
		}
		b.WriteString(tok)
	}
	if f.err != nil {
		return "", f.err
	}
	return b.String(), nil
}

func (f *fakeSession) Predict(_ string, _ predictParams, onToken func(string) bool) (string, error) {
	return f.run(onToken)
}

func (f *fakeSession) PredictWithImage(_ string, _ []byte, _ predictParams, onToken func(string) bool) (string, error) {
	return f.run(onToken)
}

func (f *fakeSession) Close() error {
	f.closed.Store(true)
	return nil
}

func newTestEngine(f *fakeSession, opts Options) *embedded {
	e := &embedded{opts: opts.withDefaults(), sess: f}
	e.loaded.Store(true)
	return e
}

func TestGenerateReturnsText(t *testing.T) {
	f := &fakeSession{tokens: []string{"Hello", ", ", "world."}}
	e := newTestEngine(f, Options{})
	out, err := e.Generate(context.Background(), "hi", types.GenerationConfig{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "Hello, world." {
		t.Fatalf("out=%q", out)
	}
	if f.reentered.Load() {
		t.Fatalf("session entered concurrently")
	}
}

func TestGenerateSerializesConcurrentCalls(t *testing.T) {
	f := &fakeSession{tokens: []string{"a", "b", "c"}, delay: 10 * time.Millisecond}
	e := newTestEngine(f, Options{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.Generate(context.Background(), "p", types.GenerationConfig{}); err != nil {
				t.Errorf("generate: %v", err)
			}
		}()
	}
	wg.Wait()
	if f.reentered.Load() {
		t.Fatalf("native session is not reentrant but was entered concurrently")
	}
	if f.calls.Load() != 4 {
		t.Fatalf("expected 4 serialized calls, got %d", f.calls.Load())
	}
}

func TestGenerateStreamYieldsFragments(t *testing.T) {
	f := &fakeSession{tokens: []string{"one ", "two ", "three"}}
	e := newTestEngine(f, Options{})
	ch, err := e.GenerateStream(context.Background(), "p", types.GenerationConfig{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	var got []string
	for fr := range ch {
		if fr.Err != nil {
			t.Fatalf("fragment error: %v", fr.Err)
		}
		got = append(got, fr.Text)
	}
	if strings.Join(got, "") != "one two three" {
		t.Fatalf("fragments: %q", got)
	}
}

func TestGenerateStreamAlreadyCancelled(t *testing.T) {
	f := &fakeSession{tokens: []string{"never"}}
	e := newTestEngine(f, Options{})
	if !e.Cancel() {
		t.Fatalf("cancel on loaded engine must report true")
	}
	ch, err := e.GenerateStream(context.Background(), "p", types.GenerationConfig{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if fr, open := <-ch; open {
		t.Fatalf("expected zero fragments, got %+v", fr)
	}
	if f.calls.Load() != 0 {
		t.Fatalf("native session touched by a cancelled stream")
	}
	// The engine recovers for the next call.
	out, err := e.Generate(context.Background(), "p", types.GenerationConfig{})
	if err != nil || out != "never" {
		t.Fatalf("post-cancel generate: %q err=%v", out, err)
	}
}

func TestCancelStopsStreamPromptly(t *testing.T) {
	f := &fakeSession{tokens: []string{"a", "b", "c", "d", "e"}, delay: 5 * time.Millisecond}
	e := newTestEngine(f, Options{})
	ch, err := e.GenerateStream(context.Background(), "p", types.GenerationConfig{})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	var n int
	for fr := range ch {
		if fr.Err != nil {
			t.Fatalf("fragment error: %v", fr.Err)
		}
		n++
		if n == 2 {
			e.Cancel()
		}
	}
	if n >= 5 {
		t.Fatalf("stream did not stop after cancel, yielded %d fragments", n)
	}
	// Session stays usable for the next call.
	if out, err := e.Generate(context.Background(), "p", types.GenerationConfig{}); err != nil || out == "" {
		t.Fatalf("post-cancel generate: %q err=%v", out, err)
	}
}

func TestCancelOnUnloadedEngine(t *testing.T) {
	e := newTestEngine(&fakeSession{}, Options{})
	if err := e.Unload(); err != nil {
		t.Fatalf("unload: %v", err)
	}
	if e.Cancel() {
		t.Fatalf("cancel on unloaded engine must report false")
	}
	if _, err := e.Generate(context.Background(), "p", types.GenerationConfig{}); !errors.Is(err, types.ErrEngineNotLoaded) {
		t.Fatalf("expected ErrEngineNotLoaded, got %v", err)
	}
}

func TestCrashSignatureForcesUnload(t *testing.T) {
	f := &fakeSession{err: errors.New("GGML_ASSERT: not enough space in the context")}
	e := newTestEngine(f, Options{})
	_, err := e.Generate(context.Background(), "p", types.GenerationConfig{})
	if !types.IsEngineLoadFailed(err) {
		t.Fatalf("expected engine load failure, got %v", err)
	}
	if e.IsLoaded() {
		t.Fatalf("engine must drop its session after a crash-adjacent error")
	}
	if !f.closed.Load() {
		t.Fatalf("native session not closed")
	}
}

func TestOrdinaryNativeErrorKeepsSession(t *testing.T) {
	f := &fakeSession{err: errors.New("sampling failed")}
	e := newTestEngine(f, Options{})
	_, err := e.Generate(context.Background(), "p", types.GenerationConfig{})
	if !types.IsGenerationFailed(err) {
		t.Fatalf("expected generation failure, got %v", err)
	}
	if !e.IsLoaded() {
		t.Fatalf("ordinary failure must not unload the engine")
	}
}

func TestGenerateWithImageRequiresProjector(t *testing.T) {
	e := newTestEngine(&fakeSession{tokens: []string{"cat"}}, Options{})
	_, err := e.GenerateWithImage(context.Background(), "what is this", []byte{1}, types.GenerationConfig{})
	if !errors.Is(err, types.ErrFeatureNotSupported) {
		t.Fatalf("expected feature-not-supported, got %v", err)
	}
	// With a projector configured the call goes through.
	e = newTestEngine(&fakeSession{tokens: []string{"cat"}}, Options{AuxPath: "/models/m-aux/model.gguf"})
	out, err := e.GenerateWithImage(context.Background(), "what is this", []byte{1}, types.GenerationConfig{})
	if err != nil || out != "cat" {
		t.Fatalf("image generate: %q err=%v", out, err)
	}
}

func TestUnloadIdempotent(t *testing.T) {
	f := &fakeSession{}
	e := newTestEngine(f, Options{})
	if err := e.Unload(); err != nil {
		t.Fatalf("unload: %v", err)
	}
	if err := e.Unload(); err != nil {
		t.Fatalf("second unload: %v", err)
	}
	if e.IsLoaded() {
		t.Fatalf("still loaded")
	}
}

func TestFactoryUnknownType(t *testing.T) {
	_, err := New(types.EngineType("imaginary"), Options{})
	if !errors.Is(err, types.ErrFeatureNotSupported) {
		t.Fatalf("expected feature-not-supported, got %v", err)
	}
}
