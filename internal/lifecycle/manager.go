// Package lifecycle owns the per-model state machine and the single active
// engine. Every download, load, unload and delete goes through the Manager;
// Storage and the engine backends are never driven directly by callers.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"edgellm/internal/catalog"
	"edgellm/internal/download"
	"edgellm/internal/engine"
	"edgellm/internal/storage"
	"edgellm/pkg/types"
)

// Transferer is the transfer surface the manager drives. Satisfied by
// *download.Downloader; tests substitute fakes.
type Transferer interface {
	Start(ctx context.Context, desc types.ModelDescriptor) (<-chan types.DownloadProgress, error)
	StartAux(ctx context.Context, desc types.ModelDescriptor) (<-chan types.DownloadProgress, error)
	Resume(ctx context.Context, token download.ResumeToken) (<-chan types.DownloadProgress, error)
	Pause(id string) (download.ResumeToken, bool)
	Cancel(id string)
	CancelAll()
	IsDownloading(id string) bool
}

// EngineFactory builds an engine backend. Substituted in tests.
type EngineFactory func(t types.EngineType, opts engine.Options) (engine.Engine, error)

// subscriberBuffer is the per-subscriber event backlog. A subscriber that
// falls further behind than this loses events rather than stalling the
// state machine.
const subscriberBuffer = 64

// Config wires a Manager.
type Config struct {
	Catalog    *catalog.Catalog
	Store      *storage.Store
	Downloader Transferer
	Capability types.DeviceCapability
	// Engines overrides engine construction; nil uses engine.New.
	Engines EngineFactory
	// EngineOptions carries host tunables (threads, batch, GPU layers)
	// applied to every constructed engine.
	EngineOptions engine.Options
	Logger        zerolog.Logger
}

// Manager is the lifecycle coordinator. All shared bookkeeping (the state
// table, subscriber list and current-engine pointer) is guarded by mu;
// engine swaps additionally serialize on loadMu so two loads can never
// race to construct.
type Manager struct {
	cat       *catalog.Catalog
	store     *storage.Store
	dl        Transferer
	caps      types.DeviceCapability
	newEngine EngineFactory
	engOpts   engine.Options
	log       zerolog.Logger

	mu       sync.RWMutex
	states   map[string]types.LifecycleState
	activeID string
	eng      engine.Engine
	subs     map[int]chan types.StateChange
	nextSub  int

	// loadMu serializes engine construction and release across model ids.
	loadMu sync.Mutex

	opMu sync.Mutex
	ops  map[string]*sync.Mutex
}

// New builds a Manager and rehydrates the state table from disk: every
// catalog model with its primary file present starts Downloaded, the rest
// NotDownloaded. Rehydration publishes no events.
func New(cfg Config) (*Manager, error) {
	if cfg.Catalog == nil || cfg.Store == nil || cfg.Downloader == nil {
		return nil, fmt.Errorf("lifecycle: catalog, store and downloader are required")
	}
	factory := cfg.Engines
	if factory == nil {
		factory = engine.New
	}
	m := &Manager{
		cat:       cfg.Catalog,
		store:     cfg.Store,
		dl:        cfg.Downloader,
		caps:      cfg.Capability,
		newEngine: factory,
		engOpts:   cfg.EngineOptions,
		log:       cfg.Logger,
		states:    make(map[string]types.LifecycleState),
		subs:      make(map[int]chan types.StateChange),
		ops:       make(map[string]*sync.Mutex),
	}
	for _, desc := range cfg.Catalog.List() {
		phase := types.PhaseNotDownloaded
		if m.isFullyDownloaded(desc) {
			phase = types.PhaseDownloaded
		}
		m.states[desc.ID] = types.LifecycleState{Phase: phase}
	}
	return m, nil
}

// isFullyDownloaded reports whether every file the descriptor needs is on
// disk.
func (m *Manager) isFullyDownloaded(desc types.ModelDescriptor) bool {
	if !m.store.IsDownloaded(desc.ID) {
		return false
	}
	return !desc.HasAux() || m.store.IsDownloaded(desc.AuxID())
}

// opLock returns the per-id operation mutex, creating it on first use.
// Operations for one id serialize on it; different ids never contend.
func (m *Manager) opLock(id string) *sync.Mutex {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	l, ok := m.ops[id]
	if !ok {
		l = &sync.Mutex{}
		m.ops[id] = l
	}
	return l
}

// State returns the lifecycle state for one model id.
func (m *Manager) State(id string) (types.LifecycleState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[id]
	return s, ok
}

// States returns a snapshot of the whole state table.
func (m *Manager) States() map[string]types.LifecycleState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]types.LifecycleState, len(m.states))
	for id, s := range m.states {
		out[id] = s
	}
	return out
}

// ActiveModelID returns the currently loaded model id, empty when none.
func (m *Manager) ActiveModelID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeID
}

// CurrentEngine returns the active engine, nil when no model is loaded.
func (m *Manager) CurrentEngine() engine.Engine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.eng
}

// Capability returns the device snapshot the manager was built with.
func (m *Manager) Capability() types.DeviceCapability { return m.caps }

// ListModels returns every catalog descriptor.
func (m *Manager) ListModels() []types.ModelDescriptor { return m.cat.List() }

// GetModel looks up one catalog descriptor.
func (m *Manager) GetModel(id string) (types.ModelDescriptor, bool) { return m.cat.Get(id) }

// UsageBytes reports the total on-disk footprint of downloaded models.
func (m *Manager) UsageBytes() (int64, error) { return m.store.TotalUsageBytes() }

// Ready reports whether the runtime can serve requests.
func (m *Manager) Ready() bool { return len(m.cat.List()) > 0 }

// Catalog exposes the model catalog for read-only consumers.
func (m *Manager) Catalog() *catalog.Catalog { return m.cat }

// Storage exposes the store for read-only consumers (usage reporting).
func (m *Manager) Storage() *storage.Store { return m.store }

// Subscribe registers a listener for state changes. Events arrive in
// transition order; a subscriber that stops draining loses events instead
// of blocking transitions. The returned cancel func closes the channel.
func (m *Manager) Subscribe() (<-chan types.StateChange, func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan types.StateChange, subscriberBuffer)
	m.subs[id] = ch
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// publishLocked fans a change out to every subscriber. Caller holds mu, so
// every subscriber observes changes in the same total order.
func (m *Manager) publishLocked(c types.StateChange) {
	for _, ch := range m.subs {
		select {
		case ch <- c:
		default:
			// Slow subscriber: drop rather than stall the state machine.
		}
	}
}

// transition moves id to next, validating against the state table, and
// publishes the change. Progress and Message ride along on the new state.
func (m *Manager) transition(id string, next types.LifecycleState) error {
	m.mu.Lock()
	prev := m.states[id]
	if !validTransition(prev.Phase, next.Phase) {
		m.mu.Unlock()
		return fmt.Errorf("invalid transition for %s: %s -> %s", id, prev.Phase, next.Phase)
	}
	m.states[id] = next
	change := types.StateChange{ModelID: id, Previous: prev, Current: next, Timestamp: time.Now().UTC()}
	m.publishLocked(change)
	m.mu.Unlock()

	transitionsTotal.WithLabelValues(string(next.Phase)).Inc()
	m.log.Debug().Str("model", id).
		Str("from", string(prev.Phase)).Str("to", string(next.Phase)).
		Msg("lifecycle transition")
	return nil
}

// forcePhase sets a phase unconditionally. Reserved for delete, which must
// land on NotDownloaded from any starting point.
func (m *Manager) forcePhase(id string, next types.LifecycleState) {
	m.mu.Lock()
	prev := m.states[id]
	m.states[id] = next
	change := types.StateChange{ModelID: id, Previous: prev, Current: next, Timestamp: time.Now().UTC()}
	m.publishLocked(change)
	m.mu.Unlock()
	transitionsTotal.WithLabelValues(string(next.Phase)).Inc()
}

// setProgress updates download progress in place without publishing; the
// phase is unchanged, so this is not a transition.
func (m *Manager) setProgress(id string, fraction float64) {
	m.mu.Lock()
	s := m.states[id]
	if s.Phase == types.PhaseDownloading {
		s.Progress = fraction
		m.states[id] = s
	}
	m.mu.Unlock()
}

// Close cancels in-flight transfers and unloads the active engine.
func (m *Manager) Close() error {
	m.dl.CancelAll()
	m.mu.RLock()
	active := m.activeID
	m.mu.RUnlock()
	if active != "" {
		return m.UnloadModel(active)
	}
	return nil
}
