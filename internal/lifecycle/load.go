package lifecycle

import (
	"context"

	"edgellm/internal/engine"
	"edgellm/pkg/types"
)

// LoadModel makes id the active model, constructing an engine over its
// on-disk files. A different active model is unloaded first; only one
// engine exists at a time. State reaches Loaded only after the engine is
// registered; a construction failure leaves Error and no engine.
func (m *Manager) LoadModel(ctx context.Context, id string) error {
	desc, ok := m.cat.Get(id)
	if !ok {
		return &types.ModelNotFoundError{ID: id}
	}

	lock := m.opLock(id)
	lock.Lock()
	defer lock.Unlock()

	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	active, activeEng := m.activeID, m.eng
	m.mu.RUnlock()
	if active == id && activeEng != nil {
		return nil
	}

	if m.caps.RecommendedEngine == types.EngineNone {
		return types.ErrDeviceNotSupported
	}
	if desc.MinMemoryMB > 0 && desc.MinMemoryMB > m.caps.TotalMemoryMB {
		return &types.InsufficientMemoryError{RequiredMB: desc.MinMemoryMB, AvailableMB: m.caps.TotalMemoryMB}
	}
	if !m.isFullyDownloaded(desc) {
		return &types.ModelNotDownloadedError{ID: id}
	}

	if active != "" {
		if err := m.unloadActive(active); err != nil {
			m.log.Warn().Str("model", active).Err(err).Msg("unload before load switch")
		}
	}

	if err := m.transition(id, types.LifecycleState{Phase: types.PhaseLoading}); err != nil {
		return err
	}

	eng, err := m.newEngine(m.caps.RecommendedEngine, m.engineOptions(desc))
	if err != nil {
		loadsTotal.WithLabelValues("failed").Inc()
		_ = m.transition(id, types.LifecycleState{Phase: types.PhaseError, Message: err.Error()})
		return err
	}

	m.mu.Lock()
	m.eng = eng
	m.activeID = id
	m.mu.Unlock()
	activeModels.Set(1)
	loadsTotal.WithLabelValues("loaded").Inc()
	m.log.Info().Str("model", id).Msg("model loaded")
	return m.transition(id, types.LifecycleState{Phase: types.PhaseLoaded})
}

// UnloadModel releases the engine for id. A no-op when id is not the
// active model.
func (m *Manager) UnloadModel(id string) error {
	lock := m.opLock(id)
	lock.Lock()
	defer lock.Unlock()

	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	m.mu.RLock()
	active := m.activeID
	m.mu.RUnlock()
	if active != id {
		return nil
	}
	return m.unloadActive(id)
}

// unloadActive releases the current engine and walks id back to
// Downloaded. Caller holds loadMu. The current pointer clears before the
// state lands, so no window exists where Loaded holds without an engine.
func (m *Manager) unloadActive(id string) error {
	_ = m.transition(id, types.LifecycleState{Phase: types.PhaseUnloading})

	m.mu.Lock()
	eng := m.eng
	m.eng = nil
	m.activeID = ""
	m.mu.Unlock()
	activeModels.Set(0)

	var err error
	if eng != nil {
		eng.Cancel()
		err = eng.Unload()
	}
	_ = m.transition(id, types.LifecycleState{Phase: types.PhaseDownloaded})
	m.log.Info().Str("model", id).Msg("model unloaded")
	return err
}

// DeleteModel removes id's on-disk files, unloading first when it is the
// active model and cancelling any in-flight transfer. State always ends
// NotDownloaded, even when the unload errors.
func (m *Manager) DeleteModel(id string) error {
	desc, ok := m.cat.Get(id)
	if !ok {
		return &types.ModelNotFoundError{ID: id}
	}

	lock := m.opLock(id)
	lock.Lock()
	defer lock.Unlock()

	m.dl.Cancel(id)

	m.loadMu.Lock()
	m.mu.RLock()
	active := m.activeID
	m.mu.RUnlock()
	if active == id {
		if err := m.unloadActive(id); err != nil {
			m.log.Warn().Str("model", id).Err(err).Msg("unload during delete")
		}
	}
	m.loadMu.Unlock()

	err := m.store.Delete(id)
	if desc.HasAux() {
		if auxErr := m.store.Delete(desc.AuxID()); err == nil {
			err = auxErr
		}
	}

	m.forcePhase(id, types.LifecycleState{Phase: types.PhaseNotDownloaded})
	m.log.Info().Str("model", id).Msg("model deleted")
	return err
}

// engineOptions assembles construction options from the descriptor, the
// host tunables and the store's file layout.
func (m *Manager) engineOptions(desc types.ModelDescriptor) engine.Options {
	opts := m.engOpts
	opts.ModelPath = m.store.ModelPath(desc.ID)
	if desc.HasAux() && m.store.IsDownloaded(desc.AuxID()) {
		opts.AuxPath = m.store.ModelPath(desc.AuxID())
	}
	opts.PromptFormat = desc.PromptFormat
	if desc.ContextLength > 0 {
		opts.ContextSize = desc.ContextLength
	}
	opts.Logger = m.log
	return opts
}
