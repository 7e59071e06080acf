package lifecycle

import (
	"context"
	"time"

	"edgellm/internal/download"
	"edgellm/pkg/types"
)

// DownloadModel drives a full download for id and returns its progress
// stream, already re-labelled into lifecycle semantics: transfer events
// while bytes move, a verifying event once they are complete, then a single
// terminal event for the model.
func (m *Manager) DownloadModel(ctx context.Context, id string) (<-chan types.DownloadProgress, error) {
	desc, ok := m.cat.Get(id)
	if !ok {
		return nil, &types.ModelNotFoundError{ID: id}
	}

	lock := m.opLock(id)
	lock.Lock()
	defer lock.Unlock()

	if m.isFullyDownloaded(desc) {
		return m.syntheticCompleted(desc), nil
	}

	// The primary can already be on disk when only the projector is
	// missing, e.g. after a paused primary was resumed to completion.
	auxOnly := desc.HasAux() && m.store.IsDownloaded(desc.ID)

	requiredMB := desc.TotalSizeMB()
	if auxOnly {
		requiredMB = desc.AuxSizeMB
	}
	if !m.store.HasEnoughSpace(requiredMB) {
		downloadsTotal.WithLabelValues("rejected").Inc()
		return nil, &types.InsufficientStorageError{RequiredMB: requiredMB}
	}

	var raw <-chan types.DownloadProgress
	var err error
	if auxOnly {
		raw, err = m.dl.StartAux(ctx, desc)
	} else {
		raw, err = m.dl.Start(ctx, desc)
	}
	if err != nil {
		return nil, &types.DownloadFailedError{Reason: err.Error(), Err: err}
	}
	if err := m.transition(id, types.LifecycleState{Phase: types.PhaseDownloading}); err != nil {
		m.dl.Cancel(id)
		return nil, err
	}

	out := make(chan types.DownloadProgress, 32)
	go m.relabel(desc, raw, out)
	return out, nil
}

// CancelDownload aborts the in-flight transfer for id. The progress stream
// reports the cancellation and the state machine returns to NotDownloaded.
func (m *Manager) CancelDownload(id string) {
	m.dl.Cancel(id)
}

// PauseDownload suspends the transfer for id, returning an opaque token a
// later ResumeDownload reconstructs it from. The partial bytes stay on disk.
func (m *Manager) PauseDownload(id string) (download.ResumeToken, bool) {
	tok, ok := m.dl.Pause(id)
	if !ok {
		return download.ResumeToken{}, false
	}
	// Paused is not a downloaded state; the model re-enters Downloading on
	// resume.
	_ = m.transition(id, types.LifecycleState{Phase: types.PhaseNotDownloaded, Message: "download paused"})
	return tok, true
}

// ResumeDownload restarts a paused transfer from its token.
func (m *Manager) ResumeDownload(ctx context.Context, token download.ResumeToken) (<-chan types.DownloadProgress, error) {
	desc, ok := m.cat.Get(token.ModelID)
	if !ok {
		return nil, &types.ModelNotFoundError{ID: token.ModelID}
	}

	lock := m.opLock(desc.ID)
	lock.Lock()
	defer lock.Unlock()

	raw, err := m.dl.Resume(ctx, token)
	if err != nil {
		return nil, &types.DownloadFailedError{Reason: err.Error(), Err: err}
	}
	if err := m.transition(desc.ID, types.LifecycleState{Phase: types.PhaseDownloading}); err != nil {
		m.dl.Cancel(desc.ID)
		return nil, err
	}

	out := make(chan types.DownloadProgress, 32)
	go m.relabel(desc, raw, out)
	return out, nil
}

// syntheticCompleted reports an already-downloaded model as one completed
// event without touching the network.
func (m *Manager) syntheticCompleted(desc types.ModelDescriptor) <-chan types.DownloadProgress {
	size, _ := m.store.FileSize(desc.ID)
	out := make(chan types.DownloadProgress, 1)
	out <- types.DownloadProgress{
		ModelID:          desc.ID,
		FileID:           desc.ID,
		BytesTransferred: size,
		TotalBytes:       size,
		Stage:            types.StageCompleted,
	}
	close(out)
	return out
}

// relabel forwards raw transfer events to out while tracking the overall
// outcome, then performs verification and finalizes the lifecycle state.
// It owns the terminal transition for the download.
func (m *Manager) relabel(desc types.ModelDescriptor, raw <-chan types.DownloadProgress, out chan<- types.DownloadProgress) {
	defer close(out)

	var failed, cancelled bool
	var failure string
	for p := range raw {
		switch p.Stage {
		case types.StageFailed:
			failed = true
			failure = p.Err
		case types.StageCancelled:
			cancelled = true
		case types.StageDownloading:
			if p.FileID == desc.ID {
				m.setProgress(desc.ID, p.Fraction())
			}
		}
		m.forward(out, p)
	}

	switch {
	case cancelled:
		_ = m.transition(desc.ID, types.LifecycleState{Phase: types.PhaseNotDownloaded})
		downloadsTotal.WithLabelValues("cancelled").Inc()
		return
	case failed:
		_ = m.transition(desc.ID, types.LifecycleState{Phase: types.PhaseError, Message: failure})
		downloadsTotal.WithLabelValues("failed").Inc()
		return
	}

	// A paused stream ends without a terminal event for its file; the model
	// is then neither complete nor failed.
	if !m.isFullyDownloaded(desc) && m.store.IsDownloaded(desc.ID) && desc.HasAux() {
		// Primary landed but the projector did not (pause mid-sequence).
		_ = m.transition(desc.ID, types.LifecycleState{Phase: types.PhaseNotDownloaded, Message: "download paused"})
		return
	}
	if !m.store.IsDownloaded(desc.ID) {
		_ = m.transition(desc.ID, types.LifecycleState{Phase: types.PhaseNotDownloaded, Message: "download paused"})
		return
	}

	m.verifyAndFinalize(desc, out)
}

// forward pushes an event to the consumer without ever blocking the state
// machine on it. Intermediate events drop when the buffer is full; terminal
// and verifying events wait briefly for a slow consumer to catch up.
func (m *Manager) forward(out chan<- types.DownloadProgress, p types.DownloadProgress) {
	if !p.Stage.Terminal() && p.Stage != types.StageVerifying {
		select {
		case out <- p:
		default:
		}
		return
	}
	select {
	case out <- p:
	case <-time.After(5 * time.Second):
		m.log.Warn().Str("model", p.ModelID).Str("stage", string(p.Stage)).
			Msg("progress consumer stalled, dropping event")
	}
}

// verifyAndFinalize checks every downloaded file against its declared
// checksum, writes manifests, and lands on Downloaded or Error. A corrupt
// artifact is deleted so a retry starts clean.
func (m *Manager) verifyAndFinalize(desc types.ModelDescriptor, out chan<- types.DownloadProgress) {
	_ = m.transition(desc.ID, types.LifecycleState{Phase: types.PhaseVerifying})
	m.forward(out, types.DownloadProgress{ModelID: desc.ID, FileID: desc.ID, Stage: types.StageVerifying})

	type fileCheck struct {
		id       string
		checksum string
	}
	checks := []fileCheck{{desc.ID, desc.Checksum}}
	if desc.HasAux() {
		checks = append(checks, fileCheck{desc.AuxID(), desc.AuxChecksum})
	}

	for _, c := range checks {
		ok, err := m.store.VerifyChecksum(c.id, c.checksum)
		if err != nil {
			m.failVerification(desc, out, "checksum read: "+err.Error())
			return
		}
		if !ok {
			m.log.Error().Str("model", desc.ID).Str("file", c.id).Msg("checksum mismatch, deleting artifact")
			m.failVerification(desc, out, types.ErrChecksumMismatch.Error())
			return
		}
	}

	now := time.Now().UTC()
	for _, c := range checks {
		size, _ := m.store.FileSize(c.id)
		manifest := types.ModelManifest{
			ID:               c.id,
			Version:          desc.Version,
			DownloadedAt:     now,
			FileSize:         size,
			Checksum:         c.checksum,
			ChecksumVerified: c.checksum != types.ChecksumNone,
		}
		if err := m.store.SaveManifest(manifest); err != nil {
			m.failVerification(desc, out, "manifest write: "+err.Error())
			return
		}
	}

	_ = m.transition(desc.ID, types.LifecycleState{Phase: types.PhaseDownloaded})
	downloadsTotal.WithLabelValues("completed").Inc()
	size, _ := m.store.FileSize(desc.ID)
	m.forward(out, types.DownloadProgress{
		ModelID:          desc.ID,
		FileID:           desc.ID,
		BytesTransferred: size,
		TotalBytes:       size,
		Stage:            types.StageCompleted,
	})
}

// failVerification deletes the corrupt artifact and reports the failure.
func (m *Manager) failVerification(desc types.ModelDescriptor, out chan<- types.DownloadProgress, reason string) {
	_ = m.store.Delete(desc.ID)
	if desc.HasAux() {
		_ = m.store.Delete(desc.AuxID())
	}
	_ = m.transition(desc.ID, types.LifecycleState{Phase: types.PhaseError, Message: reason})
	downloadsTotal.WithLabelValues("failed").Inc()
	m.forward(out, types.DownloadProgress{ModelID: desc.ID, FileID: desc.ID, Stage: types.StageFailed, Err: reason})
}
