package lifecycle

import (
	"context"

	"edgellm/pkg/types"
)

// AutoSelectAndPrepare picks the best catalog model for the given memory
// budget and moves it as far toward Loaded as possible without network
// surprises: already loaded is a no-op, downloaded gets loaded, anything
// else starts a download whose progress the caller observes. The returned
// channel is nil unless a download was started.
func (m *Manager) AutoSelectAndPrepare(ctx context.Context, memoryMB int64) (types.ModelDescriptor, <-chan types.DownloadProgress, error) {
	desc, ok := m.cat.Recommended(memoryMB)
	if !ok {
		return types.ModelDescriptor{}, nil, types.ErrDeviceNotSupported
	}

	m.mu.RLock()
	active, eng := m.activeID, m.eng
	m.mu.RUnlock()
	if active == desc.ID && eng != nil {
		return desc, nil, nil
	}

	if m.isFullyDownloaded(desc) {
		return desc, nil, m.LoadModel(ctx, desc.ID)
	}

	ch, err := m.DownloadModel(ctx, desc.ID)
	if err != nil {
		return desc, nil, err
	}
	return desc, ch, nil
}
