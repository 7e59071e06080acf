package lifecycle

import "edgellm/pkg/types"

// validNext is the lifecycle transition table. Loaded is reachable only
// through Loading, Downloaded only through Verifying or Unloading (or a
// delete-free rehydration at startup, which bypasses the table).
var validNext = map[types.LifecyclePhase][]types.LifecyclePhase{
	types.PhaseNotDownloaded: {types.PhaseDownloading},
	types.PhaseDownloading:   {types.PhaseVerifying, types.PhaseError, types.PhaseNotDownloaded},
	types.PhaseVerifying:     {types.PhaseDownloaded, types.PhaseError},
	types.PhaseDownloaded:    {types.PhaseLoading, types.PhaseDownloading, types.PhaseNotDownloaded},
	types.PhaseLoading:       {types.PhaseLoaded, types.PhaseError},
	types.PhaseLoaded:        {types.PhaseUnloading},
	types.PhaseUnloading:     {types.PhaseDownloaded},
	types.PhaseError:         {types.PhaseDownloading, types.PhaseLoading, types.PhaseNotDownloaded},
}

func validTransition(from, to types.LifecyclePhase) bool {
	if from == to {
		return false
	}
	for _, next := range validNext[from] {
		if next == to {
			return true
		}
	}
	return false
}
