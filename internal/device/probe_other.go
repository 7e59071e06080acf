//go:build !linux && !darwin

package device

import "runtime"

// Fallback probes for platforms without a wired syscall path. Detection
// degrades to conservative defaults.
func platformMemory() (totalMB, availableMB int64) { return 0, 0 }

func platformOSVersion() string { return "" }

func platformChipFamily() string { return runtime.GOARCH }
