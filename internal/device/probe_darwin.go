//go:build darwin

package device

import (
	"strings"

	"golang.org/x/sys/unix"
)

func platformMemory() (totalMB, availableMB int64) {
	total, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return 0, 0
	}
	const mb = 1024 * 1024
	// macOS has no cheap "available" counter; report half of total as a
	// conservative estimate.
	return int64(total / mb), int64(total / mb / 2)
}

func platformOSVersion() string {
	v, err := unix.Sysctl("kern.osrelease")
	if err != nil {
		return ""
	}
	return v
}

func platformChipFamily() string {
	v, err := unix.Sysctl("machdep.cpu.brand_string")
	if err != nil {
		return ""
	}
	v = strings.ToLower(v)
	if strings.Contains(v, "apple m") {
		return "apple-m" + strings.TrimSpace(strings.SplitAfter(v, "apple m")[1])
	}
	return v
}
