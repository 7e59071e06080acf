//go:build linux

package device

import (
	"strings"

	"golang.org/x/sys/unix"
)

func platformMemory() (totalMB, availableMB int64) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return 0, 0
	}
	unit := int64(si.Unit)
	if unit == 0 {
		unit = 1
	}
	const mb = 1024 * 1024
	return int64(si.Totalram) * unit / mb, int64(si.Freeram) * unit / mb
}

func platformOSVersion() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return ""
	}
	return charsToString(uts.Release[:])
}

func platformChipFamily() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return ""
	}
	return strings.ToLower(charsToString(uts.Machine[:]))
}

func charsToString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
