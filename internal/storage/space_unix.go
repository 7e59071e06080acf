//go:build linux || darwin

package storage

import "golang.org/x/sys/unix"

// platformFreeSpace returns free bytes usable by an unprivileged process on
// the filesystem containing path.
func platformFreeSpace(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}
