//go:build linux

package releasefs

import (
	"io/fs"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// creationTime prefers the birth time reported by statx and falls back to
// the inode change time on filesystems that do not record one.
func creationTime(path string, info fs.FileInfo) time.Time {
	var stx unix.Statx_t
	if err := unix.Statx(unix.AT_FDCWD, path, 0, unix.STATX_BTIME, &stx); err == nil && stx.Mask&unix.STATX_BTIME != 0 {
		return time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec))
	}
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(int64(st.Ctim.Sec), int64(st.Ctim.Nsec))
	}
	return info.ModTime()
}
