//go:build darwin

package converter

import (
	"io/fs"

	"golang.org/x/sys/unix"
)

// createTime returns the birth time of name in nanoseconds, or the
// modification time when it cannot be read.
func createTime(name string, info fs.FileInfo) uint64 {
	var st unix.Stat_t
	if err := unix.Stat(name, &st); err != nil {
		return uint64(info.ModTime().UnixNano())
	}
	return uint64(st.Btim.Nano())
}
