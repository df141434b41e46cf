//go:build !linux && !darwin

package converter

import "io/fs"

func createTime(_ string, info fs.FileInfo) uint64 {
	return uint64(info.ModTime().UnixNano())
}
