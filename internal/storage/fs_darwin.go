//go:build darwin

package storage

import (
	"io/fs"
	"syscall"
	"time"
)

func birthTime(_ string, info fs.FileInfo) time.Time {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.ModTime()
	}
	return time.Unix(st.Birthtimespec.Sec, st.Birthtimespec.Nsec)
}

func renameNoReplace(oldPath, newPath string) error {
	return renameIfAbsent(oldPath, newPath)
}
