//go:build !linux && !darwin

package storage

import (
	"io/fs"
	"time"
)

// birthTime falls back to the modification time where the platform does not
// expose a creation time through os.Stat.
func birthTime(_ string, info fs.FileInfo) time.Time {
	return info.ModTime()
}

func renameNoReplace(oldPath, newPath string) error {
	return renameIfAbsent(oldPath, newPath)
}
