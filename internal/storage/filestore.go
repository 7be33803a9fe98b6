// Package storage provides the file-system primitives the task board is built
// on. Everything above this package talks to a FileStore, never to package os.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/natefinch/atomic"
)

// filePerms is applied to newly created documents; atomic.WriteFile leaves
// its temp file at 0600.
const filePerms = 0o644

var (
	// ErrNotFound is reported (wrapped) for any missing path.
	ErrNotFound = fs.ErrNotExist

	// ErrExist is reported when a destination is already occupied.
	ErrExist = fs.ErrExist

	// ErrCrossDevice is reported when a rename spans file systems.
	ErrCrossDevice = errors.New("cross-device link")
)

// IsNotFound reports whether err signals a missing path.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// FileInfo is the subset of stat data the task board cares about.
type FileInfo struct {
	Created  time.Time
	Modified time.Time
	IsDir    bool
	Size     int64
}

// DirEntry is one child of a listed directory.
type DirEntry struct {
	Name  string
	IsDir bool
}

// FileStore defines the file-system capability consumed by the core. All
// methods report a missing path with an error matching ErrNotFound.
type FileStore interface {
	Stat(path string) (FileInfo, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	ListDir(path string) ([]DirEntry, error)
	// Rename moves oldPath to newPath and never replaces an existing newPath.
	Rename(oldPath, newPath string) error
	Copy(src, dst string, overwrite bool) error
	Delete(path string, recursive bool) error
	Mkdir(path string, recursive bool) error
	// RealPath resolves symlinks in path.
	RealPath(path string) (string, error)
}

type osFileStore struct{}

// NewOSFileStore returns a FileStore backed by the local file system.
func NewOSFileStore() FileStore {
	return osFileStore{}
}

func (osFileStore) Stat(path string) (FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{
		Created:  birthTime(path, info),
		Modified: info.ModTime(),
		IsDir:    info.IsDir(),
		Size:     info.Size(),
	}, nil
}

func (osFileStore) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile replaces path atomically so a reader never observes a partially
// written document.
func (osFileStore) WriteFile(path string, data []byte) error {
	_, statErr := os.Stat(path)
	isNew := errors.Is(statErr, fs.ErrNotExist)

	if err := atomic.WriteFile(path, strings.NewReader(string(data))); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if isNew {
		if err := os.Chmod(path, filePerms); err != nil {
			return fmt.Errorf("setting permissions on %s: %w", path, err)
		}
	}
	return nil
}

func (osFileStore) ListDir(path string) ([]DirEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, DirEntry{Name: e.Name(), IsDir: e.IsDir()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (osFileStore) Rename(oldPath, newPath string) error {
	err := renameNoReplace(oldPath, newPath)
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("renaming %s to %s: %w: %v", oldPath, newPath, ErrCrossDevice, err)
	}
	return err
}

func (osFileStore) Copy(src, dst string, overwrite bool) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	out, err := os.OpenFile(dst, flags, filePerms)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copying %s to %s: %w", src, dst, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("closing %s: %w", dst, err)
	}
	return nil
}

func (osFileStore) Delete(path string, recursive bool) error {
	if !recursive {
		return os.Remove(path)
	}
	// RemoveAll is silent about missing paths; keep not-found distinct.
	if _, err := os.Lstat(path); err != nil {
		return err
	}
	return os.RemoveAll(path)
}

func (osFileStore) Mkdir(path string, recursive bool) error {
	if recursive {
		return os.MkdirAll(path, 0o755)
	}
	return os.Mkdir(path, 0o755)
}

func (osFileStore) RealPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// renameIfAbsent is the portable no-clobber rename. It is racy between the
// check and the rename, which is acceptable for a single-actor workspace.
func renameIfAbsent(oldPath, newPath string) error {
	if _, err := os.Lstat(newPath); err == nil {
		return &os.LinkError{Op: "rename", Old: oldPath, New: newPath, Err: fs.ErrExist}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Rename(oldPath, newPath)
}
