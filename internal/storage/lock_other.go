//go:build !unix

package storage

import (
	"fmt"
	"os"
)

// LockFile only ensures the lock file exists on platforms without flock.
// Mutations are still serialized in-process by the callers.
func LockFile(path string) (unlock func() error, err error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}
	return f.Close, nil
}
