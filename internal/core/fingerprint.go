package core

import (
	"sync"
	"time"
)

// FingerprintTable remembers the last modification time observed for each
// open task file. A save compares against it to detect external edits.
type FingerprintTable struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewFingerprintTable returns an empty table.
func NewFingerprintTable() *FingerprintTable {
	return &FingerprintTable{entries: make(map[string]time.Time)}
}

// Record stores the modification time seen for path.
func (f *FingerprintTable) Record(path string, modified time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[path] = modified
}

// Lookup returns the stored modification time for path.
func (f *FingerprintTable) Lookup(path string) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.entries[path]
	return t, ok
}

// Forget drops path from the table.
func (f *FingerprintTable) Forget(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, path)
}

// Replace moves the fingerprint from oldPath to newPath after a relocation.
func (f *FingerprintTable) Replace(oldPath, newPath string, modified time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, oldPath)
	f.entries[newPath] = modified
}

// Len returns the number of tracked paths.
func (f *FingerprintTable) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// Conflicts reports whether path has a stored fingerprint that differs from
// current.
func (f *FingerprintTable) Conflicts(path string, current time.Time) bool {
	stored, ok := f.Lookup(path)
	return ok && !stored.Equal(current)
}
