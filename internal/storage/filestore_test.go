package storage

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestOSFileStore_WriteReadStat(t *testing.T) {
	dir := t.TempDir()
	fs := NewOSFileStore()
	path := filepath.Join(dir, "a.md")

	if err := fs.WriteFile(path, []byte("hello")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := fs.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("ReadFile = %q, want %q", data, "hello")
	}

	info, err := fs.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.IsDir {
		t.Error("expected file, got directory")
	}
	if info.Size != 5 {
		t.Errorf("Size = %d, want 5", info.Size)
	}
	if info.Modified.IsZero() || info.Created.IsZero() {
		t.Errorf("expected non-zero timestamps, got %+v", info)
	}

	if runtime.GOOS != "windows" {
		st, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if st.Mode().Perm() != filePerms {
			t.Errorf("perm = %o, want %o", st.Mode().Perm(), filePerms)
		}
	}

	// Overwrite keeps working.
	if err := fs.WriteFile(path, []byte("bye")); err != nil {
		t.Fatalf("WriteFile overwrite: %v", err)
	}
	data, _ = fs.ReadFile(path)
	if string(data) != "bye" {
		t.Errorf("after overwrite = %q, want %q", data, "bye")
	}
}

func TestOSFileStore_NotFoundIsDistinct(t *testing.T) {
	dir := t.TempDir()
	fs := NewOSFileStore()
	missing := filepath.Join(dir, "nope.md")

	if _, err := fs.Stat(missing); !IsNotFound(err) {
		t.Errorf("Stat missing: err = %v, want not found", err)
	}
	if _, err := fs.ReadFile(missing); !IsNotFound(err) {
		t.Errorf("ReadFile missing: err = %v, want not found", err)
	}
	if _, err := fs.ListDir(missing); !IsNotFound(err) {
		t.Errorf("ListDir missing: err = %v, want not found", err)
	}
	if err := fs.Delete(missing, false); !IsNotFound(err) {
		t.Errorf("Delete missing: err = %v, want not found", err)
	}
	if err := fs.Delete(missing, true); !IsNotFound(err) {
		t.Errorf("Delete recursive missing: err = %v, want not found", err)
	}
	if err := fs.Rename(missing, filepath.Join(dir, "other.md")); !IsNotFound(err) {
		t.Errorf("Rename missing: err = %v, want not found", err)
	}
}

func TestOSFileStore_RenameNeverReplaces(t *testing.T) {
	dir := t.TempDir()
	fs := NewOSFileStore()
	src := filepath.Join(dir, "src.md")
	dst := filepath.Join(dir, "dst.md")
	os.WriteFile(src, []byte("src"), 0o644)
	os.WriteFile(dst, []byte("dst"), 0o644)

	err := fs.Rename(src, dst)
	if !errors.Is(err, ErrExist) {
		t.Fatalf("Rename onto existing: err = %v, want ErrExist", err)
	}

	got, _ := os.ReadFile(dst)
	if string(got) != "dst" {
		t.Errorf("destination was modified: %q", got)
	}
	if _, err := os.Stat(src); err != nil {
		t.Errorf("source should still exist: %v", err)
	}

	moved := filepath.Join(dir, "moved.md")
	if err := fs.Rename(src, moved); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source should be gone after rename")
	}
}

func TestOSFileStore_Copy(t *testing.T) {
	dir := t.TempDir()
	fs := NewOSFileStore()
	src := filepath.Join(dir, "src.md")
	dst := filepath.Join(dir, "dst.md")
	os.WriteFile(src, []byte("content"), 0o644)

	if err := fs.Copy(src, dst, false); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "content" {
		t.Errorf("copied = %q, want %q", got, "content")
	}

	if err := fs.Copy(src, dst, false); !errors.Is(err, ErrExist) {
		t.Errorf("Copy without overwrite: err = %v, want ErrExist", err)
	}

	os.WriteFile(src, []byte("newer"), 0o644)
	if err := fs.Copy(src, dst, true); err != nil {
		t.Fatalf("Copy with overwrite: %v", err)
	}
	got, _ = os.ReadFile(dst)
	if string(got) != "newer" {
		t.Errorf("overwritten = %q, want %q", got, "newer")
	}
}

func TestOSFileStore_DirOperations(t *testing.T) {
	dir := t.TempDir()
	fs := NewOSFileStore()
	nested := filepath.Join(dir, "a", "b")

	if err := fs.Mkdir(nested, false); err == nil {
		t.Error("expected non-recursive Mkdir of nested path to fail")
	}
	if err := fs.Mkdir(nested, true); err != nil {
		t.Fatalf("Mkdir recursive: %v", err)
	}
	os.WriteFile(filepath.Join(nested, "z.md"), nil, 0o644)
	os.WriteFile(filepath.Join(nested, "a.md"), nil, 0o644)
	os.Mkdir(filepath.Join(nested, "sub"), 0o755)

	entries, err := fs.ListDir(nested)
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	want := []DirEntry{{"a.md", false}, {"sub", true}, {"z.md", false}}
	if len(entries) != len(want) {
		t.Fatalf("ListDir returned %d entries, want %d", len(entries), len(want))
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, entries[i], want[i])
		}
	}

	if err := fs.Delete(filepath.Join(dir, "a"), false); err == nil {
		t.Error("expected non-recursive Delete of non-empty dir to fail")
	}
	if err := fs.Delete(filepath.Join(dir, "a"), true); err != nil {
		t.Fatalf("Delete recursive: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a")); !os.IsNotExist(err) {
		t.Error("directory should be removed")
	}
}

func TestOSFileStore_RealPath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need elevated privileges on windows")
	}
	dir := t.TempDir()
	fs := NewOSFileStore()
	target := filepath.Join(dir, "target")
	os.Mkdir(target, 0o755)
	link := filepath.Join(dir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	got, err := fs.RealPath(link)
	if err != nil {
		t.Fatalf("RealPath: %v", err)
	}
	want, _ := filepath.EvalSymlinks(target)
	if got != want {
		t.Errorf("RealPath = %q, want %q", got, want)
	}
}

func TestLockFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".lock")
	unlock, err := LockFile(path)
	if err != nil {
		t.Fatalf("LockFile: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("lock file not created: %v", err)
	}
	if err := unlock(); err != nil {
		t.Errorf("unlock: %v", err)
	}

	// Re-acquiring after release must not block.
	unlock, err = LockFile(path)
	if err != nil {
		t.Fatalf("LockFile again: %v", err)
	}
	unlock()
}
