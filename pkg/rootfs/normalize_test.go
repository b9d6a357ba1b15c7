package rootfs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeCreatesRequiredDirs(t *testing.T) {
	root := t.TempDir()

	if _, err := Normalize(root, nil); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	for _, rel := range requiredDirs {
		if fi, err := os.Stat(filepath.Join(root, rel)); err != nil || !fi.IsDir() {
			t.Errorf("required dir %s not present after Normalize", rel)
		}
	}
}

func TestNormalizeRemovesForbiddenDirs(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "home", "user"), 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := Normalize(root, nil); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if fi, err := os.Lstat(filepath.Join(root, "home")); err != nil || fi.Mode()&os.ModeSymlink == 0 {
		t.Error("home directory should have been removed and replaced by the compat symlink")
	}
}

func TestNormalizeInstallsCompatSymlinks(t *testing.T) {
	root := t.TempDir()

	if _, err := Normalize(root, nil); err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	for _, sl := range compatSymlinks {
		target, err := os.Readlink(filepath.Join(root, sl.Path))
		if err != nil {
			t.Errorf("symlink %s not created: %v", sl.Path, err)
			continue
		}
		if target != sl.Target {
			t.Errorf("symlink %s -> %s, want %s", sl.Path, target, sl.Target)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	root := t.TempDir()

	if _, err := Normalize(root, nil); err != nil {
		t.Fatalf("first Normalize() error = %v", err)
	}
	if _, err := Normalize(root, nil); err != nil {
		t.Fatalf("second Normalize() error = %v", err)
	}

	for _, sl := range compatSymlinks {
		target, err := os.Readlink(filepath.Join(root, sl.Path))
		if err != nil {
			t.Errorf("symlink %s missing after second Normalize: %v", sl.Path, err)
			continue
		}
		if target != sl.Target {
			t.Errorf("symlink %s -> %s after second Normalize, want %s", sl.Path, target, sl.Target)
		}
	}
}
