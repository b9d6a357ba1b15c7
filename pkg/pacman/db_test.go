package pacman

import (
	"os"
	"path/filepath"
	"testing"
)

func writePackage(t *testing.T, dbDir, dirName, desc, files string) {
	t.Helper()
	pkgDir := filepath.Join(dbDir, dirName)
	if err := os.MkdirAll(pkgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(pkgDir, "desc"), []byte(desc), 0o644); err != nil {
		t.Fatal(err)
	}
	if files != "" {
		if err := os.WriteFile(filepath.Join(pkgDir, "files"), []byte(files), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestReadPackageDatabase(t *testing.T) {
	root := t.TempDir()
	dbDir := filepath.Join(root, localDBDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		t.Fatal(err)
	}

	writePackage(t, dbDir, "vim-9.1-1",
		"%NAME%\nvim\n\n%VERSION%\n9.1-1\n\n%ARCH%\nx86_64\n\n%SIZE%\n12345\n\n%BUILDDATE%\n1700000000\n",
		"%FILES%\nusr/bin/vim\nusr/share/vim/\n")

	packages, err := ReadPackageDatabase(root)
	if err != nil {
		t.Fatalf("ReadPackageDatabase() error = %v", err)
	}
	if len(packages) != 1 {
		t.Fatalf("len(packages) = %d, want 1", len(packages))
	}
	p := packages[0]
	if p.Name != "vim" || p.Version != "9.1-1" || p.Arch != "x86_64" {
		t.Errorf("parsed package = %+v", p)
	}
	if p.InstallSize != 12345 {
		t.Errorf("InstallSize = %d, want 12345", p.InstallSize)
	}
	if len(p.Provides) != 2 || p.Provides[0] != "/usr/bin/vim" {
		t.Errorf("Provides = %v", p.Provides)
	}
}

func TestReadPackageDatabaseMissingDirReturnsEmpty(t *testing.T) {
	packages, err := ReadPackageDatabase(t.TempDir())
	if err != nil {
		t.Fatalf("ReadPackageDatabase() error = %v", err)
	}
	if len(packages) != 0 {
		t.Errorf("len(packages) = %d, want 0", len(packages))
	}
}

func TestReadPackageDatabaseSortedByName(t *testing.T) {
	root := t.TempDir()
	dbDir := filepath.Join(root, localDBDir)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writePackage(t, dbDir, "zsh-1-1", "%NAME%\nzsh\n\n%VERSION%\n1-1\n\n%ARCH%\nx86_64\n", "")
	writePackage(t, dbDir, "bash-1-1", "%NAME%\nbash\n\n%VERSION%\n1-1\n\n%ARCH%\nx86_64\n", "")

	packages, err := ReadPackageDatabase(root)
	if err != nil {
		t.Fatalf("ReadPackageDatabase() error = %v", err)
	}
	if len(packages) != 2 || packages[0].Name != "bash" || packages[1].Name != "zsh" {
		t.Errorf("packages not sorted by name: %+v", packages)
	}
}
