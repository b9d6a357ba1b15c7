package commit

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/ImmutableArch/pacman-ostree/pkg/diag"
	"github.com/ImmutableArch/pacman-ostree/pkg/store"
	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

func openTestStore(t *testing.T) store.Gateway {
	t.Helper()
	gw, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { gw.Close() })
	return gw
}

func mkRootfs(t *testing.T, files map[string]string, dirs []string) string {
	t.Helper()
	root := t.TempDir()
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	for rel, content := range files {
		full := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestGenerateFromRootfsBasic(t *testing.T) {
	ctx := context.Background()
	gw := openTestStore(t)
	root := mkRootfs(t, map[string]string{
		"usr/bin/true": "#!/bin/true\n",
		"boot/vmlinuz": "kernel",
	}, []string{"sysroot"})

	sum, err := GenerateFromRootfs(ctx, gw, root, Modifier{}, nil, types.MetadataDict{}, 0, "test/ref", nil)
	if err != nil {
		t.Fatalf("GenerateFromRootfs() error = %v", err)
	}
	if sum.IsZero() {
		t.Fatal("GenerateFromRootfs() returned zero checksum")
	}

	resolved, err := gw.Resolve(ctx, "test/ref", false)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved != sum {
		t.Errorf("resolved ref = %s, want %s", resolved, sum)
	}
}

func TestGenerateFromRootfsDeterministic(t *testing.T) {
	ctx := context.Background()
	files := map[string]string{
		"usr/bin/true": "#!/bin/true\n",
		"usr/lib/libc": "binary-ish content",
	}

	gw1 := openTestStore(t)
	root1 := mkRootfs(t, files, []string{"sysroot", "boot"})
	sum1, err := GenerateFromRootfs(ctx, gw1, root1, Modifier{}, nil, types.MetadataDict{}, 0, "", nil)
	if err != nil {
		t.Fatalf("first GenerateFromRootfs() error = %v", err)
	}

	gw2 := openTestStore(t)
	root2 := mkRootfs(t, files, []string{"sysroot", "boot"})
	sum2, err := GenerateFromRootfs(ctx, gw2, root2, Modifier{}, nil, types.MetadataDict{}, 0, "", nil)
	if err != nil {
		t.Fatalf("second GenerateFromRootfs() error = %v", err)
	}

	if sum1 != sum2 {
		t.Errorf("commit checksums differ across identical inputs: %s vs %s", sum1, sum2)
	}
}

func TestGenerateFromRootfsEtcRelocation(t *testing.T) {
	ctx := context.Background()
	gw := openTestStore(t)
	root := mkRootfs(t, map[string]string{
		"etc/hostname": "archbox\n",
		"usr/bin/true": "#!/bin/true\n",
	}, []string{"sysroot"})

	sum, err := GenerateFromRootfs(ctx, gw, root, Modifier{}, nil, types.MetadataDict{}, 0, "", nil)
	if err != nil {
		t.Fatalf("GenerateFromRootfs() error = %v", err)
	}

	c, err := gw.ReadCommitByChecksum(ctx, sum)
	if err != nil {
		t.Fatalf("ReadCommitByChecksum() error = %v", err)
	}
	rootTree, err := gw.ReadDirTree(ctx, c.Root)
	if err != nil {
		t.Fatalf("ReadDirTree(root) error = %v", err)
	}
	for _, e := range rootTree.Entries {
		if e.Name == "etc" {
			t.Fatalf("root tree still has /etc after relocation: %+v", rootTree.Entries)
		}
	}

	var usrSum types.Checksum
	found := false
	for _, e := range rootTree.Entries {
		if e.Name == "usr" {
			usrSum = e.Checksum
			found = true
		}
	}
	if !found {
		t.Fatal("root tree missing /usr")
	}

	usrTree, err := gw.ReadDirTree(ctx, usrSum)
	if err != nil {
		t.Fatalf("ReadDirTree(usr) error = %v", err)
	}
	hasEtc := false
	for _, e := range usrTree.Entries {
		if e.Name == "etc" && e.IsDir {
			hasEtc = true
		}
	}
	if !hasEtc {
		t.Error("usr tree missing relocated etc directory")
	}
}

func TestGenerateFromRootfsBothEtcPresentFails(t *testing.T) {
	ctx := context.Background()
	gw := openTestStore(t)
	root := mkRootfs(t, map[string]string{
		"etc/hostname":     "archbox\n",
		"usr/etc/hostname": "archbox\n",
	}, []string{"sysroot"})

	_, err := GenerateFromRootfs(ctx, gw, root, Modifier{}, nil, types.MetadataDict{}, 0, "", nil)
	if err == nil {
		t.Fatal("expected error when both /etc and /usr/etc are present")
	}
	var typedErr *types.Error
	if !asTypesError(err, &typedErr) || typedErr.Kind != types.ErrInvariantViolation {
		t.Errorf("error = %v, want invariant-violation", err)
	}
}

func TestGenerateFromRootfsUnsupportedToplevelFile(t *testing.T) {
	ctx := context.Background()
	gw := openTestStore(t)
	root := mkRootfs(t, map[string]string{
		"strayfile": "not allowed at toplevel",
	}, []string{"sysroot"})

	_, err := GenerateFromRootfs(ctx, gw, root, Modifier{}, nil, types.MetadataDict{}, 0, "", nil)
	if err == nil {
		t.Fatal("expected error for unsupported special file at toplevel")
	}
}

// TestGenerateFromRootfsToplevelFIFOSkippedWithWarning covers a true
// special file (FIFO) at the staging root, distinct from the regular
// file case above: the commit must still succeed, the FIFO's name must
// not appear in the committed tree, and a warning naming it must be
// published.
func TestGenerateFromRootfsToplevelFIFOSkippedWithWarning(t *testing.T) {
	ctx := context.Background()
	gw := openTestStore(t)
	root := mkRootfs(t, nil, []string{"sysroot"})

	fifoPath := filepath.Join(root, "a-fifo")
	if err := syscall.Mkfifo(fifoPath, 0o644); err != nil {
		t.Fatalf("Mkfifo() error = %v", err)
	}

	broker := diag.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	sum, err := GenerateFromRootfs(ctx, gw, root, Modifier{}, nil, types.MetadataDict{}, 0, "", broker)
	if err != nil {
		t.Fatalf("GenerateFromRootfs() error = %v, want success (FIFO should be skipped, not rejected)", err)
	}

	c, err := gw.ReadCommitByChecksum(ctx, sum)
	if err != nil {
		t.Fatalf("ReadCommitByChecksum() error = %v", err)
	}
	tree, err := gw.ReadDirTree(ctx, c.Root)
	if err != nil {
		t.Fatalf("ReadDirTree() error = %v", err)
	}
	for _, e := range tree.Entries {
		if e.Name == "a-fifo" {
			t.Error("committed tree should not contain the skipped FIFO")
		}
	}

	select {
	case w := <-sub:
		if w.Kind != diag.WarnSpecialFileSkipped {
			t.Errorf("warning Kind = %q, want %q", w.Kind, diag.WarnSpecialFileSkipped)
		}
		if !containsSubstring(w.Message, "a-fifo") {
			t.Errorf("warning Message = %q, want it to mention a-fifo", w.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a special-file-skipped warning for the toplevel FIFO")
	}
}

func containsSubstring(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func TestGenerateFromRootfsNegativeTimeRejected(t *testing.T) {
	ctx := context.Background()
	gw := openTestStore(t)
	root := mkRootfs(t, nil, []string{"sysroot"})

	_, err := GenerateFromRootfs(ctx, gw, root, Modifier{}, nil, types.MetadataDict{}, -1, "", nil)
	if err == nil {
		t.Fatal("expected error for negative commit time")
	}
}

func asTypesError(err error, target **types.Error) bool {
	te, ok := err.(*types.Error)
	if !ok {
		return false
	}
	*target = te
	return true
}
