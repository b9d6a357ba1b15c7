package selinux

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFileContexts(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "file_contexts")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLabelMatchesMostSpecificRule(t *testing.T) {
	path := writeFileContexts(t, strings.Join([]string{
		"/.* system_u:object_r:default_t:s0",
		"/etc(/.*)? system_u:object_r:etc_t:s0",
		"/etc/shadow system_u:object_r:shadow_t:s0",
	}, "\n"))

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	ctx, ok := p.Label("/etc/shadow", ClassSymlink)
	if !ok || ctx != "system_u:object_r:shadow_t:s0" {
		t.Errorf("Label(/etc/shadow) = (%q, %v), want shadow_t", ctx, ok)
	}

	ctx, ok = p.Label("/etc/hostname", ClassSymlink)
	if !ok || ctx != "system_u:object_r:etc_t:s0" {
		t.Errorf("Label(/etc/hostname) = (%q, %v), want etc_t", ctx, ok)
	}

	ctx, ok = p.Label("/usr/bin/bash", ClassSymlink)
	if !ok || ctx != "system_u:object_r:default_t:s0" {
		t.Errorf("Label(/usr/bin/bash) = (%q, %v), want default_t", ctx, ok)
	}
}

func TestLabelMissingPolicyReturnsNotOk(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := p.Label("/etc/hostname", ClassDirectory); ok {
		t.Error("Label() on an empty policy should return ok=false")
	}
}

func TestXattrIsNulTerminated(t *testing.T) {
	x := Xattr("system_u:object_r:etc_t:s0")
	if x.Name != "security.selinux" {
		t.Errorf("Xattr.Name = %q, want security.selinux", x.Name)
	}
	if x.Value[len(x.Value)-1] != 0 {
		t.Error("Xattr value must end with a NUL byte")
	}
}
