package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "include"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "include", "foo.h"), []byte("int foo();\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "README"), []byte("hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestHashTreeDeterministic(t *testing.T) {
	root := writeTree(t)
	h1, err := HashTree(root, SHA256)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashTree(root, SHA256)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Fatalf("expected stable hash, got %s vs %s", h1, h2)
	}
}

func TestHashTreeSensitiveToContent(t *testing.T) {
	root := writeTree(t)
	before, err := HashTree(root, SHA512)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "README"), []byte("changed\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	after, err := HashTree(root, SHA512)
	if err != nil {
		t.Fatal(err)
	}
	if before == after {
		t.Fatal("expected hash to change when file content changes")
	}
}

func TestHashTreeUnknownAlgorithm(t *testing.T) {
	root := writeTree(t)
	if _, err := HashTree(root, Algorithm("md5")); err == nil {
		t.Fatal("expected error for unknown algorithm")
	}
}

func TestListFilesSortedAndRelative(t *testing.T) {
	root := writeTree(t)
	names, err := ListFiles(root)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"README", "include", "include/foo.h"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}
