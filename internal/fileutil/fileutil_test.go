package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type failingReader struct{ sent bool }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.sent {
		return 0, errors.New("connection reset")
	}
	r.sent = true
	return copy(p, "partial"), nil
}

func TestWriteAtomicCreatesParents(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "a", "b", "out.bin")

	n, sum, err := WriteAtomic(dst, strings.NewReader("hello world"), 0o644)
	if err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}
	if n != 11 || len(sum) != 32 {
		t.Fatalf("unexpected result n=%d sum=%x", n, sum)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello world" {
		t.Fatalf("content mismatch: %q", got)
	}
	if _, err := os.Stat(dst + partialSuffix); !os.IsNotExist(err) {
		t.Fatalf("expected partial file to be gone, got %v", err)
	}
}

func TestWriteAtomicLeavesNothingOnReadError(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.bin")

	if _, _, err := WriteAtomic(dst, &failingReader{}, 0o644); err == nil {
		t.Fatal("expected read error")
	}
	for _, path := range []string{dst, dst + partialSuffix} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be absent, got %v", path, err)
		}
	}
}

func TestCopyVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "nested", "dst.bin")
	content := make([]byte, 64*1024)
	for i := range content {
		content[i] = byte(i)
	}
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := CopyVerified(src, dst)
	if err != nil {
		t.Fatalf("CopyVerified: %v", err)
	}
	if n != int64(len(content)) {
		t.Fatalf("copied %d bytes, want %d", n, len(content))
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(content) || got[1000] != content[1000] {
		t.Fatal("content mismatch")
	}
}

func TestCopyVerifiedMissingSource(t *testing.T) {
	dir := t.TempDir()
	if _, err := CopyVerified(filepath.Join(dir, "missing"), filepath.Join(dir, "dst")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestIsPartial(t *testing.T) {
	if !IsPartial("clip.mp4.partial") || IsPartial("clip.mp4") {
		t.Fatal("unexpected IsPartial result")
	}
}
