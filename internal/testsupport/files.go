package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// mediaHeader is an MP4 ftyp box so sniffing code sees a plausible container.
var mediaHeader = []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm'}

// WriteMediaFile creates a placeholder media file of exactly size bytes
// (at least one), creating parent directories as needed.
func WriteMediaFile(t testing.TB, path string, size int64) string {
	t.Helper()
	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	body := append([]byte{}, mediaHeader...)
	if int64(len(body)) < size {
		body = append(body, bytes.Repeat([]byte{0x42}, int(size)-len(body))...)
	}
	if err := os.WriteFile(path, body[:size], 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
