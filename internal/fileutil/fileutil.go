// Package fileutil provides crash-safe file copies used by the object store
// and the source fetchers.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const partialSuffix = ".partial"

// WriteAtomic streams r into path through a sibling ".partial" file that is
// renamed into place only after a successful sync. It returns the number of
// bytes written and the SHA256 of the content.
func WriteAtomic(path string, r io.Reader, mode os.FileMode) (int64, []byte, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, nil, fmt.Errorf("create parent dir: %w", err)
	}
	tmp := path + partialSuffix
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return 0, nil, err
	}
	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(out, hasher), r)
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return 0, nil, err
	}
	return written, hasher.Sum(nil), nil
}

// CopyVerified copies src to dst atomically and checks size and SHA256 of
// the written bytes against the source. dst is removed on mismatch.
func CopyVerified(src, dst string) (int64, error) {
	info, err := os.Stat(src)
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	srcHasher := sha256.New()
	written, dstSum, err := WriteAtomic(dst, io.TeeReader(in, srcHasher), 0o644)
	if err != nil {
		return 0, err
	}
	if written != info.Size() {
		_ = os.Remove(dst)
		return 0, fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", info.Size(), written)
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstSum) {
		_ = os.Remove(dst)
		return 0, fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	return written, nil
}

// IsPartial reports whether name is an in-progress WriteAtomic file.
func IsPartial(name string) bool {
	return filepath.Ext(name) == partialSuffix
}
