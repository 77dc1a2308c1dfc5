// Package fileutil writes files so readers never observe partial content.
package fileutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrEmpty is returned by WriteAtomic when the source produced no bytes and
// allowEmpty was false. Nothing is left at the destination.
var ErrEmpty = errors.New("no data written")

// WriteAtomic streams r into a temp file beside dst and renames it over dst.
// On any error the temp file is removed and dst is untouched.
func WriteAtomic(dst string, r io.Reader, mode os.FileMode, allowEmpty bool) (int64, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(dst)+"-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) (int64, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return 0, err
	}

	written, err := io.Copy(tmp, r)
	if err != nil {
		return fail(fmt.Errorf("write %s: %w", dst, err))
	}
	if written == 0 && !allowEmpty {
		return fail(ErrEmpty)
	}
	if err := tmp.Chmod(mode); err != nil {
		return fail(fmt.Errorf("chmod %s: %w", dst, err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("close %s: %w", dst, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("rename into %s: %w", dst, err)
	}
	return written, nil
}

// WriteFileAtomic is WriteAtomic for an in-memory buffer. Empty buffers are
// written as empty files.
func WriteFileAtomic(dst string, data []byte, mode os.FileMode) error {
	_, err := WriteAtomic(dst, bytes.NewReader(data), mode, true)
	return err
}
