package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes size bytes of a position-dependent pattern to path, so a
// shifted or truncated copy never compares equal. A size <= 0 writes one byte.
func WriteFile(t testing.TB, path string, size int64) []byte {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	data := Pattern(int(size))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return data
}

// Pattern returns n bytes cycling through a prime-length sequence.
func Pattern(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i % 251)
	}
	return buf
}
