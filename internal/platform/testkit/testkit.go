// Package testkit holds assertions and seam helpers shared by package tests
package testkit

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// MustPanic fails t unless fn panics
func MustPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic, got none")
		}
	}()
	fn()
}

// MustContain fails t unless haystack contains needle
// long output is dumped to a temp file named in the failure
func MustContain(t *testing.T, haystack, needle string) {
	t.Helper()
	if strings.Contains(haystack, needle) {
		return
	}
	if len(haystack) < 512 {
		t.Fatalf("expected %q in %q", needle, haystack)
	}
	dump := filepath.Join(t.TempDir(), "output.txt")
	_ = os.WriteFile(dump, []byte(haystack), 0o600)
	t.Fatalf("expected %q; output written to %s", needle, dump)
}

var seamMu sync.Mutex

// Swap replaces *target for the rest of the test
func Swap[T any](t *testing.T, target *T, replacement T) {
	t.Helper()
	orig := *target
	*target = replacement
	t.Cleanup(func() { *target = orig })
}

// Serial holds a process wide lock until the test ends; use it before Swap on shared seams
func Serial(t *testing.T) {
	t.Helper()
	seamMu.Lock()
	t.Cleanup(seamMu.Unlock)
}
