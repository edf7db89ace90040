//go:build !windows
// +build !windows

package dap

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"syscall"
)

// newStdioPipe creates a named pipe the debuggee writes one of its
// output streams to.
func newStdioPipe(stream string) (string, error) {
	r := make([]byte, 4)
	if _, err := rand.Read(r); err != nil {
		return "", err
	}
	path := filepath.Join(os.TempDir(), "sbdap-"+hex.EncodeToString(r)+"-"+stream)
	if err := syscall.Mkfifo(path, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// openStdioPipe opens the read end of a pipe. It blocks until the
// debuggee opens the write end, or releaseStdioPipe is called.
func openStdioPipe(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDONLY, os.ModeNamedPipe)
}

// releaseStdioPipe unblocks a reader waiting in openStdioPipe.
func releaseStdioPipe(path string) {
	f, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, os.ModeNamedPipe)
	if err == nil {
		f.Close()
	}
}
