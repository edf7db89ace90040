//go:build windows
// +build windows

package dap

import (
	"errors"
	"os"
)

var errPipeUnsupported = errors.New("\"pipe\" stdio is not supported on Windows")

func newStdioPipe(stream string) (string, error) {
	return "", errPipeUnsupported
}

func openStdioPipe(path string) (*os.File, error) {
	return nil, errPipeUnsupported
}

func releaseStdioPipe(path string) {}
