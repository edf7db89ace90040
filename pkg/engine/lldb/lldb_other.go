//go:build !cgo || windows

package lldb

import (
	"github.com/go-delve/sbdap/pkg/engine"
	"github.com/go-delve/sbdap/pkg/weaklink"
)

// The SB API is called through C trampolines that follow the Itanium C++
// ABI, which needs cgo and is not what the Windows build of the engine
// uses.
const callsSupported = false

// Engine is unavailable in this build.
type Engine struct {
	path string
}

func (e *Engine) Init() error {
	return weaklink.ErrUnsupportedPlatform
}

func (e *Engine) NewDebugger() (engine.Debugger, error) {
	return nil, weaklink.ErrUnsupportedPlatform
}

func (e *Engine) Teardown() {}
