package lldb

import (
	"github.com/go-delve/sbdap/pkg/logflags"
	"github.com/go-delve/sbdap/pkg/weaklink"
)

// Open loads the engine library at path and binds the SB API to it for
// the life of the process. The returned engine still has to be
// initialized with Init.
func Open(path string) (*Engine, error) {
	if !callsSupported {
		return nil, weaklink.ErrUnsupportedPlatform
	}
	log := logflags.EngineLogger()
	if err := weaklink.PrepareSearchPath(path); err != nil {
		log.Warnf("could not prepare library search path for %s: %v", path, err)
	}
	lib, err := weaklink.Open(path)
	if err != nil {
		return nil, err
	}
	tok, err := Resolve(lib)
	if err != nil {
		return nil, err
	}
	tok.MarkPermanent()
	log.Debugf("engine library %s bound", lib.Path())
	return &Engine{path: lib.Path()}, nil
}
