//go:build !cgo && !windows

package weaklink

// Open always fails: loading a library needs the system dynamic loader,
// which is only reachable through cgo.
func Open(path string) (Library, error) {
	return nil, ErrUnsupportedPlatform
}
