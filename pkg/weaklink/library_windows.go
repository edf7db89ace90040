package weaklink

import (
	"fmt"

	"golang.org/x/sys/windows"

	"github.com/go-delve/sbdap/pkg/logflags"
)

type dllLibrary struct {
	path string
	dll  *windows.DLL
}

// Open loads the DLL at path. Libraries are never unloaded.
func Open(path string) (Library, error) {
	dll, err := windows.LoadDLL(path)
	if err != nil {
		return nil, fmt.Errorf("could not load %s: %v", path, err)
	}
	logflags.LoaderLogger().Debugf("loaded %s", path)
	return &dllLibrary{path: path, dll: dll}, nil
}

func (l *dllLibrary) Path() string {
	return l.path
}

func (l *dllLibrary) Lookup(name string) (uintptr, error) {
	p, err := l.dll.FindProc(name)
	if err != nil {
		return 0, err
	}
	return p.Addr(), nil
}
