//go:build cgo && !windows

package weaklink

/*
#cgo linux LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdlib.h>

static void* wl_open(const char* path) {
	return dlopen(path, RTLD_NOW | RTLD_GLOBAL);
}

static const char* wl_error(void) {
	return dlerror();
}

static void* wl_sym(void* handle, const char* name) {
	dlerror();
	return dlsym(handle, name);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/go-delve/sbdap/pkg/logflags"
)

type dlLibrary struct {
	path   string
	handle unsafe.Pointer
}

// Open loads the shared library at path. Libraries are never unloaded.
func Open(path string) (Library, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	h := C.wl_open(cpath)
	if h == nil {
		return nil, fmt.Errorf("could not load %s: %s", path, dlerror())
	}
	logflags.LoaderLogger().Debugf("loaded %s", path)
	return &dlLibrary{path: path, handle: h}, nil
}

func (l *dlLibrary) Path() string {
	return l.path
}

func (l *dlLibrary) Lookup(name string) (uintptr, error) {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	p := C.wl_sym(l.handle, cname)
	if p == nil {
		return 0, errors.New(dlerror())
	}
	return uintptr(p), nil
}

func dlerror() string {
	if e := C.wl_error(); e != nil {
		return C.GoString(e)
	}
	return "unknown error"
}
