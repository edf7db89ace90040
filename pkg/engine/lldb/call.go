//go:build cgo && !windows

package lldb

/*
#include <stdint.h>
#include <stdlib.h>

typedef uintptr_t U;

// Storage for one SB object. Every SB class holds at most a couple of
// smart pointers; the buffer leaves room for growth.
typedef struct { uint64_t w[8]; } sbobj;

#define A0 void
#define A1 U
#define A2 U, U
#define A3 U, U, U
#define A4 U, U, U, U
#define A5 U, U, U, U, U
#define A6 U, U, U, U, U, U

#define C0
#define C1 a[0]
#define C2 C1, a[1]
#define C3 C2, a[2]
#define C4 C3, a[3]
#define C5 C4, a[4]
#define C6 C5, a[5]

#define SB_CALL(T, n) ((T(*)(A##n))f)(C##n)

#define SB_DISPATCH(S) \
	switch (n) { \
	case 0: S(0) \
	case 1: S(1) \
	case 2: S(2) \
	case 3: S(3) \
	case 4: S(4) \
	case 5: S(5) \
	case 6: S(6) \
	}

static inline void sb_v(U f, int n, U *a) {
#define S(k) SB_CALL(void, k); return;
	SB_DISPATCH(S)
#undef S
}

static inline uint8_t sb_b(U f, int n, U *a) {
#define S(k) return SB_CALL(uint8_t, k);
	SB_DISPATCH(S)
#undef S
	return 0;
}

static inline uint32_t sb_i(U f, int n, U *a) {
#define S(k) return SB_CALL(uint32_t, k);
	SB_DISPATCH(S)
#undef S
	return 0;
}

static inline uint64_t sb_l(U f, int n, U *a) {
#define S(k) return SB_CALL(uint64_t, k);
	SB_DISPATCH(S)
#undef S
	return 0;
}

static inline const char *sb_s(U f, int n, U *a) {
#define S(k) return SB_CALL(const char *, k);
	SB_DISPATCH(S)
#undef S
	return 0;
}

// SB objects are returned through a hidden pointer, which is what the C
// ABI does for a struct of this size.
static inline void sb_o(U f, sbobj *out, int n, U *a) {
#define S(k) *out = SB_CALL(sbobj, k); return;
	SB_DISPATCH(S)
#undef S
}
*/
import "C"

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-delve/sbdap/pkg/engine"
	"github.com/go-delve/sbdap/pkg/weaklink"
)

const maxArgs = 6

// object is an SB object living in C memory.
type object struct {
	p    *C.sbobj
	dtor *weaklink.Stub
}

func allocObject(dtor *weaklink.Stub) *object {
	o := &object{p: (*C.sbobj)(C.calloc(1, C.sizeof_sbobj)), dtor: dtor}
	runtime.SetFinalizer(o, (*object).free)
	return o
}

// newObject default-constructs an SB object with ctor.
func newObject(ctor, dtor *weaklink.Stub, args ...interface{}) *object {
	o := allocObject(dtor)
	callV(ctor, append([]interface{}{o}, args...)...)
	return o
}

func (o *object) free() {
	if o.p == nil {
		return
	}
	callV(o.dtor, o)
	C.free(unsafe.Pointer(o.p))
	o.p = nil
}

func (o *object) addr() uintptr {
	return uintptr(unsafe.Pointer(o.p))
}

// cbuf is a C allocated byte buffer.
type cbuf struct {
	p unsafe.Pointer
	n int
}

func newCBuf(n int) *cbuf {
	return &cbuf{p: C.calloc(1, C.size_t(n)), n: n}
}

func (b *cbuf) bytes(n int) []byte {
	if n > b.n {
		n = b.n
	}
	return C.GoBytes(b.p, C.int(n))
}

func (b *cbuf) string() string {
	return C.GoString((*C.char)(b.p))
}

func (b *cbuf) free() {
	C.free(b.p)
}

// cstrings is a NULL terminated C array of C strings.
type cstrings struct {
	p    unsafe.Pointer
	strs []*C.char
}

func newCStrings(ss []string) *cstrings {
	r := &cstrings{p: C.calloc(C.size_t(len(ss)+1), C.size_t(unsafe.Sizeof(uintptr(0))))}
	arr := unsafe.Slice((**C.char)(r.p), len(ss)+1)
	for i, s := range ss {
		cs := C.CString(s)
		r.strs = append(r.strs, cs)
		arr[i] = cs
	}
	return r
}

func (c *cstrings) free() {
	for _, s := range c.strs {
		C.free(unsafe.Pointer(s))
	}
	C.free(c.p)
}

// args holds the converted arguments of one call.
type args struct {
	u     [maxArgs]C.U
	n     int
	cstrs []*C.char
	keep  []interface{}
}

func pack(s *weaklink.Stub, in []interface{}) (C.U, *args) {
	f, err := s.Addr()
	if err != nil {
		panic(engine.Errorf(engine.ErrUnsupported, s.Name(), "%v", err))
	}
	if len(in) > maxArgs {
		panic(fmt.Sprintf("lldb: %s called with %d arguments", s.Name(), len(in)))
	}
	a := &args{n: len(in), keep: in}
	for i, x := range in {
		var v uintptr
		switch x := x.(type) {
		case *object:
			v = x.addr()
		case *cbuf:
			v = uintptr(x.p)
		case *cstrings:
			v = uintptr(x.p)
		case string:
			cs := C.CString(x)
			a.cstrs = append(a.cstrs, cs)
			v = uintptr(unsafe.Pointer(cs))
		case bool:
			if x {
				v = 1
			}
		case int:
			v = uintptr(x)
		case int32:
			v = uintptr(x)
		case uint32:
			v = uintptr(x)
		case uint64:
			v = uintptr(x)
		case uintptr:
			v = x
		default:
			panic(fmt.Sprintf("lldb: unsupported argument type %T for %s", x, s.Name()))
		}
		a.u[i] = C.U(v)
	}
	return C.U(f), a
}

func (a *args) release() {
	for _, cs := range a.cstrs {
		C.free(unsafe.Pointer(cs))
	}
	runtime.KeepAlive(a.keep)
}

func callV(s *weaklink.Stub, in ...interface{}) {
	f, a := pack(s, in)
	defer a.release()
	C.sb_v(f, C.int(a.n), &a.u[0])
}

func callB(s *weaklink.Stub, in ...interface{}) bool {
	f, a := pack(s, in)
	defer a.release()
	return C.sb_b(f, C.int(a.n), &a.u[0]) != 0
}

func callI(s *weaklink.Stub, in ...interface{}) uint32 {
	f, a := pack(s, in)
	defer a.release()
	return uint32(C.sb_i(f, C.int(a.n), &a.u[0]))
}

func callL(s *weaklink.Stub, in ...interface{}) uint64 {
	f, a := pack(s, in)
	defer a.release()
	return uint64(C.sb_l(f, C.int(a.n), &a.u[0]))
}

func callS(s *weaklink.Stub, in ...interface{}) string {
	f, a := pack(s, in)
	defer a.release()
	r := C.sb_s(f, C.int(a.n), &a.u[0])
	if r == nil {
		return ""
	}
	return C.GoString(r)
}

// callO calls a function returning an SB object by value; dtor destroys
// the returned object.
func callO(s, dtor *weaklink.Stub, in ...interface{}) *object {
	f, a := pack(s, in)
	defer a.release()
	o := allocObject(dtor)
	C.sb_o(f, o.p, C.int(a.n), &a.u[0])
	return o
}

// newError returns a fresh SBError.
func newError() *object {
	return newObject(fnErrorCtor, fnErrorDtor)
}

// errorOf converts a failed SBError into an *engine.Error, nil on success.
func errorOf(e *object, kind engine.ErrorKind, op string) error {
	if !callB(fnErrorFail, e) {
		return nil
	}
	msg := callS(fnErrorGetCString, e)
	if msg == "" {
		msg = "unknown error"
	}
	return engine.Errorf(kind, op, "%s", msg)
}
