// Package weaklink loads a shared library at run time and resolves a
// declared group of symbols from it.
//
// A Group lists every function its user calls. Resolution either binds
// all required symbols or none of them, so a library that lacks part of
// the expected API is rejected up front with the list of what is missing
// instead of failing at the first call. Each symbol is reached through a
// Stub whose address is filled in by a successful Resolve.
package weaklink

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-delve/sbdap/pkg/logflags"
)

var (
	// ErrSymbolUnresolved is returned by Stub.Addr when the stub has not
	// been bound to an address.
	ErrSymbolUnresolved = errors.New("symbol unresolved")
	// ErrPermanent is returned when resolving a group that has already been
	// frozen by Token.MarkPermanent.
	ErrPermanent = errors.New("symbol group resolution is permanent")
	// ErrUnsupportedPlatform is returned by Open when run-time loading is
	// not available in this build.
	ErrUnsupportedPlatform = errors.New("dynamic library loading is not supported on this platform")
)

// Library is an opened shared library.
type Library interface {
	// Path returns the path the library was opened from.
	Path() string
	// Lookup returns the address of the named symbol.
	Lookup(name string) (uintptr, error)
}

// Symbol declares one function of a Group.
type Symbol struct {
	// Name is the human readable name used in diagnostics,
	// e.g. "SBProcess::LoadImage".
	Name string
	// Linker lists the linker-level names to try, in order.
	Linker []string
	// Optional symbols may be missing without failing resolution.
	Optional bool
}

// Stub is the call site of a declared symbol.
type Stub struct {
	sym  Symbol
	addr atomic.Uintptr
}

// Name returns the human readable name of the symbol.
func (s *Stub) Name() string {
	return s.sym.Name
}

// Addr returns the resolved address of the symbol.
func (s *Stub) Addr() (uintptr, error) {
	if a := s.addr.Load(); a != 0 {
		return a, nil
	}
	return 0, fmt.Errorf("%s: %w", s.sym.Name, ErrSymbolUnresolved)
}

// Resolved reports whether the stub is bound.
func (s *Stub) Resolved() bool {
	return s.addr.Load() != 0
}

// MissingSymbolsError is returned by Group.Resolve when required symbols
// could not be found.
type MissingSymbolsError struct {
	Library string
	Missing []string
}

func (e *MissingSymbolsError) Error() string {
	return fmt.Sprintf("%s: missing symbols: %s", e.Library, strings.Join(e.Missing, ", "))
}

// Group is a set of symbols resolved together.
type Group struct {
	name string

	mu        sync.Mutex
	stubs     []*Stub
	byName    map[string]*Stub
	active    *Token
	permanent bool
}

// NewGroup returns an empty group. Name is used in log messages.
func NewGroup(name string) *Group {
	return &Group{name: name, byName: make(map[string]*Stub)}
}

// Declare adds sym to the group and returns its stub. Declaring the same
// name twice panics.
func (g *Group) Declare(sym Symbol) *Stub {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, dup := g.byName[sym.Name]; dup {
		panic(fmt.Sprintf("weaklink: %s declared twice in %s", sym.Name, g.name))
	}
	if len(sym.Linker) == 0 {
		panic(fmt.Sprintf("weaklink: %s has no linker names", sym.Name))
	}
	s := &Stub{sym: sym}
	g.stubs = append(g.stubs, s)
	g.byName[sym.Name] = s
	return s
}

// Stub returns the stub of a declared symbol. It panics if name was never
// declared.
func (g *Group) Stub(name string) *Stub {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.byName[name]
	if !ok {
		panic(fmt.Sprintf("weaklink: %s not declared in %s", name, g.name))
	}
	return s
}

// Symbols returns the declared symbols in declaration order.
func (g *Group) Symbols() []Symbol {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := make([]Symbol, len(g.stubs))
	for i, s := range g.stubs {
		r[i] = s.sym
	}
	return r
}

// Resolve looks up every symbol of the group in lib. If a required symbol
// is missing it returns a *MissingSymbolsError and no stub is changed.
// Missing optional symbols leave their stub unresolved.
func (g *Group) Resolve(lib Library) (*Token, error) {
	log := logflags.LoaderLogger()
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.permanent {
		return nil, ErrPermanent
	}

	addrs := make([]uintptr, len(g.stubs))
	var missing []string
	optional := 0
	for i, s := range g.stubs {
		for _, name := range s.sym.Linker {
			a, err := lib.Lookup(name)
			if err == nil && a != 0 {
				addrs[i] = a
				break
			}
		}
		if addrs[i] == 0 {
			if s.sym.Optional {
				optional++
				log.Debugf("optional symbol %s not found in %s", s.sym.Name, lib.Path())
				continue
			}
			missing = append(missing, s.sym.Name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingSymbolsError{Library: lib.Path(), Missing: missing}
	}

	for i, s := range g.stubs {
		s.addr.Store(addrs[i])
	}
	tok := &Token{g: g, lib: lib}
	g.active = tok
	log.Debugf("resolved %d symbols of %s from %s (%d optional missing)", len(g.stubs)-optional, g.name, lib.Path(), optional)
	return tok, nil
}

// Token represents one successful resolution of a group.
type Token struct {
	g   *Group
	lib Library
}

// Library returns the library the group was resolved from.
func (t *Token) Library() Library {
	return t.lib
}

// MarkPermanent freezes the resolution for the life of the process:
// further Resolve calls on the group fail and Release does nothing.
func (t *Token) MarkPermanent() {
	t.g.mu.Lock()
	defer t.g.mu.Unlock()
	if t.g.active == t {
		t.g.permanent = true
	}
}

// Release unbinds every stub of the group, unless the resolution was made
// permanent or has been superseded by a later Resolve.
func (t *Token) Release() {
	t.g.mu.Lock()
	defer t.g.mu.Unlock()
	if t.g.permanent || t.g.active != t {
		return
	}
	for _, s := range t.g.stubs {
		s.addr.Store(0)
	}
	t.g.active = nil
}

// StaticLibrary is a Library backed by a fixed symbol table. It serves
// symbols linked into the running binary.
type StaticLibrary struct {
	Name    string
	Symbols map[string]uintptr
}

func (l *StaticLibrary) Path() string {
	return l.Name
}

func (l *StaticLibrary) Lookup(name string) (uintptr, error) {
	if a, ok := l.Symbols[name]; ok {
		return a, nil
	}
	return 0, fmt.Errorf("%s: undefined symbol: %s", l.Name, name)
}
