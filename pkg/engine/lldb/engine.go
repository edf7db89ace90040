//go:build cgo && !windows

package lldb

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/go-delve/sbdap/pkg/engine"
	"github.com/go-delve/sbdap/pkg/logflags"
	"github.com/go-delve/sbdap/pkg/weaklink"
)

const callsSupported = true

// Broadcast bits of the process and target broadcasters.
const (
	processStateChanged = 1 << 0
	processSTDOUT       = 1 << 2
	processSTDERR       = 1 << 3

	targetModulesLoaded   = 1 << 1
	targetModulesUnloaded = 1 << 2
)

const (
	launchFlagStopAtEntry = 1 << 2
	launchFlagDisableASLR = 1 << 3
)

// runOnlyDuringStepping is lldb::eOnlyDuringStepping.
const runOnlyDuringStepping = 2

const pathMax = 4096

// Engine is the LLDB engine loaded from a shared library.
type Engine struct {
	path string

	mu          sync.Mutex
	initialized bool
}

// Init initializes the engine. It must be called once before NewDebugger.
func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		callV(fnDebuggerInitialize)
		e.initialized = true
	}
	return nil
}

// Teardown terminates the engine.
func (e *Engine) Teardown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		callV(fnDebuggerTerminate)
		e.initialized = false
	}
}

func (e *Engine) NewDebugger() (engine.Debugger, error) {
	e.mu.Lock()
	initialized := e.initialized
	e.mu.Unlock()
	if !initialized {
		return nil, engine.Errorf(engine.ErrInternal, "NewDebugger", "engine not initialized")
	}
	d := callO(fnDebuggerCreate, fnDebuggerDtor, false)
	callV(fnDebuggerSetAsync, d, true)
	l := callO(fnDebuggerGetListener, fnListenerDtor, d)
	callB(fnListenerStartListeningForEventClass, l, d, "lldb.process", uint32(processStateChanged|processSTDOUT|processSTDERR))
	if fnTargetEventIsTargetEvent.Resolved() {
		callB(fnListenerStartListeningForEventClass, l, d, "lldb.target", uint32(targetModulesLoaded|targetModulesUnloaded))
	}
	logflags.EngineLogger().Debugf("new debugger from %s", e.path)
	return &Debugger{
		obj: d,
		listener: &listener{
			obj:   l,
			event: newObject(fnEventCtor, fnEventDtor),
			buf:   newCBuf(pathMax),
		},
	}, nil
}

// Debugger is an SBDebugger.
type Debugger struct {
	obj      *object
	listener *listener
}

func (d *Debugger) CreateTarget(path string) (engine.Target, error) {
	t := callO(fnDebuggerCreateTarget, fnTargetDtor, d.obj, path)
	if !callB(fnTargetIsValid, t) {
		return nil, engine.Errorf(engine.ErrNotFound, "CreateTarget", "could not create target for %q", path)
	}
	return &Target{d: d, obj: t}, nil
}

func (d *Debugger) interpreter() *object {
	return callO(fnDebuggerGetCommandInterpreter, fnCommandInterpreterDtor, d.obj)
}

func (d *Debugger) HandleCommand(cmd string) (engine.CommandResult, error) {
	ro := newObject(fnCommandReturnObjectCtor, fnCommandReturnObjectDtor)
	callI(fnCommandInterpreterHandleCommand, d.interpreter(), cmd, ro, false)
	return engine.CommandResult{
		Output:    callS(fnCommandReturnObjectGetOutput, ro),
		Error:     callS(fnCommandReturnObjectGetError, ro),
		Succeeded: callB(fnCommandReturnObjectSucceeded, ro),
	}, nil
}

func (d *Debugger) Complete(line string, cursor int) ([]string, error) {
	if !fnCommandInterpreterHandleCompletion.Resolved() || !fnStringListCtor.Resolved() {
		return nil, engine.Errorf(engine.ErrUnsupported, "Complete", "command completion is not supported by this engine")
	}
	list := newObject(fnStringListCtor, fnStringListDtor)
	callI(fnCommandInterpreterHandleCompletion, d.interpreter(), line, uint32(cursor), 0, -1, list)
	n := int(callI(fnStringListGetSize, list))
	// The first entry is the common prefix of all matches.
	var r []string
	for i := 1; i < n; i++ {
		r = append(r, callS(fnStringListGetStringAtIndex, list, uint64(i)))
	}
	return r, nil
}

func (d *Debugger) Listener() engine.Listener {
	return d.listener
}

func (d *Debugger) Destroy() {
	callV(fnDebuggerDestroy, d.obj)
}

// listener waits on the debugger's SBListener. The SBEvent and the output
// buffer are reused for every event.
type listener struct {
	obj   *object
	event *object
	buf   *cbuf
}

func (l *listener) WaitForEvent(timeout time.Duration, ev *engine.Event) (bool, error) {
	secs := uint32((timeout + time.Second - 1) / time.Second)
	if secs == 0 {
		secs = 1
	}
	if !callB(fnListenerWaitForEvent, l.obj, secs, l.event) {
		return false, nil
	}
	ev.Reset()
	typ := callI(fnEventGetType, l.event)
	switch {
	case callB(fnProcessEventIsProcessEvent, l.event):
		switch {
		case typ&processStateChanged != 0:
			ev.Kind = engine.EventStateChanged
			ev.State = engine.ProcessState(callI(fnProcessGetStateFromEvent, l.event))
			ev.Restarted = callB(fnProcessGetRestartedFromEvent, l.event)
		case typ&(processSTDOUT|processSTDERR) != 0:
			fn := fnProcessGetSTDOUT
			ev.Kind = engine.EventStdout
			if typ&processSTDERR != 0 {
				fn = fnProcessGetSTDERR
				ev.Kind = engine.EventStderr
			}
			ev.Output = l.drain(fn, callO(fnProcessGetProcessFromEvent, fnProcessDtor, l.event))
		}
	case fnTargetEventIsTargetEvent.Resolved() && callB(fnTargetEventIsTargetEvent, l.event):
		switch {
		case typ&targetModulesLoaded != 0:
			ev.Kind = engine.EventModulesLoaded
		case typ&targetModulesUnloaded != 0:
			ev.Kind = engine.EventModulesUnloaded
		default:
			return true, nil
		}
		n := int(callI(fnTargetGetNumModulesFromEvent, l.event))
		for i := 0; i < n; i++ {
			m := callO(fnTargetGetModuleAtIndexFromEvent, fnModuleDtor, uint32(i), l.event)
			ev.Modules = append(ev.Modules, moduleOf(m))
		}
	}
	return true, nil
}

// drain reads all pending output of p through fn.
func (l *listener) drain(fn *weaklink.Stub, p *object) string {
	var out []byte
	for {
		n := int(callL(fn, p, l.buf, uint64(l.buf.n)))
		if n <= 0 {
			break
		}
		out = append(out, l.buf.bytes(n)...)
	}
	return string(out)
}

func moduleOf(m *object) engine.Module {
	path := fileSpecPath(callO(fnModuleGetFileSpec, fnFileSpecDtor, m))
	id := callS(fnModuleGetUUIDString, m)
	if id == "" {
		id = path
	}
	return engine.Module{ID: id, Name: filepath.Base(path), Path: path}
}

func fileSpecPath(fs *object) string {
	buf := newCBuf(pathMax)
	defer buf.free()
	if callI(fnFileSpecGetPath, fs, buf, uint64(buf.n)) == 0 {
		return ""
	}
	return buf.string()
}
