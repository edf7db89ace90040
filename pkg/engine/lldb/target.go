//go:build cgo && !windows

package lldb

import (
	"github.com/go-delve/sbdap/pkg/engine"
)

// invalidImageToken is LLDB_INVALID_IMAGE_TOKEN.
const invalidImageToken = ^uint32(0)

// Target is an SBTarget.
type Target struct {
	d   *Debugger
	obj *object
}

func (t *Target) Launch(info engine.LaunchInfo) (engine.Process, error) {
	li := newObject(fnLaunchInfoCtor, fnLaunchInfoDtor, uintptr(0))
	argv := newCStrings(info.Args)
	defer argv.free()
	callV(fnLaunchInfoSetArguments, li, argv, false)
	envp := newCStrings(info.Env)
	defer envp.free()
	callV(fnLaunchInfoSetEnvironmentEntries, li, envp, false)
	if info.Cwd != "" {
		callV(fnLaunchInfoSetWorkingDirectory, li, info.Cwd)
	}
	var flags uint32
	if info.StopAtEntry {
		flags |= launchFlagStopAtEntry
	}
	if info.DisableASLR {
		flags |= launchFlagDisableASLR
	}
	callV(fnLaunchInfoSetLaunchFlags, li, flags)
	for fd, path := range info.Stdio {
		if path == "" {
			continue
		}
		callB(fnLaunchInfoAddOpenFileAction, li, fd, path, fd == 0, fd != 0)
	}

	e := newError()
	p := callO(fnTargetLaunch, fnProcessDtor, t.obj, li, e)
	if err := errorOf(e, engine.ErrInvalidArgument, "launch"); err != nil {
		return nil, err
	}
	return &Process{obj: p}, nil
}

func (t *Target) AttachPID(pid int) (engine.Process, error) {
	e := newError()
	p := callO(fnTargetAttachToProcessWithID, fnProcessDtor, t.obj, t.d.listener.obj, uint64(pid), e)
	if err := errorOf(e, engine.ErrNotFound, "attach"); err != nil {
		return nil, err
	}
	return &Process{obj: p}, nil
}

func (t *Target) AttachName(name string, waitFor bool) (engine.Process, error) {
	e := newError()
	p := callO(fnTargetAttachToProcessWithName, fnProcessDtor, t.obj, t.d.listener.obj, name, waitFor, e)
	if err := errorOf(e, engine.ErrNotFound, "attach"); err != nil {
		return nil, err
	}
	return &Process{obj: p}, nil
}

func (t *Target) Process() engine.Process {
	p := callO(fnTargetGetProcess, fnProcessDtor, t.obj)
	if !callB(fnProcessIsValid, p) {
		return nil
	}
	return &Process{obj: p}
}

func (t *Target) CreateBreakpoint(file string, line int) (engine.Breakpoint, error) {
	bp := callO(fnTargetBreakpointCreateByLocation, fnBreakpointDtor, t.obj, file, uint32(line))
	if !callB(fnBreakpointIsValid, bp) {
		return nil, engine.Errorf(engine.ErrInvalidArgument, "CreateBreakpoint", "could not create breakpoint at %s:%d", file, line)
	}
	return &Breakpoint{obj: bp}, nil
}

func (t *Target) CreateFunctionBreakpoint(name string) (engine.Breakpoint, error) {
	bp := callO(fnTargetBreakpointCreateByName, fnBreakpointDtor, t.obj, name, uintptr(0))
	if !callB(fnBreakpointIsValid, bp) {
		return nil, engine.Errorf(engine.ErrInvalidArgument, "CreateFunctionBreakpoint", "could not create breakpoint on %s", name)
	}
	return &Breakpoint{obj: bp}, nil
}

func (t *Target) DeleteBreakpoint(id int) error {
	if !callB(fnTargetBreakpointDelete, t.obj, int32(id)) {
		return engine.Errorf(engine.ErrNotFound, "DeleteBreakpoint", "no breakpoint %d", id)
	}
	return nil
}

func (t *Target) Modules() []engine.Module {
	if !fnTargetGetNumModules.Resolved() || !fnModuleGetFileSpec.Resolved() {
		return nil
	}
	n := int(callI(fnTargetGetNumModules, t.obj))
	r := make([]engine.Module, 0, n)
	for i := 0; i < n; i++ {
		r = append(r, moduleOf(callO(fnTargetGetModuleAtIndex, fnModuleDtor, t.obj, uint32(i))))
	}
	return r
}

func (t *Target) Triple() string {
	if !fnTargetGetTriple.Resolved() {
		return ""
	}
	return callS(fnTargetGetTriple, t.obj)
}

// Process is an SBProcess.
type Process struct {
	obj *object
}

func (p *Process) PID() int {
	return int(callL(fnProcessGetProcessID, p.obj))
}

func (p *Process) State() engine.ProcessState {
	return engine.ProcessState(callI(fnProcessGetState, p.obj))
}

func (p *Process) ExitStatus() int {
	return int(int32(callI(fnProcessGetExitStatus, p.obj)))
}

func (p *Process) Continue() error {
	return errorOf(callO(fnProcessContinue, fnErrorDtor, p.obj), engine.ErrInternal, "continue")
}

func (p *Process) Stop() error {
	return errorOf(callO(fnProcessStop, fnErrorDtor, p.obj), engine.ErrInternal, "stop")
}

func (p *Process) Kill() error {
	return errorOf(callO(fnProcessKill, fnErrorDtor, p.obj), engine.ErrInternal, "kill")
}

func (p *Process) Detach() error {
	return errorOf(callO(fnProcessDetach, fnErrorDtor, p.obj), engine.ErrInternal, "detach")
}

func (p *Process) Threads() []engine.Thread {
	n := int(callI(fnProcessGetNumThreads, p.obj))
	r := make([]engine.Thread, 0, n)
	for i := 0; i < n; i++ {
		if t := threadOf(callO(fnProcessGetThreadAtIndex, fnThreadDtor, p.obj, uint64(i))); t != nil {
			r = append(r, t)
		}
	}
	return r
}

func (p *Process) ThreadByID(id int) engine.Thread {
	if t := threadOf(callO(fnProcessGetThreadByID, fnThreadDtor, p.obj, uint64(id))); t != nil {
		return t
	}
	return nil
}

func (p *Process) SelectedThread() engine.Thread {
	if t := threadOf(callO(fnProcessGetSelectedThread, fnThreadDtor, p.obj)); t != nil {
		return t
	}
	return nil
}

func (p *Process) ReadMemory(addr uint64, count int) ([]byte, error) {
	if count <= 0 {
		return nil, nil
	}
	buf := newCBuf(count)
	defer buf.free()
	e := newError()
	n := callL(fnProcessReadMemory, p.obj, addr, buf, uint64(count), e)
	if err := errorOf(e, engine.ErrInvalidArgument, "read memory"); err != nil && n == 0 {
		return nil, err
	}
	return buf.bytes(int(n)), nil
}

func (p *Process) LoadImage(path string) (uint32, error) {
	fs := newObject(fnFileSpecCtor, fnFileSpecDtor, path, true)
	e := newError()
	tok := callI(fnProcessLoadImage, p.obj, fs, e)
	if err := errorOf(e, engine.ErrInvalidArgument, "load image"); err != nil {
		return 0, err
	}
	if tok == invalidImageToken {
		return 0, engine.Errorf(engine.ErrInvalidArgument, "load image", "could not load %s", path)
	}
	return tok, nil
}

// Breakpoint is an SBBreakpoint.
type Breakpoint struct {
	obj *object
}

func (bp *Breakpoint) ID() int {
	return int(int32(callI(fnBreakpointGetID, bp.obj)))
}

func (bp *Breakpoint) SetCondition(expr string) {
	callV(fnBreakpointSetCondition, bp.obj, expr)
}

func (bp *Breakpoint) NumLocations() int {
	return int(callL(fnBreakpointGetNumLocations, bp.obj))
}

func (bp *Breakpoint) Location() (engine.LineEntry, bool) {
	if !fnBreakpointGetLocationAtIndex.Resolved() || !fnAddressGetLineEntry.Resolved() || bp.NumLocations() == 0 {
		return engine.LineEntry{}, false
	}
	loc := callO(fnBreakpointGetLocationAtIndex, fnBreakpointLocationDtor, bp.obj, uint32(0))
	addr := callO(fnBreakpointLocationGetAddress, fnAddressDtor, loc)
	return lineEntryOf(callO(fnAddressGetLineEntry, fnLineEntryDtor, addr))
}
