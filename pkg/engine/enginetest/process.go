package enginetest

import (
	"github.com/go-delve/sbdap/pkg/engine"
)

// Process is a fake engine.Process.
type Process struct {
	d        *Debugger
	pid      int
	state    engine.ProcessState
	exitCode int
	selected int

	// ThreadList is the list of threads. Tests may replace it before launch.
	ThreadList []*Thread
	// Memory maps addresses to their content for ReadMemory.
	Memory map[uint64][]byte
	Images []string
}

// NewProcess returns a stopped process with one thread and one frame.
func NewProcess(pid int) *Process {
	main := &Thread{id: 1, name: "main"}
	main.Frames = []*Frame{{Func: "main", Line: engine.LineEntry{File: "/src/main.c", Line: 10, Column: 1}, Pc: 0x401000}}
	p := &Process{pid: pid, state: engine.StateStopped, Memory: map[uint64][]byte{}}
	p.SetThreads(main)
	return p
}

// SetThreads replaces the thread list.
func (p *Process) SetThreads(ts ...*Thread) {
	for _, t := range ts {
		t.p = p
	}
	p.ThreadList = ts
	p.selected = 0
}

func (p *Process) PID() int {
	return p.pid
}

func (p *Process) State() engine.ProcessState {
	p.d.mu.Lock()
	defer p.d.mu.Unlock()
	return p.state
}

func (p *Process) ExitStatus() int {
	p.d.mu.Lock()
	defer p.d.mu.Unlock()
	return p.exitCode
}

func (p *Process) Continue() error {
	p.d.mu.Lock()
	defer p.d.mu.Unlock()
	if p.state.IsGone() {
		return engine.Errorf(engine.ErrProcessGone, "Continue", "process exited")
	}
	p.d.record("continue")
	p.state = engine.StateRunning
	p.d.postLocked(engine.Event{Kind: engine.EventStateChanged, State: engine.StateRunning})
	return nil
}

func (p *Process) Stop() error {
	p.d.mu.Lock()
	defer p.d.mu.Unlock()
	p.d.record("stop")
	p.stopLocked(engine.StopNone)
	return nil
}

func (p *Process) Kill() error {
	p.d.mu.Lock()
	defer p.d.mu.Unlock()
	p.d.record("kill")
	p.state = engine.StateExited
	p.exitCode = 9
	p.d.postLocked(engine.Event{Kind: engine.EventStateChanged, State: engine.StateExited})
	return nil
}

func (p *Process) Detach() error {
	p.d.mu.Lock()
	defer p.d.mu.Unlock()
	p.d.record("detach")
	p.state = engine.StateDetached
	p.d.postLocked(engine.Event{Kind: engine.EventStateChanged, State: engine.StateDetached})
	return nil
}

func (p *Process) Threads() []engine.Thread {
	p.d.mu.Lock()
	defer p.d.mu.Unlock()
	r := make([]engine.Thread, len(p.ThreadList))
	for i, t := range p.ThreadList {
		r[i] = t
	}
	return r
}

func (p *Process) ThreadByID(id int) engine.Thread {
	p.d.mu.Lock()
	defer p.d.mu.Unlock()
	for _, t := range p.ThreadList {
		if t.id == id {
			return t
		}
	}
	return nil
}

func (p *Process) SelectedThread() engine.Thread {
	p.d.mu.Lock()
	defer p.d.mu.Unlock()
	if len(p.ThreadList) == 0 {
		return nil
	}
	return p.ThreadList[p.selected]
}

func (p *Process) ReadMemory(addr uint64, count int) ([]byte, error) {
	p.d.mu.Lock()
	defer p.d.mu.Unlock()
	for base, b := range p.Memory {
		if addr >= base && addr < base+uint64(len(b)) {
			off := int(addr - base)
			end := off + count
			if end > len(b) {
				end = len(b)
			}
			return append([]byte(nil), b[off:end]...), nil
		}
	}
	return nil, engine.Errorf(engine.ErrInvalidArgument, "ReadMemory", "memory read failed for %#x", addr)
}

func (p *Process) LoadImage(path string) (uint32, error) {
	p.d.mu.Lock()
	defer p.d.mu.Unlock()
	p.Images = append(p.Images, path)
	p.d.record("load-image %s", path)
	return uint32(len(p.Images)), nil
}

// StopAt stops the process with the first thread reporting reason and,
// for breakpoint stops, the given breakpoint ids.
func (p *Process) StopAt(reason engine.StopReason, bps ...int) {
	p.d.mu.Lock()
	defer p.d.mu.Unlock()
	p.stopLocked(reason, bps...)
}

func (p *Process) stopLocked(reason engine.StopReason, bps ...int) {
	p.state = engine.StateStopped
	if len(p.ThreadList) > 0 {
		t := p.ThreadList[p.selected]
		t.reason = reason
		t.bps = bps
	}
	p.d.postLocked(engine.Event{Kind: engine.EventStateChanged, State: engine.StateStopped})
}

// Exit terminates the process with code.
func (p *Process) Exit(code int) {
	p.d.mu.Lock()
	defer p.d.mu.Unlock()
	p.state = engine.StateExited
	p.exitCode = code
	p.d.postLocked(engine.Event{Kind: engine.EventStateChanged, State: engine.StateExited})
}

// Thread is a fake engine.Thread.
type Thread struct {
	id     int
	name   string
	reason engine.StopReason
	bps    []int
	Frames []*Frame
	p      *Process
}

// NewThread returns a thread with the given frames.
func NewThread(id int, name string, frames ...*Frame) *Thread {
	return &Thread{id: id, name: name, Frames: frames}
}

func (t *Thread) ID() int {
	return t.id
}

func (t *Thread) Name() string {
	return t.name
}

func (t *Thread) StopReason() engine.StopReason {
	return t.reason
}

func (t *Thread) StopBreakpoints() []int {
	return t.bps
}

func (t *Thread) NumFrames() int {
	return len(t.Frames)
}

func (t *Thread) Frame(i int) engine.Frame {
	if i < 0 || i >= len(t.Frames) {
		return nil
	}
	return t.Frames[i]
}

// Steps complete immediately: the fake reports running then a
// plan-complete stop.
func (t *Thread) StepOver() error { return t.step("step-over") }
func (t *Thread) StepInto() error { return t.step("step-into") }
func (t *Thread) StepOut() error  { return t.step("step-out") }

func (t *Thread) step(kind string) error {
	p := t.p
	if p == nil {
		return engine.Errorf(engine.ErrInternal, kind, "thread without process")
	}
	p.d.mu.Lock()
	defer p.d.mu.Unlock()
	p.d.record("%s %d", kind, t.id)
	p.state = engine.StateRunning
	p.d.postLocked(engine.Event{Kind: engine.EventStateChanged, State: engine.StateRunning})
	t.reason = engine.StopPlanComplete
	t.bps = nil
	p.state = engine.StateStopped
	p.d.postLocked(engine.Event{Kind: engine.EventStateChanged, State: engine.StateStopped})
	return nil
}
