package enginetest

import (
	"sort"

	"github.com/go-delve/sbdap/pkg/engine"
)

// Target is a fake engine.Target.
type Target struct {
	d           *Debugger
	Path        string
	nextBP      int
	breakpoints map[int]*Breakpoint
	launched    bool

	// Proc is the process returned by Launch and Attach.
	Proc *Process
	// LaunchErr fails Launch and Attach when set.
	LaunchErr  error
	LaunchInfo engine.LaunchInfo
	ModuleList []engine.Module
	TripleStr  string
	// Unresolved lists files whose breakpoints get no location.
	Unresolved map[string]bool
}

func (t *Target) Launch(info engine.LaunchInfo) (engine.Process, error) {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	t.d.record("launch %s", t.Path)
	if t.LaunchErr != nil {
		return nil, t.LaunchErr
	}
	t.LaunchInfo = info
	t.launched = true
	p := t.Proc
	p.state = engine.StateStopped
	if !info.StopAtEntry {
		p.state = engine.StateRunning
		t.d.postLocked(engine.Event{Kind: engine.EventStateChanged, State: engine.StateRunning})
	}
	return p, nil
}

func (t *Target) AttachPID(pid int) (engine.Process, error) {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	t.d.record("attach %d", pid)
	if t.LaunchErr != nil {
		return nil, t.LaunchErr
	}
	t.launched = true
	t.Proc.pid = pid
	t.Proc.state = engine.StateStopped
	return t.Proc, nil
}

func (t *Target) AttachName(name string, waitFor bool) (engine.Process, error) {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	t.d.record("attach-name %s %v", name, waitFor)
	if t.LaunchErr != nil {
		return nil, t.LaunchErr
	}
	t.launched = true
	t.Proc.state = engine.StateStopped
	return t.Proc, nil
}

func (t *Target) Process() engine.Process {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	if !t.launched {
		return nil
	}
	return t.Proc
}

func (t *Target) CreateBreakpoint(file string, line int) (engine.Breakpoint, error) {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	t.nextBP++
	bp := &Breakpoint{d: t.d, id: t.nextBP, File: file, Line: line, locations: 1}
	if t.Unresolved[file] {
		bp.locations = 0
	}
	t.breakpoints[bp.id] = bp
	t.d.record("bp-create %s:%d #%d", file, line, bp.id)
	return bp, nil
}

func (t *Target) CreateFunctionBreakpoint(name string) (engine.Breakpoint, error) {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	t.nextBP++
	bp := &Breakpoint{d: t.d, id: t.nextBP, Function: name, locations: 1}
	t.breakpoints[bp.id] = bp
	t.d.record("bp-create-fn %s #%d", name, bp.id)
	return bp, nil
}

func (t *Target) DeleteBreakpoint(id int) error {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	bp, ok := t.breakpoints[id]
	if !ok {
		return engine.Errorf(engine.ErrNotFound, "DeleteBreakpoint", "no breakpoint %d", id)
	}
	delete(t.breakpoints, id)
	if bp.Function != "" {
		t.d.record("bp-delete-fn %s #%d", bp.Function, id)
	} else {
		t.d.record("bp-delete %s:%d #%d", bp.File, bp.Line, id)
	}
	return nil
}

// Breakpoints returns the live breakpoints ordered by id.
func (t *Target) Breakpoints() []*Breakpoint {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	r := make([]*Breakpoint, 0, len(t.breakpoints))
	for _, bp := range t.breakpoints {
		r = append(r, bp)
	}
	sort.Slice(r, func(i, j int) bool { return r[i].id < r[j].id })
	return r
}

func (t *Target) Modules() []engine.Module {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	return append([]engine.Module(nil), t.ModuleList...)
}

func (t *Target) Triple() string {
	return t.TripleStr
}

// Breakpoint is a fake engine.Breakpoint.
type Breakpoint struct {
	d         *Debugger
	id        int
	File      string
	Line      int
	Function  string
	condition string
	locations int
}

func (bp *Breakpoint) ID() int {
	return bp.id
}

func (bp *Breakpoint) SetCondition(expr string) {
	bp.d.mu.Lock()
	defer bp.d.mu.Unlock()
	bp.condition = expr
	bp.d.record("bp-condition #%d %q", bp.id, expr)
}

// Condition returns the engine-side condition.
func (bp *Breakpoint) Condition() string {
	bp.d.mu.Lock()
	defer bp.d.mu.Unlock()
	return bp.condition
}

func (bp *Breakpoint) NumLocations() int {
	return bp.locations
}

func (bp *Breakpoint) Location() (engine.LineEntry, bool) {
	if bp.locations == 0 || bp.File == "" {
		return engine.LineEntry{}, false
	}
	return engine.LineEntry{File: bp.File, Line: bp.Line}, true
}
