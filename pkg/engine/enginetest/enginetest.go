// Package enginetest provides a scripted in-memory engine for tests.
//
// All objects of one Debugger share its mutex, so tests may drive the
// debuggee (StopAt, Exit, Post) from their own goroutine while a session
// is using the engine.
package enginetest

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-delve/sbdap/pkg/engine"
)

// Engine is a fake engine.Engine.
type Engine struct {
	mu        sync.Mutex
	debuggers []*Debugger
	// Setup, if set, is called on every new debugger before it is returned.
	Setup       func(d *Debugger)
	Initialized bool
	TornDown    bool
}

// New returns a new fake engine.
func New() *Engine {
	return &Engine{}
}

func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Initialized = true
	return nil
}

func (e *Engine) NewDebugger() (engine.Debugger, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.Initialized {
		return nil, engine.Errorf(engine.ErrInternal, "NewDebugger", "engine not initialized")
	}
	d := NewDebugger()
	e.debuggers = append(e.debuggers, d)
	if e.Setup != nil {
		e.Setup(d)
	}
	return d, nil
}

func (e *Engine) Teardown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.TornDown = true
}

// Debuggers returns the debuggers created so far.
func (e *Engine) Debuggers() []*Debugger {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Debugger(nil), e.debuggers...)
}

// Debugger is a fake engine.Debugger.
type Debugger struct {
	mu      sync.Mutex
	events  chan engine.Event
	closed  bool
	target  *Target
	calls   []string
	cmdDone []string

	// HandleCommandFunc answers HandleCommand. The default echoes the command.
	HandleCommandFunc func(cmd string) engine.CommandResult
	// CompletionList is filtered by prefix in Complete.
	CompletionList []string
	// TargetSetup, if set, is called on every new target.
	TargetSetup func(t *Target)
	Destroyed   bool
}

// NewDebugger returns a fake debugger not attached to any Engine.
func NewDebugger() *Debugger {
	return &Debugger{events: make(chan engine.Event, 1024)}
}

func (d *Debugger) record(format string, args ...interface{}) {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

// Calls returns a log of the mutating calls made on the debugger and its
// objects, e.g. "bp-create a.c:10 #1", "bp-delete #1", "continue".
func (d *Debugger) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// ClearCalls empties the call log.
func (d *Debugger) ClearCalls() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = nil
}

// Commands returns the engine commands run so far.
func (d *Debugger) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.cmdDone...)
}

func (d *Debugger) CreateTarget(path string) (engine.Target, error) {
	d.mu.Lock()
	t := &Target{
		d:           d,
		Path:        path,
		breakpoints: make(map[int]*Breakpoint),
		TripleStr:   "x86_64-unknown-linux-gnu",
		Proc:        NewProcess(4242),
	}
	t.Proc.d = d
	d.target = t
	setup := d.TargetSetup
	d.record("create-target %s", path)
	d.mu.Unlock()
	if setup != nil {
		setup(t)
	}
	return t, nil
}

// Target returns the last target created.
func (d *Debugger) Target() *Target {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.target
}

func (d *Debugger) HandleCommand(cmd string) (engine.CommandResult, error) {
	d.mu.Lock()
	d.cmdDone = append(d.cmdDone, cmd)
	fn := d.HandleCommandFunc
	d.mu.Unlock()
	if fn != nil {
		return fn(cmd), nil
	}
	return engine.CommandResult{Output: cmd + "\n", Succeeded: true}, nil
}

func (d *Debugger) Complete(line string, cursor int) ([]string, error) {
	if cursor > len(line) {
		cursor = len(line)
	}
	prefix := line[:cursor]
	var r []string
	for _, c := range d.CompletionList {
		if strings.HasPrefix(c, prefix) {
			r = append(r, c)
		}
	}
	return r, nil
}

func (d *Debugger) Listener() engine.Listener {
	return listener{d}
}

func (d *Debugger) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Destroyed = true
}

// Post delivers ev through the debugger's listener.
func (d *Debugger) Post(ev engine.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.postLocked(ev)
}

func (d *Debugger) postLocked(ev engine.Event) {
	if d.closed {
		return
	}
	d.events <- ev
}

// CloseEvents makes the listener fail, as if the engine went away.
func (d *Debugger) CloseEvents() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.closed = true
		close(d.events)
	}
}

type listener struct {
	d *Debugger
}

func (l listener) WaitForEvent(timeout time.Duration, ev *engine.Event) (bool, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case e, ok := <-l.d.events:
		if !ok {
			return false, engine.Errorf(engine.ErrProcessGone, "WaitForEvent", "listener closed")
		}
		ev.Reset()
		ev.Kind = e.Kind
		ev.State = e.State
		ev.Restarted = e.Restarted
		ev.Output = e.Output
		ev.Modules = append(ev.Modules, e.Modules...)
		return true, nil
	case <-t.C:
		return false, nil
	}
}
