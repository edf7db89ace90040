// Package engine defines the narrow interface through which the adapter
// drives a native debugger engine.
//
// Implementations convert every native failure into an *Error at this
// boundary. Objects returned by the engine are only valid while the
// process state they were obtained in lasts; callers must not keep
// threads, frames or values across a resume.
package engine

import "time"

// Engine is a loaded debugger engine. Init must be called once before
// NewDebugger and Teardown once at process exit.
type Engine interface {
	Init() error
	NewDebugger() (Debugger, error)
	Teardown()
}

// Debugger is one engine debugger instance, owned by one session.
type Debugger interface {
	// CreateTarget creates a target for the executable at path. An empty
	// path creates a target without executable, for attaching.
	CreateTarget(path string) (Target, error)
	// HandleCommand runs an engine command line.
	HandleCommand(cmd string) (CommandResult, error)
	// Complete returns the completions of line at cursor.
	Complete(line string, cursor int) ([]string, error)
	// Listener returns the listener receiving the events of this debugger.
	Listener() Listener
	Destroy()
}

// LaunchInfo describes how to start the debuggee.
type LaunchInfo struct {
	// Args excludes the program itself.
	Args []string
	// Env is the complete environment, as KEY=VALUE strings.
	Env []string
	Cwd string
	// Stdio holds the files the debuggee's stdin, stdout and stderr are
	// opened on. An empty entry inherits the adapter's.
	Stdio       [3]string
	StopAtEntry bool
	DisableASLR bool
}

// Target is a debug target.
type Target interface {
	Launch(info LaunchInfo) (Process, error)
	AttachPID(pid int) (Process, error)
	AttachName(name string, waitFor bool) (Process, error)
	// Process returns the target's process, nil if there is none.
	Process() Process
	CreateBreakpoint(file string, line int) (Breakpoint, error)
	CreateFunctionBreakpoint(name string) (Breakpoint, error)
	DeleteBreakpoint(id int) error
	Modules() []Module
	// Triple returns the target triple, e.g. "x86_64-unknown-linux-gnu".
	Triple() string
}

// Process is the debuggee process.
type Process interface {
	PID() int
	State() ProcessState
	ExitStatus() int
	Continue() error
	Stop() error
	Kill() error
	Detach() error
	Threads() []Thread
	ThreadByID(id int) Thread
	SelectedThread() Thread
	ReadMemory(addr uint64, count int) ([]byte, error)
	LoadImage(path string) (uint32, error)
}

// Thread is a thread of the debuggee, valid while it is stopped.
type Thread interface {
	ID() int
	Name() string
	StopReason() StopReason
	// StopBreakpoints returns the ids of the breakpoints that caused a
	// breakpoint stop.
	StopBreakpoints() []int
	NumFrames() int
	Frame(i int) Frame
	StepOver() error
	StepInto() error
	StepOut() error
}

// LineEntry is a source position.
type LineEntry struct {
	File   string
	Line   int
	Column int
}

// Frame is a stack frame of a stopped thread.
type Frame interface {
	FunctionName() string
	LineEntry() LineEntry
	PC() uint64
	Variables(args, locals, statics bool) []Value
	Registers() []Value
	Evaluate(expr string) (Value, error)
}

// Value is a variable, register or expression result.
type Value interface {
	Name() string
	Value() string
	Summary() string
	TypeName() string
	NumChildren() int
	Child(i int) Value
	Err() error
	SetValue(s string) error
}

// Breakpoint is an engine breakpoint.
type Breakpoint interface {
	ID() int
	SetCondition(expr string)
	NumLocations() int
	// Location returns the resolved position of the first location.
	Location() (LineEntry, bool)
}

// Module is a loaded image.
type Module struct {
	ID   string
	Name string
	Path string
}

// CommandResult is the result of Debugger.HandleCommand.
type CommandResult struct {
	Output    string
	Error     string
	Succeeded bool
}

// Listener delivers engine events.
type Listener interface {
	// WaitForEvent blocks until an event is available or timeout expires.
	// It fills ev and reports whether an event was received.
	WaitForEvent(timeout time.Duration, ev *Event) (bool, error)
}
