package engine

import "fmt"

// ProcessState mirrors the engine's process states.
type ProcessState int

const (
	StateInvalid ProcessState = iota
	StateUnloaded
	StateConnected
	StateAttaching
	StateLaunching
	StateStopped
	StateRunning
	StateStepping
	StateCrashed
	StateDetached
	StateExited
	StateSuspended
)

var stateNames = [...]string{
	"invalid", "unloaded", "connected", "attaching", "launching", "stopped",
	"running", "stepping", "crashed", "detached", "exited", "suspended",
}

func (s ProcessState) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// IsStopped reports whether threads of a process in state s can be inspected.
func (s ProcessState) IsStopped() bool {
	return s == StateStopped || s == StateCrashed || s == StateSuspended
}

// IsRunning reports whether s is a running state.
func (s ProcessState) IsRunning() bool {
	return s == StateRunning || s == StateStepping
}

// IsGone reports whether the process no longer exists.
func (s ProcessState) IsGone() bool {
	return s == StateExited || s == StateDetached || s == StateUnloaded
}

// StopReason mirrors the engine's thread stop reasons.
type StopReason int

const (
	StopInvalid StopReason = iota
	StopNone
	StopTrace
	StopBreakpoint
	StopWatchpoint
	StopSignal
	StopException
	StopExec
	StopPlanComplete
	StopThreadExiting
	StopInstrumentation
)

// DAPReason returns the 'reason' of a DAP stopped event.
func (r StopReason) DAPReason() string {
	switch r {
	case StopBreakpoint:
		return "breakpoint"
	case StopWatchpoint:
		return "data breakpoint"
	case StopTrace, StopPlanComplete:
		return "step"
	case StopSignal:
		return "signal"
	case StopException, StopInstrumentation:
		return "exception"
	default:
		return "pause"
	}
}

// EventKind classifies engine events.
type EventKind int

const (
	EventNone EventKind = iota
	EventStateChanged
	EventStdout
	EventStderr
	EventModulesLoaded
	EventModulesUnloaded
)

func (k EventKind) String() string {
	switch k {
	case EventStateChanged:
		return "state-changed"
	case EventStdout:
		return "stdout"
	case EventStderr:
		return "stderr"
	case EventModulesLoaded:
		return "modules-loaded"
	case EventModulesUnloaded:
		return "modules-unloaded"
	}
	return "none"
}

// Event is an engine event. Listeners fill a caller-owned Event so that
// the buffer can be reused.
type Event struct {
	Kind      EventKind
	State     ProcessState
	Restarted bool
	Output    string
	Modules   []Module
}

// Reset clears ev for reuse.
func (ev *Event) Reset() {
	ev.Kind = EventNone
	ev.State = StateInvalid
	ev.Restarted = false
	ev.Output = ""
	ev.Modules = ev.Modules[:0]
}

// Clone returns a copy of ev that does not share memory with it.
func (ev *Event) Clone() Event {
	r := *ev
	if len(ev.Modules) > 0 {
		r.Modules = append([]Module(nil), ev.Modules...)
	} else {
		r.Modules = nil
	}
	return r
}
