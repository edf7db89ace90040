package dap

import "testing"

func TestSessionStateAccepts(t *testing.T) {
	tests := []struct {
		state   sessionState
		command string
		want    bool
	}{
		{stateCreated, "initialize", true},
		{stateCreated, "launch", false},
		{stateCreated, "disconnect", true},
		{stateCreated, "cancel", true},
		{stateInitialized, "launch", true},
		{stateInitialized, "attach", true},
		{stateInitialized, "setBreakpoints", true},
		{stateInitialized, "initialize", false},
		{stateInitialized, "continue", false},
		{stateLaunching, "configurationDone", true},
		{stateLaunching, "stackTrace", false},
		{stateRunning, "pause", true},
		{stateRunning, "next", false},
		{stateRunning, "variables", false},
		{stateStopped, "next", true},
		{stateStopped, "stepIn", true},
		{stateStopped, "readMemory", true},
		{stateStopped, "disassemble", true},
		{stateStopped, "configurationDone", false},
		{stateTerminating, "threads", true},
		{stateTerminating, "evaluate", false},
		{stateTerminated, "evaluate", true},
		{stateTerminated, "continue", false},
		{stateTerminated, "disconnect", true},
	}
	for _, tt := range tests {
		if got := tt.state.accepts(tt.command); got != tt.want {
			t.Errorf("%s.accepts(%q) = %v, want %v", tt.state, tt.command, got, tt.want)
		}
	}
}

func TestSupportedCommands(t *testing.T) {
	for _, c := range []string{"initialize", "launch", "attach", "disconnect", "terminate", "readMemory", "cancel"} {
		if !supportedCommands[c] {
			t.Errorf("%q is not supported", c)
		}
	}
	for _, c := range []string{"restart", "stepBack", "gotoTargets", "unknown"} {
		if supportedCommands[c] {
			t.Errorf("%q is supported", c)
		}
	}
}

func TestSessionStateString(t *testing.T) {
	if got := stateStopped.String(); got != "Stopped" {
		t.Errorf("got %q, want Stopped", got)
	}
	if got := sessionState(42).String(); got != "Unknown" {
		t.Errorf("got %q, want Unknown", got)
	}
}
