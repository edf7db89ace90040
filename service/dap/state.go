package dap

// sessionState is the life cycle of a debug session.
type sessionState int

const (
	stateCreated sessionState = iota
	stateInitialized
	stateLaunching
	stateRunning
	stateStopped
	stateTerminating
	stateTerminated
)

var sessionStateNames = [...]string{
	stateCreated:     "Created",
	stateInitialized: "Initialized",
	stateLaunching:   "Launching",
	stateRunning:     "Running",
	stateStopped:     "Stopped",
	stateTerminating: "Terminating",
	stateTerminated:  "Terminated",
}

func (st sessionState) String() string {
	if st >= 0 && int(st) < len(sessionStateNames) {
		return sessionStateNames[st]
	}
	return "Unknown"
}

func commandSet(cmds ...string) map[string]bool {
	m := make(map[string]bool, len(cmds))
	for _, c := range cmds {
		m[c] = true
	}
	return m
}

// anyStateCommands are accepted in every state.
var anyStateCommands = commandSet("cancel", "disconnect")

var configCommands = []string{
	"setBreakpoints", "setFunctionBreakpoints", "setExceptionBreakpoints",
}

// acceptedCommands lists the commands each state accepts in addition to
// anyStateCommands.
var acceptedCommands = map[sessionState]map[string]bool{
	stateCreated: commandSet("initialize"),
	stateInitialized: commandSet(append(configCommands,
		"launch", "attach", "evaluate", "completions", "threads")...),
	stateLaunching: commandSet(append(configCommands,
		"configurationDone", "evaluate", "completions", "threads", "modules",
		"loadedSources", "terminate")...),
	stateRunning: commandSet(append(configCommands,
		"continue", "pause", "evaluate", "completions", "threads", "modules",
		"loadedSources", "terminate")...),
	stateStopped: commandSet(append(configCommands,
		"continue", "next", "stepIn", "stepOut", "pause", "threads",
		"stackTrace", "scopes", "variables", "setVariable", "evaluate",
		"completions", "source", "modules", "loadedSources", "readMemory",
		"disassemble", "terminate")...),
	stateTerminating: commandSet("threads"),
	stateTerminated:  commandSet("threads", "evaluate", "completions"),
}

// accepts reports whether command may be handled in state st.
func (st sessionState) accepts(command string) bool {
	return anyStateCommands[command] || acceptedCommands[st][command]
}
