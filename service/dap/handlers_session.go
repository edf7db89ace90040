package dap

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-delve/sbdap/pkg/engine"
	"github.com/go-delve/sbdap/pkg/eval"
	"github.com/go-delve/sbdap/pkg/sourcemap"
	"github.com/google/go-dap"
	"github.com/tidwall/gjson"
)

func (s *Session) onInitializeRequest(request *dap.InitializeRequest, raw []byte) (dap.Message, error) {
	args := gjson.GetBytes(raw, "arguments")
	if v := args.Get("linesStartAt1"); v.Exists() {
		s.clientCaps.linesStartAt1 = v.Bool()
	}
	if v := args.Get("columnsStartAt1"); v.Exists() {
		s.clientCaps.columnsStartAt1 = v.Bool()
	}
	s.clientCaps.supportsRunInTerminal = request.Arguments.SupportsRunInTerminalRequest
	s.clientCaps.supportsVariableType = request.Arguments.SupportsVariableType

	response := &dap.InitializeResponse{Response: *newResponse(request.Request)}
	response.Body.SupportsConfigurationDoneRequest = true
	response.Body.SupportsFunctionBreakpoints = true
	response.Body.SupportsConditionalBreakpoints = true
	response.Body.SupportsHitConditionalBreakpoints = true
	response.Body.SupportsLogPoints = true
	response.Body.SupportsEvaluateForHovers = true
	response.Body.SupportsSetVariable = true
	response.Body.SupportsCompletionsRequest = true
	response.Body.SupportsModulesRequest = true
	response.Body.SupportsLoadedSourcesRequest = true
	response.Body.SupportsReadMemoryRequest = true
	response.Body.SupportsDisassembleRequest = true
	response.Body.SupportsCancelRequest = true
	response.Body.SupportsTerminateRequest = true
	response.Body.SupportsDelayedStackTraceLoading = true
	response.Body.ExceptionBreakpointFilters = []dap.ExceptionBreakpointsFilter{}
	s.state = stateInitialized
	return response, nil
}

func launchErr(format string, args ...interface{}) *dapError {
	return userErr(FailedToLaunch, "Failed to launch", format, args...)
}

func attachErr(format string, args ...interface{}) *dapError {
	return userErr(FailedToAttach, "Failed to attach", format, args...)
}

func (s *Session) onLaunchRequest(request *dap.LaunchRequest) (dap.Message, error) {
	args, err := overlayParams(s.config.Params, request.Arguments)
	if err != nil {
		return nil, launchErr("invalid --params: %v", err)
	}
	var lc LaunchConfig
	if err := unmarshalLaunchAttachArgs(args, &lc); err != nil {
		return nil, launchErr("invalid debug configuration - %v", err)
	}
	if lc.Program == "" {
		return nil, launchErr("The program attribute is missing in debug configuration.")
	}
	if lc.Terminal == "" {
		lc.Terminal = ConsoleTerminal
	}
	if !isValidTerminal(lc.Terminal) {
		return nil, launchErr("invalid debug configuration - unsupported 'terminal' attribute %q", lc.Terminal)
	}
	if err := s.configure(&lc.LaunchAttachCommonConfig); err != nil {
		return nil, launchErr("invalid debug configuration - %v", err)
	}

	program := lc.Program
	if !filepath.IsAbs(program) && lc.Cwd != "" {
		program = filepath.Join(lc.Cwd, program)
	}
	if err := s.runCommands("initCommands", lc.InitCommands); err != nil {
		return nil, err
	}
	if err := s.createTarget(program); err != nil {
		return nil, classify(FailedToLaunch, "Failed to launch", err)
	}
	if err := s.runCommands("preRunCommands", lc.PreRunCommands); err != nil {
		return nil, err
	}

	info := engine.LaunchInfo{
		Args:        lc.Args,
		Env:         buildEnv(os.Environ(), lc.Env, lc.ClearEnv),
		Cwd:         lc.Cwd,
		StopAtEntry: true,
		DisableASLR: lc.DisableASLR == nil || *lc.DisableASLR,
	}
	needAgent, err := s.setupStdio(&lc, &info)
	if err != nil {
		return nil, launchErr("%v", err)
	}
	if needAgent {
		return s.launchInTerminal(request, &lc, info)
	}
	return s.finishLaunch(request, info)
}

// finishLaunch starts the debuggee, stopped at its entry point.
func (s *Session) finishLaunch(request *dap.LaunchRequest, info engine.LaunchInfo) (dap.Message, error) {
	proc, err := s.target.Launch(info)
	if err != nil {
		if s.term != nil {
			s.term.close()
			s.term = nil
		}
		return nil, classify(FailedToLaunch, "Failed to launch", err)
	}
	s.process = proc
	s.launched = true
	s.log.Debugf("launched process %d", proc.PID())
	s.debuggeeStarted()
	return &dap.LaunchResponse{Response: *newResponse(request.Request)}, nil
}

func (s *Session) onAttachRequest(request *dap.AttachRequest) (dap.Message, error) {
	args, err := overlayParams(s.config.Params, request.Arguments)
	if err != nil {
		return nil, attachErr("invalid --params: %v", err)
	}
	var ac AttachConfig
	if err := unmarshalLaunchAttachArgs(args, &ac); err != nil {
		return nil, attachErr("invalid debug configuration - %v", err)
	}
	if ac.ProcessID == 0 && ac.Program == "" {
		return nil, attachErr("The 'pid' or 'program' attribute is missing in debug configuration.")
	}
	if ac.ProcessID < 0 {
		return nil, attachErr("invalid debug configuration - 'pid' must be positive")
	}
	if err := s.configure(&ac.LaunchAttachCommonConfig); err != nil {
		return nil, attachErr("invalid debug configuration - %v", err)
	}
	if err := s.createTarget(ac.Program); err != nil {
		return nil, classify(FailedToAttach, "Failed to attach", err)
	}
	if err := s.runCommands("preRunCommands", ac.PreRunCommands); err != nil {
		return nil, err
	}
	var proc engine.Process
	if ac.ProcessID != 0 {
		proc, err = s.target.AttachPID(int(ac.ProcessID))
	} else {
		proc, err = s.target.AttachName(ac.Program, ac.WaitFor)
	}
	if err != nil {
		return nil, classify(FailedToAttach, "Failed to attach", err)
	}
	s.process = proc
	s.launched = false
	s.log.Debugf("attached to process %d", proc.PID())
	s.debuggeeStarted()
	return &dap.AttachResponse{Response: *newResponse(request.Request)}, nil
}

// debuggeeStarted moves the session to Launching, where the client
// configures breakpoints until configurationDone.
func (s *Session) debuggeeStarted() {
	s.state = stateLaunching
	s.send(&dap.InitializedEvent{Event: *newEvent("initialized")})
}

// configure applies the settings common to launch and attach.
func (s *Session) configure(c *LaunchAttachCommonConfig) error {
	if c.ExpressionLanguage != "" {
		lang, err := eval.ParseLanguage(c.ExpressionLanguage)
		if err != nil {
			return err
		}
		s.settings.ExpressionLanguage = string(lang)
	}
	if c.EvaluateTimeout != nil {
		if *c.EvaluateTimeout < 0 {
			return fmt.Errorf("'evaluateTimeout' must not be negative")
		}
		s.settings.EvaluateTimeout = *c.EvaluateTimeout
	}
	s.settings.SourceMap = append(s.settings.SourceMap, c.SourceMap.toMap()...)
	s.settings.SourcePath = append(s.settings.SourcePath, c.SourcePath...)
	s.sources = sourcemap.NewResolver(s.settings.SourceMap, c.RelativePathBase, s.settings.SourcePath)

	s.stopOnEntry = c.StopOnEntry
	s.postRunCommands = c.PostRunCommands
	s.exitCommands = c.ExitCommands
	s.restart = c.Restart
	return nil
}

func (s *Session) createTarget(program string) error {
	t, err := s.debugger.CreateTarget(program)
	if err != nil {
		return err
	}
	s.target = t
	s.createPendingBreakpoints()
	return nil
}

// runCommands runs engine commands, echoing their output to the debug
// console. It stops at the first failing command.
func (s *Session) runCommands(phase string, cmds []string) error {
	for _, cmd := range cmds {
		s.log.Debugf("%s: %s", phase, cmd)
		res, err := s.debugger.HandleCommand(cmd)
		if err != nil {
			return classify(UnableToRunCommand, fmt.Sprintf("%s failed", phase), err)
		}
		if res.Output != "" {
			s.sendOutput("console", res.Output)
		}
		if !res.Succeeded {
			return userErr(UnableToRunCommand, fmt.Sprintf("%s failed", phase), "%s: %s", cmd, strings.TrimSpace(res.Error))
		}
	}
	return nil
}

// buildEnv overlays env on base, or on an empty environment if clear is
// set. A nil value removes the variable.
func buildEnv(base []string, env map[string]*string, clear bool) []string {
	vars := make(map[string]string)
	if !clear {
		for _, kv := range base {
			if i := strings.IndexByte(kv, '='); i > 0 {
				vars[kv[:i]] = kv[i+1:]
			}
		}
	}
	for k, v := range env {
		if v == nil {
			delete(vars, k)
		} else {
			vars[k] = *v
		}
	}
	r := make([]string, 0, len(vars))
	for k, v := range vars {
		r = append(r, k+"="+v)
	}
	sort.Strings(r)
	return r
}

func (s *Session) onConfigurationDoneRequest(request *dap.ConfigurationDoneRequest) (dap.Message, error) {
	if err := s.runCommands("postRunCommands", s.postRunCommands); err != nil {
		// The debuggee is configured; report the failure and carry on.
		s.sendOutput("console", err.Error()+"\n")
	}
	response := &dap.ConfigurationDoneResponse{Response: *newResponse(request.Request)}
	if s.process == nil || s.process.State().IsGone() {
		return response, nil
	}
	if s.stopOnEntry {
		threadID := 0
		if t := s.process.SelectedThread(); t != nil {
			threadID = t.ID()
		}
		s.enterStopped(threadID, "entry", nil)
		return response, nil
	}
	if err := s.resume(s.process.Continue); err != nil {
		return nil, err
	}
	return response, nil
}

// cancelRequest answers p as cancelled and fires its cancellation.
func (s *Session) cancelRequest(p *pendingRequest) {
	p.source.Cancel()
	s.pending.remove(p.seq)
	s.emitResponse(p, s.failure(p, cancelledErr()))
}

func (s *Session) onCancelRequest(request *dap.CancelRequest, raw []byte) (dap.Message, error) {
	if id := gjson.GetBytes(raw, "arguments.requestId"); id.Exists() && int(id.Int()) != request.Seq {
		if p, ok := s.pending.get(int(id.Int())); ok {
			s.cancelRequest(p)
		} else {
			s.log.Debugf("cancel: request %d is not pending", id.Int())
		}
	}
	return &dap.CancelResponse{Response: *newResponse(request.Request)}, nil
}

func (s *Session) onDisconnectRequest(request *dap.DisconnectRequest, raw []byte) (dap.Message, error) {
	for _, p := range s.pending.list() {
		if p.seq != request.Seq {
			s.cancelRequest(p)
		}
	}
	terminate := s.launched
	if v := gjson.GetBytes(raw, "arguments.terminateDebuggee"); v.Exists() {
		terminate = v.Bool()
	}
	if !gjson.GetBytes(raw, "arguments.restart").Bool() {
		s.restart = nil
	}
	if s.debugger != nil {
		if err := s.runCommands("exitCommands", s.exitCommands); err != nil {
			s.log.Debugf("%v", err)
		}
	}
	s.state = stateTerminating
	if s.process != nil && !s.process.State().IsGone() {
		s.endDebuggee(terminate)
	}
	if s.term != nil {
		s.term.close()
		s.term = nil
	}
	s.afterResponse = append(s.afterResponse, func() {
		s.sendTerminated()
		s.state = stateTerminated
		s.done = true
	})
	return &dap.DisconnectResponse{Response: *newResponse(request.Request)}, nil
}

func (s *Session) onTerminateRequest(request *dap.TerminateRequest) (dap.Message, error) {
	response := &dap.TerminateResponse{Response: *newResponse(request.Request)}
	if s.process == nil || s.process.State().IsGone() {
		s.afterResponse = append(s.afterResponse, func() {
			s.sendTerminated()
			s.state = stateTerminated
		})
		return response, nil
	}
	if err := s.process.Kill(); err != nil {
		return nil, classify(UnableToCompleteRequest, "Unable to terminate the debuggee", err)
	}
	// The exit event ends the session.
	s.state = stateTerminating
	return response, nil
}
