package dap

import (
	"github.com/go-delve/sbdap/pkg/eval"
	"github.com/go-delve/sbdap/pkg/sourcemap"
	"github.com/google/go-dap"
)

func (s *Session) onSetBreakpointsRequest(request *dap.SetBreakpointsRequest) (dap.Message, error) {
	source := request.Arguments.Source
	if source.Path == "" {
		return nil, userErr(FailedToSetBreakpoints, "Unable to set or clear breakpoints", "the source has no path")
	}
	key := sourcemap.Normalize(source.Path)

	want := make([]dap.SourceBreakpoint, len(request.Arguments.Breakpoints))
	for i, b := range request.Arguments.Breakpoints {
		b.Line = s.toEngineLine(b.Line)
		want[i] = b
	}
	d := diffBreakpoints(s.breakpoints.sources[key], want)

	if s.target != nil {
		for _, sb := range d.remove {
			s.deleteBreakpoint(&sb.bpState)
		}
		for _, sb := range d.updated {
			if sb.bp != nil {
				s.applyCondition(&sb.bpState)
			}
		}
		enginePath := s.sources.ToEngine(source.Path)
		for _, sb := range d.add {
			bp, err := s.target.CreateBreakpoint(enginePath, sb.line)
			if err != nil {
				sb.err = classify(FailedToSetBreakpoints, "breakpoint not set", err)
				continue
			}
			s.breakpoints.bind(&sb.bpState, bp)
			s.applyCondition(&sb.bpState)
		}
	}
	s.breakpoints.set(key, source.Path, d.list)

	response := &dap.SetBreakpointsResponse{Response: *newResponse(request.Request)}
	response.Body.Breakpoints = make([]dap.Breakpoint, len(d.response))
	for i, sb := range d.response {
		src := source
		var b dap.Breakpoint
		if sb == nil {
			b = (*bpState)(nil).toDAP(want[i].Line, &src, s.clientPath)
		} else {
			b = sb.toDAP(sb.line, &src, s.clientPath)
			sb.verified = b.Verified
		}
		b.Line = s.toClientLine(b.Line)
		response.Body.Breakpoints[i] = b
	}
	return response, nil
}

func (s *Session) onSetFunctionBreakpointsRequest(request *dap.SetFunctionBreakpointsRequest) (dap.Message, error) {
	d := diffFunctionBreakpoints(s.breakpoints.functions, request.Arguments.Breakpoints)
	if s.target != nil {
		for _, fb := range d.remove {
			s.deleteBreakpoint(&fb.bpState)
		}
		for _, fb := range d.updated {
			if fb.bp != nil {
				s.applyCondition(&fb.bpState)
			}
		}
		for _, fb := range d.add {
			s.createFunctionBreakpoint(fb)
		}
	}
	s.breakpoints.functions = d.list

	response := &dap.SetFunctionBreakpointsResponse{Response: *newResponse(request.Request)}
	response.Body.Breakpoints = make([]dap.Breakpoint, len(d.response))
	for i, fb := range d.response {
		var b dap.Breakpoint
		if fb == nil {
			b = (*bpState)(nil).toDAP(0, nil, s.clientPath)
		} else {
			b = fb.toDAP(0, nil, s.clientPath)
			fb.verified = b.Verified
		}
		b.Line = s.toClientLine(b.Line)
		response.Body.Breakpoints[i] = b
	}
	return response, nil
}

func (s *Session) onSetExceptionBreakpointsRequest(request *dap.SetExceptionBreakpointsRequest) (dap.Message, error) {
	// No exception filters are advertised; unknown filters are ignored.
	return &dap.SetExceptionBreakpointsResponse{Response: *newResponse(request.Request)}, nil
}

func (s *Session) createFunctionBreakpoint(fb *functionBreakpoint) {
	bp, err := s.target.CreateFunctionBreakpoint(fb.name)
	if err != nil {
		fb.err = classify(FailedToSetBreakpoints, "breakpoint not set", err)
		return
	}
	s.breakpoints.bind(&fb.bpState, bp)
	s.applyCondition(&fb.bpState)
}

func (s *Session) deleteBreakpoint(st *bpState) {
	if err := s.target.DeleteBreakpoint(st.bp.ID()); err != nil {
		s.log.Errorf("could not delete breakpoint %d: %v", st.bp.ID(), err)
	}
	s.breakpoints.unbind(st)
}

// applyCondition hands conditions in the native language to the engine.
// Conditions in other languages are evaluated by the session when the
// breakpoint is hit.
func (s *Session) applyCondition(st *bpState) {
	cond := ""
	if st.condition != "" {
		lang, expr := eval.SplitPrefix(st.condition, eval.Language(s.settings.ExpressionLanguage))
		if lang == eval.Native {
			cond = expr
		}
	}
	if cond != st.engineCond {
		st.bp.SetCondition(cond)
		st.engineCond = cond
	}
}

// createPendingBreakpoints creates the engine breakpoints of the
// breakpoints set before the target existed.
func (s *Session) createPendingBreakpoints() {
	for key, list := range s.breakpoints.sources {
		enginePath := s.sources.ToEngine(s.breakpoints.clientPaths[key])
		for _, sb := range list {
			if sb.bp != nil || sb.err != nil {
				continue
			}
			bp, err := s.target.CreateBreakpoint(enginePath, sb.line)
			if err != nil {
				sb.err = classify(FailedToSetBreakpoints, "breakpoint not set", err)
				continue
			}
			s.breakpoints.bind(&sb.bpState, bp)
			s.applyCondition(&sb.bpState)
		}
	}
	for _, fb := range s.breakpoints.functions {
		if fb.bp == nil && fb.err == nil {
			s.createFunctionBreakpoint(fb)
		}
	}
	s.refreshBreakpoints()
}

// refreshBreakpoints reports breakpoints whose verified state changed,
// typically because a module providing their location was loaded.
func (s *Session) refreshBreakpoints() {
	for key, list := range s.breakpoints.sources {
		src := &dap.Source{Name: baseName(s.breakpoints.clientPaths[key]), Path: s.breakpoints.clientPaths[key]}
		for _, sb := range list {
			if sb.bp == nil {
				continue
			}
			b := sb.toDAP(sb.line, src, s.clientPath)
			if b.Verified != sb.verified {
				sb.verified = b.Verified
				b.Line = s.toClientLine(b.Line)
				s.sendBreakpointEvent(b)
			}
		}
	}
	for _, fb := range s.breakpoints.functions {
		if fb.bp == nil {
			continue
		}
		b := fb.toDAP(0, nil, s.clientPath)
		if b.Verified != fb.verified {
			fb.verified = b.Verified
			b.Line = s.toClientLine(b.Line)
			s.sendBreakpointEvent(b)
		}
	}
}

func (s *Session) sendBreakpointEvent(b dap.Breakpoint) {
	s.send(&dap.BreakpointEvent{
		Event: *newEvent("breakpoint"),
		Body:  dap.BreakpointEventBody{Reason: "changed", Breakpoint: b},
	})
}
