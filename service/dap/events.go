package dap

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-delve/sbdap/pkg/cancel"
	"github.com/go-delve/sbdap/pkg/engine"
	"github.com/go-delve/sbdap/pkg/eval"
	"github.com/google/go-dap"
)

// onEngineEvent translates an engine event into session state changes and
// DAP events.
func (s *Session) onEngineEvent(ev engine.Event) {
	switch ev.Kind {
	case engine.EventStdout:
		s.sendOutput("stdout", ev.Output)
	case engine.EventStderr:
		s.sendOutput("stderr", ev.Output)
	case engine.EventModulesLoaded:
		s.evaluators.ModulesLoaded(ev.Modules)
		for _, m := range ev.Modules {
			s.sendModuleEvent("new", m)
		}
		s.refreshBreakpoints()
	case engine.EventModulesUnloaded:
		for _, m := range ev.Modules {
			s.sendModuleEvent("removed", m)
		}
	case engine.EventStateChanged:
		s.onProcessState(ev)
	}
}

func (s *Session) sendModuleEvent(reason string, m engine.Module) {
	s.send(&dap.ModuleEvent{
		Event: *newEvent("module"),
		Body:  dap.ModuleEventBody{Reason: reason, Module: toDAPModule(m)},
	})
}

func toDAPModule(m engine.Module) dap.Module {
	return dap.Module{Id: m.ID, Name: m.Name, Path: m.Path}
}

func (s *Session) onProcessState(ev engine.Event) {
	if s.process == nil {
		s.log.Debugf("ignoring %s event: no debuggee", ev.State)
		return
	}
	switch {
	case ev.State.IsRunning():
		if s.state == stateStopped {
			// Resumed by the engine or an engine command, not by a request.
			s.handles.bump()
			s.state = stateRunning
			s.send(&dap.ContinuedEvent{
				Event: *newEvent("continued"),
				Body:  dap.ContinuedEventBody{ThreadId: s.lastStopThread, AllThreadsContinued: true},
			})
		}
	case ev.State.IsStopped():
		if ev.Restarted {
			return
		}
		switch s.state {
		case stateLaunching, stateTerminating, stateTerminated:
			// Stops before configurationDone are reported by it.
			return
		}
		s.onStop(ev.State == engine.StateCrashed)
	case ev.State == engine.StateExited:
		if !s.exitedSent {
			s.exitedSent = true
			s.send(&dap.ExitedEvent{
				Event: *newEvent("exited"),
				Body:  dap.ExitedEventBody{ExitCode: s.process.ExitStatus()},
			})
		}
		s.debuggeeGone()
	case ev.State == engine.StateDetached:
		s.debuggeeGone()
	}
}

func (s *Session) debuggeeGone() {
	s.sendTerminated()
	s.state = stateTerminated
	s.threadCache = nil
	if s.term != nil {
		s.term.close()
		s.term = nil
	}
}

// onStop handles a stop of the debuggee. Stops at breakpoints whose
// condition is false, whose hit condition is not met or which are
// logpoints are not reported; the debuggee is resumed instead.
func (s *Session) onStop(crashed bool) {
	thread := s.process.SelectedThread()
	if thread == nil {
		s.enterStopped(0, "pause", nil)
		return
	}
	reason := thread.StopReason()
	if crashed {
		s.enterStopped(thread.ID(), "exception", nil)
		return
	}
	if reason != engine.StopBreakpoint {
		s.enterStopped(thread.ID(), reason.DAPReason(), nil)
		return
	}

	var frame engine.Frame
	if thread.NumFrames() > 0 {
		frame = thread.Frame(0)
	}
	ids := thread.StopBreakpoints()
	var hit []int
	stop := len(ids) == 0
	for _, id := range ids {
		st, ok := s.breakpoints.byID[id]
		if !ok {
			// Not one of ours, e.g. set by an engine command.
			stop = true
			continue
		}
		if s.breakpointStops(st, frame) {
			stop = true
			hit = append(hit, id)
		}
	}
	if !stop {
		s.log.Debugf("auto-continuing thread %d", thread.ID())
		if err := s.process.Continue(); err != nil {
			s.log.Errorf("could not resume after breakpoint: %v", err)
			s.enterStopped(thread.ID(), "breakpoint", nil)
		}
		return
	}
	s.enterStopped(thread.ID(), "breakpoint", hit)
}

// enterStopped moves the session to Stopped, invalidating earlier
// handles, and reports the stop.
func (s *Session) enterStopped(threadID int, reason string, hit []int) {
	s.handles.bump()
	s.state = stateStopped
	s.threadCache = nil
	s.lastStopThread = threadID
	s.send(&dap.StoppedEvent{
		Event: *newEvent("stopped"),
		Body: dap.StoppedEventBody{
			Reason:            reason,
			ThreadId:          threadID,
			AllThreadsStopped: true,
			HitBreakpointIds:  hit,
		},
	})
}

// resume runs fn, which resumes the debuggee, and moves the session to
// Running.
func (s *Session) resume(fn func() error) error {
	prev := s.state
	s.handles.bump()
	s.state = stateRunning
	if err := fn(); err != nil {
		s.state = prev
		return classify(UnableToCompleteRequest, "Unable to resume", err)
	}
	return nil
}

// evalToken returns an observer for an evaluation done on the dispatcher,
// limited by the evaluation timeout.
func (s *Session) evalToken(src *cancel.Source) *cancel.Token {
	if src == nil {
		src = cancel.NewSource()
	}
	base := src.Token()
	var deadline time.Time
	if s.settings.EvaluateTimeout > 0 {
		deadline = time.Now().Add(time.Duration(s.settings.EvaluateTimeout) * time.Millisecond)
	}
	tok := base.WithDeadline(deadline)
	base.Release()
	return tok
}

// breakpointStops decides whether a hit of st stops the debuggee,
// counting the hit and printing the message of logpoints.
func (s *Session) breakpointStops(st *bpState, frame engine.Frame) bool {
	if st.condition != "" {
		lang, expr := eval.SplitPrefix(st.condition, eval.Language(s.settings.ExpressionLanguage))
		if lang != eval.Native {
			ok, err := s.evaluateCondition(lang, expr, frame)
			if err != nil {
				s.sendOutput("console", fmt.Sprintf("Could not evaluate breakpoint condition %q: %v\n", st.condition, err))
				return true
			}
			if !ok {
				return false
			}
		}
	}
	st.hits++
	if !st.hit.matches(st.hits) {
		return false
	}
	if st.isLogpoint() {
		s.sendOutput("console", s.formatLogMessage(st.log, frame)+"\n")
		return false
	}
	return true
}

func (s *Session) evaluateCondition(lang eval.Language, expr string, frame engine.Frame) (bool, error) {
	ev, err := s.evaluators.For(lang)
	if err != nil {
		return false, err
	}
	tok := s.evalToken(nil)
	defer tok.Release()
	return ev.EvaluateBool(eval.Context{Frame: frame}, expr, tok)
}

func (s *Session) formatLogMessage(segs []logSegment, frame engine.Frame) string {
	var buf strings.Builder
	def := eval.Language(s.settings.ExpressionLanguage)
	for _, seg := range segs {
		if seg.expr == "" {
			buf.WriteString(seg.text)
			continue
		}
		lang, expr := eval.SplitPrefix(seg.expr, def)
		ev, err := s.evaluators.For(lang)
		if err != nil {
			fmt.Fprintf(&buf, "<error: %v>", err)
			continue
		}
		tok := s.evalToken(nil)
		v, err := ev.Evaluate(eval.Context{Frame: frame}, expr, tok)
		tok.Release()
		if err != nil {
			fmt.Fprintf(&buf, "<error: %v>", err)
			continue
		}
		buf.WriteString(valueString(v))
	}
	return buf.String()
}
