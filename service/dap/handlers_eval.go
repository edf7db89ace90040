package dap

import (
	"errors"
	"sort"
	"strings"

	"github.com/go-delve/sbdap/pkg/cancel"
	"github.com/go-delve/sbdap/pkg/engine"
	"github.com/go-delve/sbdap/pkg/eval"
	"github.com/google/go-dap"
)

// onEvaluateRequest handles 'evaluate' requests. In the debug console a
// line is a command unless it starts with '?'; everywhere else it is an
// expression. Expressions are evaluated off the dispatcher and answered
// through a completion.
func (s *Session) onEvaluateRequest(request *dap.EvaluateRequest) (dap.Message, error) {
	expr := request.Arguments.Expression
	if request.Arguments.Context == "repl" {
		if !strings.HasPrefix(expr, "?") {
			return s.evaluateCommand(request, expr)
		}
		expr = strings.TrimSpace(expr[1:])
	}
	return s.evaluateExpression(request, expr)
}

func (s *Session) evaluateCommand(request *dap.EvaluateRequest, line string) (dap.Message, error) {
	out, err := s.metaCmd(line)
	switch {
	case errors.Is(err, errNoCmd):
		res, err := s.debugger.HandleCommand(line)
		if err != nil {
			return nil, classify(UnableToRunCommand, "Unable to run command", err)
		}
		if !res.Succeeded {
			if res.Output != "" {
				s.sendOutput("console", res.Output)
			}
			return nil, userErr(UnableToRunCommand, "Unable to run command", "%s", strings.TrimSpace(res.Error))
		}
		out = res.Output
	case err != nil:
		return nil, userErr(UnableToRunCommand, "Unable to run command", "%v", err)
	}
	response := &dap.EvaluateResponse{Response: *newResponse(request.Request)}
	response.Body.Result = strings.TrimRight(out, "\n")
	return response, nil
}

// evalFrame returns the frame an evaluation runs in: the requested one,
// else the top frame of the selected thread, else none.
func (s *Session) evalFrame(frameID int) (engine.Frame, error) {
	if frameID != 0 {
		f, err := s.handles.getFrame(frameID)
		if err != nil {
			return nil, err
		}
		return f.frame, nil
	}
	if s.state != stateStopped || s.process == nil {
		return nil, nil
	}
	if t := s.process.SelectedThread(); t != nil && t.NumFrames() > 0 {
		return t.Frame(0), nil
	}
	return nil, nil
}

func (s *Session) evaluateExpression(request *dap.EvaluateRequest, expr string) (dap.Message, error) {
	frame, err := s.evalFrame(request.Arguments.FrameId)
	if err != nil {
		return nil, err
	}
	lang, expr := eval.SplitPrefix(expr, eval.Language(s.settings.ExpressionLanguage))
	ev, err := s.evaluators.For(lang)
	if err != nil {
		return nil, userErr(UnableToEvaluateExpression, "Unable to evaluate expression", "%v", err)
	}
	var src *cancel.Source
	if p, ok := s.pending.get(request.Seq); ok {
		src = p.source
	}
	tok := s.evalToken(src)
	epoch := s.handles.epoch
	ctx := eval.Context{Frame: frame}

	work := func(tok *cancel.Token) (interface{}, error) {
		return ev.Evaluate(ctx, expr, tok)
	}
	finish := func(result interface{}, err error) (dap.Message, error) {
		if err != nil {
			return nil, classify(UnableToEvaluateExpression, "Unable to evaluate expression", err)
		}
		if s.handles.epoch != epoch {
			// The debuggee resumed; the value is gone.
			return nil, errStaleHandle
		}
		v := result.(engine.Value)
		if verr := v.Err(); verr != nil {
			return nil, userErr(UnableToEvaluateExpression, "Unable to evaluate expression", "%v", verr)
		}
		dv := s.convertVariable(v, expr)
		response := &dap.EvaluateResponse{Response: *newResponse(request.Request)}
		response.Body.Result = dv.Value
		response.Body.Type = dv.Type
		response.Body.VariablesReference = dv.VariablesReference
		response.Body.NamedVariables = dv.NamedVariables
		response.Body.IndexedVariables = dv.IndexedVariables
		return response, nil
	}
	s.exec.submit(request.Seq, tok, work, finish)
	return nil, nil
}

// onCompletionsRequest completes debug console input: adapter commands
// and engine commands, or variable names after '?'.
func (s *Session) onCompletionsRequest(request *dap.CompletionsRequest) (dap.Message, error) {
	text := request.Arguments.Text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	col := request.Arguments.Column
	if s.clientCaps.columnsStartAt1 {
		col--
	}
	if col < 0 || col > len(text) {
		col = len(text)
	}
	prefix := text[:col]

	var start int
	var names []string
	if strings.HasPrefix(prefix, "?") {
		start = strings.LastIndexFunc(prefix, func(r rune) bool { return !isIdentRune(r) }) + 1
		names = s.completeVariable(request.Arguments.FrameId, prefix[start:])
	} else {
		start = strings.LastIndexAny(prefix, " \t") + 1
		if start == 0 {
			names = s.completeCommand(prefix)
		}
		matches, err := s.debugger.Complete(text, col)
		if err != nil {
			s.log.Debugf("completing %q: %v", text, err)
		}
		names = append(names, matches...)
	}

	seen := make(map[string]bool, len(names))
	targets := []dap.CompletionItem{}
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		targets = append(targets, dap.CompletionItem{
			Label:  name,
			Text:   name,
			Start:  s.toClientColumn(start + 1),
			Length: col - start,
		})
	}
	response := &dap.CompletionsResponse{Response: *newResponse(request.Request)}
	response.Body.Targets = targets
	return response, nil
}

func isIdentRune(r rune) bool {
	return r == '_' || r == '$' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z'
}

// completeVariable returns the names of the variables of the evaluation
// frame starting with prefix.
func (s *Session) completeVariable(frameID int, prefix string) []string {
	frame, err := s.evalFrame(frameID)
	if err != nil || frame == nil {
		return nil
	}
	var r []string
	for _, v := range frame.Variables(true, true, true) {
		if strings.HasPrefix(v.Name(), prefix) {
			r = append(r, v.Name())
		}
	}
	sort.Strings(r)
	return r
}
