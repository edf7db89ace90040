// Package eval evaluates debugger expressions in one of several
// expression languages.
package eval

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-delve/sbdap/pkg/cancel"
	"github.com/go-delve/sbdap/pkg/engine"
)

// Language is an expression language.
type Language string

const (
	// Native evaluates with the engine's own expression evaluator.
	Native Language = "native"
	// Simple resolves variable paths like a.b[3], *p and p->f without
	// running code in the debuggee.
	Simple Language = "simple"
	// Python evaluates Starlark, a Python dialect, over the frame's
	// variables.
	Python Language = "python"
)

// ParseLanguage parses a language name. The empty string is Native.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "native", "nat":
		return Native, nil
	case "simple", "se":
		return Simple, nil
	case "python", "py", "starlark":
		return Python, nil
	}
	return "", fmt.Errorf("unknown expression language %q", s)
}

// SplitPrefix strips a one-off language override (/nat, /se or /py) from
// expr. Without a prefix it returns def and expr unchanged.
func SplitPrefix(expr string, def Language) (Language, string) {
	for _, p := range [...]struct {
		prefix string
		lang   Language
	}{{"/nat ", Native}, {"/se ", Simple}, {"/py ", Python}} {
		if strings.HasPrefix(expr, p.prefix) {
			return p.lang, strings.TrimLeft(expr[len(p.prefix):], " ")
		}
	}
	return def, expr
}

// Context is where an expression is evaluated.
type Context struct {
	// Frame is the selected frame, nil when the debuggee is not stopped.
	Frame engine.Frame
}

// Evaluator evaluates expressions of one language.
type Evaluator interface {
	// Evaluate evaluates expr. It polls tok between evaluation steps and
	// returns ErrCancelled once it observes cancellation.
	Evaluate(ctx Context, expr string, tok *cancel.Token) (engine.Value, error)
	// EvaluateBool evaluates expr as a condition.
	EvaluateBool(ctx Context, expr string, tok *cancel.Token) (bool, error)
	// ModulesLoaded is called when the debuggee loads modules.
	ModulesLoaded(mods []engine.Module)
}

// ErrCancelled is returned by evaluators that observed cancellation.
var ErrCancelled = engine.Errorf(engine.ErrInternal, "", "cancelled")

func checkCancelled(tok *cancel.Token) error {
	if tok.IsCancelled() {
		if tok.Expired() {
			return ErrTimeout
		}
		return ErrCancelled
	}
	return nil
}

// ErrTimeout is returned when the deadline of an evaluation expired.
var ErrTimeout = engine.Errorf(engine.ErrInvalidArgument, "", "evaluation timed out")

// Set holds one evaluator per language for a session.
type Set struct {
	mu         sync.Mutex
	evaluators map[Language]Evaluator
}

// NewSet returns the evaluators of a session.
func NewSet() *Set {
	return &Set{evaluators: map[Language]Evaluator{
		Native: native{},
		Simple: simple{},
		Python: NewStarlark(),
	}}
}

// For returns the evaluator of lang.
func (s *Set) For(lang Language) (Evaluator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.evaluators[lang]
	if !ok {
		return nil, fmt.Errorf("unknown expression language %q", lang)
	}
	return ev, nil
}

// ModulesLoaded notifies every evaluator.
func (s *Set) ModulesLoaded(mods []engine.Module) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.evaluators {
		ev.ModulesLoaded(mods)
	}
}

// Truthy converts an engine value to a condition result.
func Truthy(v engine.Value) (bool, error) {
	if err := v.Err(); err != nil {
		return false, err
	}
	s := strings.TrimSpace(v.Value())
	switch s {
	case "true":
		return true, nil
	case "false", "":
		if s == "" && v.NumChildren() > 0 {
			return true, nil
		}
		return false, nil
	}
	if len(s) >= 3 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s != `'\0'`, nil
	}
	if n, err := strconv.ParseInt(s, 0, 64); err == nil {
		return n != 0, nil
	}
	if n, err := strconv.ParseUint(s, 0, 64); err == nil {
		return n != 0, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f != 0, nil
	}
	return false, engine.Errorf(engine.ErrInvalidArgument, "condition", "cannot use %q as a condition", s)
}

func noFrame() error {
	return engine.Errorf(engine.ErrInvalidArgument, "evaluate", "no frame selected")
}
