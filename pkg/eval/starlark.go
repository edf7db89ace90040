package eval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/go-delve/sbdap/pkg/cancel"
	"github.com/go-delve/sbdap/pkg/engine"
	"github.com/go-delve/sbdap/pkg/logflags"
)

func init() {
	resolve.AllowNestedDef = true
	resolve.AllowLambda = true
	resolve.AllowFloat = true
	resolve.AllowSet = true
	resolve.AllowBitwise = true
	resolve.AllowRecursion = true
	resolve.AllowGlobalReassign = true
}

const (
	frameBuiltinName = "frame"
	modulesName      = "modules"
)

// Starlark evaluates Starlark expressions. Frame variables are
// predeclared: scalars as Starlark numbers, booleans and strings,
// aggregates as values supporting attribute access and indexing.
type Starlark struct {
	mu      sync.Mutex
	modules []engine.Module
}

// NewStarlark returns a new Starlark evaluator.
func NewStarlark() *Starlark {
	return &Starlark{}
}

func (s *Starlark) Evaluate(ctx Context, expr string, tok *cancel.Token) (engine.Value, error) {
	if err := checkCancelled(tok); err != nil {
		return nil, err
	}
	thread := &starlark.Thread{Name: "eval"}
	c, stop := tok.Context(context.Background())
	defer stop()
	go func() {
		<-c.Done()
		thread.Cancel("cancelled")
	}()

	v, err := starlark.Eval(thread, "<expr>", expr, s.predeclared(ctx))
	if cerr := checkCancelled(tok); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		var serr syntax.Error
		if errors.As(err, &serr) {
			return nil, engine.Errorf(engine.ErrSyntax, "evaluate", "%v", serr)
		}
		logflags.EvalLogger().Debugf("starlark evaluation of %q failed: %v", expr, err)
		return nil, engine.Errorf(engine.ErrInvalidArgument, "evaluate", "%v", err)
	}
	if w, ok := v.(valueWrapper); ok {
		return w.v, nil
	}
	return scriptValue{name: expr, val: v}, nil
}

func (s *Starlark) EvaluateBool(ctx Context, expr string, tok *cancel.Token) (bool, error) {
	v, err := s.Evaluate(ctx, expr, tok)
	if err != nil {
		return false, err
	}
	if sv, ok := v.(scriptValue); ok {
		return bool(sv.val.Truth()), nil
	}
	return Truthy(v)
}

func (s *Starlark) ModulesLoaded(mods []engine.Module) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range mods {
		dup := false
		for _, old := range s.modules {
			if old.ID == m.ID {
				dup = true
				break
			}
		}
		if !dup {
			s.modules = append(s.modules, m)
		}
	}
}

func (s *Starlark) predeclared(ctx Context) starlark.StringDict {
	env := starlark.StringDict{}
	s.mu.Lock()
	mods := make([]starlark.Value, len(s.modules))
	for i, m := range s.modules {
		mods[i] = starlark.String(m.Name)
	}
	s.mu.Unlock()
	env[modulesName] = starlark.NewList(mods)

	if ctx.Frame == nil {
		return env
	}
	for _, v := range ctx.Frame.Variables(true, true, true) {
		if name := v.Name(); name != "" {
			env[name] = convert(v)
		}
	}
	le := ctx.Frame.LineEntry()
	env[frameBuiltinName] = frameInfo{
		function: ctx.Frame.FunctionName(),
		file:     le.File,
		line:     le.Line,
		pc:       ctx.Frame.PC(),
	}
	return env
}

// convert maps an engine value to a Starlark value.
func convert(v engine.Value) starlark.Value {
	if v.NumChildren() > 0 {
		return valueWrapper{v}
	}
	if sum := v.Summary(); strings.HasPrefix(sum, `"`) {
		if u, err := strconv.Unquote(sum); err == nil {
			return starlark.String(u)
		}
	}
	s := strings.TrimSpace(v.Value())
	switch s {
	case "true":
		return starlark.True
	case "false":
		return starlark.False
	}
	if n, err := strconv.ParseInt(s, 0, 64); err == nil {
		return starlark.MakeInt64(n)
	}
	if n, err := strconv.ParseUint(s, 0, 64); err == nil {
		return starlark.MakeUint64(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return starlark.Float(f)
	}
	return starlark.String(s)
}

// valueWrapper exposes an aggregate engine value to Starlark.
type valueWrapper struct {
	v engine.Value
}

var (
	_ starlark.HasAttrs  = valueWrapper{}
	_ starlark.Indexable = valueWrapper{}
)

func (w valueWrapper) String() string {
	if s := w.v.Summary(); s != "" {
		return s
	}
	if s := w.v.Value(); s != "" {
		return s
	}
	return w.v.TypeName()
}

func (w valueWrapper) Type() string { return w.v.TypeName() }
func (w valueWrapper) Freeze()      {}

func (w valueWrapper) Truth() starlark.Bool {
	b, err := Truthy(w.v)
	if err != nil {
		return true
	}
	return starlark.Bool(b)
}

func (w valueWrapper) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: %s", w.Type())
}

func (w valueWrapper) Attr(name string) (starlark.Value, error) {
	c := childByName(w.v, name)
	if c == nil {
		return nil, nil
	}
	return convert(c), nil
}

func (w valueWrapper) AttrNames() []string {
	n := w.v.NumChildren()
	r := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if c := w.v.Child(i); c != nil {
			r = append(r, c.Name())
		}
	}
	sort.Strings(r)
	return r
}

func (w valueWrapper) Index(i int) starlark.Value {
	c := w.v.Child(i)
	if c == nil {
		return starlark.None
	}
	return convert(c)
}

func (w valueWrapper) Len() int {
	return w.v.NumChildren()
}

// frameInfo is the predeclared 'frame' value.
type frameInfo struct {
	function string
	file     string
	line     int
	pc       uint64
}

var _ starlark.HasAttrs = frameInfo{}

func (f frameInfo) String() string {
	return fmt.Sprintf("%s at %s:%d", f.function, f.file, f.line)
}

func (f frameInfo) Type() string         { return "frame" }
func (f frameInfo) Freeze()              {}
func (f frameInfo) Truth() starlark.Bool { return true }

func (f frameInfo) Hash() (uint32, error) {
	return 0, errors.New("unhashable type: frame")
}

func (f frameInfo) Attr(name string) (starlark.Value, error) {
	switch name {
	case "function":
		return starlark.String(f.function), nil
	case "file":
		return starlark.String(f.file), nil
	case "line":
		return starlark.MakeInt(f.line), nil
	case "pc":
		return starlark.MakeUint64(f.pc), nil
	}
	return nil, nil
}

func (f frameInfo) AttrNames() []string {
	return []string{"file", "function", "line", "pc"}
}

// scriptValue is the result of an expression that did not evaluate to a
// debuggee value.
type scriptValue struct {
	name string
	val  starlark.Value
}

func (v scriptValue) Name() string    { return v.name }
func (v scriptValue) Summary() string { return "" }
func (v scriptValue) Err() error      { return nil }

func (v scriptValue) Value() string {
	return v.val.String()
}

func (v scriptValue) TypeName() string {
	return v.val.Type()
}

func (v scriptValue) NumChildren() int {
	switch x := v.val.(type) {
	case starlark.String:
		return 0
	case starlark.Indexable:
		return x.Len()
	case *starlark.Dict:
		return x.Len()
	}
	return 0
}

func (v scriptValue) Child(i int) engine.Value {
	if i < 0 || i >= v.NumChildren() {
		return nil
	}
	switch x := v.val.(type) {
	case starlark.Indexable:
		return scriptValue{name: fmt.Sprintf("[%d]", i), val: x.Index(i)}
	case *starlark.Dict:
		kv := x.Items()[i]
		name := kv[0].String()
		if s, ok := kv[0].(starlark.String); ok {
			name = string(s)
		}
		return scriptValue{name: name, val: kv[1]}
	}
	return nil
}

func (v scriptValue) SetValue(string) error {
	return engine.Errorf(engine.ErrUnsupported, "set value", "%s is not a debuggee value", v.name)
}
