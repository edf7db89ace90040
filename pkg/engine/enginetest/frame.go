package enginetest

import (
	"strings"

	"github.com/go-delve/sbdap/pkg/engine"
)

// Frame is a fake engine.Frame.
type Frame struct {
	Func    string
	Line    engine.LineEntry
	Pc      uint64
	Args    []*Value
	Locals  []*Value
	Statics []*Value
	Regs    []*Value
	// EvalFunc answers Evaluate. The default looks the expression up
	// among the frame's variables.
	EvalFunc func(expr string) (engine.Value, error)
}

func (f *Frame) FunctionName() string {
	return f.Func
}

func (f *Frame) LineEntry() engine.LineEntry {
	return f.Line
}

func (f *Frame) PC() uint64 {
	return f.Pc
}

func (f *Frame) Variables(args, locals, statics bool) []engine.Value {
	var r []engine.Value
	add := func(vs []*Value) {
		for _, v := range vs {
			r = append(r, v)
		}
	}
	if args {
		add(f.Args)
	}
	if locals {
		add(f.Locals)
	}
	if statics {
		add(f.Statics)
	}
	return r
}

func (f *Frame) Registers() []engine.Value {
	r := make([]engine.Value, len(f.Regs))
	for i, v := range f.Regs {
		r[i] = v
	}
	return r
}

func (f *Frame) Evaluate(expr string) (engine.Value, error) {
	if f.EvalFunc != nil {
		return f.EvalFunc(expr)
	}
	expr = strings.TrimSpace(expr)
	for _, v := range f.Variables(true, true, true) {
		if v.Name() == expr {
			return v, nil
		}
	}
	return nil, engine.Errorf(engine.ErrSyntax, "Evaluate", "use of undeclared identifier '%s'", expr)
}

// Value is a fake engine.Value.
type Value struct {
	name     string
	typ      string
	value    string
	summary  string
	children []*Value
	err      error
	// ReadOnly makes SetValue fail.
	ReadOnly bool
}

// Var returns a value named name.
func Var(name, typ, value string, children ...*Value) *Value {
	return &Value{name: name, typ: typ, value: value, children: children}
}

// WithSummary sets the summary and returns v.
func (v *Value) WithSummary(s string) *Value {
	v.summary = s
	return v
}

// WithError makes v an error value.
func (v *Value) WithError(err error) *Value {
	v.err = err
	return v
}

func (v *Value) Name() string     { return v.name }
func (v *Value) Value() string    { return v.value }
func (v *Value) Summary() string  { return v.summary }
func (v *Value) TypeName() string { return v.typ }
func (v *Value) NumChildren() int { return len(v.children) }
func (v *Value) Err() error       { return v.err }

func (v *Value) Child(i int) engine.Value {
	if i < 0 || i >= len(v.children) {
		return nil
	}
	return v.children[i]
}

func (v *Value) SetValue(s string) error {
	if v.ReadOnly {
		return engine.Errorf(engine.ErrInvalidArgument, "SetValue", "value of %s cannot be changed", v.name)
	}
	v.value = s
	return nil
}
