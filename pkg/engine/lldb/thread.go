//go:build cgo && !windows

package lldb

import (
	"github.com/go-delve/sbdap/pkg/engine"
)

// Thread is an SBThread.
type Thread struct {
	obj *object
}

func threadOf(t *object) *Thread {
	if !callB(fnThreadIsValid, t) {
		return nil
	}
	return &Thread{obj: t}
}

func (t *Thread) ID() int {
	return int(callL(fnThreadGetThreadID, t.obj))
}

func (t *Thread) Name() string {
	return callS(fnThreadGetName, t.obj)
}

func (t *Thread) StopReason() engine.StopReason {
	return engine.StopReason(callI(fnThreadGetStopReason, t.obj))
}

// StopBreakpoints decodes the stop reason data of a breakpoint stop, which
// is a list of (breakpoint id, location id) pairs.
func (t *Thread) StopBreakpoints() []int {
	if t.StopReason() != engine.StopBreakpoint {
		return nil
	}
	n := int(callL(fnThreadGetStopReasonDataCount, t.obj))
	var ids []int
	for i := 0; i+1 < n; i += 2 {
		id := int(callL(fnThreadGetStopReasonDataAtIndex, t.obj, uint32(i)))
		if len(ids) == 0 || ids[len(ids)-1] != id {
			ids = append(ids, id)
		}
	}
	return ids
}

func (t *Thread) NumFrames() int {
	return int(callI(fnThreadGetNumFrames, t.obj))
}

func (t *Thread) Frame(i int) engine.Frame {
	f := callO(fnThreadGetFrameAtIndex, fnFrameDtor, t.obj, uint32(i))
	if !callB(fnFrameIsValid, f) {
		return nil
	}
	return &Frame{obj: f}
}

func (t *Thread) StepOver() error {
	callV(fnThreadStepOver, t.obj, uint32(runOnlyDuringStepping))
	return nil
}

func (t *Thread) StepInto() error {
	callV(fnThreadStepInto, t.obj, uint32(runOnlyDuringStepping))
	return nil
}

func (t *Thread) StepOut() error {
	callV(fnThreadStepOut, t.obj)
	return nil
}

// Frame is an SBFrame.
type Frame struct {
	obj *object
}

func (f *Frame) FunctionName() string {
	return callS(fnFrameGetFunctionName, f.obj)
}

func (f *Frame) LineEntry() engine.LineEntry {
	le, _ := lineEntryOf(callO(fnFrameGetLineEntry, fnLineEntryDtor, f.obj))
	return le
}

func lineEntryOf(le *object) (engine.LineEntry, bool) {
	if !callB(fnLineEntryIsValid, le) {
		return engine.LineEntry{}, false
	}
	return engine.LineEntry{
		File:   fileSpecPath(callO(fnLineEntryGetFileSpec, fnFileSpecDtor, le)),
		Line:   int(callI(fnLineEntryGetLine, le)),
		Column: int(callI(fnLineEntryGetColumn, le)),
	}, true
}

func (f *Frame) PC() uint64 {
	return callL(fnFrameGetPC, f.obj)
}

func (f *Frame) Variables(args, locals, statics bool) []engine.Value {
	return valueList(callO(fnFrameGetVariables, fnValueListDtor, f.obj, args, locals, statics, true))
}

func (f *Frame) Registers() []engine.Value {
	if !fnFrameGetRegisters.Resolved() {
		return nil
	}
	return valueList(callO(fnFrameGetRegisters, fnValueListDtor, f.obj))
}

func (f *Frame) Evaluate(expr string) (engine.Value, error) {
	v := callO(fnFrameEvaluateExpression, fnValueDtor, f.obj, expr)
	if err := errorOf(callO(fnValueGetError, fnErrorDtor, v), engine.ErrSyntax, "evaluate"); err != nil {
		return nil, err
	}
	return &Value{obj: v}, nil
}

func valueList(l *object) []engine.Value {
	n := int(callI(fnValueListGetSize, l))
	r := make([]engine.Value, 0, n)
	for i := 0; i < n; i++ {
		v := callO(fnValueListGetValueAtIndex, fnValueDtor, l, uint32(i))
		if callB(fnValueIsValid, v) {
			r = append(r, &Value{obj: v})
		}
	}
	return r
}

// Value is an SBValue.
type Value struct {
	obj *object
}

func (v *Value) Name() string     { return callS(fnValueGetName, v.obj) }
func (v *Value) Value() string    { return callS(fnValueGetValue, v.obj) }
func (v *Value) Summary() string  { return callS(fnValueGetSummary, v.obj) }
func (v *Value) TypeName() string { return callS(fnValueGetTypeName, v.obj) }

func (v *Value) NumChildren() int {
	return int(callI(fnValueGetNumChildren, v.obj))
}

func (v *Value) Child(i int) engine.Value {
	c := callO(fnValueGetChildAtIndex, fnValueDtor, v.obj, uint32(i))
	if !callB(fnValueIsValid, c) {
		return nil
	}
	return &Value{obj: c}
}

func (v *Value) Err() error {
	return errorOf(callO(fnValueGetError, fnErrorDtor, v.obj), engine.ErrInvalidArgument, v.Name())
}

func (v *Value) SetValue(s string) error {
	e := newError()
	if callB(fnValueSetValueFromCString, v.obj, s, e) {
		return nil
	}
	if err := errorOf(e, engine.ErrInvalidArgument, "set value"); err != nil {
		return err
	}
	return engine.Errorf(engine.ErrInvalidArgument, "set value", "could not set %s to %s", v.Name(), s)
}
