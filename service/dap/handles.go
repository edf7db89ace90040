package dap

import "github.com/go-delve/sbdap/pkg/engine"

const startHandle = 1000

// handleRegistry maps engine objects to integer references handed to the
// client. It is generational: bump starts a new epoch, after which every
// handle of earlier epochs is reported stale. Handles are never reused
// within a session, so an epoch owns the contiguous range of handles
// created while it lasted.
// Based on
// https://github.com/microsoft/vscode-debugadapter-node/blob/master/adapter/src/handles.ts
type handleRegistry struct {
	nextHandle  int
	epochStart  int
	epoch       int
	handleToVal map[int]interface{}
}

func newHandleRegistry() *handleRegistry {
	return &handleRegistry{
		nextHandle:  startHandle,
		epochStart:  startHandle,
		handleToVal: make(map[int]interface{}),
	}
}

func (hs *handleRegistry) create(value interface{}) int {
	next := hs.nextHandle
	hs.nextHandle++
	hs.handleToVal[next] = value
	return next
}

func (hs *handleRegistry) get(handle int) (interface{}, error) {
	if handle >= hs.epochStart {
		if v, ok := hs.handleToVal[handle]; ok {
			return v, nil
		}
		return nil, errInvalidHandle(handle)
	}
	if handle >= startHandle {
		return nil, errStaleHandle
	}
	return nil, errInvalidHandle(handle)
}

// bump invalidates every handle created so far.
func (hs *handleRegistry) bump() {
	hs.epoch++
	hs.epochStart = hs.nextHandle
	hs.handleToVal = make(map[int]interface{})
}

// frameRef is the object behind a stack frame id.
type frameRef struct {
	threadID int
	index    int
	frame    engine.Frame
}

type scopeKind int

const (
	scopeLocals scopeKind = iota
	scopeStatics
	scopeRegisters
)

// scopeRef is a variables container listing the variables of a frame.
type scopeRef struct {
	frame *frameRef
	kind  scopeKind
}

// valueRef is a variables container listing the children of a value.
type valueRef struct {
	value engine.Value
	// evalName is an expression evaluating to value, empty when there is
	// none.
	evalName string
}

func (hs *handleRegistry) getFrame(handle int) (*frameRef, error) {
	v, err := hs.get(handle)
	if err != nil {
		return nil, err
	}
	f, ok := v.(*frameRef)
	if !ok {
		return nil, userErr(InvalidHandle, "invalid handle", "%d is not a stack frame", handle)
	}
	return f, nil
}

// getContainer returns the scopeRef or valueRef behind handle.
func (hs *handleRegistry) getContainer(handle int) (interface{}, error) {
	v, err := hs.get(handle)
	if err != nil {
		return nil, err
	}
	switch v.(type) {
	case *scopeRef, *valueRef:
		return v, nil
	}
	return nil, userErr(InvalidHandle, "invalid handle", "%d is not a variables container", handle)
}
