package dap

import (
	"errors"
	"fmt"

	"github.com/go-delve/sbdap/pkg/engine"
	"github.com/go-delve/sbdap/pkg/eval"
)

// errorKind assigns the blame for a failed request.
type errorKind int

const (
	// kindInternal is a bug or an unexpected engine failure. It is logged
	// and not shown to the user.
	kindInternal errorKind = iota
	// kindUser is a problem with what the user asked for. It is shown in
	// the debug console.
	kindUser
	// kindCancelled answers a request withdrawn by the client.
	kindCancelled
	// kindExpected is a condition that needs no reporting.
	kindExpected
)

func (k errorKind) String() string {
	switch k {
	case kindUser:
		return "user"
	case kindCancelled:
		return "cancelled"
	case kindExpected:
		return "expected"
	}
	return "internal"
}

// dapError is an error that knows how it is reported to the client.
type dapError struct {
	kind errorKind
	id   int
	// summary becomes the response's one line message.
	summary string
	detail  string
	cause   error
}

func (e *dapError) Error() string {
	if e.detail == "" {
		return e.summary
	}
	return e.summary + ": " + e.detail
}

func (e *dapError) Unwrap() error {
	return e.cause
}

func internalErr(id int, summary string, cause error) *dapError {
	e := &dapError{kind: kindInternal, id: id, summary: summary, cause: cause}
	if cause != nil {
		e.detail = cause.Error()
	}
	return e
}

func userErr(id int, summary, format string, args ...interface{}) *dapError {
	return &dapError{kind: kindUser, id: id, summary: summary, detail: fmt.Sprintf(format, args...)}
}

func cancelledErr() *dapError {
	return &dapError{kind: kindCancelled, id: RequestCancelled, summary: "cancelled"}
}

func expectedErr(cause error) *dapError {
	return &dapError{kind: kindExpected, summary: cause.Error(), cause: cause}
}

var (
	errStaleHandle = &dapError{kind: kindUser, id: InvalidHandle, summary: "stale handle"}
	errNotStopped  = &dapError{kind: kindUser, id: InvalidState, summary: "the debuggee is not stopped"}
	errNoProcess   = &dapError{kind: kindUser, id: InvalidState, summary: "there is no debuggee process"}
)

func errEvaluationTimeout() *dapError {
	return &dapError{kind: kindUser, id: UnableToCompleteRequest, summary: "evaluation timed out"}
}

func errInvalidHandle(h int) *dapError {
	return userErr(InvalidHandle, "invalid handle", "unknown reference %d", h)
}

func errInvalidState(command string, state sessionState) *dapError {
	return &dapError{
		kind:    kindUser,
		id:      InvalidState,
		summary: fmt.Sprintf("request %s is not allowed while the session is %s", command, state),
	}
}

// classify converts err into a *dapError. Errors that are already
// classified keep their classification; engine errors are blamed on the
// user when the engine rejected the input, on the adapter otherwise.
func classify(id int, summary string, err error) *dapError {
	var de *dapError
	if errors.As(err, &de) {
		return de
	}
	if errors.Is(err, eval.ErrCancelled) {
		return cancelledErr()
	}
	if errors.Is(err, eval.ErrTimeout) {
		return errEvaluationTimeout()
	}
	var ee *engine.Error
	if errors.As(err, &ee) {
		switch ee.Kind {
		case engine.ErrInvalidArgument, engine.ErrNotFound, engine.ErrSyntax:
			return &dapError{kind: kindUser, id: id, summary: summary, detail: ee.Msg, cause: err}
		}
	}
	return internalErr(id, summary, err)
}
