package dap

import (
	"github.com/go-delve/sbdap/pkg/engine"
	"github.com/google/go-dap"
)

func (s *Session) onContinueRequest(request *dap.ContinueRequest) (dap.Message, error) {
	response := &dap.ContinueResponse{Response: *newResponse(request.Request)}
	response.Body.AllThreadsContinued = true
	if s.state == stateRunning {
		return response, nil
	}
	if err := s.resume(s.process.Continue); err != nil {
		return nil, err
	}
	return response, nil
}

// stepThread returns the thread a step request names.
func (s *Session) stepThread(command string, threadID int) (engine.Thread, error) {
	t := s.process.ThreadByID(threadID)
	if t == nil {
		return nil, userErr(UnableToCompleteRequest, "Unable to "+command, "unknown thread %d", threadID)
	}
	return t, nil
}

func (s *Session) onNextRequest(request *dap.NextRequest) (dap.Message, error) {
	t, err := s.stepThread("step over", request.Arguments.ThreadId)
	if err != nil {
		return nil, err
	}
	if err := s.resume(t.StepOver); err != nil {
		return nil, err
	}
	return &dap.NextResponse{Response: *newResponse(request.Request)}, nil
}

func (s *Session) onStepInRequest(request *dap.StepInRequest) (dap.Message, error) {
	t, err := s.stepThread("step in", request.Arguments.ThreadId)
	if err != nil {
		return nil, err
	}
	if err := s.resume(t.StepInto); err != nil {
		return nil, err
	}
	return &dap.StepInResponse{Response: *newResponse(request.Request)}, nil
}

func (s *Session) onStepOutRequest(request *dap.StepOutRequest) (dap.Message, error) {
	t, err := s.stepThread("step out", request.Arguments.ThreadId)
	if err != nil {
		return nil, err
	}
	if err := s.resume(t.StepOut); err != nil {
		return nil, err
	}
	return &dap.StepOutResponse{Response: *newResponse(request.Request)}, nil
}

// onPauseRequest stops the debuggee. The stopped event follows when the
// engine reports the stop.
func (s *Session) onPauseRequest(request *dap.PauseRequest) (dap.Message, error) {
	if s.state == stateRunning {
		if err := s.process.Stop(); err != nil {
			return nil, classify(UnableToCompleteRequest, "Unable to halt execution", err)
		}
	}
	return &dap.PauseResponse{Response: *newResponse(request.Request)}, nil
}
