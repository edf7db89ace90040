// Package daptest provides a sample client with utilities
// for DAP mode testing.
package daptest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/google/go-dap"
)

// Client is a debug adapter client. Requests are written synchronously;
// responses and events are read with the Expect methods.
type Client struct {
	conn   io.ReadWriteCloser
	reader *bufio.Reader
	// seq is used to track the sequence number of each
	// requests that the client sends to the server
	seq int
	// Timeout bounds every read. Zero means no limit.
	Timeout time.Duration
}

// NewClient creates a new Client over a TCP connection.
// Call Close() to close the connection.
func NewClient(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dialing: %v", err)
	}
	return NewClientFromConn(conn), nil
}

// NewClientFromConn creates a new Client over conn.
func NewClientFromConn(conn io.ReadWriteCloser) *Client {
	return &Client{conn: conn, reader: bufio.NewReader(conn), seq: 1, Timeout: 10 * time.Second}
}

// Close closes the client connection.
func (c *Client) Close() {
	c.conn.Close()
}

// LastSeq returns the sequence number of the last request sent.
func (c *Client) LastSeq() int {
	return c.seq - 1
}

func (c *Client) send(request dap.Message) int {
	seq := request.GetSeq()
	if err := dap.WriteProtocolMessage(c.conn, request); err != nil {
		panic(fmt.Sprintf("writing %T: %v", request, err))
	}
	return seq
}

// SendRaw writes body as one frame, without checking it.
func (c *Client) SendRaw(body string) {
	fmt.Fprintf(c.conn, "Content-Length: %d\r\n\r\n%s", len(body), body)
}

// SendRawBytes writes b as is.
func (c *Client) SendRawBytes(b []byte) {
	c.conn.Write(b)
}

// ReadMessage reads the next message from the adapter.
func (c *Client) ReadMessage() (dap.Message, error) {
	type result struct {
		m   dap.Message
		err error
	}
	if c.Timeout == 0 {
		return dap.ReadProtocolMessage(c.reader)
	}
	ch := make(chan result, 1)
	go func() {
		m, err := dap.ReadProtocolMessage(c.reader)
		ch <- result{m, err}
	}()
	select {
	case r := <-ch:
		return r.m, r.err
	case <-time.After(c.Timeout):
		return nil, fmt.Errorf("no message within %v", c.Timeout)
	}
}

// ExpectMessage reads the next message and fails the test if there is
// none.
func (c *Client) ExpectMessage(t *testing.T) dap.Message {
	t.Helper()
	m, err := c.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	return m
}

// ExpectMessageSkippingOutput is ExpectMessage ignoring output events.
func (c *Client) ExpectMessageSkippingOutput(t *testing.T) dap.Message {
	t.Helper()
	for {
		m := c.ExpectMessage(t)
		if _, ok := m.(*dap.OutputEvent); !ok {
			return m
		}
	}
}

// expect reads the next message, skipping output events unless want is
// one, and checks that it has the type of want.
func (c *Client) expect(t *testing.T, want dap.Message) dap.Message {
	t.Helper()
	var m dap.Message
	if _, ok := want.(*dap.OutputEvent); ok {
		m = c.ExpectMessage(t)
	} else {
		m = c.ExpectMessageSkippingOutput(t)
	}
	if reflect.TypeOf(m) != reflect.TypeOf(want) {
		b, _ := json.Marshal(m)
		t.Fatalf("got %T %s, want %T", m, b, want)
	}
	return m
}

func (c *Client) ExpectErrorResponse(t *testing.T) *dap.ErrorResponse {
	t.Helper()
	return c.expect(t, &dap.ErrorResponse{}).(*dap.ErrorResponse)
}

// ExpectErrorResponseWith checks the error id and message of the next
// response.
func (c *Client) ExpectErrorResponseWith(t *testing.T, id int, format string) *dap.ErrorResponse {
	t.Helper()
	er := c.ExpectErrorResponse(t)
	if er.Body.Error == nil {
		t.Fatalf("got %#v, want error body", er)
	}
	if er.Body.Error.Id != id || er.Body.Error.Format != format {
		t.Errorf("got error {id: %d, format: %q}, want {id: %d, format: %q}", er.Body.Error.Id, er.Body.Error.Format, id, format)
	}
	return er
}

func (c *Client) ExpectInitializeResponse(t *testing.T) *dap.InitializeResponse {
	t.Helper()
	initResp := c.expect(t, &dap.InitializeResponse{}).(*dap.InitializeResponse)
	if !initResp.Body.SupportsConfigurationDoneRequest {
		t.Errorf("got %#v, want SupportsConfigurationDoneRequest=true", initResp)
	}
	return initResp
}

func (c *Client) ExpectInitializedEvent(t *testing.T) *dap.InitializedEvent {
	t.Helper()
	return c.expect(t, &dap.InitializedEvent{}).(*dap.InitializedEvent)
}

func (c *Client) ExpectLaunchResponse(t *testing.T) *dap.LaunchResponse {
	t.Helper()
	return c.expect(t, &dap.LaunchResponse{}).(*dap.LaunchResponse)
}

func (c *Client) ExpectAttachResponse(t *testing.T) *dap.AttachResponse {
	t.Helper()
	return c.expect(t, &dap.AttachResponse{}).(*dap.AttachResponse)
}

func (c *Client) ExpectDisconnectResponse(t *testing.T) *dap.DisconnectResponse {
	t.Helper()
	return c.expect(t, &dap.DisconnectResponse{}).(*dap.DisconnectResponse)
}

func (c *Client) ExpectTerminateResponse(t *testing.T) *dap.TerminateResponse {
	t.Helper()
	return c.expect(t, &dap.TerminateResponse{}).(*dap.TerminateResponse)
}

func (c *Client) ExpectSetBreakpointsResponse(t *testing.T) *dap.SetBreakpointsResponse {
	t.Helper()
	return c.expect(t, &dap.SetBreakpointsResponse{}).(*dap.SetBreakpointsResponse)
}

func (c *Client) ExpectSetFunctionBreakpointsResponse(t *testing.T) *dap.SetFunctionBreakpointsResponse {
	t.Helper()
	return c.expect(t, &dap.SetFunctionBreakpointsResponse{}).(*dap.SetFunctionBreakpointsResponse)
}

func (c *Client) ExpectSetExceptionBreakpointsResponse(t *testing.T) *dap.SetExceptionBreakpointsResponse {
	t.Helper()
	return c.expect(t, &dap.SetExceptionBreakpointsResponse{}).(*dap.SetExceptionBreakpointsResponse)
}

func (c *Client) ExpectConfigurationDoneResponse(t *testing.T) *dap.ConfigurationDoneResponse {
	t.Helper()
	return c.expect(t, &dap.ConfigurationDoneResponse{}).(*dap.ConfigurationDoneResponse)
}

func (c *Client) ExpectContinueResponse(t *testing.T) *dap.ContinueResponse {
	t.Helper()
	return c.expect(t, &dap.ContinueResponse{}).(*dap.ContinueResponse)
}

func (c *Client) ExpectNextResponse(t *testing.T) *dap.NextResponse {
	t.Helper()
	return c.expect(t, &dap.NextResponse{}).(*dap.NextResponse)
}

func (c *Client) ExpectPauseResponse(t *testing.T) *dap.PauseResponse {
	t.Helper()
	return c.expect(t, &dap.PauseResponse{}).(*dap.PauseResponse)
}

func (c *Client) ExpectThreadsResponse(t *testing.T) *dap.ThreadsResponse {
	t.Helper()
	return c.expect(t, &dap.ThreadsResponse{}).(*dap.ThreadsResponse)
}

func (c *Client) ExpectStackTraceResponse(t *testing.T) *dap.StackTraceResponse {
	t.Helper()
	return c.expect(t, &dap.StackTraceResponse{}).(*dap.StackTraceResponse)
}

func (c *Client) ExpectScopesResponse(t *testing.T) *dap.ScopesResponse {
	t.Helper()
	return c.expect(t, &dap.ScopesResponse{}).(*dap.ScopesResponse)
}

func (c *Client) ExpectVariablesResponse(t *testing.T) *dap.VariablesResponse {
	t.Helper()
	return c.expect(t, &dap.VariablesResponse{}).(*dap.VariablesResponse)
}

func (c *Client) ExpectSetVariableResponse(t *testing.T) *dap.SetVariableResponse {
	t.Helper()
	return c.expect(t, &dap.SetVariableResponse{}).(*dap.SetVariableResponse)
}

func (c *Client) ExpectEvaluateResponse(t *testing.T) *dap.EvaluateResponse {
	t.Helper()
	return c.expect(t, &dap.EvaluateResponse{}).(*dap.EvaluateResponse)
}

func (c *Client) ExpectCompletionsResponse(t *testing.T) *dap.CompletionsResponse {
	t.Helper()
	return c.expect(t, &dap.CompletionsResponse{}).(*dap.CompletionsResponse)
}

func (c *Client) ExpectCancelResponse(t *testing.T) *dap.CancelResponse {
	t.Helper()
	return c.expect(t, &dap.CancelResponse{}).(*dap.CancelResponse)
}

func (c *Client) ExpectModulesResponse(t *testing.T) *dap.ModulesResponse {
	t.Helper()
	return c.expect(t, &dap.ModulesResponse{}).(*dap.ModulesResponse)
}

func (c *Client) ExpectLoadedSourcesResponse(t *testing.T) *dap.LoadedSourcesResponse {
	t.Helper()
	return c.expect(t, &dap.LoadedSourcesResponse{}).(*dap.LoadedSourcesResponse)
}

func (c *Client) ExpectReadMemoryResponse(t *testing.T) *dap.ReadMemoryResponse {
	t.Helper()
	return c.expect(t, &dap.ReadMemoryResponse{}).(*dap.ReadMemoryResponse)
}

func (c *Client) ExpectDisassembleResponse(t *testing.T) *dap.DisassembleResponse {
	t.Helper()
	return c.expect(t, &dap.DisassembleResponse{}).(*dap.DisassembleResponse)
}

func (c *Client) ExpectStoppedEvent(t *testing.T) *dap.StoppedEvent {
	t.Helper()
	return c.expect(t, &dap.StoppedEvent{}).(*dap.StoppedEvent)
}

func (c *Client) ExpectContinuedEvent(t *testing.T) *dap.ContinuedEvent {
	t.Helper()
	return c.expect(t, &dap.ContinuedEvent{}).(*dap.ContinuedEvent)
}

func (c *Client) ExpectExitedEvent(t *testing.T) *dap.ExitedEvent {
	t.Helper()
	return c.expect(t, &dap.ExitedEvent{}).(*dap.ExitedEvent)
}

func (c *Client) ExpectTerminatedEvent(t *testing.T) *dap.TerminatedEvent {
	t.Helper()
	return c.expect(t, &dap.TerminatedEvent{}).(*dap.TerminatedEvent)
}

func (c *Client) ExpectOutputEvent(t *testing.T) *dap.OutputEvent {
	t.Helper()
	return c.expect(t, &dap.OutputEvent{}).(*dap.OutputEvent)
}

func (c *Client) ExpectBreakpointEvent(t *testing.T) *dap.BreakpointEvent {
	t.Helper()
	return c.expect(t, &dap.BreakpointEvent{}).(*dap.BreakpointEvent)
}

func (c *Client) ExpectModuleEvent(t *testing.T) *dap.ModuleEvent {
	t.Helper()
	return c.expect(t, &dap.ModuleEvent{}).(*dap.ModuleEvent)
}

func (c *Client) ExpectInvalidatedEvent(t *testing.T) *dap.InvalidatedEvent {
	t.Helper()
	return c.expect(t, &dap.InvalidatedEvent{}).(*dap.InvalidatedEvent)
}

func (c *Client) ExpectStepInResponse(t *testing.T) *dap.StepInResponse {
	t.Helper()
	return c.expect(t, &dap.StepInResponse{}).(*dap.StepInResponse)
}

func (c *Client) ExpectStepOutResponse(t *testing.T) *dap.StepOutResponse {
	t.Helper()
	return c.expect(t, &dap.StepOutResponse{}).(*dap.StepOutResponse)
}

func (c *Client) ExpectRunInTerminalRequest(t *testing.T) *dap.RunInTerminalRequest {
	t.Helper()
	return c.expect(t, &dap.RunInTerminalRequest{}).(*dap.RunInTerminalRequest)
}

// InitializeRequest sends an 'initialize' request.
func (c *Client) InitializeRequest() int {
	request := &dap.InitializeRequest{Request: *c.newRequest("initialize")}
	request.Arguments = dap.InitializeRequestArguments{
		AdapterID:                    "sbdap",
		PathFormat:                   "path",
		LinesStartAt1:                true,
		ColumnsStartAt1:              true,
		SupportsVariableType:         true,
		SupportsVariablePaging:       true,
		SupportsRunInTerminalRequest: true,
		Locale:                       "en-us",
	}
	return c.send(request)
}

// InitializeRequestWithArgs sends an 'initialize' request with args.
func (c *Client) InitializeRequestWithArgs(args dap.InitializeRequestArguments) int {
	request := &dap.InitializeRequest{Request: *c.newRequest("initialize")}
	request.Arguments = args
	return c.send(request)
}

func toRawMessage(in interface{}) json.RawMessage {
	out, _ := json.Marshal(in)
	return out
}

// LaunchRequest sends a 'launch' request. The debuggee's standard streams
// are discarded.
func (c *Client) LaunchRequest(program string, stopOnEntry bool) int {
	return c.LaunchRequestWithArgs(map[string]interface{}{
		"program":     program,
		"stopOnEntry": stopOnEntry,
		"stdio":       []interface{}{nil, nil, nil},
	})
}

// LaunchRequestWithArgs takes a map of untyped implementation-specific
// arguments to send a 'launch' request.
func (c *Client) LaunchRequestWithArgs(arguments map[string]interface{}) int {
	request := &dap.LaunchRequest{Request: *c.newRequest("launch")}
	request.Arguments = toRawMessage(arguments)
	return c.send(request)
}

// AttachRequest sends an 'attach' request with the specified arguments.
func (c *Client) AttachRequest(arguments map[string]interface{}) int {
	request := &dap.AttachRequest{Request: *c.newRequest("attach")}
	request.Arguments = toRawMessage(arguments)
	return c.send(request)
}

// DisconnectRequest sends a 'disconnect' request.
func (c *Client) DisconnectRequest() int {
	request := &dap.DisconnectRequest{Request: *c.newRequest("disconnect")}
	return c.send(request)
}

// DisconnectRequestWithTerminate sends a 'disconnect' request with the
// terminateDebuggee argument set.
func (c *Client) DisconnectRequestWithTerminate(terminate bool) int {
	request := &dap.DisconnectRequest{Request: *c.newRequest("disconnect")}
	request.Arguments = &dap.DisconnectArguments{TerminateDebuggee: terminate}
	return c.send(request)
}

// TerminateRequest sends a 'terminate' request.
func (c *Client) TerminateRequest() int {
	return c.send(&dap.TerminateRequest{Request: *c.newRequest("terminate")})
}

// SetBreakpointsRequest sends a 'setBreakpoints' request.
func (c *Client) SetBreakpointsRequest(file string, lines []int) int {
	return c.SetBreakpointsRequestWithArgs(file, lines, nil, nil, nil)
}

// SetBreakpointsRequestWithArgs sends a 'setBreakpoints' request with an
// option to specify conditions, hit conditions and log messages.
func (c *Client) SetBreakpointsRequestWithArgs(file string, lines []int, conditions, hitConditions, logMessages map[int]string) int {
	request := &dap.SetBreakpointsRequest{Request: *c.newRequest("setBreakpoints")}
	request.Arguments = dap.SetBreakpointsArguments{
		Source: dap.Source{
			Name: filepath.Base(file),
			Path: file,
		},
		Breakpoints: make([]dap.SourceBreakpoint, len(lines)),
	}
	for i, l := range lines {
		request.Arguments.Breakpoints[i].Line = l
		request.Arguments.Breakpoints[i].Condition = conditions[l]
		request.Arguments.Breakpoints[i].HitCondition = hitConditions[l]
		request.Arguments.Breakpoints[i].LogMessage = logMessages[l]
	}
	return c.send(request)
}

// SetFunctionBreakpointsRequest sends a 'setFunctionBreakpoints' request.
func (c *Client) SetFunctionBreakpointsRequest(breakpoints []dap.FunctionBreakpoint) int {
	request := &dap.SetFunctionBreakpointsRequest{Request: *c.newRequest("setFunctionBreakpoints")}
	request.Arguments.Breakpoints = breakpoints
	return c.send(request)
}

// SetExceptionBreakpointsRequest sends a 'setExceptionBreakpoints' request.
func (c *Client) SetExceptionBreakpointsRequest() int {
	request := &dap.SetExceptionBreakpointsRequest{Request: *c.newRequest("setExceptionBreakpoints")}
	request.Arguments.Filters = []string{}
	return c.send(request)
}

// ConfigurationDoneRequest sends a 'configurationDone' request.
func (c *Client) ConfigurationDoneRequest() int {
	return c.send(&dap.ConfigurationDoneRequest{Request: *c.newRequest("configurationDone")})
}

// ContinueRequest sends a 'continue' request.
func (c *Client) ContinueRequest(thread int) int {
	request := &dap.ContinueRequest{Request: *c.newRequest("continue")}
	request.Arguments.ThreadId = thread
	return c.send(request)
}

// NextRequest sends a 'next' request.
func (c *Client) NextRequest(thread int) int {
	request := &dap.NextRequest{Request: *c.newRequest("next")}
	request.Arguments.ThreadId = thread
	return c.send(request)
}

// StepInRequest sends a 'stepIn' request.
func (c *Client) StepInRequest(thread int) int {
	request := &dap.StepInRequest{Request: *c.newRequest("stepIn")}
	request.Arguments.ThreadId = thread
	return c.send(request)
}

// StepOutRequest sends a 'stepOut' request.
func (c *Client) StepOutRequest(thread int) int {
	request := &dap.StepOutRequest{Request: *c.newRequest("stepOut")}
	request.Arguments.ThreadId = thread
	return c.send(request)
}

// PauseRequest sends a 'pause' request.
func (c *Client) PauseRequest(thread int) int {
	request := &dap.PauseRequest{Request: *c.newRequest("pause")}
	request.Arguments.ThreadId = thread
	return c.send(request)
}

// ThreadsRequest sends a 'threads' request.
func (c *Client) ThreadsRequest() int {
	return c.send(&dap.ThreadsRequest{Request: *c.newRequest("threads")})
}

// StackTraceRequest sends a 'stackTrace' request.
func (c *Client) StackTraceRequest(thread, startFrame, levels int) int {
	request := &dap.StackTraceRequest{Request: *c.newRequest("stackTrace")}
	request.Arguments.ThreadId = thread
	request.Arguments.StartFrame = startFrame
	request.Arguments.Levels = levels
	return c.send(request)
}

// ScopesRequest sends a 'scopes' request.
func (c *Client) ScopesRequest(frameID int) int {
	request := &dap.ScopesRequest{Request: *c.newRequest("scopes")}
	request.Arguments.FrameId = frameID
	return c.send(request)
}

// VariablesRequest sends a 'variables' request.
func (c *Client) VariablesRequest(variablesReference int) int {
	return c.IndexedVariablesRequest(variablesReference, 0, 0)
}

// IndexedVariablesRequest sends a 'variables' request for a page.
func (c *Client) IndexedVariablesRequest(variablesReference, start, count int) int {
	request := &dap.VariablesRequest{Request: *c.newRequest("variables")}
	request.Arguments.VariablesReference = variablesReference
	request.Arguments.Start = start
	request.Arguments.Count = count
	return c.send(request)
}

// SetVariableRequest sends a 'setVariable' request.
func (c *Client) SetVariableRequest(variablesRef int, name, value string) int {
	request := &dap.SetVariableRequest{Request: *c.newRequest("setVariable")}
	request.Arguments.VariablesReference = variablesRef
	request.Arguments.Name = name
	request.Arguments.Value = value
	return c.send(request)
}

// EvaluateRequest sends a 'evaluate' request.
func (c *Client) EvaluateRequest(expr string, fid int, context string) int {
	request := &dap.EvaluateRequest{Request: *c.newRequest("evaluate")}
	request.Arguments.Expression = expr
	request.Arguments.FrameId = fid
	request.Arguments.Context = context
	return c.send(request)
}

// CompletionsRequest sends a 'completions' request.
func (c *Client) CompletionsRequest(text string, column, frameID int) int {
	request := &dap.CompletionsRequest{Request: *c.newRequest("completions")}
	request.Arguments.Text = text
	request.Arguments.Column = column
	request.Arguments.FrameId = frameID
	return c.send(request)
}

// CancelRequest sends a 'cancel' request for requestID.
func (c *Client) CancelRequest(requestID int) int {
	request := &dap.CancelRequest{Request: *c.newRequest("cancel")}
	request.Arguments = &dap.CancelArguments{RequestId: requestID}
	return c.send(request)
}

// ModulesRequest sends a 'modules' request.
func (c *Client) ModulesRequest() int {
	return c.send(&dap.ModulesRequest{Request: *c.newRequest("modules")})
}

// LoadedSourcesRequest sends a 'loadedSources' request.
func (c *Client) LoadedSourcesRequest() int {
	return c.send(&dap.LoadedSourcesRequest{Request: *c.newRequest("loadedSources")})
}

// ReadMemoryRequest sends a 'readMemory' request.
func (c *Client) ReadMemoryRequest(memoryReference string, offset, count int) int {
	request := &dap.ReadMemoryRequest{Request: *c.newRequest("readMemory")}
	request.Arguments.MemoryReference = memoryReference
	request.Arguments.Offset = offset
	request.Arguments.Count = count
	return c.send(request)
}

// DisassembleRequest sends a 'disassemble' request.
func (c *Client) DisassembleRequest(memoryReference string, instructionOffset, count int) int {
	request := &dap.DisassembleRequest{Request: *c.newRequest("disassemble")}
	request.Arguments.MemoryReference = memoryReference
	request.Arguments.InstructionOffset = instructionOffset
	request.Arguments.InstructionCount = count
	return c.send(request)
}

// SourceRequest sends a 'source' request.
func (c *Client) SourceRequest(sourceReference int) int {
	request := &dap.SourceRequest{Request: *c.newRequest("source")}
	request.Arguments.SourceReference = sourceReference
	return c.send(request)
}

// RestartRequest sends a 'restart' request, which the adapter does not
// support.
func (c *Client) RestartRequest() int {
	return c.send(&dap.RestartRequest{Request: *c.newRequest("restart")})
}

// UnknownRequest sends a request for a command go-dap has no type for.
func (c *Client) UnknownRequest() int {
	request := c.newRequest("unknown")
	return c.send(request)
}

// RunInTerminalResponse answers a 'runInTerminal' reverse request.
func (c *Client) RunInTerminalResponse(requestSeq int, success bool, message string) {
	response := &dap.RunInTerminalResponse{}
	response.Type = "response"
	response.Command = "runInTerminal"
	response.RequestSeq = requestSeq
	response.Success = success
	response.Message = message
	response.Seq = c.seq
	c.seq++
	c.send(response)
}

// KnownEvent sends an event. Clients do not send events, so the adapter
// ignores it.
func (c *Client) KnownEvent() {
	event := &dap.Event{}
	event.Type = "event"
	event.Seq = c.seq
	c.seq++
	event.Event = "terminated"
	c.send(event)
}

func (c *Client) newRequest(command string) *dap.Request {
	request := &dap.Request{}
	request.Type = "request"
	request.Command = command
	request.Seq = c.seq
	c.seq++
	return request
}
