package dap

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/derekparker/trie"
	"github.com/go-delve/sbdap/pkg/engine"
	"github.com/go-delve/sbdap/pkg/eval"
	"github.com/go-delve/sbdap/pkg/logflags"
	"github.com/go-delve/sbdap/pkg/sourcemap"
	"github.com/go-delve/sbdap/service"
	"github.com/google/go-dap"
	"github.com/tidwall/gjson"
)

// Session is a single debug session with one client.
//
// All session state is owned by the dispatcher goroutine running loop().
// Other goroutines (the connection reader, the engine event pump, the
// evaluation executor and the stdio forwarders) only communicate with it
// through channels.
type Session struct {
	// config is the server configuration shared by all sessions.
	config *service.Config
	// conn is the client connection.
	conn   io.ReadWriteCloser
	reader *frameReader
	writer *frameWriter
	log    logflags.Logger

	// seq is the sequence number of the last message sent to the client.
	seq   int
	state sessionState
	// done makes the loop exit after the current message.
	done       bool
	clientCaps clientCapabilities

	debugger engine.Debugger
	target   engine.Target
	process  engine.Process
	// launched is set when the session started the debuggee, which is
	// then killed rather than detached when the session ends.
	launched bool

	pump        *eventPump
	pumpOut     <-chan engine.Event
	exec        *executor
	inbound     chan inboundMessage
	completions chan completion
	output      chan *dap.OutputEvent
	stopChan    chan struct{}
	stopOnce    sync.Once
	readerDone  chan struct{}
	// readerStarted is set once readLoop runs; it closes readerDone.
	readerStarted bool

	handles     *handleRegistry
	breakpoints *breakpointMap
	pending     *pendingTable
	order       orderQueue
	// reverse maps the sequence number of requests sent to the client to
	// the function handling the client's response.
	reverse map[int]func(dap.Message)
	// afterResponse runs once the response of the current request is
	// written.
	afterResponse []func()

	settings   sessionSettings
	sources    *sourcemap.Resolver
	evaluators *eval.Set
	commands   *trie.Trie

	stopOnEntry     bool
	postRunCommands []string
	exitCommands    []string
	restart         json.RawMessage
	terminatedSent  bool
	exitedSent      bool
	lastStopThread  int
	threadCache     []dap.Thread
	seenSources     map[string]string
	term            *terminal
}

// clientCapabilities are the capabilities the client reported in its
// initialize request.
type clientCapabilities struct {
	linesStartAt1         bool
	columnsStartAt1       bool
	supportsRunInTerminal bool
	supportsVariableType  bool
}

// readerExitTimeout bounds the wait for the connection reader when the
// session ends.
const readerExitTimeout = time.Second

// inboundMessage is a decoded client message, or the error that ended or
// interrupted reading.
type inboundMessage struct {
	msg dap.Message
	raw []byte
	err error
}

// sessionCount numbers the sessions of this process in logs.
var sessionCount atomic.Int64

// NewSession returns a session serving conn. The session owns conn.
func NewSession(conn io.ReadWriteCloser, config *service.Config) *Session {
	s := &Session{
		config:      config,
		conn:        conn,
		reader:      newFrameReader(conn),
		writer:      newFrameWriter(conn),
		log:         logflags.DAPLogger().WithField("session", sessionCount.Add(1)),
		inbound:     make(chan inboundMessage),
		completions: make(chan completion),
		output:      make(chan *dap.OutputEvent, 64),
		stopChan:    make(chan struct{}),
		readerDone:  make(chan struct{}),
		handles:     newHandleRegistry(),
		breakpoints: newBreakpointMap(),
		pending:     newPendingTable(),
		reverse:     make(map[int]func(dap.Message)),
		settings:    defaultSettings,
		evaluators:  eval.NewSet(),
		seenSources: make(map[string]string),
		clientCaps:  clientCapabilities{linesStartAt1: true, columnsStartAt1: true},
	}
	s.exec = newExecutor(s.completions)
	if uc := config.UserConfig; uc != nil {
		if uc.EvaluateTimeout > 0 {
			s.settings.EvaluateTimeout = int(uc.EvaluateTimeout / time.Millisecond)
		}
		if uc.MaxChildren != nil {
			s.settings.MaxChildren = *uc.MaxChildren
		}
		if uc.ExpressionLanguage != "" {
			if lang, err := eval.ParseLanguage(uc.ExpressionLanguage); err == nil {
				s.settings.ExpressionLanguage = string(lang)
			} else {
				s.log.Warnf("ignoring configured expression language: %v", err)
			}
		}
		for _, r := range uc.SourceMap {
			s.settings.SourceMap = append(s.settings.SourceMap, sourcemap.Rule{From: r.From, To: r.To})
		}
		s.settings.SourcePath = append(s.settings.SourcePath, uc.SourcePath...)
	}
	s.sources = sourcemap.NewResolver(s.settings.SourceMap, "", s.settings.SourcePath)
	s.commands = newCommandTrie(s)
	return s
}

// Stop ends the session from another goroutine. ServeDAPCodec returns
// shortly after.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.conn.Close()
	})
}

// ServeDAPCodec serves the session until the client disconnects, the
// connection fails or Stop is called. The session cleans up after itself:
// a debuggee started by the session is killed, an attached one detached.
func (s *Session) ServeDAPCodec() {
	defer s.close()
	dbg, err := s.config.Engine.NewDebugger()
	if err != nil {
		s.log.Errorf("could not create debugger: %v", err)
		return
	}
	s.debugger = dbg
	s.pump = newEventPump(dbg.Listener())
	s.pumpOut = s.pump.out
	s.pump.start()
	s.preload()
	s.readerStarted = true
	go s.readLoop()
	s.loop()
}

// preload runs the configured engine commands and sources the preload
// files. Failures are logged; the session goes on.
func (s *Session) preload() {
	var cmds []string
	if uc := s.config.UserConfig; uc != nil {
		cmds = append(cmds, uc.Preload...)
	}
	for _, path := range s.config.Preload {
		cmds = append(cmds, "command source "+strconv.Quote(path))
	}
	for _, cmd := range cmds {
		res, err := s.debugger.HandleCommand(cmd)
		switch {
		case err != nil:
			s.log.Errorf("preload %q: %v", cmd, err)
		case !res.Succeeded:
			s.log.Errorf("preload %q: %s", cmd, strings.TrimSpace(res.Error))
		}
	}
}

// readLoop reads and decodes client messages until the connection fails.
func (s *Session) readLoop() {
	defer close(s.readerDone)
	defer close(s.inbound)
	for {
		frame, err := s.reader.readFrame()
		if err != nil {
			s.deliver(inboundMessage{err: err})
			return
		}
		if logflags.DAP() {
			s.log.Debug("[<- from client]", string(frame))
		}
		msg, err := decodeMessage(frame)
		if !s.deliver(inboundMessage{msg: msg, raw: frame, err: err}) {
			return
		}
	}
}

func (s *Session) deliver(in inboundMessage) bool {
	select {
	case s.inbound <- in:
		return true
	case <-s.stopChan:
		return false
	}
}

// loop is the dispatcher.
func (s *Session) loop() {
	for !s.done {
		select {
		case in, ok := <-s.inbound:
			if !ok {
				return
			}
			if in.err != nil {
				s.onReadError(in)
				continue
			}
			s.handleMessage(in.msg, in.raw)
		case ev, ok := <-s.pumpOut:
			if !ok {
				s.pumpOut = nil
				s.onPumpClosed()
				continue
			}
			s.onEngineEvent(ev)
		case c := <-s.completions:
			s.onCompletion(c)
		case ev := <-s.output:
			s.send(ev)
		case <-s.stopChan:
			return
		}
	}
}

func (s *Session) onReadError(in inboundMessage) {
	var perr *ProtocolError
	if errors.As(in.err, &perr) {
		if gjson.GetBytes(in.raw, "type").Str == "request" && perr.Command != "" {
			if p := s.pending.add(perr.Seq, perr.Command); p.inOrder {
				s.order.reserve(perr.Seq)
			}
			s.respond(perr.Seq, nil, userErr(ProtocolViolation, "invalid request", "%s", perr.Msg))
			return
		}
		s.log.Errorf("ignoring invalid message: %v", perr)
		return
	}
	if errors.Is(in.err, io.EOF) {
		s.log.Debug("client closed the connection")
	} else {
		select {
		case <-s.stopChan:
		default:
			s.log.Errorf("DAP error: %v", in.err)
		}
	}
	s.done = true
}

func (s *Session) onPumpClosed() {
	if s.pump.err != nil && !s.done {
		s.log.WithError(s.pump.err).Error("engine event listener failed")
		s.sendTerminated()
		s.state = stateTerminated
	}
}

func (s *Session) handleMessage(msg dap.Message, raw []byte) {
	switch msg := msg.(type) {
	case *dap.RunInTerminalResponse:
		s.onClientResponse(msg.RequestSeq, msg)
	case *dap.ErrorResponse:
		s.onClientResponse(msg.RequestSeq, msg)
	case *unknownResponse:
		s.onClientResponse(msg.RequestSeq, msg)
	default:
		typ := gjson.GetBytes(raw, "type").Str
		if typ != "request" {
			s.log.Debugf("ignoring client %s", typ)
			return
		}
		s.handleRequest(msg, raw)
	}
}

func (s *Session) onClientResponse(requestSeq int, msg dap.Message) {
	fn, ok := s.reverse[requestSeq]
	if !ok {
		s.log.Debugf("response to unknown request %d", requestSeq)
		return
	}
	delete(s.reverse, requestSeq)
	fn(msg)
}

// handleRequest registers request as pending and runs its handler. Fast
// handlers return the response; slow ones return neither a response nor
// an error and respond later through a completion.
func (s *Session) handleRequest(request dap.Message, raw []byte) {
	seq := request.GetSeq()
	command := gjson.GetBytes(raw, "command").Str
	if _, dup := s.pending.get(seq); dup {
		// The pending request keeps the sequence number; the duplicate is
		// answered at once, outside the response order.
		s.log.Errorf("rejecting request %d (%s): a request with this sequence number is pending", seq, command)
		s.send(newErrorResponse(seq, command, userErr(ProtocolViolation, "invalid request",
			"request sequence number %d is already in use by a pending request", seq)))
		return
	}
	p := s.pending.add(seq, command)
	if p.inOrder {
		s.order.reserve(seq)
	}

	defer func() {
		// In case a handler panics, we catch the panic and send an error response
		// back to the client.
		if ierr := recover(); ierr != nil {
			s.respond(seq, nil, internalErr(InternalError, "Internal Error", fmt.Errorf("%v", ierr)))
			s.runAfterResponse()
		}
	}()

	var resp dap.Message
	var err error
	switch {
	case !supportedCommands[command]:
		err = errUnsupported(command)
	case !s.state.accepts(command):
		err = s.rejectInState(request, command)
	default:
		resp, err = s.dispatch(request, raw)
	}
	if resp == nil && err == nil {
		return
	}
	s.respond(seq, resp, err)
	s.runAfterResponse()
}

// rejectInState is the error for a request the current state does not
// accept. A request naming a handle of an earlier stop reports the handle
// first: every handle goes stale when the debuggee resumes.
func (s *Session) rejectInState(request dap.Message, command string) error {
	if h, ok := handleArgument(request); ok {
		if _, err := s.handles.get(h); err != nil {
			return err
		}
	}
	return errInvalidState(command, s.state)
}

// handleArgument returns the handle a request refers to, if any.
func handleArgument(request dap.Message) (int, bool) {
	switch request := request.(type) {
	case *dap.ScopesRequest:
		return request.Arguments.FrameId, true
	case *dap.VariablesRequest:
		return request.Arguments.VariablesReference, true
	case *dap.SetVariableRequest:
		return request.Arguments.VariablesReference, true
	}
	return 0, false
}

func (s *Session) runAfterResponse() {
	fns := s.afterResponse
	s.afterResponse = nil
	for _, fn := range fns {
		fn()
	}
}

func (s *Session) dispatch(request dap.Message, raw []byte) (dap.Message, error) {
	switch request := request.(type) {
	case *dap.InitializeRequest:
		return s.onInitializeRequest(request, raw)
	case *dap.LaunchRequest:
		return s.onLaunchRequest(request)
	case *dap.AttachRequest:
		return s.onAttachRequest(request)
	case *dap.DisconnectRequest:
		return s.onDisconnectRequest(request, raw)
	case *dap.TerminateRequest:
		return s.onTerminateRequest(request)
	case *dap.SetBreakpointsRequest:
		return s.onSetBreakpointsRequest(request)
	case *dap.SetFunctionBreakpointsRequest:
		return s.onSetFunctionBreakpointsRequest(request)
	case *dap.SetExceptionBreakpointsRequest:
		return s.onSetExceptionBreakpointsRequest(request)
	case *dap.ConfigurationDoneRequest:
		return s.onConfigurationDoneRequest(request)
	case *dap.ContinueRequest:
		return s.onContinueRequest(request)
	case *dap.NextRequest:
		return s.onNextRequest(request)
	case *dap.StepInRequest:
		return s.onStepInRequest(request)
	case *dap.StepOutRequest:
		return s.onStepOutRequest(request)
	case *dap.PauseRequest:
		return s.onPauseRequest(request)
	case *dap.ThreadsRequest:
		return s.onThreadsRequest(request)
	case *dap.StackTraceRequest:
		return s.onStackTraceRequest(request)
	case *dap.ScopesRequest:
		return s.onScopesRequest(request)
	case *dap.VariablesRequest:
		return s.onVariablesRequest(request)
	case *dap.SetVariableRequest:
		return s.onSetVariableRequest(request)
	case *dap.SourceRequest:
		return s.onSourceRequest(request)
	case *dap.EvaluateRequest:
		return s.onEvaluateRequest(request)
	case *dap.CompletionsRequest:
		return s.onCompletionsRequest(request)
	case *dap.ModulesRequest:
		return s.onModulesRequest(request)
	case *dap.LoadedSourcesRequest:
		return s.onLoadedSourcesRequest(request)
	case *dap.ReadMemoryRequest:
		return s.onReadMemoryRequest(request)
	case *dap.DisassembleRequest:
		return s.onDisassembleRequest(request)
	case *dap.CancelRequest:
		return s.onCancelRequest(request, raw)
	}
	// This is a DAP message that go-dap has a struct for, so decoding
	// succeeded, but the session does not handle it.
	return nil, errUnsupported(gjson.GetBytes(raw, "command").Str)
}

// supportedCommands are the commands handled in at least one state.
var supportedCommands = func() map[string]bool {
	m := make(map[string]bool)
	for c := range anyStateCommands {
		m[c] = true
	}
	for _, cmds := range acceptedCommands {
		for c := range cmds {
			m[c] = true
		}
	}
	return m
}()

func errUnsupported(command string) *dapError {
	return &dapError{
		kind:    kindExpected,
		id:      UnsupportedCommand,
		summary: "Unsupported command",
		detail:  fmt.Sprintf("cannot process %q request", command),
	}
}

// respond answers the pending request seq with resp or, if err is set, a
// failure. Answers to requests that are no longer pending are dropped.
func (s *Session) respond(seq int, resp dap.Message, err error) {
	p, ok := s.pending.get(seq)
	if !ok {
		s.log.Debugf("dropping response to request %d: no longer pending", seq)
		return
	}
	s.pending.remove(seq)
	if err != nil {
		resp = s.failure(p, err)
	}
	s.emitResponse(p, resp)
}

func (s *Session) emitResponse(p *pendingRequest, resp dap.Message) {
	if !p.inOrder {
		s.send(resp)
		return
	}
	ready, _ := s.order.fill(p.seq, resp)
	for _, m := range ready {
		s.send(m)
	}
}

// failure converts err into the failed response of p, reporting it as
// its kind requires.
func (s *Session) failure(p *pendingRequest, err error) dap.Message {
	de := classify(UnableToCompleteRequest, fmt.Sprintf("Unable to complete %s request", p.command), err)
	switch de.kind {
	case kindInternal:
		s.log.Errorf("%s request %d failed: %v", p.command, p.seq, de)
	case kindUser:
		s.log.Debugf("%s request %d failed: %v", p.command, p.seq, de)
		if p.command != "evaluate" && p.command != "completions" {
			s.sendOutput("console", de.Error()+"\n")
		}
	case kindCancelled:
		s.log.Debugf("%s request %d cancelled", p.command, p.seq)
	}
	return newErrorResponse(p.seq, p.command, de)
}

func newErrorResponse(requestSeq int, command string, de *dapError) *errorResponse {
	er := &errorResponse{}
	er.Type = "response"
	er.Command = command
	er.RequestSeq = requestSeq
	er.Success = false
	er.Message = de.summary
	er.Body.Error = dap.ErrorMessage{
		Id:       de.id,
		Format:   de.Error(),
		ShowUser: de.kind == kindUser,
	}
	return er
}

// send writes message to the client and returns its sequence number.
func (s *Session) send(message dap.Message) int {
	s.seq++
	b, err := encodeMessage(message, s.seq)
	if err != nil {
		s.log.Errorf("could not encode %T: %v", message, err)
		return s.seq
	}
	if logflags.DAP() {
		s.log.Debug("[-> to client]", string(b))
	}
	if err := s.writer.writeFrame(b); err != nil {
		select {
		case <-s.stopChan:
		default:
			s.log.Debugf("could not write to client: %v", err)
		}
	}
	return s.seq
}

// sendRequest sends a reverse request; onResponse handles the client's
// answer.
func (s *Session) sendRequest(request dap.Message, onResponse func(dap.Message)) {
	seq := s.send(request)
	s.reverse[seq] = onResponse
}

func (s *Session) sendOutput(category, output string) {
	s.send(&dap.OutputEvent{
		Event: *newEvent("output"),
		Body:  dap.OutputEventBody{Category: category, Output: output},
	})
}

func (s *Session) sendTerminated() {
	if s.terminatedSent {
		return
	}
	s.terminatedSent = true
	ev := &dap.TerminatedEvent{Event: *newEvent("terminated")}
	if len(s.restart) > 0 {
		ev.Body.Restart = s.restart
	}
	s.send(ev)
}

// post delivers c to the dispatcher unless the session is over.
func (s *Session) post(c completion) {
	select {
	case s.completions <- c:
	case <-s.stopChan:
	}
}

func (s *Session) onCompletion(c completion) {
	if _, ok := s.pending.get(c.seq); !ok {
		s.log.Debugf("dropping completion of request %d: no longer pending", c.seq)
		return
	}
	resp, err := c.finish(c.result, c.err)
	if resp == nil && err == nil {
		return
	}
	s.respond(c.seq, resp, err)
	s.runAfterResponse()
}

// close releases everything the session owns. It runs on the dispatcher
// goroutine once the loop has exited.
func (s *Session) close() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.conn.Close()
	})
	for _, p := range s.pending.cancelAll() {
		s.log.Debugf("abandoning pending %s request %d", p.command, p.seq)
	}
	s.exec.stop()
	if s.process != nil && !s.process.State().IsGone() {
		s.endDebuggee(s.launched)
	}
	if s.term != nil {
		s.term.close()
	}
	if s.pump != nil {
		s.pump.stop()
	}
	if s.debugger != nil {
		s.debugger.Destroy()
	}
	if s.readerStarted {
		// Closing a terminal or pipe does not always interrupt a
		// pending read.
		select {
		case <-s.readerDone:
		case <-time.After(readerExitTimeout):
			s.log.Debug("client reader still blocked, abandoning it")
		}
	}
}

// endDebuggee kills or detaches the debuggee.
func (s *Session) endDebuggee(kill bool) {
	var err error
	if kill {
		err = s.process.Kill()
	} else {
		err = s.process.Detach()
	}
	if err != nil {
		s.log.Errorf("could not end the debuggee: %v", err)
	}
}

func newResponse(request dap.Request) *dap.Response {
	return &dap.Response{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "response",
		},
		Command:    request.Command,
		RequestSeq: request.Seq,
		Success:    true,
	}
}

func newEvent(event string) *dap.Event {
	return &dap.Event{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "event",
		},
		Event: event,
	}
}

func newRequest(command string) *dap.Request {
	return &dap.Request{
		ProtocolMessage: dap.ProtocolMessage{
			Seq:  0,
			Type: "request",
		},
		Command: command,
	}
}

func (s *Session) toClientLine(line int) int {
	if !s.clientCaps.linesStartAt1 {
		return line - 1
	}
	return line
}

func (s *Session) toEngineLine(line int) int {
	if !s.clientCaps.linesStartAt1 {
		return line + 1
	}
	return line
}

func (s *Session) toClientColumn(col int) int {
	if !s.clientCaps.columnsStartAt1 && col > 0 {
		return col - 1
	}
	return col
}

// clientPath maps an engine path for the client. It returns "" for
// sources hidden by the source map.
func (s *Session) clientPath(enginePath string) string {
	p, ok := s.sources.ToClient(enginePath)
	if !ok {
		return ""
	}
	return p
}

func (s *Session) clientSource(enginePath string) *dap.Source {
	p := s.clientPath(enginePath)
	if p == "" {
		return nil
	}
	s.seenSources[sourcemap.Normalize(p)] = p
	return &dap.Source{Name: baseName(p), Path: p}
}
