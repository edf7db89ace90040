package dap

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-delve/sbdap/pkg/config"
	"github.com/go-delve/sbdap/pkg/engine"
	"github.com/go-delve/sbdap/pkg/engine/enginetest"
	"github.com/go-delve/sbdap/pkg/logflags"
	"github.com/go-delve/sbdap/service"
	"github.com/go-delve/sbdap/service/dap/daptest"
	"github.com/google/go-dap"
	"github.com/stretchr/testify/require"
)

const stopOnEntry bool = true
const program = "/bin/prog"

func TestMain(m *testing.M) {
	var logOutput string
	flag.StringVar(&logOutput, "log-output", "", "configures log output")
	flag.Parse()
	logflags.Setup(logOutput != "", logOutput, "")
	os.Exit(m.Run())
}

// fixture gives tests access to the fake engine behind the server.
type fixture struct {
	engine *enginetest.Engine
	// started receives the expression of every evaluation of "block",
	// which then waits for release.
	started     chan string
	release     chan struct{}
	releaseOnce sync.Once
	// targetSetup, if set, runs after the default target setup.
	targetSetup func(tg *enginetest.Target)
}

func (f *fixture) unblock() {
	f.releaseOnce.Do(func() { close(f.release) })
}

// debugger returns the debugger of the most recent session.
func (f *fixture) debugger(t *testing.T) *enginetest.Debugger {
	t.Helper()
	require.Eventually(t, func() bool { return len(f.engine.Debuggers()) > 0 }, 5*time.Second, 10*time.Millisecond)
	ds := f.engine.Debuggers()
	return ds[len(ds)-1]
}

func (f *fixture) target(t *testing.T) *enginetest.Target {
	t.Helper()
	tg := f.debugger(t).Target()
	require.NotNil(t, tg, "no target")
	return tg
}

func (f *fixture) process(t *testing.T) *enginetest.Process {
	t.Helper()
	return f.target(t).Proc
}

// waitForCall waits until the engine logged call.
func (f *fixture) waitForCall(t *testing.T, call string) {
	t.Helper()
	d := f.debugger(t)
	require.Eventually(t, func() bool {
		for _, c := range d.Calls() {
			if c == call {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond, "no %q call in %v", call, d.Calls())
}

// setupDebugger installs the engine behavior shared by all tests.
func (f *fixture) setupDebugger(d *enginetest.Debugger) {
	d.CompletionList = []string{"breakpoint", "bt", "frame"}
	d.HandleCommandFunc = func(cmd string) engine.CommandResult {
		if cmd == "bad" {
			return engine.CommandResult{Error: "error: 'bad' is not a valid command.\n"}
		}
		return engine.CommandResult{Output: cmd + "\n", Succeeded: true}
	}
	d.TargetSetup = f.setupTarget
}

// setupTarget gives the debuggee two threads. The first is stopped in
// main at /src/main.c:10 with a few variables.
func (f *fixture) setupTarget(tg *enginetest.Target) {
	counter := enginetest.Var("counter", "int", "3")
	counter.ReadOnly = true
	top := &enginetest.Frame{
		Func: "main",
		Line: engine.LineEntry{File: "/src/main.c", Line: 10, Column: 1},
		Pc:   0x401000,
		Args: []*enginetest.Value{enginetest.Var("argc", "int", "1")},
		Locals: []*enginetest.Value{
			enginetest.Var("x", "int", "5"),
			enginetest.Var("y", "int", "0"),
			enginetest.Var("pt", "point", "",
				enginetest.Var("x", "int", "1"),
				enginetest.Var("y", "int", "2")),
			enginetest.Var("arr", "int[3]", "",
				enginetest.Var("[0]", "int", "10"),
				enginetest.Var("[1]", "int", "11"),
				enginetest.Var("[2]", "int", "12")),
			enginetest.Var("msg", "const char *", "0x1000").WithSummary(`"hello"`),
		},
		Statics: []*enginetest.Value{counter},
		Regs: []*enginetest.Value{
			enginetest.Var("General Purpose Registers", "", "",
				enginetest.Var("rip", "unsigned long", "0x401000")),
		},
	}
	top.EvalFunc = func(expr string) (engine.Value, error) {
		if expr == "block" {
			f.started <- expr
			<-f.release
			return enginetest.Var("block", "int", "1"), nil
		}
		for _, v := range top.Variables(true, true, true) {
			if v.Name() == expr {
				return v, nil
			}
		}
		return nil, engine.Errorf(engine.ErrSyntax, "Evaluate", "use of undeclared identifier '%s'", expr)
	}
	start := &enginetest.Frame{Func: "__libc_start_main", Pc: 0x7f0000001000}
	anon := &enginetest.Frame{Pc: 0x401234}
	worker := &enginetest.Frame{Func: "worker", Line: engine.LineEntry{File: "/src/worker.c", Line: 5}, Pc: 0x402000}
	tg.Proc.SetThreads(
		enginetest.NewThread(1, "main", top, start, anon),
		enginetest.NewThread(2, "", worker),
	)
	tg.Proc.Memory[0x401000] = []byte{0x55, 0x48, 0x89, 0xe5, 0xc3}
	tg.ModuleList = []engine.Module{
		{ID: "1", Name: "prog", Path: program},
		{ID: "2", Name: "libc.so.6", Path: "/lib/libc.so.6"},
	}
	if f.targetSetup != nil {
		f.targetSetup(tg)
	}
}

func runTest(t *testing.T, test func(c *daptest.Client, f *fixture)) {
	runTestWithConfig(t, nil, test)
}

// runTestWithConfig starts a server on the fake engine, lets configure
// adjust its configuration and runs test with a connected client.
func runTestWithConfig(t *testing.T, configure func(cfg *service.Config, f *fixture), test func(c *daptest.Client, f *fixture)) {
	f := &fixture{
		engine:  enginetest.New(),
		started: make(chan string, 4),
		release: make(chan struct{}),
	}
	f.engine.Setup = f.setupDebugger
	require.NoError(t, f.engine.Init())

	// Start the DAP server.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	disconnectChan := make(chan struct{})
	cfg := &service.Config{
		Listener:       listener,
		DisconnectChan: disconnectChan,
		Engine:         f.engine,
		UserConfig:     &config.Config{Aliases: map[string][]string{"config": {"cfg"}}},
		AgentCommand:   []string{"sbdap"},
	}
	if configure != nil {
		configure(cfg, f)
	}
	server := NewServer(cfg)
	server.Run()

	var stopOnce sync.Once
	// Run a goroutine that stops the server when disconnectChan is signaled.
	// This helps us test that certain events cause the server to stop as
	// expected.
	go func() {
		<-disconnectChan
		stopOnce.Do(func() { server.Stop() })
	}()

	client, err := daptest.NewClient(listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	defer func() {
		stopOnce.Do(func() { server.Stop() })
	}()
	// Blocked evaluations must end before the session can.
	defer f.unblock()

	test(client, f)
}

// startStopped launches the program and completes the configuration, with
// the debuggee stopped at its entry point.
func startStopped(t *testing.T, c *daptest.Client) {
	t.Helper()
	c.InitializeRequest()
	c.ExpectInitializeResponse(t)
	c.LaunchRequest(program, stopOnEntry)
	c.ExpectInitializedEvent(t)
	c.ExpectLaunchResponse(t)
	c.ConfigurationDoneRequest()
	se := c.ExpectStoppedEvent(t)
	require.Equal(t, "entry", se.Body.Reason)
	c.ExpectConfigurationDoneResponse(t)
}

// startRunning launches the program and lets it run.
func startRunning(t *testing.T, c *daptest.Client) {
	t.Helper()
	c.InitializeRequest()
	c.ExpectInitializeResponse(t)
	c.LaunchRequest(program, !stopOnEntry)
	c.ExpectInitializedEvent(t)
	c.ExpectLaunchResponse(t)
	c.ConfigurationDoneRequest()
	c.ExpectConfigurationDoneResponse(t)
}

// TestLaunchStopOnEntry emulates the message exchange of the most basic
// launch debug session with "stopOnEntry" enabled:
//
//	User selects "Start Debugging":  1 >> initialize
//	                              :  1 << initialize
//	                              :  2 >> launch
//	                              :    << initialized event
//	                              :  2 << launch
//	                              :  3 >> setBreakpoints (empty)
//	                              :  3 << setBreakpoints
//	                              :  4 >> setExceptionBreakpoints (empty)
//	                              :  4 << setExceptionBreakpoints
//	                              :  5 >> configurationDone
//	Program stops upon launching  :    << stopped event
//	                              :  5 << configurationDone
//	                              :  6 >> threads
//	                              :  6 << threads
//	                              :  7 >> stackTrace
//	                              :  7 << stackTrace
//	                              :  8 >> scopes
//	                              :  8 << scopes
//	                              :  9 >> variables
//	                              :  9 << variables
//	User evaluates bad expression : 10 >> evaluate
//	                              : 10 << error
//	User evaluates good expression: 11 >> evaluate
//	                              : 11 << evaluate
//	User selects "Continue"       : 12 >> continue
//	                              : 12 << continue
//	Program runs to completion    :    << exited event
//	                              :    << terminated event
//	                              : 13 >> disconnect
//	                              : 13 << disconnect
//
// This test exhaustively tests Seq and RequestSeq on all messages from the
// server. Other tests do not necessarily need to repeat all these checks.
func TestLaunchStopOnEntry(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		// 1 >> initialize, << initialize
		client.InitializeRequest()
		initResp := client.ExpectInitializeResponse(t)
		if initResp.Seq != 1 || initResp.RequestSeq != 1 {
			t.Errorf("\ngot %#v\nwant Seq=1, RequestSeq=1", initResp)
		}

		// 2 >> launch, << initialized, << launch
		client.LaunchRequest(program, stopOnEntry)
		initEvent := client.ExpectInitializedEvent(t)
		if initEvent.Seq != 2 {
			t.Errorf("\ngot %#v\nwant Seq=2", initEvent)
		}
		launchResp := client.ExpectLaunchResponse(t)
		if launchResp.Seq != 3 || launchResp.RequestSeq != 2 {
			t.Errorf("\ngot %#v\nwant Seq=3, RequestSeq=2", launchResp)
		}

		// 3 >> setBreakpoints, << setBreakpoints
		client.SetBreakpointsRequest("/src/main.c", nil)
		sbpResp := client.ExpectSetBreakpointsResponse(t)
		if sbpResp.Seq != 4 || sbpResp.RequestSeq != 3 || len(sbpResp.Body.Breakpoints) != 0 {
			t.Errorf("\ngot %#v\nwant Seq=4, RequestSeq=3, len(Breakpoints)=0", sbpResp)
		}

		// 4 >> setExceptionBreakpoints, << setExceptionBreakpoints
		client.SetExceptionBreakpointsRequest()
		sebpResp := client.ExpectSetExceptionBreakpointsResponse(t)
		if sebpResp.Seq != 5 || sebpResp.RequestSeq != 4 {
			t.Errorf("\ngot %#v\nwant Seq=5, RequestSeq=4", sebpResp)
		}

		// 5 >> configurationDone, << stopped, << configurationDone
		client.ConfigurationDoneRequest()
		stopEvent := client.ExpectStoppedEvent(t)
		if stopEvent.Seq != 6 ||
			stopEvent.Body.Reason != "entry" ||
			stopEvent.Body.ThreadId != 1 ||
			!stopEvent.Body.AllThreadsStopped {
			t.Errorf("\ngot %#v\nwant Seq=6, Body={Reason=\"entry\", ThreadId=1, AllThreadsStopped=true}", stopEvent)
		}
		cdResp := client.ExpectConfigurationDoneResponse(t)
		if cdResp.Seq != 7 || cdResp.RequestSeq != 5 {
			t.Errorf("\ngot %#v\nwant Seq=7, RequestSeq=5", cdResp)
		}

		// 6 >> threads, << threads
		client.ThreadsRequest()
		tResp := client.ExpectThreadsResponse(t)
		require.Equal(t, []dap.Thread{{Id: 1, Name: "main"}, {Id: 2, Name: "Thread #2"}}, tResp.Body.Threads)

		// 7 >> stackTrace, << stackTrace
		client.StackTraceRequest(1, 0, 20)
		stResp := client.ExpectStackTraceResponse(t)
		require.Equal(t, 7, stResp.RequestSeq)
		require.Equal(t, 3, stResp.Body.TotalFrames)
		require.Len(t, stResp.Body.StackFrames, 3)
		top := stResp.Body.StackFrames[0]
		require.Equal(t, "main", top.Name)
		require.Equal(t, 10, top.Line)
		require.Equal(t, 1, top.Column)
		require.Equal(t, "0x401000", top.InstructionPointerReference)
		require.NotNil(t, top.Source)
		require.Equal(t, "/src/main.c", top.Source.Path)
		require.Equal(t, "main.c", top.Source.Name)
		require.Equal(t, "__libc_start_main", stResp.Body.StackFrames[1].Name)
		require.Nil(t, stResp.Body.StackFrames[1].Source)
		require.Equal(t, "subtle", stResp.Body.StackFrames[1].PresentationHint)
		require.Equal(t, "0x401234", stResp.Body.StackFrames[2].Name)

		// 8 >> scopes, << scopes
		client.ScopesRequest(top.Id)
		scResp := client.ExpectScopesResponse(t)
		require.Len(t, scResp.Body.Scopes, 3)
		locals := scResp.Body.Scopes[0]
		require.Equal(t, "Locals", locals.Name)
		require.Equal(t, "Statics", scResp.Body.Scopes[1].Name)
		require.Equal(t, "Registers", scResp.Body.Scopes[2].Name)

		// 9 >> variables, << variables
		client.VariablesRequest(locals.VariablesReference)
		vResp := client.ExpectVariablesResponse(t)
		var names []string
		for _, v := range vResp.Body.Variables {
			names = append(names, v.Name)
		}
		require.Equal(t, []string{"argc", "x", "y", "pt", "arr", "msg"}, names)
		x := vResp.Body.Variables[1]
		require.Equal(t, "5", x.Value)
		require.Equal(t, "int", x.Type)
		require.Equal(t, "x", x.EvaluateName)
		require.Zero(t, x.VariablesReference)

		// 10 >> evaluate, << error
		client.EvaluateRequest("nosuch", top.Id, "watch")
		client.ExpectErrorResponseWith(t, UnableToEvaluateExpression, "Unable to evaluate expression: use of undeclared identifier 'nosuch'")

		// 11 >> evaluate, << evaluate
		client.EvaluateRequest("x", top.Id, "watch")
		evResp := client.ExpectEvaluateResponse(t)
		if evResp.RequestSeq != 11 || evResp.Body.Result != "5" || evResp.Body.Type != "int" {
			t.Errorf("\ngot %#v\nwant RequestSeq=11, Result=\"5\", Type=\"int\"", evResp)
		}

		// 12 >> continue, << continue
		client.ContinueRequest(1)
		contResp := client.ExpectContinueResponse(t)
		if contResp.RequestSeq != 12 || !contResp.Body.AllThreadsContinued {
			t.Errorf("\ngot %#v\nwant RequestSeq=12, Body.AllThreadsContinued=true", contResp)
		}
		f.waitForCall(t, "continue")

		// The program exits.
		f.process(t).Exit(0)
		exEvent := client.ExpectExitedEvent(t)
		require.Equal(t, 0, exEvent.Body.ExitCode)
		client.ExpectTerminatedEvent(t)

		// 13 >> disconnect, << disconnect
		client.DisconnectRequest()
		dResp := client.ExpectDisconnectResponse(t)
		require.Equal(t, 13, dResp.RequestSeq)
		require.NotContains(t, f.debugger(t).Calls(), "kill")
	})
}

func TestVariables(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		startStopped(t, client)
		client.StackTraceRequest(1, 0, 0)
		top := client.ExpectStackTraceResponse(t).Body.StackFrames[0]
		client.ScopesRequest(top.Id)
		scopes := client.ExpectScopesResponse(t).Body.Scopes

		client.VariablesRequest(scopes[0].VariablesReference)
		locals := client.ExpectVariablesResponse(t).Body.Variables
		pt, arr, msg := locals[3], locals[4], locals[5]
		require.Equal(t, "{...}", pt.Value)
		require.Equal(t, 2, pt.NamedVariables)
		require.NotZero(t, pt.VariablesReference)
		require.Equal(t, 3, arr.IndexedVariables)
		require.NotZero(t, arr.VariablesReference)
		require.Equal(t, `0x1000 "hello"`, msg.Value)

		// Struct members
		client.VariablesRequest(pt.VariablesReference)
		members := client.ExpectVariablesResponse(t).Body.Variables
		require.Len(t, members, 2)
		require.Equal(t, "y", members[1].Name)
		require.Equal(t, "2", members[1].Value)
		require.Equal(t, "pt.y", members[1].EvaluateName)

		// Array elements, paged
		client.IndexedVariablesRequest(arr.VariablesReference, 1, 1)
		elems := client.ExpectVariablesResponse(t).Body.Variables
		require.Len(t, elems, 1)
		require.Equal(t, "[1]", elems[0].Name)
		require.Equal(t, "11", elems[0].Value)
		require.Equal(t, "arr[1]", elems[0].EvaluateName)

		// Registers have no expression of their own.
		client.VariablesRequest(scopes[2].VariablesReference)
		sets := client.ExpectVariablesResponse(t).Body.Variables
		require.Len(t, sets, 1)
		require.Equal(t, "", sets[0].EvaluateName)
		client.VariablesRequest(sets[0].VariablesReference)
		regs := client.ExpectVariablesResponse(t).Body.Variables
		require.Equal(t, "rip", regs[0].Name)
		require.Equal(t, "0x401000", regs[0].Value)

		// Unknown handle
		client.VariablesRequest(9999)
		er := client.ExpectErrorResponse(t)
		require.Equal(t, InvalidHandle, er.Body.Error.Id)

		// setVariable
		client.SetVariableRequest(scopes[0].VariablesReference, "x", "7")
		svResp := client.ExpectSetVariableResponse(t)
		require.Equal(t, "7", svResp.Body.Value)
		client.EvaluateRequest("x", top.Id, "hover")
		require.Equal(t, "7", client.ExpectEvaluateResponse(t).Body.Result)

		client.SetVariableRequest(scopes[1].VariablesReference, "counter", "1")
		client.ExpectErrorResponseWith(t, UnableToSetVariable, "Unable to set variable: value of counter cannot be changed")
		client.SetVariableRequest(scopes[0].VariablesReference, "nosuch", "1")
		client.ExpectErrorResponseWith(t, UnableToSetVariable, `Unable to set variable: no variable named "nosuch"`)
	})
}

func TestEvaluateLanguages(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		startStopped(t, client)

		client.EvaluateRequest("/se pt.y", 0, "watch")
		require.Equal(t, "2", client.ExpectEvaluateResponse(t).Body.Result)

		client.EvaluateRequest("/py x + 1", 0, "watch")
		resp := client.ExpectEvaluateResponse(t)
		require.Equal(t, "6", resp.Body.Result)
		require.Equal(t, "int", resp.Body.Type)

		client.EvaluateRequest("/se arr", 0, "watch")
		resp = client.ExpectEvaluateResponse(t)
		require.Equal(t, 3, resp.Body.IndexedVariables)
		client.VariablesRequest(resp.Body.VariablesReference)
		elems := client.ExpectVariablesResponse(t).Body.Variables
		require.Equal(t, "arr[2]", elems[2].EvaluateName)

		client.EvaluateRequest("/se pt.z", 0, "watch")
		er := client.ExpectErrorResponse(t)
		require.Equal(t, UnableToEvaluateExpression, er.Body.Error.Id)
	})
}

func TestSetBreakpoints(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		startStopped(t, client)
		d := f.debugger(t)
		d.ClearCalls()

		client.SetBreakpointsRequest("/src/main.c", []int{10, 20})
		resp := client.ExpectSetBreakpointsResponse(t)
		require.Len(t, resp.Body.Breakpoints, 2)
		for i, bp := range resp.Body.Breakpoints {
			require.True(t, bp.Verified)
			require.Equal(t, i+1, bp.Id)
			require.Equal(t, "/src/main.c", bp.Source.Path)
		}
		require.Equal(t, []string{"bp-create /src/main.c:10 #1", "bp-create /src/main.c:20 #2"}, d.Calls())

		// Only the difference reaches the engine.
		d.ClearCalls()
		client.SetBreakpointsRequest("/src/main.c", []int{20, 30})
		resp = client.ExpectSetBreakpointsResponse(t)
		require.Equal(t, 2, resp.Body.Breakpoints[0].Id)
		require.Equal(t, 3, resp.Body.Breakpoints[1].Id)
		require.Equal(t, []string{"bp-delete /src/main.c:10 #1", "bp-create /src/main.c:30 #3"}, d.Calls())

		// Native conditions are handed to the engine.
		d.ClearCalls()
		client.SetBreakpointsRequestWithArgs("/src/main.c", []int{20, 30}, map[int]string{20: "i == 3"}, nil, nil)
		client.ExpectSetBreakpointsResponse(t)
		require.Equal(t, []string{`bp-condition #2 "i == 3"`}, d.Calls())

		// Duplicates and invalid options are reported per breakpoint.
		client.SetBreakpointsRequestWithArgs("/src/main.c", []int{20, 20, 40}, nil, map[int]string{40: "often"}, nil)
		resp = client.ExpectSetBreakpointsResponse(t)
		require.Len(t, resp.Body.Breakpoints, 3)
		require.True(t, resp.Body.Breakpoints[0].Verified)
		require.False(t, resp.Body.Breakpoints[1].Verified)
		require.Equal(t, "duplicate breakpoint", resp.Body.Breakpoints[1].Message)
		require.False(t, resp.Body.Breakpoints[2].Verified)
		require.Contains(t, resp.Body.Breakpoints[2].Message, "invalid hit condition")

		// Function breakpoints
		d.ClearCalls()
		client.SetFunctionBreakpointsRequest([]dap.FunctionBreakpoint{{Name: "main"}, {Name: "helper"}})
		fResp := client.ExpectSetFunctionBreakpointsResponse(t)
		require.Len(t, fResp.Body.Breakpoints, 2)
		require.True(t, fResp.Body.Breakpoints[0].Verified)
		require.Equal(t, []string{"bp-create-fn main #4", "bp-create-fn helper #5"}, d.Calls())

		d.ClearCalls()
		client.SetFunctionBreakpointsRequest([]dap.FunctionBreakpoint{{Name: "helper"}})
		client.ExpectSetFunctionBreakpointsResponse(t)
		require.Equal(t, []string{"bp-delete-fn main #4"}, d.Calls())

		// Clearing a file removes its engine breakpoints.
		d.ClearCalls()
		client.SetBreakpointsRequest("/src/main.c", nil)
		client.ExpectSetBreakpointsResponse(t)
		require.Equal(t, []string{"bp-delete /src/main.c:20 #2"}, d.Calls())
		require.Len(t, f.target(t).Breakpoints(), 1)
	})
}

func TestBreakpointsBeforeLaunch(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		client.InitializeRequest()
		client.ExpectInitializeResponse(t)

		client.SetBreakpointsRequest("/src/main.c", []int{10})
		resp := client.ExpectSetBreakpointsResponse(t)
		require.Len(t, resp.Body.Breakpoints, 1)
		require.False(t, resp.Body.Breakpoints[0].Verified)

		// The breakpoint is created with the target and reported verified.
		client.LaunchRequest(program, stopOnEntry)
		bpEvent := client.ExpectBreakpointEvent(t)
		require.Equal(t, "changed", bpEvent.Body.Reason)
		require.True(t, bpEvent.Body.Breakpoint.Verified)
		require.Equal(t, 1, bpEvent.Body.Breakpoint.Id)
		require.Equal(t, 10, bpEvent.Body.Breakpoint.Line)
		client.ExpectInitializedEvent(t)
		client.ExpectLaunchResponse(t)
		require.Contains(t, f.debugger(t).Calls(), "bp-create /src/main.c:10 #1")
	})
}

func TestUnresolvedBreakpoint(t *testing.T) {
	configure := func(cfg *service.Config, f *fixture) {
		f.targetSetup = func(tg *enginetest.Target) {
			tg.Unresolved = map[string]bool{"/lib/late.c": true}
		}
	}
	runTestWithConfig(t, configure, func(client *daptest.Client, f *fixture) {
		startStopped(t, client)
		client.SetBreakpointsRequest("/lib/late.c", []int{3})
		bp := client.ExpectSetBreakpointsResponse(t).Body.Breakpoints[0]
		require.False(t, bp.Verified)
		require.Equal(t, 1, bp.Id)
		require.Equal(t, "no code at this location yet", bp.Message)
	})
}

func TestBreakpointHits(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		client.InitializeRequest()
		client.ExpectInitializeResponse(t)
		client.LaunchRequest(program, !stopOnEntry)
		client.ExpectInitializedEvent(t)
		client.ExpectLaunchResponse(t)
		client.SetBreakpointsRequest("/src/main.c", []int{10})
		client.ExpectSetBreakpointsResponse(t)
		client.ConfigurationDoneRequest()
		client.ExpectConfigurationDoneResponse(t)
		f.waitForCall(t, "continue")
		proc := f.process(t)

		proc.StopAt(engine.StopBreakpoint, 1)
		se := client.ExpectStoppedEvent(t)
		require.Equal(t, "breakpoint", se.Body.Reason)
		require.Equal(t, 1, se.Body.ThreadId)
		require.Equal(t, []int{1}, se.Body.HitBreakpointIds)

		// A stop at a breakpoint set by an engine command is reported
		// without ids.
		client.ContinueRequest(1)
		client.ExpectContinueResponse(t)
		proc.StopAt(engine.StopBreakpoint, 42)
		se = client.ExpectStoppedEvent(t)
		require.Equal(t, "breakpoint", se.Body.Reason)
		require.Empty(t, se.Body.HitBreakpointIds)

		// Signals
		client.ContinueRequest(1)
		client.ExpectContinueResponse(t)
		proc.StopAt(engine.StopSignal)
		se = client.ExpectStoppedEvent(t)
		require.Equal(t, "signal", se.Body.Reason)
	})
}

func TestHitCondition(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		startStopped(t, client)
		client.SetBreakpointsRequestWithArgs("/src/main.c", []int{10}, nil, map[int]string{10: "2"}, nil)
		client.ExpectSetBreakpointsResponse(t)
		client.ContinueRequest(1)
		client.ExpectContinueResponse(t)
		d := f.debugger(t)
		proc := f.process(t)

		// The first hit does not satisfy the condition.
		d.ClearCalls()
		proc.StopAt(engine.StopBreakpoint, 1)
		f.waitForCall(t, "continue")

		proc.StopAt(engine.StopBreakpoint, 1)
		se := client.ExpectStoppedEvent(t)
		require.Equal(t, []int{1}, se.Body.HitBreakpointIds)
	})
}

func TestLogpoint(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		startStopped(t, client)
		client.SetBreakpointsRequestWithArgs("/src/main.c", []int{10}, nil, nil, map[int]string{10: "x is {x}, pt.y is {/se pt.y}"})
		client.ExpectSetBreakpointsResponse(t)
		client.ContinueRequest(1)
		client.ExpectContinueResponse(t)
		d := f.debugger(t)
		d.ClearCalls()

		f.process(t).StopAt(engine.StopBreakpoint, 1)
		oe := client.ExpectOutputEvent(t)
		require.Equal(t, "console", oe.Body.Category)
		require.Equal(t, "x is 5, pt.y is 2\n", oe.Body.Output)
		f.waitForCall(t, "continue")
	})
}

func TestConditionInOtherLanguage(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		startStopped(t, client)
		d := f.debugger(t)
		d.ClearCalls()
		client.SetBreakpointsRequestWithArgs("/src/main.c", []int{10}, map[int]string{10: "/se y"}, nil, nil)
		client.ExpectSetBreakpointsResponse(t)
		// The engine does not see the condition.
		require.Equal(t, []string{"bp-create /src/main.c:10 #1"}, d.Calls())
		client.ContinueRequest(1)
		client.ExpectContinueResponse(t)
		proc := f.process(t)

		// y is 0
		d.ClearCalls()
		proc.StopAt(engine.StopBreakpoint, 1)
		f.waitForCall(t, "continue")

		client.SetBreakpointsRequestWithArgs("/src/main.c", []int{10}, map[int]string{10: "/py x == 5"}, nil, nil)
		client.ExpectSetBreakpointsResponse(t)
		proc.StopAt(engine.StopBreakpoint, 1)
		se := client.ExpectStoppedEvent(t)
		require.Equal(t, []int{1}, se.Body.HitBreakpointIds)
	})
}

func TestCancelEvaluate(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		startStopped(t, client)

		seq := client.EvaluateRequest("block", 0, "watch")
		select {
		case <-f.started:
		case <-time.After(5 * time.Second):
			t.Fatal("evaluation did not start")
		}
		client.CancelRequest(seq)
		er := client.ExpectErrorResponse(t)
		require.Equal(t, seq, er.RequestSeq)
		require.Equal(t, "cancelled", er.Message)
		require.Equal(t, RequestCancelled, er.Body.Error.Id)
		client.ExpectCancelResponse(t)

		// The late result is dropped and the session goes on.
		f.unblock()
		client.EvaluateRequest("x", 0, "watch")
		resp := client.ExpectEvaluateResponse(t)
		require.Equal(t, "5", resp.Body.Result)

		// Cancelling an answered request is a no-op.
		client.CancelRequest(seq)
		client.ExpectCancelResponse(t)
	})
}

func TestDuplicateSequenceNumber(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		startStopped(t, client)

		seq := client.EvaluateRequest("block", 0, "watch")
		select {
		case <-f.started:
		case <-time.After(5 * time.Second):
			t.Fatal("evaluation did not start")
		}
		client.SendRaw(fmt.Sprintf(`{"seq":%d,"type":"request","command":"threads"}`, seq))
		er := client.ExpectErrorResponseWith(t, ProtocolViolation,
			fmt.Sprintf("invalid request: request sequence number %d is already in use by a pending request", seq))
		require.Equal(t, seq, er.RequestSeq)
		require.Equal(t, "threads", er.Command)

		// The pending request is still answered, once.
		f.unblock()
		resp := client.ExpectEvaluateResponse(t)
		require.Equal(t, seq, resp.RequestSeq)
	})
}

func TestEvaluateTimeout(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		client.InitializeRequest()
		client.ExpectInitializeResponse(t)
		client.LaunchRequestWithArgs(map[string]interface{}{
			"program":         program,
			"stopOnEntry":     true,
			"stdio":           []interface{}{nil, nil, nil},
			"evaluateTimeout": 50,
		})
		client.ExpectInitializedEvent(t)
		client.ExpectLaunchResponse(t)
		client.ConfigurationDoneRequest()
		client.ExpectStoppedEvent(t)
		client.ExpectConfigurationDoneResponse(t)

		// The native evaluator only notices the deadline once the engine
		// returns.
		client.EvaluateRequest("block", 0, "watch")
		<-f.started
		time.Sleep(100 * time.Millisecond)
		f.unblock()
		client.ExpectErrorResponseWith(t, UnableToCompleteRequest, "evaluation timed out")
	})
}

func TestOutOfOrderResponses(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		startStopped(t, client)

		evalSeq := client.EvaluateRequest("block", 0, "watch")
		<-f.started
		threadsSeq := client.ThreadsRequest()
		tResp := client.ExpectThreadsResponse(t)
		require.Equal(t, threadsSeq, tResp.RequestSeq)

		f.unblock()
		evResp := client.ExpectEvaluateResponse(t)
		require.Equal(t, evalSeq, evResp.RequestSeq)
		require.Equal(t, "1", evResp.Body.Result)
	})
}

func TestRunInTerminalKeepsOrder(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		client.InitializeRequest()
		client.ExpectInitializeResponse(t)

		launchSeq := client.LaunchRequestWithArgs(map[string]interface{}{
			"program":  program,
			"terminal": "integrated",
		})
		rit := client.ExpectRunInTerminalRequest(t)
		args := rit.Arguments.Args
		require.Equal(t, "integrated", rit.Arguments.Kind)
		require.Equal(t, "prog", rit.Arguments.Title)
		require.GreaterOrEqual(t, len(args), 4)
		require.Equal(t, []string{"sbdap", "terminal-agent", "--connect"}, args[:3])
		port, err := strconv.Atoi(args[3])
		require.NoError(t, err)

		// setBreakpoints waits for the launch; threads does not.
		bpSeq := client.SetBreakpointsRequest("/src/main.c", []int{10})
		threadsSeq := client.ThreadsRequest()
		require.Equal(t, threadsSeq, client.ExpectThreadsResponse(t).RequestSeq)

		client.RunInTerminalResponse(rit.Seq, true, "")
		agent, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		require.NoError(t, err)
		defer agent.Close()
		_, err = io.WriteString(agent, "/dev/pts/7\n")
		require.NoError(t, err)

		client.ExpectInitializedEvent(t)
		require.Equal(t, launchSeq, client.ExpectLaunchResponse(t).RequestSeq)
		require.Equal(t, bpSeq, client.ExpectSetBreakpointsResponse(t).RequestSeq)
		info := f.target(t).LaunchInfo
		require.Equal(t, [3]string{"/dev/pts/7", "/dev/pts/7", "/dev/pts/7"}, info.Stdio)
	})
}

func TestRunInTerminalFailure(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		client.InitializeRequest()
		client.ExpectInitializeResponse(t)
		client.LaunchRequestWithArgs(map[string]interface{}{
			"program":  program,
			"terminal": "external",
			"stdio":    []interface{}{nil, nil},
		})
		rit := client.ExpectRunInTerminalRequest(t)
		require.Equal(t, "external", rit.Arguments.Kind)
		client.RunInTerminalResponse(rit.Seq, false, "no terminal")
		er := client.ExpectErrorResponse(t)
		require.Equal(t, FailedToLaunch, er.Body.Error.Id)
		require.Contains(t, er.Body.Error.Format, "the terminal agent did not connect")
	})
}

func TestReplCommands(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		startStopped(t, client)

		client.EvaluateRequest("help", 0, "repl")
		got := client.ExpectEvaluateResponse(t).Body.Result
		require.True(t, strings.HasPrefix(got, "The following commands are available:"), got)
		require.Contains(t, got, "help (alias: h)")

		client.EvaluateRequest("help load-image", 0, "repl")
		require.Equal(t, msgLoadImage, client.ExpectEvaluateResponse(t).Body.Result)

		// Other lines go to the engine.
		client.EvaluateRequest("frame info", 0, "repl")
		require.Equal(t, "frame info", client.ExpectEvaluateResponse(t).Body.Result)
		require.Contains(t, f.debugger(t).Commands(), "frame info")

		client.EvaluateRequest("bad", 0, "repl")
		client.ExpectErrorResponseWith(t, UnableToRunCommand, "Unable to run command: error: 'bad' is not a valid command.")

		// Expressions
		client.EvaluateRequest("?x", 0, "repl")
		require.Equal(t, "5", client.ExpectEvaluateResponse(t).Body.Result)

		// Configuration
		client.EvaluateRequest("config maxChildren 5", 0, "repl")
		inv := client.ExpectInvalidatedEvent(t)
		require.Equal(t, []dap.InvalidatedAreas{"variables"}, inv.Body.Areas)
		got = client.ExpectEvaluateResponse(t).Body.Result
		require.True(t, strings.HasSuffix(got, "Updated"), got)

		client.EvaluateRequest("cfg -list maxChildren", 0, "repl")
		require.Equal(t, "maxChildren\t5", client.ExpectEvaluateResponse(t).Body.Result)

		client.EvaluateRequest("config sourceMap /src /home/me/src", 0, "repl")
		inv = client.ExpectInvalidatedEvent(t)
		require.Equal(t, []dap.InvalidatedAreas{"stacks"}, inv.Body.Areas)
		client.ExpectEvaluateResponse(t)
		client.StackTraceRequest(1, 0, 1)
		require.Equal(t, "/home/me/src/main.c", client.ExpectStackTraceResponse(t).Body.StackFrames[0].Source.Path)

		client.EvaluateRequest("config noSuchOption 1", 0, "repl")
		require.Equal(t, UnableToRunCommand, client.ExpectErrorResponse(t).Body.Error.Id)

		// Images
		client.EvaluateRequest("load-image /lib/libfoo.so", 0, "repl")
		require.Equal(t, "Loaded /lib/libfoo.so as image 1", client.ExpectEvaluateResponse(t).Body.Result)
		require.Contains(t, f.debugger(t).Calls(), "load-image /lib/libfoo.so")
	})
}

func TestCompletions(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		startStopped(t, client)

		labels := func(items []dap.CompletionItem) []string {
			var r []string
			for _, it := range items {
				r = append(r, it.Label)
			}
			return r
		}

		client.CompletionsRequest("b", 2, 0)
		items := client.ExpectCompletionsResponse(t).Body.Targets
		require.Equal(t, []string{"breakpoint", "bt"}, labels(items))
		require.Equal(t, 1, items[0].Start)
		require.Equal(t, 1, items[0].Length)

		client.CompletionsRequest("he", 3, 0)
		require.Equal(t, []string{"help"}, labels(client.ExpectCompletionsResponse(t).Body.Targets))

		client.CompletionsRequest("cf", 3, 0)
		require.Equal(t, []string{"cfg"}, labels(client.ExpectCompletionsResponse(t).Body.Targets))

		client.CompletionsRequest("?ar", 4, 0)
		items = client.ExpectCompletionsResponse(t).Body.Targets
		require.Equal(t, []string{"argc", "arr"}, labels(items))
		require.Equal(t, 2, items[0].Start)
		require.Equal(t, 2, items[0].Length)

		client.CompletionsRequest("zz", 3, 0)
		require.Empty(t, client.ExpectCompletionsResponse(t).Body.Targets)
	})
}

func TestReadMemory(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		startStopped(t, client)

		client.ReadMemoryRequest("0x401000", 0, 4)
		resp := client.ExpectReadMemoryResponse(t)
		require.Equal(t, "0x401000", resp.Body.Address)
		require.Equal(t, "VUiJ5Q==", resp.Body.Data)
		require.Zero(t, resp.Body.UnreadableBytes)

		// Partially readable
		client.ReadMemoryRequest("0x401000", 2, 10)
		resp = client.ExpectReadMemoryResponse(t)
		require.Equal(t, "0x401002", resp.Body.Address)
		require.Equal(t, 7, resp.Body.UnreadableBytes)

		// Unmapped
		client.ReadMemoryRequest("0x500000", 0, 4)
		resp = client.ExpectReadMemoryResponse(t)
		require.Empty(t, resp.Body.Data)
		require.Equal(t, 4, resp.Body.UnreadableBytes)

		client.ReadMemoryRequest("main", 0, 4)
		require.Equal(t, InvalidHandle, client.ExpectErrorResponse(t).Body.Error.Id)
	})
}

func TestDisassemble(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		startStopped(t, client)

		client.DisassembleRequest("0x401000", 0, 5)
		insts := client.ExpectDisassembleResponse(t).Body.Instructions
		require.Len(t, insts, 5)
		require.Equal(t, "0x401000", insts[0].Address)
		require.Equal(t, "55", insts[0].InstructionBytes)
		require.Contains(t, insts[0].Instruction, "push")
		require.Equal(t, "0x401001", insts[1].Address)
		require.Equal(t, "48 89 e5", insts[1].InstructionBytes)
		require.Contains(t, insts[2].Instruction, "ret")
		require.Equal(t, "??", insts[3].Instruction)
		require.Equal(t, "0x401005", insts[3].Address)
		require.Equal(t, "0x401006", insts[4].Address)

		// Instructions before unreadable memory are padded.
		client.DisassembleRequest("0x401000", -2, 4)
		insts = client.ExpectDisassembleResponse(t).Body.Instructions
		require.Len(t, insts, 4)
		require.Equal(t, "??", insts[0].Instruction)
		require.Equal(t, "0x400ffe", insts[0].Address)
		require.Equal(t, "0x400fff", insts[1].Address)
		require.Equal(t, "0x401000", insts[2].Address)
		require.Equal(t, "0x401001", insts[3].Address)
	})
}

func TestStepping(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		startStopped(t, client)
		d := f.debugger(t)

		client.NextRequest(1)
		client.ExpectNextResponse(t)
		se := client.ExpectStoppedEvent(t)
		require.Equal(t, "step", se.Body.Reason)
		require.Equal(t, 1, se.Body.ThreadId)

		client.StepInRequest(1)
		client.ExpectStepInResponse(t)
		require.Equal(t, "step", client.ExpectStoppedEvent(t).Body.Reason)

		client.StepOutRequest(2)
		client.ExpectStepOutResponse(t)
		client.ExpectStoppedEvent(t)
		calls := d.Calls()
		require.Contains(t, calls, "step-over 1")
		require.Contains(t, calls, "step-into 1")
		require.Contains(t, calls, "step-out 2")

		client.NextRequest(99)
		client.ExpectErrorResponseWith(t, UnableToCompleteRequest, "Unable to step over: unknown thread 99")
	})
}

func TestPauseAndThreadsWhileRunning(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		startRunning(t, client)
		f.waitForCall(t, "continue")

		// No thread list was taken yet.
		client.ThreadsRequest()
		require.Equal(t, []dap.Thread{{Id: 1, Name: "Dummy"}}, client.ExpectThreadsResponse(t).Body.Threads)

		client.StackTraceRequest(1, 0, 0)
		client.ExpectErrorResponseWith(t, InvalidState, "request stackTrace is not allowed while the session is Running")

		client.PauseRequest(1)
		client.ExpectPauseResponse(t)
		se := client.ExpectStoppedEvent(t)
		require.Equal(t, "pause", se.Body.Reason)

		client.ThreadsRequest()
		threads := client.ExpectThreadsResponse(t).Body.Threads
		require.Len(t, threads, 2)

		// The last list is served while running.
		client.ContinueRequest(1)
		client.ExpectContinueResponse(t)
		client.ThreadsRequest()
		require.Equal(t, threads, client.ExpectThreadsResponse(t).Body.Threads)
	})
}

func TestStaleHandles(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		startStopped(t, client)
		client.StackTraceRequest(1, 0, 0)
		frameID := client.ExpectStackTraceResponse(t).Body.StackFrames[0].Id
		client.ScopesRequest(frameID)
		localsRef := client.ExpectScopesResponse(t).Body.Scopes[0].VariablesReference

		// The debuggee is resumed behind the session's back.
		proc := f.process(t)
		require.NoError(t, proc.Continue())
		ce := client.ExpectContinuedEvent(t)
		require.Equal(t, 1, ce.Body.ThreadId)
		require.True(t, ce.Body.AllThreadsContinued)
		proc.StopAt(engine.StopNone)
		require.Equal(t, "pause", client.ExpectStoppedEvent(t).Body.Reason)

		client.VariablesRequest(localsRef)
		er := client.ExpectErrorResponseWith(t, InvalidHandle, "stale handle")
		require.Equal(t, "stale handle", er.Message)
		client.ScopesRequest(frameID)
		client.ExpectErrorResponseWith(t, InvalidHandle, "stale handle")
		client.EvaluateRequest("x", frameID, "watch")
		client.ExpectErrorResponseWith(t, InvalidHandle, "stale handle")
	})
}

func TestStaleHandlesWhileRunning(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		startStopped(t, client)
		client.StackTraceRequest(1, 0, 0)
		frameID := client.ExpectStackTraceResponse(t).Body.StackFrames[0].Id
		client.ScopesRequest(frameID)
		localsRef := client.ExpectScopesResponse(t).Body.Scopes[0].VariablesReference

		require.NoError(t, f.process(t).Continue())
		client.ExpectContinuedEvent(t)

		// The session is running: the handles are reported stale rather
		// than the requests being refused for the state.
		client.VariablesRequest(localsRef)
		er := client.ExpectErrorResponseWith(t, InvalidHandle, "stale handle")
		require.Equal(t, "stale handle", er.Message)
		client.ScopesRequest(frameID)
		client.ExpectErrorResponseWith(t, InvalidHandle, "stale handle")
		client.SetVariableRequest(localsRef, "x", "6")
		client.ExpectErrorResponseWith(t, InvalidHandle, "stale handle")

		// Requests without a handle still get the state error.
		client.StackTraceRequest(1, 0, 0)
		client.ExpectErrorResponseWith(t, InvalidState, "request stackTrace is not allowed while the session is Running")
	})
}

func TestEngineEvents(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		startStopped(t, client)
		d := f.debugger(t)

		d.Post(engine.Event{Kind: engine.EventStdout, Output: "hi\n"})
		oe := client.ExpectOutputEvent(t)
		require.Equal(t, "stdout", oe.Body.Category)
		require.Equal(t, "hi\n", oe.Body.Output)

		d.Post(engine.Event{Kind: engine.EventStderr, Output: "oops\n"})
		require.Equal(t, "stderr", client.ExpectOutputEvent(t).Body.Category)

		mod := engine.Module{ID: "3", Name: "libfoo.so", Path: "/lib/libfoo.so"}
		d.Post(engine.Event{Kind: engine.EventModulesLoaded, Modules: []engine.Module{mod}})
		me := client.ExpectModuleEvent(t)
		require.Equal(t, "new", me.Body.Reason)
		require.Equal(t, "libfoo.so", me.Body.Module.Name)

		d.Post(engine.Event{Kind: engine.EventModulesUnloaded, Modules: []engine.Module{mod}})
		require.Equal(t, "removed", client.ExpectModuleEvent(t).Body.Reason)

		client.ModulesRequest()
		mResp := client.ExpectModulesResponse(t)
		require.Equal(t, 2, mResp.Body.TotalModules)
		require.Equal(t, "prog", mResp.Body.Modules[0].Name)

		// A stop reported while running is crashing.
		client.ContinueRequest(1)
		client.ExpectContinueResponse(t)
		d.Post(engine.Event{Kind: engine.EventStateChanged, State: engine.StateCrashed})
		require.Equal(t, "exception", client.ExpectStoppedEvent(t).Body.Reason)

		client.LoadedSourcesRequest()
		sources := client.ExpectLoadedSourcesResponse(t).Body.Sources
		require.Empty(t, sources)
		client.StackTraceRequest(1, 0, 1)
		client.ExpectStackTraceResponse(t)
		client.LoadedSourcesRequest()
		sources = client.ExpectLoadedSourcesResponse(t).Body.Sources
		require.Len(t, sources, 1)
		require.Equal(t, "/src/main.c", sources[0].Path)
	})
}

func TestEngineListenerFailure(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		startStopped(t, client)
		f.debugger(t).CloseEvents()
		client.ExpectTerminatedEvent(t)
	})
}

func TestTerminate(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		startRunning(t, client)
		client.TerminateRequest()
		client.ExpectTerminateResponse(t)
		ee := client.ExpectExitedEvent(t)
		require.Equal(t, 9, ee.Body.ExitCode)
		client.ExpectTerminatedEvent(t)
		require.Contains(t, f.debugger(t).Calls(), "kill")

		client.DisconnectRequest()
		client.ExpectDisconnectResponse(t)
	})
}

func TestDisconnectKillsLaunchedDebuggee(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		startStopped(t, client)
		client.DisconnectRequest()
		client.ExpectDisconnectResponse(t)
		client.ExpectTerminatedEvent(t)
		require.Contains(t, f.debugger(t).Calls(), "kill")
		require.NotContains(t, f.debugger(t).Calls(), "detach")
	})
}

func TestDisconnectDetachesAttachedDebuggee(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		client.InitializeRequest()
		client.ExpectInitializeResponse(t)
		client.AttachRequest(map[string]interface{}{"pid": 123})
		client.ExpectInitializedEvent(t)
		client.ExpectAttachResponse(t)
		client.ConfigurationDoneRequest()
		client.ExpectConfigurationDoneResponse(t)
		f.waitForCall(t, "continue")

		client.DisconnectRequest()
		client.ExpectDisconnectResponse(t)
		client.ExpectTerminatedEvent(t)
		calls := f.debugger(t).Calls()
		require.Contains(t, calls, "attach 123")
		require.Contains(t, calls, "detach")
		require.NotContains(t, calls, "kill")
	})
}

func TestDisconnectTerminatesAttachedDebuggee(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		client.InitializeRequest()
		client.ExpectInitializeResponse(t)
		client.AttachRequest(map[string]interface{}{"program": "server", "waitFor": true})
		client.ExpectInitializedEvent(t)
		client.ExpectAttachResponse(t)
		client.DisconnectRequestWithTerminate(true)
		client.ExpectDisconnectResponse(t)
		calls := f.debugger(t).Calls()
		require.Contains(t, calls, "attach-name server true")
		require.Contains(t, calls, "kill")
	})
}

func TestLaunchErrors(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		client.InitializeRequest()
		client.ExpectInitializeResponse(t)

		client.LaunchRequestWithArgs(map[string]interface{}{})
		client.ExpectErrorResponseWith(t, FailedToLaunch, "Failed to launch: The program attribute is missing in debug configuration.")

		client.LaunchRequestWithArgs(map[string]interface{}{"program": program, "terminal": "tty"})
		client.ExpectErrorResponseWith(t, FailedToLaunch, `Failed to launch: invalid debug configuration - unsupported 'terminal' attribute "tty"`)

		client.LaunchRequestWithArgs(map[string]interface{}{"program": program, "args": 3})
		require.Equal(t, FailedToLaunch, client.ExpectErrorResponse(t).Body.Error.Id)

		client.AttachRequest(map[string]interface{}{})
		client.ExpectErrorResponseWith(t, FailedToAttach, "Failed to attach: The 'pid' or 'program' attribute is missing in debug configuration.")
	})
}

func TestLaunchEngineError(t *testing.T) {
	configure := func(cfg *service.Config, f *fixture) {
		f.targetSetup = func(tg *enginetest.Target) {
			tg.LaunchErr = engine.Errorf(engine.ErrInvalidArgument, "Launch", "'/bin/prog' does not exist")
		}
	}
	runTestWithConfig(t, configure, func(client *daptest.Client, f *fixture) {
		client.InitializeRequest()
		client.ExpectInitializeResponse(t)
		client.LaunchRequest(program, stopOnEntry)
		// User errors are echoed to the debug console.
		oe := client.ExpectOutputEvent(t)
		require.Equal(t, "console", oe.Body.Category)
		client.ExpectErrorResponseWith(t, FailedToLaunch, "Failed to launch: '/bin/prog' does not exist")
	})
}

func TestLaunchCommands(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		client.InitializeRequest()
		client.ExpectInitializeResponse(t)
		client.LaunchRequestWithArgs(map[string]interface{}{
			"program":         "prog",
			"cwd":             "/work",
			"args":            "one 'two three'",
			"env":             map[string]interface{}{"SBDAP_TEST": "1"},
			"stdio":           []interface{}{nil, nil, nil},
			"stopOnEntry":     true,
			"initCommands":    []string{"settings set a 1"},
			"preRunCommands":  []string{"settings set b 2"},
			"postRunCommands": []string{"settings set c 3"},
			"exitCommands":    []string{"settings set d 4"},
		})
		// Command output goes to the debug console.
		require.Equal(t, "settings set a 1\n", client.ExpectOutputEvent(t).Body.Output)
		require.Equal(t, "settings set b 2\n", client.ExpectOutputEvent(t).Body.Output)
		client.ExpectInitializedEvent(t)
		client.ExpectLaunchResponse(t)
		client.ConfigurationDoneRequest()
		require.Equal(t, "settings set c 3\n", client.ExpectOutputEvent(t).Body.Output)
		client.ExpectStoppedEvent(t)
		client.ExpectConfigurationDoneResponse(t)

		tg := f.target(t)
		require.Equal(t, "/work/prog", tg.Path)
		info := tg.LaunchInfo
		require.Equal(t, []string{"one", "two three"}, info.Args)
		require.Equal(t, "/work", info.Cwd)
		require.Contains(t, info.Env, "SBDAP_TEST=1")
		require.Equal(t, [3]string{os.DevNull, os.DevNull, os.DevNull}, info.Stdio)
		require.True(t, info.StopAtEntry)

		client.DisconnectRequest()
		require.Equal(t, "settings set d 4\n", client.ExpectOutputEvent(t).Body.Output)
		client.ExpectDisconnectResponse(t)
		require.Equal(t, []string{"settings set a 1", "settings set b 2", "settings set c 3", "settings set d 4"}, f.debugger(t).Commands())
	})
}

func TestLaunchFailingInitCommand(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		client.InitializeRequest()
		client.ExpectInitializeResponse(t)
		client.LaunchRequestWithArgs(map[string]interface{}{
			"program":      program,
			"initCommands": []string{"bad"},
		})
		client.ExpectErrorResponseWith(t, UnableToRunCommand, "initCommands failed: bad: error: 'bad' is not a valid command.")
		require.Nil(t, f.debugger(t).Target())
	})
}

func TestLaunchSourceMap(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		client.InitializeRequest()
		client.ExpectInitializeResponse(t)
		client.LaunchRequestWithArgs(map[string]interface{}{
			"program":     program,
			"stdio":       []interface{}{nil, nil, nil},
			"stopOnEntry": true,
			"sourceMap":   map[string]interface{}{"/src": "/home/me/project"},
		})
		client.ExpectInitializedEvent(t)
		client.ExpectLaunchResponse(t)

		d := f.debugger(t)
		d.ClearCalls()
		client.SetBreakpointsRequest("/home/me/project/main.c", []int{10})
		bp := client.ExpectSetBreakpointsResponse(t).Body.Breakpoints[0]
		require.True(t, bp.Verified)
		require.Equal(t, "/home/me/project/main.c", bp.Source.Path)
		require.Equal(t, []string{"bp-create /src/main.c:10 #1"}, d.Calls())

		client.ConfigurationDoneRequest()
		client.ExpectStoppedEvent(t)
		client.ExpectConfigurationDoneResponse(t)
		client.StackTraceRequest(1, 0, 1)
		frame := client.ExpectStackTraceResponse(t).Body.StackFrames[0]
		require.Equal(t, "/home/me/project/main.c", frame.Source.Path)
	})
}

func TestLaunchWithParams(t *testing.T) {
	configure := func(cfg *service.Config, f *fixture) {
		cfg.Params = json.RawMessage(`{"program": "/bin/default", "stopOnEntry": true, "stdio": [null, null, null]}`)
	}
	runTestWithConfig(t, configure, func(client *daptest.Client, f *fixture) {
		client.InitializeRequest()
		client.ExpectInitializeResponse(t)
		client.LaunchRequestWithArgs(map[string]interface{}{})
		client.ExpectInitializedEvent(t)
		client.ExpectLaunchResponse(t)
		client.ConfigurationDoneRequest()
		require.Equal(t, "entry", client.ExpectStoppedEvent(t).Body.Reason)
		client.ExpectConfigurationDoneResponse(t)
		require.Equal(t, "create-target /bin/default", f.debugger(t).Calls()[0])
	})
}

func TestPreload(t *testing.T) {
	configure := func(cfg *service.Config, f *fixture) {
		cfg.Preload = []string{"/tmp/init.lldb"}
		cfg.UserConfig.Preload = []string{"settings set target.x 1"}
	}
	runTestWithConfig(t, configure, func(client *daptest.Client, f *fixture) {
		client.InitializeRequest()
		client.ExpectInitializeResponse(t)
		require.Equal(t, []string{"settings set target.x 1", `command source "/tmp/init.lldb"`}, f.debugger(t).Commands())
	})
}

func TestZeroBasedLines(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		// go-dap omits false capabilities.
		client.SendRaw(`{"seq": 100, "type": "request", "command": "initialize", "arguments": {"adapterID": "sbdap", "linesStartAt1": false, "columnsStartAt1": false}}`)
		client.ExpectInitializeResponse(t)
		client.LaunchRequest(program, stopOnEntry)
		client.ExpectInitializedEvent(t)
		client.ExpectLaunchResponse(t)

		d := f.debugger(t)
		d.ClearCalls()
		client.SetBreakpointsRequest("/src/main.c", []int{9})
		require.Equal(t, 9, client.ExpectSetBreakpointsResponse(t).Body.Breakpoints[0].Line)
		require.Equal(t, []string{"bp-create /src/main.c:10 #1"}, d.Calls())

		client.ConfigurationDoneRequest()
		client.ExpectStoppedEvent(t)
		client.ExpectConfigurationDoneResponse(t)
		client.StackTraceRequest(1, 0, 1)
		frame := client.ExpectStackTraceResponse(t).Body.StackFrames[0]
		require.Equal(t, 9, frame.Line)
		require.Equal(t, 0, frame.Column)
	})
}

func TestProtocolErrors(t *testing.T) {
	runTest(t, func(client *daptest.Client, f *fixture) {
		// Nothing but initialize is accepted first.
		client.LaunchRequest(program, stopOnEntry)
		client.ExpectErrorResponseWith(t, InvalidState, "request launch is not allowed while the session is Created")

		client.UnknownRequest()
		er := client.ExpectErrorResponseWith(t, UnsupportedCommand, `Unsupported command: cannot process "unknown" request`)
		require.Equal(t, "unknown", er.Command)

		client.InitializeRequest()
		client.ExpectInitializeResponse(t)

		client.RestartRequest()
		client.ExpectErrorResponseWith(t, UnsupportedCommand, `Unsupported command: cannot process "restart" request`)

		// Requests with malformed arguments are answered.
		client.SendRaw(`{"seq": 100, "type": "request", "command": "threads", "arguments": [1]}`)
		er = client.ExpectErrorResponseWith(t, ProtocolViolation, "invalid request: arguments of threads must be an object")
		require.Equal(t, 100, er.RequestSeq)

		// Other malformed messages are ignored.
		client.SendRaw(`not json`)
		client.SendRaw(`{"seq": 101}`)
		client.SendRaw(`{"seq": 102, "type": "response", "request_seq": 1, "success": true, "command": "runInTerminal"}`)
		client.KnownEvent()

		client.ThreadsRequest()
		require.Empty(t, client.ExpectThreadsResponse(t).Body.Threads)
	})
}

func TestMultiSession(t *testing.T) {
	eng := enginetest.New()
	require.NoError(t, eng.Init())
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	disconnectChan := make(chan struct{})
	server := NewServer(&service.Config{
		Listener:       listener,
		DisconnectChan: disconnectChan,
		AcceptMulti:    true,
		Engine:         eng,
	})
	server.Run()
	defer server.Stop()

	for i := 1; i <= 2; i++ {
		client, err := daptest.NewClient(listener.Addr().String())
		require.NoError(t, err)
		client.InitializeRequest()
		client.ExpectInitializeResponse(t)
		client.DisconnectRequest()
		client.ExpectDisconnectResponse(t)
		client.ExpectTerminatedEvent(t)
		client.Close()
		require.Eventually(t, func() bool { return len(eng.Debuggers()) == i }, 5*time.Second, 10*time.Millisecond)
	}
	select {
	case <-disconnectChan:
		t.Fatal("multi-session server signalled disconnection")
	default:
	}
}

func TestSingleSessionSignalsDisconnect(t *testing.T) {
	eng := enginetest.New()
	require.NoError(t, eng.Init())
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	disconnectChan := make(chan struct{})
	server := NewServer(&service.Config{
		Listener:       listener,
		DisconnectChan: disconnectChan,
		Engine:         eng,
	})
	server.Run()
	defer server.Stop()

	client, err := daptest.NewClient(listener.Addr().String())
	require.NoError(t, err)
	defer client.Close()
	client.InitializeRequest()
	client.ExpectInitializeResponse(t)
	// Dropping the connection ends the session.
	client.Close()
	select {
	case <-disconnectChan:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not signal disconnection")
	}
}

func TestStopEndsSession(t *testing.T) {
	eng := enginetest.New()
	require.NoError(t, eng.Init())
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := NewServer(&service.Config{Listener: listener, Engine: eng})
	server.Run()

	client, err := daptest.NewClient(listener.Addr().String())
	require.NoError(t, err)
	defer client.Close()
	client.InitializeRequest()
	client.ExpectInitializeResponse(t)
	client.LaunchRequest(program, stopOnEntry)
	client.ExpectInitializedEvent(t)
	client.ExpectLaunchResponse(t)

	done := make(chan struct{})
	go func() {
		server.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	require.Contains(t, eng.Debuggers()[0].Calls(), "kill")
}

func TestStopWithoutRun(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	server := NewServer(&service.Config{Listener: listener, Engine: enginetest.New()})
	done := make(chan struct{})
	go func() {
		server.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
}

// pipeConn joins the two pipes a client talks to the adapter through.
type pipeConn struct {
	io.Reader
	io.WriteCloser
}

func TestRunStdio(t *testing.T) {
	eng := enginetest.New()
	require.NoError(t, eng.Init())
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	disconnectChan := make(chan struct{})
	server := NewServer(&service.Config{DisconnectChan: disconnectChan, Engine: eng})
	done := make(chan struct{})
	go func() {
		server.RunStdio(inR, outW)
		close(done)
	}()

	client := daptest.NewClientFromConn(pipeConn{outR, inW})
	client.InitializeRequest()
	client.ExpectInitializeResponse(t)
	client.DisconnectRequest()
	client.ExpectDisconnectResponse(t)
	client.ExpectTerminatedEvent(t)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunStdio did not return")
	}
	<-disconnectChan
	client.Close()
}

func TestPipeStdio(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("named pipes are not supported on Windows")
	}
	runTest(t, func(client *daptest.Client, f *fixture) {
		client.InitializeRequest()
		client.ExpectInitializeResponse(t)
		client.LaunchRequestWithArgs(map[string]interface{}{
			"program": program,
			"stdio":   []interface{}{nil, "pipe", "/tmp/stderr.log"},
		})
		client.ExpectInitializedEvent(t)
		client.ExpectLaunchResponse(t)

		info := f.target(t).LaunchInfo
		require.Equal(t, os.DevNull, info.Stdio[0])
		require.Equal(t, "/tmp/stderr.log", info.Stdio[2])
		w, err := os.OpenFile(info.Stdio[1], os.O_WRONLY, 0)
		require.NoError(t, err)
		_, err = io.WriteString(w, "hello\n")
		require.NoError(t, err)
		w.Close()

		oe := client.ExpectOutputEvent(t)
		require.Equal(t, "stdout", oe.Body.Category)
		require.Equal(t, "hello\n", oe.Body.Output)
	})
}
