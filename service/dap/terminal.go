package dap

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/go-delve/sbdap/pkg/engine"
	"github.com/go-delve/sbdap/pkg/terminalagent"
	"github.com/google/go-dap"
)

// agentAcceptTimeout bounds the wait for the terminal agent started by
// runInTerminal to connect back.
const agentAcceptTimeout = 10 * time.Second

var streamNames = [3]string{"stdin", "stdout", "stderr"}

// terminal holds what the session owns for the debuggee's standard
// streams: the pseudo terminal of the debug console, the named pipes it
// forwards and the terminal agent connection.
type terminal struct {
	agent *terminalagent.Listener
	// ptm and pts are the master and slave ends of the console pty.
	ptm, pts *os.File
	pipes    []string
	// inherit marks the streams that go to the terminal.
	inherit   [3]bool
	done      chan struct{}
	closeOnce sync.Once
}

func newTerminal() *terminal {
	return &terminal{done: make(chan struct{})}
}

// close releases the terminal. Forwarders stop on their own once their
// source is closed.
func (t *terminal) close() {
	t.closeOnce.Do(func() {
		close(t.done)
		if t.agent != nil {
			t.agent.Close()
		}
		if t.ptm != nil {
			t.ptm.Close()
		}
		if t.pts != nil {
			t.pts.Close()
		}
		for _, path := range t.pipes {
			releaseStdioPipe(path)
			os.Remove(path)
		}
	})
}

// forward copies r to the client as output events of category.
func (t *terminal) forward(s *Session, r io.Reader, category string) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			ev := &dap.OutputEvent{
				Event: *newEvent("output"),
				Body:  dap.OutputEventBody{Category: category, Output: string(buf[:n])},
			}
			select {
			case s.output <- ev:
			case <-t.done:
				return
			case <-s.stopChan:
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				s.log.Debugf("%s forwarder: %v", category, err)
			}
			return
		}
	}
}

// setupStdio decides where the debuggee's standard streams go and fills
// info.Stdio accordingly. It reports whether the streams that go to the
// terminal wait for a terminal agent, see launchInTerminal.
func (s *Session) setupStdio(lc *LaunchConfig, info *engine.LaunchInfo) (needAgent bool, err error) {
	t := newTerminal()
	s.term = t
	defer func() {
		if err != nil {
			t.close()
			s.term = nil
		}
	}()

	inherit := false
	for i, spec := range lc.Stdio {
		switch spec.kind {
		case stdioNull:
			info.Stdio[i] = os.DevNull
		case stdioFile:
			info.Stdio[i] = spec.path
		case stdioPipe:
			if i == 0 {
				return false, fmt.Errorf("stdin cannot be a pipe")
			}
			path, err := newStdioPipe(streamNames[i])
			if err != nil {
				return false, fmt.Errorf("could not create %s pipe: %v", streamNames[i], err)
			}
			t.pipes = append(t.pipes, path)
			info.Stdio[i] = path
			go s.forwardPipe(t, path, streamNames[i])
		default:
			t.inherit[i] = true
			inherit = true
		}
	}
	if !inherit {
		return false, nil
	}

	switch lc.Terminal {
	case IntegratedTerminal, ExternalTerminal:
		if s.clientCaps.supportsRunInTerminal {
			return true, nil
		}
		s.sendOutput("console", "The client cannot run the debuggee in a terminal; its output goes to the debug console.\n")
	}

	tty := os.DevNull
	ptm, pts, err := pty.Open()
	if err != nil {
		s.log.Warnf("could not open a pseudo terminal, discarding the debuggee's console I/O: %v", err)
	} else {
		t.ptm, t.pts = ptm, pts
		tty = pts.Name()
		go t.forward(s, ptm, "stdout")
	}
	for i := range info.Stdio {
		if t.inherit[i] {
			info.Stdio[i] = tty
		}
	}
	return false, nil
}

func (s *Session) forwardPipe(t *terminal, path, category string) {
	f, err := openStdioPipe(path)
	if err != nil {
		s.log.Debugf("could not open %s: %v", path, err)
		return
	}
	defer f.Close()
	t.forward(s, f, category)
}

// launchInTerminal asks the client to start a terminal agent and launches
// the debuggee on the agent's terminal once it connects. The launch
// request is answered from the continuation.
func (s *Session) launchInTerminal(request *dap.LaunchRequest, lc *LaunchConfig, info engine.LaunchInfo) (dap.Message, error) {
	t := s.term
	l, err := terminalagent.Listen()
	if err != nil {
		t.close()
		s.term = nil
		return nil, launchErr("could not listen for the terminal agent: %v", err)
	}
	t.agent = l

	argv := append([]string(nil), s.config.AgentCommand...)
	if len(argv) == 0 {
		exe, err := os.Executable()
		if err != nil {
			t.close()
			s.term = nil
			return nil, launchErr("could not locate the adapter executable: %v", err)
		}
		argv = []string{exe}
	}
	argv = append(argv, "terminal-agent", "--connect", strconv.Itoa(l.Port()))

	kind := "integrated"
	if lc.Terminal == ExternalTerminal {
		kind = "external"
	}
	rit := &dap.RunInTerminalRequest{
		Request: *newRequest("runInTerminal"),
		Arguments: dap.RunInTerminalRequestArguments{
			Kind:  kind,
			Title: baseName(lc.Program),
			Cwd:   lc.Cwd,
			Args:  argv,
		},
	}
	s.sendRequest(rit, func(m dap.Message) {
		if r, ok := m.(*dap.RunInTerminalResponse); ok && r.Success {
			return
		}
		s.log.Errorf("runInTerminal failed: %v", m)
		// Makes Accept fail at once.
		l.Close()
	})

	seq := request.Seq
	go func() {
		id, err := l.Accept(agentAcceptTimeout)
		s.post(completion{seq: seq, result: id, err: err, finish: func(result interface{}, err error) (dap.Message, error) {
			if err != nil {
				if s.term == t {
					t.close()
					s.term = nil
				}
				return nil, launchErr("the terminal agent did not connect: %v", err)
			}
			id := result.(string)
			s.log.Debugf("terminal agent reported %s", id)
			if !terminalagent.IsProcessID(id) {
				for i := range info.Stdio {
					if t.inherit[i] {
						info.Stdio[i] = id
					}
				}
			}
			return s.finishLaunch(request, info)
		}})
	}()
	return nil, nil
}
