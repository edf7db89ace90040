// Package dap implements the Debug Adapter Protocol (DAP) on top of a
// native debugger engine. The frontend runs the adapter either on its
// standard streams or in server mode listening on a loopback port, and
// drives a debug session through it.
// For DAP details see https://microsoft.github.io/debug-adapter-protocol.
package dap

import (
	"io"
	"net"
	"os"
	"sync"

	"github.com/go-delve/sbdap/pkg/logflags"
	"github.com/go-delve/sbdap/service"
	"github.com/go-delve/sbdap/service/internal/sameuser"
)

// Server implements a DAP server that serves one client at a time. Unless
// config.AcceptMulti is set it serves a single client and then signals
// disconnection.
// The server operates via two goroutines:
// (1) Main goroutine where the server is created via NewServer(),
// started via Run() and stopped via Stop().
// (2) Run goroutine started from Run() that accepts client connections
// and serves a Session on each, in turn.
type Server struct {
	// config is all the information necessary to start the sessions.
	config *service.Config
	// listener is used to accept client connections.
	listener net.Listener
	// stopChan is closed when the server is Stop()-ed. This can be used to signal
	// to goroutines run by the server that it's time to quit.
	stopChan chan struct{}
	stopOnce sync.Once
	// runDone is closed when the run goroutine exits.
	runDone chan struct{}
	// mu guards session and running.
	mu sync.Mutex
	// session is the session being served, if any.
	session *Session
	running bool
	// disconnectOnce guards config.DisconnectChan.
	disconnectOnce sync.Once
	// log is used for structured logging.
	log logflags.Logger
}

// NewServer creates a new DAP Server. It takes an opened Listener
// via config and assumes its ownership. config.DisconnectChan, if set,
// will be closed by the server when it stops serving clients. Once
// DisconnectChan is closed, Server.Stop() must be called.
func NewServer(config *service.Config) *Server {
	logger := logflags.DAPLogger()
	if config.Listener != nil {
		logflags.WriteDAPListeningMessage(config.Listener.Addr())
	}
	logger.Debug("DAP server pid = ", os.Getpid())
	return &Server{
		config:   config,
		listener: config.Listener,
		stopChan: make(chan struct{}),
		runDone:  make(chan struct{}),
		log:      logger,
	}
}

// Stop stops the DAP server: it closes the listener and ends the session
// being served, which kills a debuggee it launched and detaches from one
// it attached to. It waits for the session to clean up.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		if s.listener != nil {
			s.listener.Close()
		}
		s.mu.Lock()
		if s.session != nil {
			s.session.Stop()
		}
		s.mu.Unlock()
	})
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		<-s.runDone
	}
}

// signalDisconnect closes config.DisconnectChan if not nil, which
// signals that the server has no more clients to serve. It can be
// called multiple times.
func (s *Server) signalDisconnect() {
	s.disconnectOnce.Do(func() {
		if s.config.DisconnectChan != nil {
			close(s.config.DisconnectChan)
		}
	})
}

// Run launches a new goroutine where it accepts client connections and
// serves a session on each. Use Stop() to end it.
func (s *Server) Run() {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	go s.run()
}

func (s *Server) run() {
	defer close(s.runDone)
	defer s.signalDisconnect()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
			default:
				s.log.Errorf("Error accepting client connection: %s\n", err)
			}
			return
		}
		if !sameuser.CanAccept(s.listener.Addr(), conn.LocalAddr(), conn.RemoteAddr()) {
			conn.Close()
			continue
		}
		s.serve(conn)
		if !s.config.AcceptMulti {
			return
		}
		select {
		case <-s.stopChan:
			return
		default:
		}
	}
}

// serve runs a session on conn until it ends.
func (s *Server) serve(conn io.ReadWriteCloser) {
	session := NewSession(conn, s.config)
	s.mu.Lock()
	select {
	case <-s.stopChan:
		s.mu.Unlock()
		conn.Close()
		return
	default:
	}
	s.session = session
	s.mu.Unlock()

	session.ServeDAPCodec()

	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
}

// RunStdio serves a single session on in and out and returns once it
// ends. It is the mode used when the adapter is started without a port.
func (s *Server) RunStdio(in io.ReadCloser, out io.Writer) {
	defer s.signalDisconnect()
	s.serve(&stdioConn{ReadCloser: in, Writer: out})
}

// stdioConn is a connection over a pair of standard streams.
type stdioConn struct {
	io.ReadCloser
	io.Writer
}
