// Package terminalagent implements both ends of the terminal agent
// handshake.
//
// The agent runs in a terminal window opened by the client. It connects
// back to the session on a loopback port, writes one line identifying its
// terminal (a tty path on unix, its process id on Windows) and then holds
// the terminal open until the session closes the connection.
package terminalagent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-delve/sbdap/pkg/logflags"
)

const dialTimeout = 5 * time.Second

// Run is the agent side. It reports the terminal of stdout to the session
// listening on 127.0.0.1:port and returns once the session closes the
// connection, after discarding any input typed into the terminal in the
// meantime.
func Run(ctx context.Context, port int, stdin, stdout *os.File) error {
	log := logflags.AgentLogger()
	id, err := TerminalID(stdout)
	if err != nil {
		return err
	}
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	var d net.Dialer
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, err := d.DialContext(dctx, "tcp", addr)
	cancel()
	if err != nil {
		return fmt.Errorf("could not connect to %s: %w", addr, err)
	}
	defer conn.Close()
	log.Debugf("connected to %s, terminal %s", addr, id)
	if _, err := io.WriteString(conn, id+"\n"); err != nil {
		return err
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	_, err = io.Copy(io.Discard, conn)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && !errors.Is(err, net.ErrClosed) {
		log.Debugf("connection error: %v", err)
	}
	if stdin != nil {
		if err := flushInput(stdin); err != nil {
			log.Debugf("could not flush terminal input: %v", err)
		}
	}
	return nil
}

// Listener is the session side of the handshake.
type Listener struct {
	ln net.Listener

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// Listen opens a loopback listener on an ephemeral port.
func Listen() (*Listener, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln}, nil
}

// Port returns the port the agent must connect to.
func (l *Listener) Port() int {
	return l.ln.Addr().(*net.TCPAddr).Port
}

// Accept waits up to timeout for the agent and returns the terminal it
// reported. The connection stays open, holding the terminal, until Close.
func (l *Listener) Accept(timeout time.Duration) (string, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := l.ln.Accept()
		ch <- result{c, err}
	}()
	var r result
	select {
	case r = <-ch:
	case <-time.After(timeout):
		l.ln.Close()
		go func() {
			if r := <-ch; r.conn != nil {
				r.conn.Close()
			}
		}()
		return "", fmt.Errorf("terminal agent did not connect within %v", timeout)
	}
	if r.err != nil {
		return "", r.err
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		r.conn.Close()
		return "", net.ErrClosed
	}
	l.conn = r.conn
	l.mu.Unlock()
	_ = r.conn.SetReadDeadline(time.Now().Add(timeout))
	line, err := bufio.NewReader(r.conn).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("could not read terminal id: %w", err)
	}
	_ = r.conn.SetReadDeadline(time.Time{})
	id := strings.TrimSpace(line)
	if id == "" {
		return "", errors.New("terminal agent sent an empty terminal id")
	}
	logflags.AgentLogger().Debugf("terminal agent reported %s", id)
	return id, nil
}

// Close releases the terminal and stops listening.
// It may be called while Accept is in progress; a connection accepted
// afterwards is closed at once.
func (l *Listener) Close() error {
	l.mu.Lock()
	l.closed = true
	conn := l.conn
	l.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	return l.ln.Close()
}

// IsProcessID reports whether id, as sent by an agent, is a process id
// rather than a terminal path.
func IsProcessID(id string) bool {
	_, err := strconv.Atoi(id)
	return err == nil
}
