package dap

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/google/go-dap"
)

// maxContentLength bounds the size of a single message.
const maxContentLength = 64 << 20

// FramingError is a malformed frame: bad header, missing length or a
// stream that ends inside a frame.
type FramingError struct {
	Msg string
	Err error
}

func (e *FramingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("framing error: %s: %v", e.Msg, e.Err)
	}
	return "framing error: " + e.Msg
}

func (e *FramingError) Unwrap() error {
	return e.Err
}

// frameReader splits a byte stream into message bodies.
type frameReader struct {
	r *bufio.Reader
}

func newFrameReader(r io.Reader) *frameReader {
	if br, ok := r.(*bufio.Reader); ok {
		return &frameReader{br}
	}
	return &frameReader{bufio.NewReader(r)}
}

// readFrame returns the body of the next frame. It returns io.EOF if the
// stream ends before the first byte of a frame.
func (fr *frameReader) readFrame() ([]byte, error) {
	contentLength := -1
	for first := true; ; first = false {
		line, err := fr.r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				if first && line == "" {
					return nil, io.EOF
				}
				return nil, &FramingError{Msg: "stream ended inside header", Err: io.ErrUnexpectedEOF}
			}
			return nil, err
		}
		if !strings.HasSuffix(line, "\r\n") {
			return nil, &FramingError{Msg: fmt.Sprintf("header line %q not terminated by CRLF", line)}
		}
		line = line[:len(line)-2]
		if line == "" {
			break
		}
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			return nil, &FramingError{Msg: fmt.Sprintf("malformed header line %q", line)}
		}
		name, value := strings.TrimSpace(line[:colon]), strings.TrimSpace(line[colon+1:])
		switch strings.ToLower(name) {
		case "content-length":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return nil, &FramingError{Msg: fmt.Sprintf("invalid Content-Length %q", value)}
			}
			if n > maxContentLength {
				return nil, &FramingError{Msg: fmt.Sprintf("Content-Length %d exceeds %d", n, maxContentLength)}
			}
			contentLength = n
		case "content-type":
			if !validContentType(value) {
				return nil, &FramingError{Msg: fmt.Sprintf("unsupported Content-Type %q", value)}
			}
		}
	}
	if contentLength < 0 {
		return nil, &FramingError{Msg: "missing Content-Length header"}
	}
	body := make([]byte, contentLength)
	if _, err := io.ReadFull(fr.r, body); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, &FramingError{Msg: fmt.Sprintf("stream ended inside a body of %d bytes", contentLength), Err: io.ErrUnexpectedEOF}
		}
		return nil, err
	}
	return body, nil
}

func validContentType(v string) bool {
	v = strings.ToLower(strings.ReplaceAll(v, " ", ""))
	switch v {
	case "application/vscode-jsonrpc;charset=utf-8", "application/vscode-jsonrpc;charset=utf8":
		return true
	}
	return false
}

// frameWriter writes frames and flushes after each one.
type frameWriter struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func newFrameWriter(w io.Writer) *frameWriter {
	return &frameWriter{w: bufio.NewWriter(w)}
}

func (fw *frameWriter) writeFrame(body []byte) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if err := dap.WriteBaseMessage(fw.w, body); err != nil {
		return err
	}
	return fw.w.Flush()
}
