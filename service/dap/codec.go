package dap

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/go-dap"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ProtocolError is well-formed JSON that is not a valid DAP envelope, or
// a request whose arguments do not have the documented shape.
type ProtocolError struct {
	// Seq and Command identify the offending request, when known.
	Seq     int
	Command string
	Msg     string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Msg
}

// unknownRequest is a request for a command go-dap has no type for. Its
// arguments are kept raw.
type unknownRequest struct {
	dap.Request
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// unknownResponse is a client response to a reverse request go-dap has no
// type for.
type unknownResponse struct {
	dap.Response
	Body json.RawMessage `json:"body,omitempty"`
}

// errorResponse is a failed response. It encodes exactly like
// dap.ErrorResponse.
type errorResponse struct {
	dap.Response
	Body struct {
		Error dap.ErrorMessage `json:"error"`
	} `json:"body"`
}

// decodeMessage parses one frame. The envelope is checked before go-dap
// decodes the command specific shape.
func decodeMessage(frame []byte) (dap.Message, error) {
	if !gjson.ValidBytes(frame) {
		return nil, &ProtocolError{Msg: "message is not valid JSON"}
	}
	env := gjson.ParseBytes(frame)
	if !env.IsObject() {
		return nil, &ProtocolError{Msg: "message is not a JSON object"}
	}
	seq := env.Get("seq")
	if seq.Type != gjson.Number {
		return nil, &ProtocolError{Msg: "missing or invalid 'seq'"}
	}
	perr := &ProtocolError{Seq: int(seq.Int())}
	fail := func(format string, args ...interface{}) (dap.Message, error) {
		perr.Msg = fmt.Sprintf(format, args...)
		return nil, perr
	}
	typ := env.Get("type")
	if typ.Type != gjson.String {
		return fail("missing or invalid 'type'")
	}

	switch typ.Str {
	case "request":
		cmd := env.Get("command")
		if cmd.Type != gjson.String || cmd.Str == "" {
			return fail("request without 'command'")
		}
		perr.Command = cmd.Str
		args := env.Get("arguments")
		if args.Exists() && args.Type != gjson.Null && !args.IsObject() {
			return fail("arguments of %s must be an object", cmd.Str)
		}
		msg, err := dap.DecodeProtocolMessage(frame)
		if err != nil {
			var fe *dap.DecodeProtocolMessageFieldError
			if errors.As(err, &fe) && fe.FieldName == "command" {
				r := &unknownRequest{}
				r.Seq = perr.Seq
				r.Type = "request"
				r.Command = cmd.Str
				if args.Exists() {
					r.Arguments = json.RawMessage(args.Raw)
				}
				return r, nil
			}
			return fail("invalid %s request: %v", cmd.Str, err)
		}
		return msg, nil

	case "response":
		if rs := env.Get("request_seq"); rs.Type != gjson.Number {
			return fail("response without 'request_seq'")
		}
		if s := env.Get("success"); s.Type != gjson.True && s.Type != gjson.False {
			return fail("response without 'success'")
		}
		cmd := env.Get("command")
		if cmd.Type != gjson.String {
			return fail("response without 'command'")
		}
		perr.Command = cmd.Str
		msg, err := dap.DecodeProtocolMessage(frame)
		if err != nil {
			var fe *dap.DecodeProtocolMessageFieldError
			if errors.As(err, &fe) && fe.FieldName == "command" {
				r := &unknownResponse{}
				if err := json.Unmarshal(frame, r); err != nil {
					return fail("invalid %s response: %v", cmd.Str, err)
				}
				return r, nil
			}
			return fail("invalid %s response: %v", cmd.Str, err)
		}
		return msg, nil

	case "event":
		ev := env.Get("event")
		if ev.Type != gjson.String || ev.Str == "" {
			return fail("event without 'event'")
		}
		msg, err := dap.DecodeProtocolMessage(frame)
		if err != nil {
			return fail("invalid %s event: %v", ev.Str, err)
		}
		return msg, nil
	}
	return fail("unknown message type %q", typ.Str)
}

// encodeMessage marshals msg with the given sequence number.
func encodeMessage(msg interface{}, seq int) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(b, "seq", seq)
}
