package dap

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cosiner/argv"
	"github.com/go-delve/sbdap/pkg/sourcemap"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// TerminalKind selects where the debuggee's standard streams go when they
// are not redirected.
type TerminalKind string

const (
	// "console": a pseudo-terminal owned by the adapter; output is shown
	// in the debug console. This is the default.
	ConsoleTerminal TerminalKind = "console"
	// "integrated": the client's integrated terminal.
	IntegratedTerminal TerminalKind = "integrated"
	// "external": a new terminal window opened by the client.
	ExternalTerminal TerminalKind = "external"
)

func isValidTerminal(t TerminalKind) bool {
	switch t {
	case ConsoleTerminal, IntegratedTerminal, ExternalTerminal:
		return true
	}
	return false
}

// LaunchConfig is the collection of launch request attributes recognized
// by the adapter.
type LaunchConfig struct {
	// Path to the program to debug. Required.
	// If it is not an absolute path, it is interpreted relative to cwd.
	Program string `json:"program,omitempty"`

	// Command line arguments passed to the debugged program, either as a
	// list or as a single string split with shell quoting rules.
	Args Args `json:"args,omitempty"`

	// Working directory of the program being debugged. If not specified
	// the working directory of the adapter is used.
	Cwd string `json:"cwd,omitempty"`

	// Environment variables added to the adapter's environment. A null
	// value removes the variable.
	Env map[string]*string `json:"env,omitempty"`

	// Start from an empty environment instead of the adapter's.
	ClearEnv bool `json:"clearEnv,omitempty"`

	// Destinations of stdin, stdout and stderr: a single value for all
	// three or a list. null suppresses a stream, "pipe" forwards it to the
	// debug console, any other string is a file path. Streams that are
	// not given use the terminal.
	Stdio StdioConfig `json:"stdio,omitempty"`

	// Terminal used for the streams that are not redirected.
	// (Default: console)
	Terminal TerminalKind `json:"terminal,omitempty"`

	// Disable address space layout randomization.
	// (Default: true)
	DisableASLR *bool `json:"disableASLR,omitempty"`

	LaunchAttachCommonConfig
}

// LaunchAttachCommonConfig is the attributes common in both launch/attach requests.
type LaunchAttachCommonConfig struct {
	// Automatically stop program after launch or attach.
	StopOnEntry bool `json:"stopOnEntry,omitempty"`

	// Source path remapping, from the path recorded in the debug
	// information to a local path. Either an ordered object
	// {"remote": "local"} or a list of {"from": remote, "to": local}.
	// A null or empty local path hides the sources under the prefix.
	SourceMap SourceMapRules `json:"sourceMap,omitempty"`

	// Directories searched for sources that are not found at their
	// (remapped) location.
	SourcePath []string `json:"sourcePath,omitempty"`

	// Base directory for relative source paths found in debug information.
	RelativePathBase string `json:"relativePathBase,omitempty"`

	// Default language of debug console expressions: native, simple or
	// python.
	ExpressionLanguage string `json:"expressionLanguage,omitempty"`

	// Time limit of an expression evaluation, in milliseconds. 0 means
	// no limit.
	EvaluateTimeout *int `json:"evaluateTimeout,omitempty"`

	// Engine commands executed before the target is created.
	InitCommands []string `json:"initCommands,omitempty"`
	// Engine commands executed after the target is created, before the
	// debuggee is started or attached.
	PreRunCommands []string `json:"preRunCommands,omitempty"`
	// Engine commands executed once the debuggee is configured, before it
	// is resumed.
	PostRunCommands []string `json:"postRunCommands,omitempty"`
	// Engine commands executed when the session ends.
	ExitCommands []string `json:"exitCommands,omitempty"`

	// Restart carries client data for a restarted session. It is echoed
	// in the terminated event.
	Restart json.RawMessage `json:"__restart,omitempty"`
}

// AttachConfig is the collection of attach request attributes recognized
// by the adapter.
type AttachConfig struct {
	// The numeric ID of the process to be debugged. Either it or program
	// is required.
	ProcessID ProcessID `json:"pid,omitempty"`

	// Name or path of the program to attach to.
	Program string `json:"program,omitempty"`

	// Wait for a process named program to be started.
	WaitFor bool `json:"waitFor,omitempty"`

	LaunchAttachCommonConfig
}

// Args is a list of program arguments that may also be given as a single
// command line string.
type Args []string

func (a *Args) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*a = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf(`cannot use %s as 'args' of type []string or string`, data)
	}
	parsed, err := splitCommandLine(s)
	if err != nil {
		return fmt.Errorf("invalid 'args': %v", err)
	}
	*a = parsed
	return nil
}

// splitCommandLine splits s with shell quoting rules. Pipes and
// backquotes are not interpreted.
func splitCommandLine(s string) ([]string, error) {
	noBackquote := func(s string) (string, error) {
		return "", errors.New("backquote not supported")
	}
	parts, err := argv.Argv(s, noBackquote, nil)
	if err != nil {
		return nil, err
	}
	if len(parts) > 1 {
		return nil, errors.New("pipes are not supported")
	}
	if len(parts) == 0 {
		return nil, nil
	}
	return parts[0], nil
}

// ProcessID is a process id given as a number or a numeric string.
type ProcessID int

func (p *ProcessID) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*p = ProcessID(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			*p = ProcessID(n)
			return nil
		}
	}
	return fmt.Errorf(`cannot use %s as 'pid' of type number`, data)
}

// SourceMapRules is an ordered list of source path rewrites.
type SourceMapRules []SourceMapRule

// SourceMapRule rewrites the prefix From, as recorded in debug
// information, to To.
type SourceMapRule struct {
	From string  `json:"from,omitempty"`
	To   *string `json:"to"`
}

func (m *SourceMapRule) UnmarshalJSON(data []byte) error {
	// use custom unmarshal to check that from is set.
	type tmpType SourceMapRule
	var tmp tmpType

	if err := json.Unmarshal(data, &tmp); err != nil {
		if _, ok := err.(*json.UnmarshalTypeError); ok {
			return fmt.Errorf(`cannot use %s as 'sourceMap' of type {"from":string, "to":string}`, data)
		}
		return err
	}
	if tmp.From == "" {
		return errors.New("'sourceMap' entries require a 'from' path")
	}
	*m = SourceMapRule(tmp)
	return nil
}

func (r *SourceMapRules) UnmarshalJSON(data []byte) error {
	res := gjson.ParseBytes(data)
	switch {
	case res.IsArray():
		var list []SourceMapRule
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*r = list
	case res.IsObject():
		// Keys keep their document order: the first matching rule wins.
		var list []SourceMapRule
		var err error
		res.ForEach(func(key, value gjson.Result) bool {
			rule := SourceMapRule{From: key.String()}
			switch value.Type {
			case gjson.Null:
			case gjson.String:
				to := value.String()
				rule.To = &to
			default:
				err = fmt.Errorf("cannot use %s as local path of %q in 'sourceMap'", value.Raw, key.String())
				return false
			}
			list = append(list, rule)
			return true
		})
		if err != nil {
			return err
		}
		*r = list
	case res.Type == gjson.Null:
		*r = nil
	default:
		return fmt.Errorf(`cannot use %s as 'sourceMap' of type {"remote":"local", ...} or [{"from":string, "to":string}]`, data)
	}
	return nil
}

// toMap converts the rules. Rules without a destination suppress sources.
func (r SourceMapRules) toMap() sourcemap.Map {
	m := make(sourcemap.Map, 0, len(r))
	for _, rule := range r {
		to := ""
		if rule.To != nil {
			to = *rule.To
		}
		m = append(m, sourcemap.Rule{From: rule.From, To: to})
	}
	return m
}

type stdioKind int

const (
	stdioInherit stdioKind = iota
	stdioNull
	stdioFile
	stdioPipe
)

// stdioSpec is the destination of one standard stream.
type stdioSpec struct {
	kind stdioKind
	path string
}

func parseStdioSpec(v gjson.Result) (stdioSpec, error) {
	switch v.Type {
	case gjson.Null:
		return stdioSpec{kind: stdioNull}, nil
	case gjson.String:
		switch v.Str {
		case "":
			return stdioSpec{kind: stdioInherit}, nil
		case "pipe":
			return stdioSpec{kind: stdioPipe}, nil
		}
		return stdioSpec{kind: stdioFile, path: v.Str}, nil
	}
	return stdioSpec{}, fmt.Errorf("cannot use %s as 'stdio' entry of type string or null", v.Raw)
}

// StdioConfig holds the destinations of stdin, stdout and stderr.
type StdioConfig [3]stdioSpec

func (c *StdioConfig) UnmarshalJSON(data []byte) error {
	res := gjson.ParseBytes(data)
	*c = StdioConfig{}
	switch {
	case res.IsArray():
		items := res.Array()
		if len(items) > 3 {
			return fmt.Errorf("'stdio' has %d entries, at most 3 are allowed", len(items))
		}
		for i, item := range items {
			spec, err := parseStdioSpec(item)
			if err != nil {
				return err
			}
			c[i] = spec
		}
	case res.Type == gjson.Null:
		// Same as not given.
	default:
		spec, err := parseStdioSpec(res)
		if err != nil {
			return err
		}
		for i := range c {
			c[i] = spec
		}
	}
	return nil
}

// overlayParams returns params with every top level key of args set on
// it. Keys present in args win.
func overlayParams(params, args json.RawMessage) (json.RawMessage, error) {
	if len(params) == 0 || !gjson.ParseBytes(params).IsObject() {
		return args, nil
	}
	if len(args) == 0 || gjson.ParseBytes(args).Type == gjson.Null {
		return params, nil
	}
	parsed := gjson.ParseBytes(args)
	if !parsed.IsObject() {
		return args, nil
	}
	out := append([]byte(nil), params...)
	var err error
	parsed.ForEach(func(key, value gjson.Result) bool {
		out, err = sjson.SetRawBytes(out, escapeJSONPath(key.String()), []byte(value.Raw))
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// escapeJSONPath quotes the characters that gjson and sjson paths treat
// specially.
func escapeJSONPath(key string) string {
	var b strings.Builder
	for _, c := range key {
		switch c {
		case '.', '*', '?', '|', '#', '@', '\\', ':', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// unmarshalLaunchAttachArgs wraps unmarshalling of launch/attach request's
// arguments attribute. Upon unmarshal failure, it returns an error massaged
// to be suitable for end-users.
func unmarshalLaunchAttachArgs(input json.RawMessage, config interface{}) error {
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	if err := json.Unmarshal(input, config); err != nil {
		if uerr, ok := err.(*json.UnmarshalTypeError); ok {
			// Format json.UnmarshalTypeError error string in our own way. E.g.,
			//   "json: cannot unmarshal number into Go struct field LaunchConfig.program of type string"
			//   => "cannot unmarshal number into 'program' of type string"
			typ := uerr.Type.String()
			switch uerr.Field {
			case "env":
				typ = "{string: string}"
			case "terminal":
				typ = "string"
			case "evaluateTimeout":
				typ = "number"
			}
			return fmt.Errorf("cannot unmarshal %v into %q of type %v", uerr.Value, uerr.Field, typ)
		}
		return err
	}
	return nil
}
