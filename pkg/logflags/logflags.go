package logflags

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// EnvVar is the environment variable consulted for a log filter when
// --log-output is not given. It uses the same syntax as --log-output.
const EnvVar = "SBDAP_LOG"

var anyEnabled = false
var dap = false
var engine = false
var pump = false
var loader = false
var eval = false
var agent = false

var logOut io.WriteCloser

func makeLogger(level logrus.Level, fields Fields) Logger {
	if lf := loggerFactory; lf != nil {
		return lf(level, fields, logOut)
	}
	logger := logrus.New().WithFields(logrus.Fields(fields))
	logger.Logger.Formatter = DefaultFormatter()
	if logOut != nil {
		logger.Logger.Out = logOut
	} else if runtime.GOOS == "windows" {
		logger.Logger.Out = colorable.NewColorableStderr()
	}
	logger.Logger.Level = level
	return &logrusLogger{logger}
}

func makeFlaggableLogger(flag bool, fields Fields) Logger {
	if !flag {
		return makeLogger(logrus.ErrorLevel, fields)
	}
	return makeLogger(logrus.DebugLevel, fields)
}

// Any returns true if any logging is enabled.
func Any() bool {
	return anyEnabled
}

// DAP returns true if every DAP message exchanged with the client
// should be logged.
func DAP() bool {
	return dap
}

// DAPLogger returns a logger for the DAP session layer.
func DAPLogger() Logger {
	return makeFlaggableLogger(dap, Fields{"layer": "dap"})
}

// Engine returns true if calls into the debugger engine should be logged.
func Engine() bool {
	return engine
}

// EngineLogger returns a logger for the engine bindings.
func EngineLogger() Logger {
	return makeFlaggableLogger(engine, Fields{"layer": "engine"})
}

// Pump returns true if the engine event pump should be logged.
func Pump() bool {
	return pump
}

// PumpLogger returns a logger for the engine event pump.
func PumpLogger() Logger {
	return makeFlaggableLogger(pump, Fields{"layer": "dap", "kind": "pump"})
}

// Loader returns true if engine library loading and symbol resolution
// should be logged.
func Loader() bool {
	return loader
}

// LoaderLogger returns a logger for the weak-linkage loader.
func LoaderLogger() Logger {
	return makeFlaggableLogger(loader, Fields{"layer": "loader"})
}

// Eval returns true if expression evaluation should be logged.
func Eval() bool {
	return eval
}

// EvalLogger returns a logger for the evaluation executor.
func EvalLogger() Logger {
	return makeFlaggableLogger(eval, Fields{"layer": "dap", "kind": "eval"})
}

// Agent returns true if the terminal agent should log.
func Agent() bool {
	return agent
}

// AgentLogger returns a logger for the terminal agent.
func AgentLogger() Logger {
	return makeFlaggableLogger(agent, Fields{"layer": "agent"})
}

// WriteDAPListeningMessage writes the "DAP server listening" message.
func WriteDAPListeningMessage(addr net.Addr) {
	writeListeningMessage("DAP", addr)
}

func writeListeningMessage(server string, addr net.Addr) {
	msg := fmt.Sprintf("%s server listening at: %s", server, addr)
	if logOut != nil {
		fmt.Fprintln(logOut, msg)
	} else {
		fmt.Fprintln(os.Stderr, msg)
	}
}

var errLogstrWithoutLog = errors.New("--log-output specified without --log")

// Setup sets the layer flags based on the contents of logstr.
// If logDest is not empty logs will be redirected to the file descriptor or
// file path specified by logDest.
func Setup(logFlag bool, logstr, logDest string) error {
	if logDest != "" {
		n, err := strconv.Atoi(logDest)
		if err == nil {
			logOut = os.NewFile(uintptr(n), "sbdap-logs")
		} else {
			fh, err := os.Create(logDest)
			if err != nil {
				return fmt.Errorf("could not create log file: %v", err)
			}
			logOut = fh
		}
		if f, ok := logOut.(*os.File); ok {
			textFormatterInstance.colors = isatty.IsTerminal(f.Fd())
		}
	}
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if logOut != nil {
		log.SetOutput(logOut)
	}
	if !logFlag {
		log.SetOutput(io.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "dap"
	}
	anyEnabled = true
	for _, logcmd := range strings.Split(logstr, ",") {
		switch strings.TrimSpace(logcmd) {
		case "all":
			dap, engine, pump, loader, eval, agent = true, true, true, true, true, true
		case "dap":
			dap = true
		case "engine":
			engine = true
		case "pump":
			pump = true
		case "loader":
			loader = true
		case "eval":
			eval = true
		case "agent":
			agent = true
		default:
			fmt.Fprintf(os.Stderr, "Warning: unknown log output value %q, run 'sbdap help log' for usage.\n", logcmd)
		}
	}
	return nil
}

// FromEnv returns the log filter found in the environment, if any.
func FromEnv() (string, bool) {
	s, ok := os.LookupEnv(EnvVar)
	s = strings.TrimSpace(s)
	return s, ok && s != ""
}

// Redirected reports whether logs go to the --log-dest destination
// rather than to stderr.
func Redirected() bool {
	return logOut != nil
}

// Close closes the logger output.
func Close() {
	if logOut != nil {
		logOut.Close()
	}
}

// textFormatter is a simplified version of logrus.TextFormatter that
// doesn't make logs unreadable when they are output to a text file or to a
// terminal that doesn't support colors.
type textFormatter struct {
	colors bool
}

func (f *textFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteString(entry.Time.Format(time.RFC3339))
	b.WriteByte(' ')
	lvl := entry.Level.String()
	if f.colors {
		lvl = colorLevel(entry.Level, lvl)
	}
	b.WriteString(lvl)
	b.WriteByte(' ')
	for _, key := range keys {
		b.WriteString(key)
		b.WriteByte('=')
		stringVal, isString := entry.Data[key].(string)
		if !isString || !needsQuoting(stringVal) {
			fmt.Fprint(b, entry.Data[key])
		} else {
			fmt.Fprintf(b, "%q", stringVal)
		}
		b.WriteByte(' ')
	}
	b.WriteString(entry.Message)
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func colorLevel(level logrus.Level, s string) string {
	var code int
	switch level {
	case logrus.DebugLevel, logrus.TraceLevel:
		code = 37
	case logrus.WarnLevel:
		code = 33
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		code = 31
	default:
		code = 36
	}
	return fmt.Sprintf("\x1b[%dm%s\x1b[0m", code, s)
}

func needsQuoting(text string) bool {
	for _, ch := range text {
		if !((ch >= 'a' && ch <= 'z') ||
			(ch >= 'A' && ch <= 'Z') ||
			(ch >= '0' && ch <= '9') ||
			ch == '-' || ch == '.' || ch == '_' || ch == '/' || ch == '@' || ch == '^' || ch == '+') {
			return true
		}
	}
	return false
}

var textFormatterInstance = &textFormatter{colors: isatty.IsTerminal(os.Stderr.Fd())}

// DefaultFormatter provides a simplified version of logrus.TextFormatter that
// doesn't make logs unreadable when they are output to a text file or to a
// terminal that doesn't support colors.
func DefaultFormatter() logrus.Formatter {
	return textFormatterInstance
}
