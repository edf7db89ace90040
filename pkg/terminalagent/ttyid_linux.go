package terminalagent

import (
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
)

// TerminalID returns the path of the terminal f is open on.
func TerminalID(f *os.File) (string, error) {
	if !isatty.IsTerminal(f.Fd()) {
		return "", errors.New("stdout is not a terminal")
	}
	return os.Readlink(fmt.Sprintf("/proc/self/fd/%d", f.Fd()))
}
