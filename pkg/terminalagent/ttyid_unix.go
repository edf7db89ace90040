//go:build unix && !linux

package terminalagent

import (
	"errors"
	"os"
	"os/exec"
	"strings"

	"github.com/mattn/go-isatty"
)

// TerminalID returns the path of the terminal f is open on.
func TerminalID(f *os.File) (string, error) {
	if !isatty.IsTerminal(f.Fd()) {
		return "", errors.New("stdout is not a terminal")
	}
	cmd := exec.Command("tty")
	cmd.Stdin = f
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
