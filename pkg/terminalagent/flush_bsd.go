//go:build darwin || freebsd || netbsd || openbsd

package terminalagent

import (
	"os"

	"golang.org/x/sys/unix"
)

// fread is FREAD from sys/fcntl.h, selecting the input queue.
const fread = 1

func flushInput(f *os.File) error {
	return unix.IoctlSetPointerInt(int(f.Fd()), unix.TIOCFLUSH, fread)
}
