package terminalagent

import (
	"os"

	"golang.org/x/sys/unix"
)

func flushInput(f *os.File) error {
	return unix.IoctlSetInt(int(f.Fd()), unix.TCFLSH, unix.TCIFLUSH)
}
