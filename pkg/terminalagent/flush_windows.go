package terminalagent

import (
	"os"

	"golang.org/x/sys/windows"
)

var (
	kernel32                    = windows.NewLazySystemDLL("kernel32.dll")
	procFlushConsoleInputBuffer = kernel32.NewProc("FlushConsoleInputBuffer")
)

func flushInput(*os.File) error {
	h, err := windows.GetStdHandle(windows.STD_INPUT_HANDLE)
	if err != nil {
		return err
	}
	if err := procFlushConsoleInputBuffer.Find(); err != nil {
		return err
	}
	r, _, err := procFlushConsoleInputBuffer.Call(uintptr(h))
	if r == 0 {
		return err
	}
	return nil
}
