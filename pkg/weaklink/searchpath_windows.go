package weaklink

import "golang.org/x/sys/windows"

func setDllDirectory(dir string) error {
	return windows.SetDllDirectory(dir)
}
