//go:build !windows

package weaklink

func setDllDirectory(dir string) error {
	return nil
}
