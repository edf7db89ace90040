package weaklink

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-delve/sbdap/pkg/logflags"
)

// debugServerNames are the engine's remote stub binaries, looked up next
// to the library and in a sibling bin directory.
var debugServerNames = []string{"lldb-server", "debugserver", "lldb-server.exe"}

// PrepareSearchPath sets up the environment so that the library at
// libPath, its dependencies and the helper processes it spawns are found.
// It must run before Open.
func PrepareSearchPath(libPath string) error {
	log := logflags.LoaderLogger()
	dir := filepath.Dir(libPath)

	if os.Getenv("LLDB_DEBUGSERVER_PATH") == "" {
		if p := findDebugServer(dir); p != "" {
			log.Debugf("using debug server %s", p)
			os.Setenv("LLDB_DEBUGSERVER_PATH", p)
		}
	}

	if v := loaderPathVar(); v != "" {
		prependPathList(v, dir)
	}
	return setDllDirectory(dir)
}

func findDebugServer(dir string) string {
	for _, d := range []string{dir, filepath.Join(dir, "..", "bin")} {
		for _, name := range debugServerNames {
			p := filepath.Join(d, name)
			if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
				return p
			}
		}
	}
	return ""
}

// loaderPathVar returns the dynamic loader variable inherited by the
// engine's helper processes.
func loaderPathVar() string {
	switch runtime.GOOS {
	case "linux", "freebsd":
		return "LD_LIBRARY_PATH"
	case "darwin":
		return "DYLD_LIBRARY_PATH"
	}
	return ""
}

func prependPathList(name, dir string) {
	old := os.Getenv(name)
	for _, p := range filepath.SplitList(old) {
		if p == dir {
			return
		}
	}
	if old == "" {
		os.Setenv(name, dir)
		return
	}
	os.Setenv(name, strings.Join([]string{dir, old}, string(os.PathListSeparator)))
}
