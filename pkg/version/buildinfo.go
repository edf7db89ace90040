package version

import (
	"runtime/debug"
	"strings"
)

func init() {
	buildInfo = moduleBuildInfo
}

// moduleBuildInfo lists the main module and the dependencies linked into
// the adapter, one per line, followed by the VCS stamp if any.
func moduleBuildInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "not built in module mode"
	}

	var sb strings.Builder
	line := func(kind string, m *debug.Module) {
		sb.WriteString(" " + kind + "\t" + m.Path + "\t" + m.Version)
		if m.Replace != nil {
			sb.WriteString("\t=> " + m.Replace.Path + "\t" + m.Replace.Version)
		}
		sb.WriteString("\n")
	}
	line("mod", &info.Main)
	for _, dep := range info.Deps {
		line("dep", dep)
	}
	for _, s := range info.Settings {
		if strings.HasPrefix(s.Key, "vcs.") || s.Key == "CGO_ENABLED" {
			sb.WriteString(" build\t" + s.Key + "=" + s.Value + "\n")
		}
	}
	return sb.String()
}
