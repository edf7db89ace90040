package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Version represents the current version of sbdap.
type Version struct {
	Major    string
	Minor    string
	Patch    string
	Metadata string
	Build    string
}

// AdapterVersion is the current version of sbdap.
var AdapterVersion = Version{
	Major: "0", Minor: "9", Patch: "0", Metadata: "",
	Build: "$Id$",
}

func (v Version) String() string {
	fixBuild(&v)
	ver := fmt.Sprintf("Version: %s.%s.%s", v.Major, v.Minor, v.Patch)
	if v.Metadata != "" {
		ver += "-" + v.Metadata
	}
	return fmt.Sprintf("%s\nBuild: %s", ver, v.Build)
}

// Short returns the dotted version without build information, as reported
// to DAP clients in the initialize response.
func (v Version) Short() string {
	ver := v.Major + "." + v.Minor + "." + v.Patch
	if v.Metadata != "" {
		ver += "-" + v.Metadata
	}
	return ver
}

var buildInfo = func() string {
	return ""
}

func BuildInfo() string {
	return fmt.Sprintf("%s\n%s", runtime.Version(), buildInfo())
}

func fixBuild(v *Version) {
	// Keep an explicitly stamped build, replace the unexpanded ident.
	if !strings.HasPrefix(v.Build, "$Id$") {
		return
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			v.Build = setting.Value
			return
		}
	}
}
