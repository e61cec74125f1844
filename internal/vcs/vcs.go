package vcs

import (
	"fmt"
	"runtime/debug"
)

const shortRevision = 12

type Info struct {
	Version   string
	Revision  string
	Time      string
	Modified  bool
	GoVersion string
}

// Get collects version details embedded by the Go toolchain at build time
func Get() Info {
	info := Info{
		Version:   "dev",
		GoVersion: "unknown",
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}

	info.GoVersion = bi.GoVersion
	if v := bi.Main.Version; v != "" && v != "(devel)" {
		info.Version = v
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Revision = s.Value
		case "vcs.modified":
			info.Modified = s.Value == "true"
		case "vcs.time":
			info.Time = s.Value
		}
	}

	return info
}

// String renders "<version>" or "<version> (<revision>[-dirty])".
func (i Info) String() string {
	if i.Revision == "" {
		return i.Version
	}

	rev := i.Revision
	if len(rev) > shortRevision {
		rev = rev[:shortRevision]
	}
	if i.Modified {
		rev += "-dirty"
	}
	return fmt.Sprintf("%s (%s)", i.Version, rev)
}
