// Package buildinfo contains build-time metadata, set with -ldflags.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// UnknownValue is reported for metadata the build did not provide
const UnknownValue = "unknown"

// Set at link time, e.g.
// -ldflags "-X github.com/tphakala/camhal/internal/buildinfo.version=v1.2.0"
var (
	version   string
	buildDate string
)

// Context is the metadata of the running binary
type Context struct {
	Version   string
	BuildDate string
	Revision  string // VCS revision recorded by the Go toolchain
	GoVersion string
}

// NewContext returns build metadata with empty fields reported as unknown
func NewContext(version, buildDate, revision string) *Context {
	return &Context{
		Version:   orUnknown(version),
		BuildDate: orUnknown(buildDate),
		Revision:  orUnknown(revision),
		GoVersion: runtime.Version(),
	}
}

// Current returns the metadata of this binary
func Current() *Context {
	var revision string
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				revision = s.Value
			}
		}
		if version == "" && info.Main.Version != "(devel)" {
			return NewContext(info.Main.Version, buildDate, revision)
		}
	}
	return NewContext(version, buildDate, revision)
}

// String formats the metadata on one line
func (c *Context) String() string {
	if c == nil {
		return UnknownValue
	}
	rev := c.Revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return fmt.Sprintf("camhal %s (built %s, revision %s, %s)", c.Version, c.BuildDate, rev, c.GoVersion)
}

func orUnknown(s string) string {
	if s == "" {
		return UnknownValue
	}
	return s
}
