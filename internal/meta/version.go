package meta

import (
	"fmt"
	"runtime"
	"strings"
)

// Info describes the build context of a linehash binary.
//
// Most of it is set at build time by the Go linker, see the vars below.
type Info struct {
	Version   string
	Build     string
	Branch    string
	BuildTime string
	Platform  string
	GoVersion string
	GoTag     string
}

// These will be filled in using the linker -X flag, e.g.
//
//	go build -ldflags "-X github.com/luma/linehash/internal/meta.Version=1.0.0"
var (
	// Version as an arbitrary string
	Version string

	// Build is the Git sha from when we are building
	Build string

	// Branch is the Git branch that we are building from
	Branch string

	// BuildTimeUTC is the build time in UTC (year/month/day hour:min:sec)
	BuildTimeUTC string

	// GoTag is the Go build tags, see https://golang.org/pkg/go/build/#hdr-Build_Constraints
	GoTag string

	platform = fmt.Sprintf("%s %s", runtime.GOOS, runtime.GOARCH)
)

// GetInfo returns an Info struct populated with the build information.
func GetInfo() Info {
	return Info{
		GoVersion: runtime.Version(),
		Version:   Version,
		Build:     Build,
		Branch:    Branch,
		BuildTime: BuildTimeUTC,
		GoTag:     GoTag,
		Platform:  platform,
	}
}

// String formats the info for humans, leaving out whatever the linker did
// not fill in.
func (i Info) String() string {
	var b strings.Builder

	version := i.Version
	if version == "" {
		version = "dev"
	}

	fmt.Fprintf(&b, "linehash %s\n", version)

	if i.Build != "" {
		fmt.Fprintf(&b, "  build:     %s", i.Build)
		if i.Branch != "" {
			fmt.Fprintf(&b, " (%s)", i.Branch)
		}
		b.WriteString("\n")
	}

	if i.BuildTime != "" {
		fmt.Fprintf(&b, "  built at:  %s\n", i.BuildTime)
	}

	fmt.Fprintf(&b, "  go:        %s", i.GoVersion)
	if i.GoTag != "" {
		fmt.Fprintf(&b, " (%s)", i.GoTag)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "  platform:  %s\n", i.Platform)

	return b.String()
}
