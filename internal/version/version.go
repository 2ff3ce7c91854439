// Package version holds build metadata injected with ldflags:
//
//	go build -ldflags "-X github.com/rickgao/barsync/internal/version.Version=0.3.0 \
//	                   -X github.com/rickgao/barsync/internal/version.Commit=$(git rev-parse --short HEAD)" \
//	    ./cmd/barsync
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns a one-line version banner.
func String() string {
	return fmt.Sprintf("barsync %s (%s) built %s %s", Version, commit(), BuildTime, runtime.Version())
}

// commit falls back to the VCS revision recorded by the go tool.
func commit() string {
	if Commit != "unknown" {
		return Commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Commit
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 7 {
			return s.Value[:7]
		}
	}
	return Commit
}
