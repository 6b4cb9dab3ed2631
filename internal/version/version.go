// Package version holds build metadata, set at link time:
//
//	go build -ldflags "-X github.com/MrSnakeDoc/nexus/internal/version.Version=v0.3.0 \
//	  -X github.com/MrSnakeDoc/nexus/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

import (
	"runtime"
	"time"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = time.Now().UTC().Format(time.RFC3339)
	GoVersion = runtime.Version()
)

// String is the one-line build summary logged at startup.
func String() string {
	return "nexusd " + Version + " (commit=" + Commit + ", built=" + BuildDate + ", " + GoVersion + ")"
}
