// Package version identifies a lemuria build and the Asphodel protocol
// revision it emulates.
package version

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/muurk/lemuria/internal/protocol"
)

// Release builds stamp these with
//
//	go build -ldflags="-X github.com/muurk/lemuria/internal/version.Version=v1.0.0 \
//	                   -X github.com/muurk/lemuria/internal/version.Commit=abc1234" ./cmd/lemuria
//
// Other builds derive them from the VCS stamp in the binary.
var (
	Version = ""
	Commit  = ""
)

func init() {
	if Version == "" || Commit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			v, c := fromBuildSettings(info.Settings)
			if Version == "" {
				Version = v
			}
			if Commit == "" {
				Commit = c
			}
		}
	}
	if Version == "" {
		Version = "dev-" + time.Now().Format("20060102-150405")
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

// fromBuildSettings derives a dev version from the commit date and a short
// commit hash, suffixed -dirty for modified trees. Either result may be
// empty when the binary carries no VCS stamp.
func fromBuildSettings(settings []debug.BuildSetting) (version, commit string) {
	var revision, modified, vcsTime string
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value
		case "vcs.time":
			vcsTime = s.Value
		}
	}

	if revision != "" {
		commit = revision
		if len(commit) > 7 {
			commit = commit[:7]
		}
		if modified == "true" {
			commit += "-dirty"
		}
	}
	if t, err := time.Parse(time.RFC3339, vcsTime); err == nil {
		version = "dev-" + t.Format("20060102")
	}
	return version, commit
}

// Protocol returns the emulated Asphodel protocol version, e.g. "2.3.3"
func Protocol() string {
	return fmt.Sprintf("%d.%d.%d", protocol.VersionMajor, protocol.VersionMinor, protocol.VersionSubminor)
}

// Full returns the version line printed by `lemuria version`
func Full() string {
	return fmt.Sprintf("%s (commit: %s, asphodel protocol %s)", Version, Commit, Protocol())
}
