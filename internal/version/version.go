package version

import "strings"

const MajorVersion = "1"

var version = ""
var commit = ""

// Version returns the version, injected at build time with
// -ldflags "-X ely.by/changeskin/internal/version.version=1.2.3"
func Version() string {
	if version == "" {
		return MajorVersion + ".0.0-dev"
	}

	return strings.TrimPrefix(version, "v")
}

func Commit() string {
	if commit == "" {
		return "<unknown>"
	}

	return commit
}
