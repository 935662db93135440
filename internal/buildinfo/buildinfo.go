package buildinfo

import "runtime/debug"

// Set with -ldflags "-X beamsched/internal/buildinfo.Version=..." at build time.
var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// Info reports the build stamp, filling the commit from the embedded VCS
// settings when the linker did not set it.
func Info() map[string]string {
	commit, builtAt := Commit, BuiltAt
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch {
			case s.Key == "vcs.revision" && commit == "":
				commit = s.Value
			case s.Key == "vcs.time" && builtAt == "":
				builtAt = s.Value
			}
		}
	}
	return map[string]string{
		"version": Version,
		"commit":  commit,
		"builtAt": builtAt,
	}
}
