// Package buildinfo carries the version stamp set with -ldflags -X.
package buildinfo

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Short returns a compact build identifier for the window title.
func Short() string {
	switch {
	case Version != "" && Version != "dev":
		return Version
	case Commit != "" && Commit != "unknown":
		return Commit
	}
	return "dev"
}

// Long returns version, commit and build date for start-up logs.
func Long() string {
	return Version + " (" + Commit + ", " + Date + ")"
}
