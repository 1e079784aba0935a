package version

// Overridden at build time with -ldflags.
var (
	Version = "dev"
	Commit  = ""
)

func GetVersion() string {
	return Version
}

func GetCommit() string {
	return Commit
}
