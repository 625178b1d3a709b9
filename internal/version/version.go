package version

// Set via -ldflags "-X filedex/internal/version.Version=...".
var Version = "0.3.0-dev"

func String() string { return Version }
