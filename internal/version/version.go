package version

// Version is the current version of the liveclass binaries.
// Override at build time with:
//
//	go build -ldflags="-X 'github.com/instructify/liveclass/internal/version.Version=v1.0.0'"
var Version = "dev"
