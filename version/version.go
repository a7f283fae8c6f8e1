package version

// Version is overridden at build time with -ldflags "-X github.com/Daskott/haven/version.Version=..."
var Version = "0.1.0"
