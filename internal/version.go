// Package internal holds build information shared by the commands.
package internal

// Version is the build version, overridden at build time with
// -ldflags "-X github.com/vocdoni/ticketvote/internal.Version=...".
var Version = "dev"
