// cmd/flowpipe/main.go
package main

import (
	flowpipe "github.com/mwiater/flowpipe/internal/commands"
)

// Set at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	setVersionInfo = flowpipe.SetVersionInfo
	executeCmd     = flowpipe.Execute
)

// main delegates to the cobra root command defined in the flowpipe package.
func main() {
	setVersionInfo(version, commit, date)
	executeCmd()
}
