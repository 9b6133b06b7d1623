package appconfig

import (
	"fmt"
	"io"

	"github.com/k0kubun/pp"
)

// ShowConfig prints the current configuration summary with secrets masked.
func ShowConfig(out io.Writer, cfg *Config) {
	if cfg == nil {
		fmt.Fprintln(out, "configuration is not initialized")
		return
	}
	if cfg.ConfigPath == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults, environment and flags).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", cfg.ConfigPath)
	}

	fmt.Fprintln(out, "Current configuration:")
	pp.ColoringEnabled = false
	pp.Fprintln(out, cfg.Redacted())

	fmt.Fprintf(out, "\n  Request Timeout: %s\n", cfg.RequestTimeout())
	fmt.Fprintf(out, "  Emit Interval:   %s\n", cfg.EmitIntervalDuration())
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(out, "  Problem:         %v\n", err)
	}
}
