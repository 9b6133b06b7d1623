// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// DefaultListenAddr is the address the OpenAI-compatible server binds to when none is configured.
	DefaultListenAddr = ":8080"
	// defaultRequestTimeout is the default timeout for requests to Flowise.
	defaultRequestTimeout = 120 * time.Second
	// defaultEmitInterval is the minimum spacing between two in-progress status events.
	defaultEmitInterval = time.Second
)

// Config represents the top-level application configuration.
type Config struct {
	FlowiseURL            string  `mapstructure:"flowiseUrl" json:"flowiseUrl"`
	FlowiseAPIKey         string  `mapstructure:"flowiseApiKey" json:"flowiseApiKey,omitempty"`
	EnableStatusIndicator bool    `mapstructure:"enableStatusIndicator" json:"enableStatusIndicator"`
	EmitInterval          float64 `mapstructure:"emitInterval" json:"emitInterval"`
	TimeoutSeconds        int     `mapstructure:"timeout" json:"timeout,omitempty"`
	Debug                 bool    `mapstructure:"debug" json:"debug"`
	LogFile               string  `mapstructure:"logFile" json:"logFile,omitempty"`
	Listen                string  `mapstructure:"listen" json:"listen,omitempty"`
	ServerAPIKey          string  `mapstructure:"serverApiKey" json:"serverApiKey,omitempty"`
	Metrics               bool    `mapstructure:"metrics" json:"metrics"`
	MetricsFile           string  `mapstructure:"metricsFile" json:"metricsFile,omitempty"`
	ConfigPath            string  `mapstructure:"-" json:"-"`
}

// Default returns a configuration populated with the documented defaults.
func Default() Config {
	return Config{
		EnableStatusIndicator: true,
		EmitInterval:          defaultEmitInterval.Seconds(),
		TimeoutSeconds:        int(defaultRequestTimeout.Seconds()),
		Listen:                DefaultListenAddr,
	}
}

// RequestTimeout returns the timeout duration for Flowise requests, falling back to the default if not specified.
func (c Config) RequestTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// EmitIntervalDuration returns the status throttle interval. A zero interval disables throttling.
func (c Config) EmitIntervalDuration() time.Duration {
	if c.EmitInterval < 0 {
		return defaultEmitInterval
	}
	return time.Duration(c.EmitInterval * float64(time.Second))
}

// BaseURL returns the Flowise base URL without trailing slashes.
func (c Config) BaseURL() string {
	return strings.TrimRight(strings.TrimSpace(c.FlowiseURL), "/")
}

// ListenAddr returns the server listen address, applying a default if not set.
func (c Config) ListenAddr() string {
	if addr := strings.TrimSpace(c.Listen); addr != "" {
		return addr
	}
	return DefaultListenAddr
}

// LogFilePath returns the path to the application log file. An empty path logs to stdout only.
func (c Config) LogFilePath() string {
	return strings.TrimSpace(c.LogFile)
}

// Validate reports configuration problems that make talking to Flowise impossible.
func (c Config) Validate() error {
	base := c.BaseURL()
	if base == "" {
		return errors.New("flowise URL is not configured (set FLOWISE_API_URL or flowiseUrl)")
	}
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("invalid flowise URL %q: %w", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid flowise URL %q: scheme must be http or https", base)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid flowise URL %q: missing host", base)
	}
	if c.EmitInterval < 0 {
		return fmt.Errorf("emitInterval must not be negative, got %v", c.EmitInterval)
	}
	return nil
}

// Redacted returns a copy of the configuration with secrets masked for display.
func (c Config) Redacted() Config {
	out := c
	out.FlowiseAPIKey = mask(c.FlowiseAPIKey)
	out.ServerAPIKey = mask(c.ServerAPIKey)
	return out
}

func mask(secret string) string {
	secret = strings.TrimSpace(secret)
	switch {
	case secret == "":
		return ""
	case len(secret) <= 8:
		return "********"
	default:
		return secret[:4] + "…" + secret[len(secret)-4:]
	}
}
