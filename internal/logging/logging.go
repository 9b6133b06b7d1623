// Package logging writes flowpipe's log lines to stderr and, when configured,
// to an append-only log file.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	mu      sync.Mutex
	logFile *os.File
	debug   atomic.Bool
)

// Init routes the standard logger to stderr plus logPath. An empty logPath
// logs to stderr only. Calling Init again replaces the previous file.
func Init(logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writers []io.Writer
	writers = append(writers, os.Stderr)

	if logPath != "" {
		if dir := filepath.Dir(logPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		logFile = file
		writers = append(writers, logFile)
	}

	log.SetOutput(io.MultiWriter(writers...))
	return nil
}

// Close detaches and closes the log file opened by Init.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	log.SetOutput(os.Stderr)
	err := logFile.Close()
	logFile = nil
	return err
}

// SetDebug toggles output of LogDebug lines.
func SetDebug(enabled bool) { debug.Store(enabled) }

// DebugEnabled reports whether LogDebug lines are written.
func DebugEnabled() bool { return debug.Load() }

func LogEvent(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Println(msg)
}

// LogDebug behaves like LogEvent but only writes when debug mode is on.
func LogDebug(format string, args ...any) {
	if !debug.Load() {
		return
	}
	log.Println("[DEBUG] " + fmt.Sprintf(format, args...))
}

// LogRequest logs one exchange. direction names the hop, e.g. PIPE->FLOWISE;
// endpoint may be empty.
func LogRequest(direction, host, workflow, endpoint string, payload any) {
	log.Println(buildRequestMessage(direction, host, workflow, endpoint, payload))
}

func buildRequestMessage(direction, host, workflow, endpoint string, payload any) string {
	parts := []string{
		fmt.Sprintf("[%s]", strings.ToUpper(strings.TrimSpace(direction))),
		"host=" + orUnknown(host),
		"workflow=" + orUnknown(workflow),
	}
	if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
		parts = append(parts, "endpoint="+endpoint)
	}
	parts = append(parts, "payload="+formatPayload(payload))
	return strings.Join(parts, " ")
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return "unknown"
}

func formatPayload(payload any) string {
	switch v := payload.(type) {
	case nil:
		return "null"
	case string:
		if strings.TrimSpace(v) == "" {
			return `""`
		}
		return v
	case []byte:
		if len(v) == 0 {
			return "[]"
		}
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
