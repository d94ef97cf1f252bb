package supervisor

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"
)

// LogEntry is one parsed line (or panic block) of a worker log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"` // ERROR, WARNING, INFO, DEBUG
	Tag       string    `json:"tag,omitempty"`
	Message   string    `json:"message"`
	Raw       string    `json:"raw"`
}

// ParseWorkerLog parses worker output. Workers log zap JSON, but the browser
// and the Go runtime may write plain lines; runtime panics are folded into a
// single ERROR entry tagged PANIC.
func ParseWorkerLog(r io.Reader) []LogEntry {
	var entries []LogEntry

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var panicBlock strings.Builder
	inPanic := false

	flushPanic := func() {
		if panicBlock.Len() > 0 {
			msg := panicBlock.String()
			entries = append(entries, LogEntry{Level: "ERROR", Tag: "PANIC", Message: msg, Raw: msg})
		}
		panicBlock.Reset()
		inPanic = false
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "panic: ") || strings.HasPrefix(trimmed, "fatal error: ") {
			flushPanic()
			inPanic = true
			panicBlock.WriteString(trimmed)
			continue
		}
		if inPanic {
			if trimmed == "" || strings.HasPrefix(trimmed, "goroutine ") ||
				strings.HasPrefix(line, "\t") || strings.HasPrefix(trimmed, "exit status") ||
				strings.HasSuffix(trimmed, ")") {
				if trimmed != "" {
					panicBlock.WriteString("\n")
					panicBlock.WriteString(trimmed)
				}
				continue
			}
			flushPanic()
		}
		if trimmed == "" {
			continue
		}

		if entry, ok := parseZapLine(trimmed); ok {
			entries = append(entries, entry)
			continue
		}
		entries = append(entries, LogEntry{
			Level:     inferLevelFromMessage(trimmed),
			Message:   trimmed,
			Raw:       trimmed,
		})
	}
	if inPanic {
		flushPanic()
	}
	return entries
}

func parseZapLine(line string) (LogEntry, bool) {
	if !strings.HasPrefix(line, "{") {
		return LogEntry{}, false
	}
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return LogEntry{}, false
	}
	msg, _ := fields["msg"].(string)
	level, _ := fields["level"].(string)
	if msg == "" && level == "" {
		return LogEntry{}, false
	}

	entry := LogEntry{Level: normalizeLevel(level), Message: msg, Raw: line}
	if layer, ok := fields["layer"].(string); ok {
		entry.Tag = strings.ToUpper(layer)
	}
	if errText, ok := fields["error"].(string); ok && errText != "" {
		entry.Message += ": " + errText
	}
	if ts, ok := fields["ts"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			entry.Timestamp = parsed
		} else if parsed, err := time.Parse("2006-01-02T15:04:05.000Z0700", ts); err == nil {
			entry.Timestamp = parsed
		}
	}
	return entry, true
}

func normalizeLevel(level string) string {
	switch strings.ToLower(level) {
	case "error", "dpanic", "panic", "fatal":
		return "ERROR"
	case "warn", "warning":
		return "WARNING"
	case "debug":
		return "DEBUG"
	default:
		return "INFO"
	}
}

// inferLevelFromMessage guesses the level of a plain line.
func inferLevelFromMessage(message string) string {
	msg := strings.ToLower(message)

	for _, pattern := range []string{
		"error", "failed", "failure", "fatal", "panic", "crash",
		"segfault", "timeout", "refused", "denied", "no such file",
	} {
		if strings.Contains(msg, pattern) {
			return "ERROR"
		}
	}
	for _, pattern := range []string{"warning", "warn", "deprecated", "retry", "missing"} {
		if strings.Contains(msg, pattern) {
			return "WARNING"
		}
	}
	return "INFO"
}

// FilterErrors keeps ERROR and WARNING entries.
func FilterErrors(entries []LogEntry) []LogEntry {
	var out []LogEntry
	for _, e := range entries {
		if e.Level == "ERROR" || e.Level == "WARNING" {
			out = append(out, e)
		}
	}
	return out
}

// LastError returns the message of the last ERROR entry in the log at path.
func LastError(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	entries := ParseWorkerLog(f)
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Level == "ERROR" {
			return entries[i].Message
		}
	}
	return ""
}
