package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Common log attribute keys.
const (
	KeyComponent = "component"
	KeyTool      = "tool"
	KeyBackend   = "backend"
	KeyTransport = "transport"
	KeyStatus    = "status"
	KeyError     = "error"
	KeyEventID   = "event_id"
)

// New builds a text logger at the named level ("debug", "info", "warn", "error").
// Unknown levels fall back to info.
func New(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops every record. Used when callers pass nil.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns logger, or a discarding logger when it is nil.
func OrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return Discard()
	}
	return logger
}

// WithComponent returns a logger with the component attribute set.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return OrDiscard(logger).With(slog.String(KeyComponent, component))
}

func Tool(name string) slog.Attr {
	return slog.String(KeyTool, name)
}

func Backend(name string) slog.Attr {
	return slog.String(KeyBackend, name)
}

func Transport(name string) slog.Attr {
	return slog.String(KeyTransport, name)
}

func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

func EventID(id string) slog.Attr {
	return slog.String(KeyEventID, id)
}

// Err returns the error attribute, or an empty group that slog omits when err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// SanitizeToken masks a secret, keeping only its length.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}

// Truncate shortens s for log output.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
