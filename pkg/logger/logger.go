package logger

import (
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
)

// New builds the process logger writing to stdout.
func New(lvl string, addSource bool, environment string) *slog.Logger {
	return NewWithWriter(os.Stdout, lvl, addSource, environment)
}

// NewWithWriter builds a logger writing to w. Production environments get
// JSON output, everything else gets the text handler.
func NewWithWriter(w io.Writer, lvl string, addSource bool, environment string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(lvl),
		AddSource: addSource,
	}

	var handler slog.Handler
	if strings.ToLower(environment) == "prod" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With(
		slog.String("environment", environment),
	)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ProxyAttr renders a proxy identity for logging with any password in its
// userinfo replaced by "xxxxx".
func ProxyAttr(proxy string) slog.Attr {
	return slog.String("proxy", RedactProxy(proxy))
}

// RedactProxy strips the password from a proxy URL. Values that do not parse
// as URLs are returned unchanged; an empty proxy is reported as "direct".
func RedactProxy(proxy string) string {
	if proxy == "" {
		return "direct"
	}

	u, err := url.Parse(proxy)
	if err != nil || u.Host == "" {
		return proxy
	}

	return u.Redacted()
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
