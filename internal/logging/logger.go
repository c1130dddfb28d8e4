package logging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"

	"meteostation/internal/config"
)

const (
	ansiReset   = "\x1b[0m"
	ansiGray    = "\x1b[90m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

var (
	tokenPattern = regexp.MustCompile(`"(?:[^"\\]|\\.)*"|\b\d{1,3}(?:\.\d{1,3}){3}(?::\d+)?\b|\b-?\d+(?:\.\d+)?\b`)
	ipPattern    = regexp.MustCompile(`^\d{1,3}(?:\.\d{1,3}){3}(?::\d+)?$`)
)

// New creates logger that writes to configured console/file sinks.
// Params: cfg logging config.
// Returns: logger, close function and error.
func New(cfg config.LogConfig) (*slog.Logger, func(), error) {
	handlers := make([]slog.Handler, 0, 2)
	closers := make([]io.Closer, 0, 1)

	if cfg.Console.Enabled {
		var out io.Writer = os.Stdout
		if cfg.Console.Format != "json" && useColor(cfg.Console.Color, os.Stdout) {
			out = &colorLineWriter{dst: os.Stdout}
		}
		handler, err := newHandler(out, cfg.Console)
		if err != nil {
			return nil, nil, fmt.Errorf("console sink: %w", err)
		}
		handlers = append(handlers, handler)
	}

	if cfg.File.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.File.Path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		file, err := os.OpenFile(cfg.File.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %q: %w", cfg.File.Path, err)
		}
		handler, err := newHandler(file, cfg.File)
		if err != nil {
			_ = file.Close()
			return nil, nil, fmt.Errorf("file sink: %w", err)
		}
		handlers = append(handlers, handler)
		closers = append(closers, file)
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, nil)
	case 1:
		handler = handlers[0]
	default:
		handler = fanoutHandler{handlers: handlers}
	}

	var once sync.Once
	closeFn := func() {
		once.Do(func() {
			for _, closer := range closers {
				_ = closer.Close()
			}
		})
	}

	return slog.New(handler), closeFn, nil
}

// newHandler builds one slog handler for a sink.
// Params: out destination writer; sink format/level options.
// Returns: handler or error for unsupported values.
func newHandler(out io.Writer, sink config.LogSinkConfig) (slog.Handler, error) {
	level, err := ParseLevel(sink.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(strings.TrimSpace(sink.Format)) {
	case "", "line":
		return slog.NewTextHandler(out, opts), nil
	case "json":
		return slog.NewJSONHandler(out, opts), nil
	default:
		return nil, fmt.Errorf("unsupported format %q", sink.Format)
	}
}

// ParseLevel maps config level names to slog levels.
// Params: value level name.
// Returns: slog level or error.
func ParseLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported level %q", value)
	}
}

// useColor resolves console color mode.
// Params: mode auto/always/never; file console descriptor.
// Returns: true when ANSI colors should be written.
func useColor(mode string, file *os.File) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	default:
		fd := file.Fd()
		return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	}
}

type fanoutHandler struct {
	handlers []slog.Handler
}

// Enabled reports whether any child handler accepts level.
func (h fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle forwards record copies to enabled child handlers.
// Params: ctx request context; record log record.
// Returns: joined child errors.
func (h fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for idx, handler := range h.handlers {
		next[idx] = handler.WithAttrs(attrs)
	}
	return fanoutHandler{handlers: next}
}

func (h fanoutHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for idx, handler := range h.handlers {
		next[idx] = handler.WithGroup(name)
	}
	return fanoutHandler{handlers: next}
}

// colorLineWriter colorizes slog text lines by level and highlights value tokens.
type colorLineWriter struct {
	dst io.Writer
}

// Write renders one log line with ANSI colors.
// Params: p one text handler line.
// Returns: len(p) on success to satisfy io.Writer contract.
func (w *colorLineWriter) Write(p []byte) (int, error) {
	line := p
	newline := false
	if bytes.HasSuffix(line, []byte("\n")) {
		line = line[:len(line)-1]
		newline = true
	}

	base := levelColor(line)
	if base == "" {
		if _, err := w.dst.Write(p); err != nil {
			return 0, err
		}
		return len(p), nil
	}

	var out bytes.Buffer
	out.Grow(len(p) + 64)
	out.WriteString(base)
	last := 0
	for _, loc := range tokenPattern.FindAllIndex(line, -1) {
		out.Write(line[last:loc[0]])
		token := line[loc[0]:loc[1]]
		out.WriteString(tokenColor(token))
		out.Write(token)
		out.WriteString(ansiReset)
		out.WriteString(base)
		last = loc[1]
	}
	out.Write(line[last:])
	out.WriteString(ansiReset)
	if newline {
		out.WriteByte('\n')
	}

	if _, err := w.dst.Write(out.Bytes()); err != nil {
		return 0, err
	}
	return len(p), nil
}

// levelColor picks base color from level attribute.
// Params: line text handler output.
// Returns: ANSI sequence or empty string for unknown levels.
func levelColor(line []byte) string {
	switch {
	case bytes.Contains(line, []byte("level=DEBUG")):
		return ansiGray
	case bytes.Contains(line, []byte("level=INFO")):
		return ansiBlue
	case bytes.Contains(line, []byte("level=WARN")):
		return ansiMagenta
	case bytes.Contains(line, []byte("level=ERROR")):
		return ansiRed
	default:
		return ""
	}
}

// tokenColor picks highlight color for one matched token.
func tokenColor(token []byte) string {
	switch {
	case token[0] == '"':
		return ansiGreen
	case ipPattern.Match(token):
		return ansiCyan
	default:
		return ansiYellow
	}
}
