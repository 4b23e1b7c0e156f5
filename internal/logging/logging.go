// Package logging configures the process-wide slog logger: colored text on
// the console and, optionally, rotating JSON lines in a file.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level string
	// File enables the JSON file sink when non-empty.
	File       string
	MaxSize    string // human size, e.g. "10MB"
	MaxBackups int
	MaxAgeDays int

	// Console defaults to colorable stdout.
	Console io.Writer
	NoColor bool
}

// Logging owns the sinks behind a logger. The level can be changed at
// runtime without rebuilding handlers.
type Logging struct {
	Logger *slog.Logger

	level *slog.LevelVar
	file  *lumberjack.Logger
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("未知日志级别: %q", s)
	}
}

// maxSizeMB converts a human size to lumberjack's megabyte unit, rounding
// up so that small values still rotate.
func maxSizeMB(s string) (int, error) {
	if strings.TrimSpace(s) == "" {
		return 10, nil
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("无法解析日志大小 %q: %w", s, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("日志大小必须大于 0: %q", s)
	}
	const mb = 1 << 20
	return int((n + mb - 1) / mb), nil
}

func New(opts Options) (*Logging, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	l := &Logging{level: new(slog.LevelVar)}
	l.level.Set(lvl)

	console := opts.Console
	noColor := opts.NoColor
	if console == nil {
		console = colorable.NewColorableStdout()
		noColor = noColor || !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())
	}
	handlers := []slog.Handler{
		tint.NewHandler(console, &tint.Options{
			Level:      l.level,
			TimeFormat: time.DateTime,
			NoColor:    noColor,
		}),
	}

	if opts.File != "" {
		size, err := maxSizeMB(opts.MaxSize)
		if err != nil {
			return nil, err
		}
		l.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    size,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		handlers = append(handlers, slog.NewJSONHandler(l.file, &slog.HandlerOptions{Level: l.level}))
	}

	l.Logger = slog.New(fanout(handlers))
	return l, nil
}

// Setup builds a logger and installs it as the slog default.
func Setup(opts Options) (*Logging, error) {
	l, err := New(opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(l.Logger)
	return l, nil
}

func (l *Logging) SetLevel(s string) error {
	lvl, err := ParseLevel(s)
	if err != nil {
		return err
	}
	l.level.Set(lvl)
	return nil
}

func (l *Logging) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
