package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes the application log.
type Config struct {
	Level       string
	Format      string
	OutputPaths []string
	Audit       AuditConfig
}

// AuditConfig describes the rotated audit log that receives interaction
// records.
type AuditConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type loggers struct {
	app     *slog.Logger
	audit   *slog.Logger
	closers []io.Closer
}

var (
	mu      sync.RWMutex
	current *loggers
)

// Init builds the application and audit loggers and installs them as the
// process-wide loggers. Calling Init again replaces and closes the previous
// outputs.
func Init(cfg Config) error {
	next, err := build(cfg)
	if err != nil {
		return err
	}

	mu.Lock()
	prev := current
	current = next
	mu.Unlock()

	slog.SetDefault(next.app)
	if prev != nil {
		closeAll(prev.closers)
	}
	return nil
}

func build(cfg Config) (*loggers, error) {
	out := &loggers{}

	writer, closers, err := outputWriter(cfg.OutputPaths)
	if err != nil {
		return nil, err
	}
	out.closers = closers
	out.app = slog.New(newHandler(cfg.Format, writer, levelOf(cfg.Level)))
	out.audit = out.app

	if cfg.Audit.Enabled {
		rotated, err := auditWriter(cfg.Audit)
		if err != nil {
			closeAll(out.closers)
			return nil, err
		}
		out.closers = append(out.closers, rotated)
		out.audit = slog.New(slog.NewJSONHandler(rotated, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return out, nil
}

func newHandler(format string, w io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// outputWriter opens every configured path. "stdout" and "stderr" name the
// process streams; anything else is an append-only file.
func outputWriter(paths []string) (io.Writer, []io.Closer, error) {
	if len(paths) == 0 {
		return os.Stdout, nil, nil
	}

	var (
		writers []io.Writer
		closers []io.Closer
	)
	for _, path := range paths {
		switch strings.ToLower(strings.TrimSpace(path)) {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				closeAll(closers)
				return nil, nil, fmt.Errorf("create log directory: %w", err)
			}
			file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				closeAll(closers)
				return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
			}
			writers = append(writers, file)
			closers = append(closers, file)
		}
	}
	if len(writers) == 1 {
		return writers[0], closers, nil
	}
	return io.MultiWriter(writers...), closers, nil
}

func auditWriter(cfg AuditConfig) (*lumberjack.Logger, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("audit log path cannot be empty when enabled")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	rotated := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
		Compress:   cfg.Compress,
	}
	if cfg.MaxSizeMB > 0 {
		rotated.MaxSize = cfg.MaxSizeMB
	}
	if cfg.MaxBackups > 0 {
		rotated.MaxBackups = cfg.MaxBackups
	}
	if cfg.MaxAgeDays > 0 {
		rotated.MaxAge = cfg.MaxAgeDays
	}
	return rotated, nil
}

func levelOf(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		if strings.EqualFold(strings.TrimSpace(level), "warning") {
			return slog.LevelWarn
		}
		return slog.LevelInfo
	}
	return l
}

func closeAll(closers []io.Closer) error {
	var err error
	for _, c := range closers {
		err = errors.Join(err, c.Close())
	}
	return err
}

func loaded() *loggers {
	mu.RLock()
	l := current
	mu.RUnlock()
	if l != nil {
		return l
	}
	_ = Init(Config{})
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// L returns the application logger, initialising a JSON stdout logger on
// first use.
func L() *slog.Logger {
	return loaded().app
}

// Audit returns the audit logger. Without a configured audit file it is the
// application logger.
func Audit() *slog.Logger {
	return loaded().audit
}

// Sync closes file outputs. Loggers keep working on the process streams.
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		return nil
	}
	err := closeAll(current.closers)
	current.closers = nil
	return err
}

// Named tags the application logger with a component name.
func Named(name string) *slog.Logger {
	return L().With(slog.String("component", name))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type requestIDKey struct{}

// WithRequestID stores a request id on ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id stored on ctx, if any.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// FromContext returns base tagged with the request id of ctx.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = L()
	}
	if id := RequestID(ctx); id != "" {
		return base.With(slog.String("request_id", id))
	}
	return base
}
