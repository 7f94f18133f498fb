// Package logger provides the process-wide zerolog logger. Lines go to stderr
// and, when a file is configured, to a size-rotated text log.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the logger.
type Options struct {
	Level     string
	Format    string // "console" or "json"
	File      string // rotating log file, empty disables it
	Component string
	Writer    io.Writer // overrides stderr, used by tests
}

// Logger is the project-wide logging type.
type Logger = zerolog.Logger

var (
	once   sync.Once
	root   atomic.Pointer[zerolog.Logger]
	closer io.Closer
)

// Get returns the root logger, initializing a console logger at info level
// if Init has not run yet.
func Get() *Logger {
	if l := root.Load(); l != nil {
		return l
	}
	Init(Options{Level: "info", Format: "console"})
	return root.Load()
}

// Init builds the root logger. Only the first call has an effect.
func Init(opt Options) {
	once.Do(func() {
		l, c := build(opt)
		root.Store(&l)
		closer = c
	})
}

// New builds a standalone logger from opt without touching the root logger.
// Its log file, if any, stays open for the life of the process.
func New(opt Options) Logger {
	l, _ := build(opt)
	return l
}

// build returns the logger and the rotating file behind it, or nil.
func build(opt Options) (Logger, io.Closer) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var out io.Writer = os.Stderr
	if opt.Writer != nil {
		out = opt.Writer
	}
	if opt.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	var file io.Closer
	if opt.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opt.File,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
		file = rotating
		// The file copy is always plain text so it stays greppable.
		plain := zerolog.ConsoleWriter{Out: rotating, TimeFormat: time.RFC3339, NoColor: true}
		out = zerolog.MultiLevelWriter(out, plain)
	}

	ctx := zerolog.New(out).Level(parseLevel(opt.Level)).With().Timestamp()
	if opt.Component != "" {
		ctx = ctx.Str("component", opt.Component)
	}
	return ctx.Logger(), file
}

// Close flushes and closes the rotating file, if any.
func Close() error {
	if closer == nil {
		return nil
	}
	return closer.Close()
}

// With returns a child of the root logger tagged with a component name.
func With(component string) Logger {
	return Get().With().Str("component", component).Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
