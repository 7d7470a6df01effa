// Package logging configures the zap logger for aiden-watch. The TUI owns
// the terminal, so logs always go to a file.
package logging

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultLogPath returns the default log file path (~/.aiden/aiden-watch.log).
func DefaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "aiden-watch.log")
	}
	return filepath.Join(home, ".aiden", "aiden-watch.log")
}

// ParseLevel converts a log level string to a zap level.
// Valid values: "debug", "info", "warn", "error" (case-insensitive).
// Returns InfoLevel for unrecognized values.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Setup builds a JSON logger that appends to path.
// If path is empty, uses DefaultLogPath().
// Returns a cleanup function that flushes and closes the log file.
func Setup(path string, level zapcore.Level) (*zap.Logger, func(), error) {
	if path == "" {
		path = DefaultLogPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, err
	}

	logger := New(zapcore.AddSync(f), level)
	cleanup := func() {
		_ = logger.Sync()
		f.Close()
	}
	return logger, cleanup, nil
}

// New builds a JSON logger writing to w.
func New(w zapcore.WriteSyncer, level zapcore.Level) *zap.Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "time"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), w, level)
	return zap.New(core, zap.AddCaller())
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}

// LogPanic logs a panic with stack trace. Use in a defer at the start of
// goroutines:
//
//	defer logging.LogPanic(logger, "refetch", nil)
func LogPanic(logger *zap.Logger, name string, onRecover func(any)) {
	if r := recover(); r != nil {
		logger.Error("panic recovered",
			zap.String("goroutine", name),
			zap.Any("panic", r),
			zap.ByteString("stack", captureStack()))
		if onRecover != nil {
			onRecover(r)
		}
	}
}

func captureStack() []byte {
	buf := make([]byte, 4096)
	for {
		n := runtime.Stack(buf, false)
		if n < len(buf) {
			return buf[:n]
		}
		buf = make([]byte, len(buf)*2)
	}
}
