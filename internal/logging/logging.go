package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects where JSON logs go.
type Options struct {
	Level  string    // debug, info, warn or error; anything else is info
	File   string    // rotated log file, empty for Stdout only
	Stdout io.Writer // defaults to os.Stdout
}

// New builds a JSON slog.Logger. When a file is configured, records are
// written to both Stdout and a size-rotated file. The returned close func
// releases the file.
func New(opts Options) (*slog.Logger, func() error) {
	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}
	closer := func() error { return nil }

	var writer io.Writer = out
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
			logger.Error("failed to create log directory, logging to stderr", "error", err)
			return logger, closer
		}
		fileLogger := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		writer = io.MultiWriter(out, fileLogger)
		closer = fileLogger.Close
	}

	return slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: ParseLevel(opts.Level),
	})), closer
}

func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
