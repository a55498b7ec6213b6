// Package log initializes the broker's structured logger using slog,
// built from a LogConfig: one io.Writer per configured output, file
// outputs wrapped in lumberjack.v2 for rotation, and a JSON or text
// slog.Handler set as the process-global default.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"shv.dev/broker/internal/config"
)

// Init builds the global slog.Logger from cfg and installs it via
// slog.SetDefault. Only internal/broker and internal/control call slog;
// the pure codec/frame/rpcmsg packages never log, so a caller can reuse
// them without inheriting unwanted log output.
func Init(cfg config.LogConfig) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("log: %w", err)
	}

	var writers []io.Writer
	for i, output := range cfg.Outputs {
		w, err := createWriter(output)
		if err != nil {
			return fmt.Errorf("log: output[%d] (%s): %w", i, output.Type, err)
		}
		writers = append(writers, w)
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}
	dest := io.MultiWriter(writers...)

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		handler = slog.NewJSONHandler(dest, opts)
	case "text":
		handler = slog.NewTextHandler(dest, opts)
	default:
		return fmt.Errorf("log: unsupported format %q (must be json or text)", cfg.Format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown level %q", s)
	}
}

func createWriter(output config.LogOutputConfig) (io.Writer, error) {
	switch strings.ToLower(output.Type) {
	case "console", "stdout", "":
		return os.Stdout, nil
	case "file":
		if output.Path == "" {
			return nil, fmt.Errorf("file output requires a path")
		}
		return &lumberjack.Logger{
			Filename:   output.Path,
			MaxSize:    output.Rotation.MaxSizeMB,
			MaxBackups: output.Rotation.MaxBackups,
			MaxAge:     output.Rotation.MaxAgeDays,
			Compress:   output.Rotation.Compress,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported output type %q", output.Type)
	}
}
