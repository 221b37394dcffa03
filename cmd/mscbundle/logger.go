package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ZebulonRouseFrantzich/mscbundle/internal/config"
)

const (
	logDir        = "logs"
	logFileName   = "mscbundle.log"
	logMaxSizeMB  = 10
	logMaxBackups = 3
	logMaxAgeDays = 30
)

// zeroLogger adapts a zerolog.Logger to config.Logger.
type zeroLogger struct {
	l zerolog.Logger
}

func (z zeroLogger) Debug(msg string, kv ...interface{}) { z.l.Debug().Fields(kv).Msg(msg) }
func (z zeroLogger) Info(msg string, kv ...interface{})  { z.l.Info().Fields(kv).Msg(msg) }
func (z zeroLogger) Warn(msg string, kv ...interface{})  { z.l.Warn().Fields(kv).Msg(msg) }
func (z zeroLogger) Error(msg string, kv ...interface{}) { z.l.Error().Fields(kv).Msg(msg) }

func newZeroLogger(w io.Writer, verbose bool) config.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zeroLogger{l: zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

// newLogger logs to stderr and to a rotating file under stagingDir. If the
// log file cannot be created it logs to stderr only.
func newLogger(stagingDir string, verbose bool) (config.Logger, func()) {
	console := consoleWriter()

	file, err := logFileWriter(stagingDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		return newZeroLogger(console, verbose), func() {}
	}

	return newZeroLogger(zerolog.MultiLevelWriter(console, file), verbose), func() { _ = file.Close() }
}

func consoleWriter() io.Writer {
	if term.IsTerminal(int(os.Stderr.Fd())) && os.Getenv("NO_COLOR") == "" {
		return zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.Kitchen,
		}
	}
	return os.Stderr
}

func logFileWriter(stagingDir string) (io.WriteCloser, error) {
	dir := filepath.Join(stagingDir, logDir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, logFileName),
		MaxSize:    logMaxSizeMB,
		MaxBackups: logMaxBackups,
		MaxAge:     logMaxAgeDays,
	}, nil
}
