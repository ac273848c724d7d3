// Package logging configures the process-wide zerolog logger: a console
// sink on stderr plus a rotating file sink.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Init wires the global logger. filePath is the rotating log file; an empty
// path means stderr only. Verbose drops the level to debug.
func Init(verbose bool, filePath string) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	isTerminal := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    !isTerminal,
	}

	var sink io.Writer = console
	if filePath != "" {
		if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
			// Console-only beats a dead process; the degradation is logged
			// once the logger exists.
			log.Logger = zerolog.New(console).With().Timestamp().Logger()
			log.Warn().Err(err).Str("path", filePath).Msg("log file sink unavailable, stderr only")
			return
		}
		file := &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    16, // megabytes
			MaxBackups: 8,
			MaxAge:     90, // days
			Compress:   true,
		}
		sink = zerolog.MultiLevelWriter(console, file)
	}

	log.Logger = zerolog.New(sink).With().Timestamp().Logger()
}
