package common

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggerOptions configures the global zerolog logger.
type LoggerOptions struct {
	Level string
	// Pretty writes human readable console output instead of JSON.
	Pretty bool
	// File, when set, also writes JSON logs to a rotated file.
	File string
}

// InitLogger configures the global logger once at start-up.
func InitLogger(opts LoggerOptions) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(ParseLogLevel(opts.Level))

	var console io.Writer = os.Stderr
	if opts.Pretty {
		console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}

	writer := console
	if opts.File != "" {
		writer = zerolog.MultiLevelWriter(console, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		})
	}

	log.Logger = zerolog.New(writer).With().Timestamp().Logger()
}

// ParseLogLevel accepts zerolog level names in any case and falls back to info.
func ParseLogLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
