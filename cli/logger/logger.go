package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type Options struct {
	LogLevel  string `doc:"log from debug, info, warn or error"`
	LogFile   string `doc:"append logs to file, - for stdout"`
	LogFormat string `doc:"format logs as text or json"        default:"text"`
	LogSource bool   `doc:"add the source file and line to every log"`
}

func level(option string) (slog.Leveler, bool) {
	switch strings.ToLower(option) {
	case "":
		return nil, true
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return nil, false
	}
}

// New returns a logger configured by options. Invalid options fall back to
// their default and the fallback is logged as a warning.
func New(options *Options) *slog.Logger {
	return newLogger(options, os.Stdout)
}

func newLogger(options *Options, stdout io.Writer) *slog.Logger {
	level, ok := level(options.LogLevel)
	if !ok {
		bad := options.LogLevel
		options.LogLevel = ""
		logger := newLogger(options, stdout)
		logger.Warn("could not parse logger level", "level", bad)
		return logger
	}
	opts := slog.HandlerOptions{Level: level, AddSource: options.LogSource}

	var output io.Writer
	switch options.LogFile {
	case "", "-":
		output = stdout
	case os.DevNull:
		return slog.New(slog.DiscardHandler)
	default:
		var err error
		output, err = os.OpenFile(options.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			options.LogFile = ""
			logger := newLogger(options, stdout)
			logger.Warn("could not open logger file", "err", err)
			return logger
		}
	}

	switch strings.ToLower(options.LogFormat) {
	case "json":
		return slog.New(slog.NewJSONHandler(output, &opts))
	case "", "text":
		return slog.New(slog.NewTextHandler(output, &opts))
	default:
		bad := options.LogFormat
		options.LogFormat = "text"
		logger := newLogger(options, stdout)
		logger.Warn("could not parse logger format", "format", bad)
		return logger
	}
}
