package main

import (
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/acquisitionist/coursectl/cmd"
	"github.com/adrg/xdg"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const logFile = "coursectl/coursectl.log"

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Console output carries coloured level prefixes
	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.Kitchen,
	}

	writers := []io.Writer{consoleWriter}

	// The log file lives under the XDG state directory, never in the
	// directory being archived.
	if path, err := xdg.StateFile(logFile); err == nil {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err == nil {
			writers = append(writers, f)
		}
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Logger()
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Recovered from panic")
			os.Exit(1)
		}
	}()

	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("coursectl failed")
		os.Exit(1)
	}
}
