package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger. format is "json" or "text";
// verbose forces debug level.
func Init(level, format string, verbose bool) {
	var writer io.Writer = zerolog.NewConsoleWriter()
	if format == "json" {
		writer = os.Stdout
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if verbose {
		lvl = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(writer).
		With().
		Timestamp().
		Str("service", "juicebox-tweeter").
		Logger().
		Level(lvl)
}
