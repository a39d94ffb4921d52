package observability

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// InitLogger builds the console logger handed to sessions and servers.
func InitLogger(app string, level zerolog.Level) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).Level(level).With().Timestamp().Str("app", app).Logger()
}
