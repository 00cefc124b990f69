package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger создаёт настроенный zerolog. Дополнительные writers получают те же записи, что и stdout.
func NewLogger(appEnv string, extra ...io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "dev" {
		level = zerolog.DebugLevel
	}
	var out io.Writer = os.Stdout
	if len(extra) > 0 {
		writers := append([]io.Writer{os.Stdout}, extra...)
		out = zerolog.MultiLevelWriter(writers...)
	}
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(out).With().Timestamp().Logger().Level(level)
}
