package log

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

var (
	mu     sync.Mutex
	logger zerolog.Logger
	inited bool
)

// initLogger initializes the global logger to write to stderr with timestamps.
// Callers must hold mu.
func initLogger() {
	if inited {
		return
	}
	logger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	inited = true
}

func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	initLogger()
	switch l {
	case LevelDebug:
		logger = logger.Level(zerolog.DebugLevel)
	case LevelInfo:
		logger = logger.Level(zerolog.InfoLevel)
	case LevelError:
		logger = logger.Level(zerolog.ErrorLevel)
	}
}

// Console switches the global logger to human-readable console output
// for interactive/debug runs.
func Console() {
	mu.Lock()
	defer mu.Unlock()
	initLogger()
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(logger.GetLevel())
}

func Debug(msg string, kv ...any) {
	withFields(get().Debug(), kv).Msg(msg)
}

func Info(msg string, kv ...any) {
	withFields(get().Info(), kv).Msg(msg)
}

func Error(msg string, err error, kv ...any) {
	withFields(get().Error().Err(err), kv).Msg(msg)
}

func get() *zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	initLogger()
	l := logger
	return &l
}

// withFields appends structured key-value pairs to a zerolog event.
// Expects kv as pairs: key, value, key, value, ...; a non-string key or
// a trailing odd argument is skipped.
func withFields(evt *zerolog.Event, kv []any) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		evt = evt.Interface(key, kv[i+1])
	}
	return evt
}
