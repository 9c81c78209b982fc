package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger

	thresholdsMu sync.RWMutex
	thresholds   = map[string]zerolog.Level{}
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger
func Init(cfg Config) {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

func parseLevel(l Level) zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case InfoLevel:
		return zerolog.InfoLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetCategoryThreshold implements the `--log category.threshold=level`
// filter: a per-component minimum level that overrides the global one.
func SetCategoryThreshold(category string, level Level) {
	thresholdsMu.Lock()
	defer thresholdsMu.Unlock()
	thresholds[category] = parseLevel(level)
}

func categoryThreshold(category string) (zerolog.Level, bool) {
	thresholdsMu.RLock()
	defer thresholdsMu.RUnlock()
	lvl, ok := thresholds[category]
	return lvl, ok
}

// WithComponent creates a child logger with component field, honoring any
// threshold registered for that component via SetCategoryThreshold.
func WithComponent(component string) zerolog.Logger {
	logger := Logger.With().Str("component", component).Logger()
	if lvl, ok := categoryThreshold(component); ok {
		logger = logger.Level(lvl)
	}
	return logger
}

// WithHost creates a child logger scoped to a simulated host.
func WithHost(hostname string) zerolog.Logger {
	return Logger.With().Str("host", hostname).Logger()
}

// WithActor creates a child logger scoped to a simulated actor (daemon).
func WithActor(actorName string) zerolog.Logger {
	return Logger.With().Str("actor", actorName).Logger()
}

// WithMailbox creates a child logger scoped to a mailbox name.
func WithMailbox(mailbox string) zerolog.Logger {
	return Logger.With().Str("mailbox", mailbox).Logger()
}

// WithSimTime attaches the current virtual simulation time to a logger.
func WithSimTime(logger zerolog.Logger, simTime float64) zerolog.Logger {
	return logger.With().Float64("sim_time", simTime).Logger()
}

func Info(msg string)  { Logger.Info().Msg(msg) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Warn(msg string)  { Logger.Warn().Msg(msg) }
func Error(msg string) { Logger.Error().Msg(msg) }

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) { Logger.Fatal().Msg(msg) }
