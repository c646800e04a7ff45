package build

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btclog/v2"
)

// NewSubLogger constructs a new subsystem logger. If genSubLogger is nil,
// logging for the subsystem is disabled until the package's UseLogger is
// called with a real logger.
func NewSubLogger(subsystem string,
	genSubLogger func(string) btclog.Logger) btclog.Logger {

	if genSubLogger != nil {
		return genSubLogger(subsystem)
	}

	return btclog.Disabled
}

// SubLoggers is a type that holds a map of subsystem loggers keyed by their
// subsystem name.
type SubLoggers map[string]btclog.Logger

// LeveledSubLogger provides the ability to retrieve the subsystem loggers of
// a logger and set their log levels individually or all at once.
type LeveledSubLogger interface {
	// SubLoggers returns the map of all registered subsystem loggers.
	SubLoggers() SubLoggers

	// SupportedSubsystems returns a slice of strings containing the names
	// of the supported subsystems. Should ideally correspond to the keys
	// of the subsystem logger map and be sorted.
	SupportedSubsystems() []string

	// SetLogLevel assigns an individual subsystem logger a new log level.
	SetLogLevel(subsystemID string, logLevel string)

	// SetLogLevels assigns all subsystem loggers the same new log level.
	SetLogLevels(logLevel string)
}

// ParseAndSetDebugLevels applies a debug level spec of the form
// "<global>,<subsystem>=<level>,...". The global level is optional and, when
// present, must come first. Nothing is changed if any part of the spec is
// invalid.
func ParseAndSetDebugLevels(level string, logger LeveledSubLogger) error {
	fields := strings.Split(level, ",")

	var global string
	if !strings.Contains(fields[0], "=") {
		global, fields = fields[0], fields[1:]
		if !validLogLevel(global) {
			return fmt.Errorf("invalid debug level %q", global)
		}
	}

	known := logger.SubLoggers()
	overrides := make(map[string]string, len(fields))
	for _, field := range fields {
		subsystem, subLevel, ok := strings.Cut(field, "=")
		if !ok || strings.Contains(subLevel, "=") {
			return fmt.Errorf("invalid subsystem level %q, want "+
				"<subsystem>=<level>", field)
		}

		if _, exists := known[subsystem]; !exists {
			return fmt.Errorf("unknown subsystem %q, supported "+
				"subsystems are %v", subsystem,
				logger.SupportedSubsystems())
		}

		if !validLogLevel(subLevel) {
			return fmt.Errorf("invalid debug level %q for %v",
				subLevel, subsystem)
		}

		overrides[subsystem] = subLevel
	}

	if global != "" {
		logger.SetLogLevels(global)
	}
	for subsystem, subLevel := range overrides {
		logger.SetLogLevel(subsystem, subLevel)
	}

	return nil
}

func validLogLevel(logLevel string) bool {
	_, ok := btclog.LevelFromString(logLevel)

	return ok
}
