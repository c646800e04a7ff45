package build

import (
	"fmt"
	"os"

	"github.com/btcsuite/btclog/v2"
)

const (
	callSiteOff   = "off"
	callSiteShort = "short"
	callSiteLong  = "long"

	defaultLogCompressor = Gzip

	// DefaultMaxLogFiles is the default maximum number of log files to
	// keep.
	DefaultMaxLogFiles = 10

	// DefaultMaxLogFileSize is the default maximum log file size in MB.
	DefaultMaxLogFileSize = 20
)

// LogConfig selects the console and rotating file log sinks.
//
//nolint:lll
type LogConfig struct {
	Console *ConsoleLoggerConfig `group:"console" namespace:"console" description:"The logger writing to stdout."`
	File    *FileLoggerConfig    `group:"file" namespace:"file" description:"The logger writing to the rotating log file."`
}

// Validate rejects an unknown compressor or negative rotation limits.
func (c *LogConfig) Validate() error {
	if !SupportedLogCompressor(c.File.Compressor) {
		return fmt.Errorf("invalid log compressor: %v",
			c.File.Compressor)
	}

	if c.File.MaxLogFileSize < 0 || c.File.MaxLogFiles < 0 {
		return fmt.Errorf("log file size and count must not be " +
			"negative")
	}

	return nil
}

// LoggerConfig is shared by every log sink.
//
//nolint:lll
type LoggerConfig struct {
	Disable      bool   `long:"disable" description:"Disable this logger."`
	NoTimestamps bool   `long:"no-timestamps" description:"Omit timestamps from log lines."`
	CallSite     string `long:"call-site" description:"Include the call-site of each log line." choice:"off" choice:"short" choice:"long"`
}

// ConsoleLoggerConfig extends LoggerConfig with console specific options.
//
//nolint:lll
type ConsoleLoggerConfig struct {
	LoggerConfig
	Style bool `long:"style" description:"If set, the output will be styled with color and fonts"`
}

// DefaultLogConfig enables both sinks without call sites, rotating gzip
// compressed files.
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Console: &ConsoleLoggerConfig{
			LoggerConfig: LoggerConfig{
				CallSite: callSiteOff,
			},
		},
		File: &FileLoggerConfig{
			Compressor:     defaultLogCompressor,
			MaxLogFiles:    DefaultMaxLogFiles,
			MaxLogFileSize: DefaultMaxLogFileSize,
			LoggerConfig: LoggerConfig{
				CallSite: callSiteOff,
			},
		},
	}
}

// callSiteFlags maps the call-site option to btclog caller flags.
var callSiteFlags = map[string]uint32{
	callSiteShort: btclog.Lshortfile,
	callSiteLong:  btclog.Llongfile,
}

// HandlerOptions translates cfg into btclog handler options.
func (cfg *LoggerConfig) HandlerOptions() []btclog.HandlerOption {
	// Records pass through handlerSet before reaching a handler, one frame
	// more than btclog's default skip depth of 6.
	opts := []btclog.HandlerOption{btclog.WithCallSiteSkipDepth(7)}

	if cfg.NoTimestamps {
		opts = append(opts, btclog.WithNoTimestamp())
	}
	if flags, ok := callSiteFlags[cfg.CallSite]; ok {
		opts = append(opts, btclog.WithCallerFlags(flags))
	}

	return opts
}

// FileLoggerConfig adds rotation settings to LoggerConfig.
//
//nolint:lll
type FileLoggerConfig struct {
	LoggerConfig
	Compressor     string `long:"compressor" description:"Compression algorithm to use when rotating logs." choice:"gzip" choice:"zstd"`
	MaxLogFiles    int    `long:"max-files" description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int    `long:"max-file-size" description:"Maximum logfile size in MB"`
}

// NewDefaultLogHandlers returns the console and rotating file handlers
// enabled by cfg.
func NewDefaultLogHandlers(cfg *LogConfig,
	rotator *RotatingLogWriter) []btclog.Handler {

	var handlers []btclog.Handler

	if !cfg.Console.Disable {
		opts := cfg.Console.HandlerOptions()
		if cfg.Console.Style {
			opts = append(opts, btclog.WithStyledOutput())
		}
		handlers = append(
			handlers, btclog.NewDefaultHandler(os.Stdout, opts...),
		)
	}

	if !cfg.File.Disable {
		handlers = append(handlers, btclog.NewDefaultHandler(
			rotator, cfg.File.HandlerOptions()...,
		))
	}

	return handlers
}
