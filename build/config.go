package build

import (
	"fmt"

	"github.com/btcsuite/btclog"
)

const (
	callSiteOff   = "off"
	callSiteShort = "short"
	callSiteLong  = "long"

	// Gzip is the default compressor for rolled log files.
	Gzip = "gzip"

	// Zstd is the alternative zstd compressor for rolled log files.
	Zstd = "zstd"

	defaultLogCompressor = Gzip

	// DefaultMaxLogFiles is the default maximum number of log files to
	// keep.
	DefaultMaxLogFiles = 3

	// DefaultMaxLogFileSize is the default maximum log file size in MB.
	DefaultMaxLogFileSize = 10
)

// logCompressors maps each supported compressor onto the file suffix of the
// rolled logs it produces.
var logCompressors = map[string]string{
	Gzip: "gz",
	Zstd: "zst",
}

// SupportedLogCompressor returns whether or not logCompressor is a supported
// compression algorithm for log files.
func SupportedLogCompressor(logCompressor string) bool {
	_, ok := logCompressors[logCompressor]

	return ok
}

// LogConfig holds logging configuration options.
//
//nolint:lll
type LogConfig struct {
	Console *LoggerConfig     `group:"console" namespace:"console" description:"The logger writing to stdout."`
	File    *FileLoggerConfig `group:"file" namespace:"file" description:"The logger writing to the log file."`
}

// Validate validates the LogConfig struct values.
func (c *LogConfig) Validate() error {
	if !SupportedLogCompressor(c.File.Compressor) {
		return fmt.Errorf("invalid log compressor: %v",
			c.File.Compressor)
	}

	if c.File.MaxLogFiles < 0 {
		return fmt.Errorf("invalid max log files: %d",
			c.File.MaxLogFiles)
	}

	if c.File.MaxLogFileSize <= 0 {
		return fmt.Errorf("invalid max log file size: %d",
			c.File.MaxLogFileSize)
	}

	return nil
}

// LoggerConfig holds options for a particular logger.
//
//nolint:lll
type LoggerConfig struct {
	Disable  bool   `long:"disable" description:"Disable this logger."`
	CallSite string `long:"call-site" description:"Include the call-site of each log line." choice:"off" choice:"short" choice:"long"`
}

// DefaultLogConfig returns the default logging config options.
func DefaultLogConfig() *LogConfig {
	return &LogConfig{
		Console: &LoggerConfig{
			CallSite: callSiteOff,
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

// BackendOptions returns the set of btclog.BackendOptions that the state of
// the config struct translates to.
func (cfg *LoggerConfig) BackendOptions() []btclog.BackendOption {
	switch cfg.CallSite {
	case callSiteShort:
		return []btclog.BackendOption{
			btclog.WithFlags(btclog.Lshortfile),
		}

	case callSiteLong:
		return []btclog.BackendOption{
			btclog.WithFlags(btclog.Llongfile),
		}
	}

	return nil
}

// FileLoggerConfig extends LoggerConfig with specific log file options.
//
//nolint:lll
type FileLoggerConfig struct {
	LoggerConfig
	Compressor     string `long:"compressor" description:"Compression algorithm to use when rotating logs." choice:"gzip" choice:"zstd"`
	MaxLogFiles    int    `long:"max-files" description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int    `long:"max-file-size" description:"Maximum logfile size in MB"`
}
