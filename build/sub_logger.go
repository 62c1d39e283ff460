package build

import (
	"io"
	"sort"
	"sync"

	"github.com/btcsuite/btclog"
)

// SubLoggerManager owns the log backend of a binary and every subsystem
// logger generated from it. It implements LeveledSubLogger so debug levels can
// be applied per subsystem.
type SubLoggerManager struct {
	backend *btclog.Backend

	mu      sync.Mutex
	loggers SubLoggers
}

// A compile time check to ensure SubLoggerManager implements the
// LeveledSubLogger interface.
var _ LeveledSubLogger = (*SubLoggerManager)(nil)

// NewSubLoggerManager creates a manager whose loggers write to w using the
// backend options of cfg. A nil cfg uses the defaults.
func NewSubLoggerManager(w io.Writer, cfg *LoggerConfig) *SubLoggerManager {
	var opts []btclog.BackendOption
	if cfg != nil {
		opts = cfg.BackendOptions()
	}

	return &SubLoggerManager{
		backend: btclog.NewBackend(w, opts...),
		loggers: make(SubLoggers),
	}
}

// GenSubLogger creates and registers a logger for the given subsystem. It has
// the signature NewSubLogger expects.
func (m *SubLoggerManager) GenSubLogger(subsystem string) btclog.Logger {
	logger := m.backend.Logger(subsystem)
	m.RegisterSubLogger(subsystem, logger)

	return logger
}

// RegisterSubLogger adds a logger under the given subsystem name, replacing any
// logger registered before.
func (m *SubLoggerManager) RegisterSubLogger(subsystem string,
	logger btclog.Logger) {

	m.mu.Lock()
	defer m.mu.Unlock()

	m.loggers[subsystem] = logger
}

// SubLoggers returns a copy of the registered subsystem loggers.
//
// NOTE: This is part of the LeveledSubLogger interface.
func (m *SubLoggerManager) SubLoggers() SubLoggers {
	m.mu.Lock()
	defer m.mu.Unlock()

	loggers := make(SubLoggers, len(m.loggers))
	for subsystem, logger := range m.loggers {
		loggers[subsystem] = logger
	}

	return loggers
}

// SupportedSubsystems returns the sorted names of the registered subsystems.
//
// NOTE: This is part of the LeveledSubLogger interface.
func (m *SubLoggerManager) SupportedSubsystems() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	subsystems := make([]string, 0, len(m.loggers))
	for subsystem := range m.loggers {
		subsystems = append(subsystems, subsystem)
	}
	sort.Strings(subsystems)

	return subsystems
}

// SetLogLevel sets the level of a single subsystem. Unknown subsystems are
// ignored.
//
// NOTE: This is part of the LeveledSubLogger interface.
func (m *SubLoggerManager) SetLogLevel(subsystemID string, logLevel string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	logger, ok := m.loggers[subsystemID]
	if !ok {
		return
	}

	level, _ := btclog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// SetLogLevels sets the level of every registered subsystem.
//
// NOTE: This is part of the LeveledSubLogger interface.
func (m *SubLoggerManager) SetLogLevels(logLevel string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	level, _ := btclog.LevelFromString(logLevel)
	for _, logger := range m.loggers {
		logger.SetLevel(level)
	}
}
