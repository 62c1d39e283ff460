package main

import (
	"fmt"
	"io"
	"os"

	"github.com/btcsuite/btclog"
	"github.com/lightningnetwork/btcpeer/build"
	"github.com/lightningnetwork/btcpeer/monitoring"
	"github.com/lightningnetwork/btcpeer/peer"
	"github.com/lightningnetwork/btcpeer/signal"
)

// Subsystem defines the logging code of the binary itself.
const Subsystem = "BTCP"

// log is the binary's own logger. It is replaced once the log backend is set
// up by initLogging.
var log btclog.Logger = btclog.Disabled

// initLogging creates the log backend described by cfg and hands a subsystem
// logger to every package. Critical log lines call shutdown. The returned
// writer must be closed on exit so the last lines reach the log file.
func initLogging(cfg *config, shutdown func()) (*build.RotatingLogWriter,
	*build.SubLoggerManager, error) {

	logRotator := build.NewRotatingLogWriter()
	if !cfg.Log.File.Disable {
		err := logRotator.InitLogRotator(cfg.Log.File, cfg.logFile())
		if err != nil {
			return nil, nil, fmt.Errorf("unable to open log "+
				"file: %w", err)
		}
	}

	// The console and the log file share a single backend.
	var w io.Writer = &build.LogWriter{RotatorPipe: logRotator}
	if cfg.Log.Console.Disable {
		w = logRotator
	}
	mgr := build.NewSubLoggerManager(w, cfg.Log.Console)

	setSubLogger(mgr, Subsystem, func(logger btclog.Logger) {
		log = build.NewShutdownLogger(logger, shutdown)
	})
	setSubLogger(mgr, peer.Subsystem, peer.UseLogger)
	setSubLogger(mgr, monitoring.Subsystem, monitoring.UseLogger)
	setSubLogger(mgr, signal.Subsystem, signal.UseLogger)

	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems",
			mgr.SupportedSubsystems())
		os.Exit(0)
	}

	err := build.ParseAndSetDebugLevels(cfg.DebugLevel, mgr)
	if err != nil {
		_ = logRotator.Close()
		return nil, nil, err
	}

	return logRotator, mgr, nil
}

// setSubLogger creates the logger of a subsystem from mgr and installs it
// with useLogger.
func setSubLogger(mgr *build.SubLoggerManager, subsystem string,
	useLogger func(btclog.Logger)) {

	useLogger(build.NewSubLogger(subsystem, mgr.GenSubLogger))
}
