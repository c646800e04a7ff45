package btcpeer

import (
	"github.com/btcsuite/btclog/v2"
	"github.com/lightninglabs/btcpeer/blockview"
	"github.com/lightninglabs/btcpeer/build"
	"github.com/lightninglabs/btcpeer/monitoring"
	"github.com/lightninglabs/btcpeer/peer"
	"github.com/lightninglabs/btcpeer/signal"
)

// Subsystem is the logging code of the daemon itself.
const Subsystem = "BTCP"

// btcpLog is the daemon logger. It stays disabled until SetupLoggers is
// called with the root logger manager.
var btcpLog = build.NewSubLogger(Subsystem, nil)

// SetupLoggers initializes all package-global logger variables.
func SetupLoggers(root *build.SubLoggerManager,
	interceptor signal.Interceptor) {

	// Critical errors on the daemon logger request a shutdown.
	btcpLog = root.GenSubLogger(Subsystem, interceptor.RequestShutdown)

	AddSubLogger(root, peer.Subsystem, peer.UseLogger)
	AddSubLogger(root, blockview.Subsystem, blockview.UseLogger)
	AddSubLogger(root, monitoring.Subsystem, monitoring.UseLogger)
	AddSubLogger(root, signal.Subsystem, signal.UseLogger)
}

// AddSubLogger is a helper method to conveniently create and register the
// logger of one or more sub systems.
func AddSubLogger(root *build.SubLoggerManager, subsystem string,
	useLoggers ...func(btclog.Logger)) {

	// Create and register just a single logger to prevent them from
	// overwriting each other internally.
	logger := root.GenSubLogger(subsystem, nil)
	for _, useLogger := range useLoggers {
		useLogger(logger)
	}
}
