// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Copyright (C) 2015-2020 The Lightning Network Developers

package btcpeer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/jessevdk/go-flags"
	"github.com/lightninglabs/btcpeer/blockview"
	"github.com/lightninglabs/btcpeer/build"
	"github.com/lightninglabs/btcpeer/lncfg"
	"github.com/lightninglabs/btcpeer/signal"
)

const (
	defaultLogLevel      = "info"
	defaultStatsInterval = time.Minute
)

var (
	// DefaultBtcPeerDir is the default directory where btcpeer tries to
	// find its configuration file and store its logs.
	DefaultBtcPeerDir = btcutil.AppDataDir(build.AppName, false)

	// DefaultConfigFile is the default full path of btcpeer's
	// configuration file.
	DefaultConfigFile = filepath.Join(
		DefaultBtcPeerDir, lncfg.DefaultConfigFilename,
	)

	defaultLogDir = filepath.Join(DefaultBtcPeerDir, lncfg.DefaultLogDirname)
)

// ViewConfig holds the options of the terminal block viewer.
//
//nolint:lll
type ViewConfig struct {
	MaxTxns int `long:"maxtxns" description:"Maximum number of transactions listed per block (0 lists all)"`
	History int `long:"history" description:"Number of recent blocks kept in the block table"`
}

// Config defines the configuration options for btcpeer.
//
// See LoadConfig for further details regarding the configuration loading+
// parsing process.
//
//nolint:lll
type Config struct {
	ShowVersion bool `short:"V" long:"version" description:"Display version information and exit"`

	BtcPeerDir string `long:"btcpeerdir" description:"The base directory that contains btcpeer's configuration file and logs"`
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	LogDir     string `long:"logdir" description:"Directory to log output."`

	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <global-level>,<subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`

	MainNet  bool `long:"mainnet" description:"Use the main network"`
	TestNet3 bool `long:"testnet" description:"Use the test network"`
	RegTest  bool `long:"regtest" description:"Use the regression test network"`
	SigNet   bool `long:"signet" description:"Use the signet test network"`

	RawPeer string `long:"peer" description:"The host:port of the peer to connect to. Defaults to the first DNS seed of the selected network"`

	Peer *lncfg.Peer `group:"peer" namespace:"peer"`

	Prometheus lncfg.Prometheus `group:"prometheus" namespace:"prometheus"`

	LogConfig *build.LogConfig `group:"logging" namespace:"logging"`

	NoView bool        `long:"noview" description:"Do not render received blocks to stdout"`
	View   *ViewConfig `group:"view" namespace:"view"`

	StatsInterval time.Duration `long:"statsinterval" description:"How often session statistics are logged (0 disables)"`

	// ActiveNetParams are the parameters of the selected network. It is
	// set by ValidateConfig.
	ActiveNetParams *chaincfg.Params

	// PeerAddr is the normalized host:port derived from RawPeer.
	PeerAddr string

	// LogRotator is the rotating log file writer. It is set up by
	// LoadConfig and must be closed on shutdown.
	LogRotator *build.RotatingLogWriter

	// SubLogMgr owns every subsystem logger.
	SubLogMgr *build.SubLoggerManager
}

// DefaultConfig returns all default values for the Config struct.
func DefaultConfig() Config {
	return Config{
		BtcPeerDir: DefaultBtcPeerDir,
		ConfigFile: DefaultConfigFile,
		LogDir:     defaultLogDir,
		DebugLevel: defaultLogLevel,
		Peer:       lncfg.DefaultPeer(),
		Prometheus: lncfg.DefaultPrometheus(),
		LogConfig:  build.DefaultLogConfig(),
		View: &ViewConfig{
			MaxTxns: blockview.DefaultMaxTxns,
			History: blockview.DefaultHistory,
		},
		StatsInterval: defaultStatsInterval,
	}
}

// LoadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
func LoadConfig(interceptor signal.Interceptor) (*Config, error) {
	// Pre-parse the command line options to pick up an alternative config
	// file.
	preCfg := DefaultConfig()
	if _, err := flags.Parse(&preCfg); err != nil {
		return nil, err
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", build.Version(),
			"commit="+build.Commit)
		os.Exit(0)
	}

	// If the config file path has not been modified by the user, then
	// we'll use the default config file path. However, if the user has
	// modified their btcpeerdir, then we should assume they intend to use
	// the config file within it.
	configFileDir := lncfg.CleanAndExpandPath(preCfg.BtcPeerDir)
	configFilePath := lncfg.CleanAndExpandPath(preCfg.ConfigFile)
	if configFileDir != DefaultBtcPeerDir {
		if configFilePath == DefaultConfigFile {
			configFilePath = filepath.Join(
				configFileDir, lncfg.DefaultConfigFilename,
			)
		}
	}

	// Next, load any additional configuration options from the file.
	var configFileError error
	cfg := preCfg
	if err := flags.IniParse(configFilePath, &cfg); err != nil {
		// If it's a parsing related error, then we'll return
		// immediately, otherwise we can proceed as possibly the config
		// file doesn't exist which is OK.
		var iniErr *flags.IniError
		if errors.As(err, &iniErr) {
			return nil, err
		}

		configFileError = err
	}

	// Finally, parse the remaining command line options again to ensure
	// they take precedence.
	if _, err := flags.Parse(&cfg); err != nil {
		return nil, err
	}

	// Make sure everything we just loaded makes sense.
	cleanCfg, err := ValidateConfig(cfg, usageMessage)
	if err != nil {
		return nil, err
	}

	if err := cleanCfg.setupLogging(interceptor); err != nil {
		return nil, err
	}

	// Warn about missing config file only after all other configuration is
	// done. This prevents the warning on help messages and invalid
	// options. Note this should go directly before the return.
	if configFileError != nil {
		btcpLog.Warnf("%v", configFileError)
	}

	return cleanCfg, nil
}

// ValidateConfig check the given configuration to be sane. This makes sure no
// illegal values or combination of values are set. All file system paths are
// normalized. The cleaned up config is returned on success.
func ValidateConfig(cfg Config, usageMessage string) (*Config, error) {
	// If the provided btcpeer directory is not the default, we'll modify
	// the path to all of the files and directories that will live within
	// it.
	btcPeerDir := lncfg.CleanAndExpandPath(cfg.BtcPeerDir)
	if btcPeerDir != DefaultBtcPeerDir && cfg.LogDir == defaultLogDir {
		cfg.LogDir = filepath.Join(btcPeerDir, lncfg.DefaultLogDirname)
	}
	cfg.BtcPeerDir = btcPeerDir
	cfg.LogDir = lncfg.CleanAndExpandPath(cfg.LogDir)

	// Multiple networks can't be selected simultaneously. Count the
	// number of network flags passed and assign the active network params
	// while we're at it. Mainnet is the default.
	numNets := 0
	cfg.ActiveNetParams = &chaincfg.MainNetParams
	if cfg.MainNet {
		numNets++
	}
	if cfg.TestNet3 {
		numNets++
		cfg.ActiveNetParams = &chaincfg.TestNet3Params
	}
	if cfg.RegTest {
		numNets++
		cfg.ActiveNetParams = &chaincfg.RegressionNetParams
	}
	if cfg.SigNet {
		numNets++
		cfg.ActiveNetParams = &chaincfg.SigNetParams
	}
	if numNets > 1 {
		str := "the mainnet, testnet, regtest and signet params " +
			"can't be used together -- choose one of the four"

		return nil, mkErr(usageMessage, str)
	}

	// The log directory is namespaced by network so the logs of different
	// chains don't interleave.
	cfg.LogDir = filepath.Join(
		cfg.LogDir, lncfg.NormalizeNetwork(cfg.ActiveNetParams.Name),
	)

	if err := cfg.Peer.Validate(); err != nil {
		return nil, mkErr(usageMessage, err.Error())
	}
	if err := cfg.LogConfig.Validate(); err != nil {
		return nil, mkErr(usageMessage, err.Error())
	}

	// Without an explicit peer we fall back to the network's first DNS
	// seed, which resolves to a set of reachable nodes.
	rawPeer := cfg.RawPeer
	if rawPeer == "" {
		if len(cfg.ActiveNetParams.DNSSeeds) == 0 {
			return nil, mkErr(usageMessage, fmt.Sprintf("--peer "+
				"is required on %v", cfg.ActiveNetParams.Name))
		}
		rawPeer = cfg.ActiveNetParams.DNSSeeds[0].Host
	}
	peerAddr, err := lncfg.NormalizePeerAddress(
		rawPeer, cfg.ActiveNetParams.DefaultPort,
	)
	if err != nil {
		return nil, mkErr(usageMessage, err.Error())
	}
	cfg.PeerAddr = peerAddr

	if cfg.StatsInterval < 0 {
		return nil, mkErr(usageMessage, "statsinterval must not be "+
			"negative")
	}
	if cfg.View.MaxTxns < 0 || cfg.View.History < 0 {
		return nil, mkErr(usageMessage, "view.maxtxns and view.history "+
			"must not be negative")
	}

	if cfg.Prometheus.Enabled() && cfg.Prometheus.Listen == "" {
		return nil, mkErr(usageMessage, "prometheus.listen must be "+
			"set when prometheus.enable is set")
	}

	return &cfg, nil
}

// setupLogging creates the log handlers, registers every subsystem logger and
// applies the debug level.
func (c *Config) setupLogging(interceptor signal.Interceptor) error {
	c.LogRotator = build.NewRotatingLogWriter()
	if !c.LogConfig.File.Disable {
		logFile := filepath.Join(c.LogDir, lncfg.DefaultLogFilename)
		err := c.LogRotator.InitLogRotator(c.LogConfig.File, logFile)
		if err != nil {
			return fmt.Errorf("log rotation setup failed: %w", err)
		}
	}

	c.SubLogMgr = build.NewSubLoggerManager(
		build.NewDefaultLogHandlers(c.LogConfig, c.LogRotator)...,
	)
	SetupLoggers(c.SubLogMgr, interceptor)

	// Special show command to list supported subsystems and exit.
	if c.DebugLevel == "show" {
		fmt.Println("Supported subsystems",
			c.SubLogMgr.SupportedSubsystems())
		os.Exit(0)
	}

	err := build.ParseAndSetDebugLevels(c.DebugLevel, c.SubLogMgr)
	if err != nil {
		_ = c.LogRotator.Close()

		return err
	}

	return nil
}

// mkErr creates an error prefixed with the usage hint.
func mkErr(usageMessage, msg string) error {
	return fmt.Errorf("%s: %s", usageMessage, msg)
}
