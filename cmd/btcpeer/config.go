package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/jessevdk/go-flags"
	"github.com/lightningnetwork/btcpeer/btcwire"
	"github.com/lightningnetwork/btcpeer/build"
	"github.com/lightningnetwork/btcpeer/monitoring"
	"github.com/lightningnetwork/btcpeer/peer"
)

const (
	defaultLogFilename    = "btcpeer.log"
	defaultLogDirname     = "logs"
	defaultLogLevel       = "info"
	defaultDevLogLevel    = "debug"
	defaultConnectHost    = "127.0.0.1"
	defaultMaxRetries     = 5
	defaultRetryInterval  = 5 * time.Second
	defaultPollInterval   = 100 * time.Millisecond
	defaultPrometheusAddr = "127.0.0.1:9092"
)

var (
	defaultAppDir = btcutil.AppDataDir("btcpeer", false)
	defaultLogDir = filepath.Join(defaultAppDir, defaultLogDirname)
)

// config defines the configuration options for btcpeer.
//
//nolint:lll
type config struct {
	Connect string `long:"connect" description:"The peer to connect to as host or host:port. The network's default port is used when none is given."`
	Network string `long:"network" description:"The network the peer speaks." choice:"mainnet" choice:"testnet" choice:"testnet3" choice:"regtest"`

	HandshakeTimeout time.Duration `long:"handshaketimeout" description:"How long to wait for the version/verack exchange to complete."`
	ReadTimeout      time.Duration `long:"readtimeout" description:"Disconnect a peer that sends nothing for this long. 0 disables the timeout."`
	PingInterval     time.Duration `long:"pinginterval" description:"Time between keepalive pings. 0 disables pings."`
	UserAgent        string        `long:"useragent" description:"The user agent advertised to the peer."`
	StartHeight      uint32        `long:"startheight" description:"The best block height advertised to the peer."`

	MaxRetries    int           `long:"maxretries" description:"Connection attempts to make after the first one fails. -1 retries forever."`
	RetryInterval time.Duration `long:"retryinterval" description:"Minimum time between connection attempts."`
	PollInterval  time.Duration `long:"pollinterval" description:"How often received messages are collected."`

	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <global-level>,<subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	LogDir     string `long:"logdir" description:"Directory to log output."`

	Log        *build.LogConfig        `group:"logging" namespace:"logging"`
	Prometheus *monitoring.Prometheus `group:"prometheus" namespace:"prometheus"`

	// net is the parsed Network.
	net btcwire.Network
}

// defaultConfig returns all default values for the config struct.
func defaultConfig() config {
	debugLevel := defaultLogLevel
	if build.IsDevBuild() {
		debugLevel = defaultDevLogLevel
	}

	return config{
		Network:          btcwire.Mainnet.String(),
		HandshakeTimeout: peer.DefaultHandshakeTimeout,
		ReadTimeout:      peer.DefaultReadTimeout,
		PingInterval:     peer.DefaultPingInterval,
		UserAgent:        peer.DefaultUserAgent,
		MaxRetries:       defaultMaxRetries,
		RetryInterval:    defaultRetryInterval,
		PollInterval:     defaultPollInterval,
		DebugLevel:       debugLevel,
		LogDir:           defaultLogDir,
		Log:              build.DefaultLogConfig(),
		Prometheus: &monitoring.Prometheus{
			Listen: defaultPrometheusAddr,
		},
	}
}

// loadConfig parses the command line options on top of the defaults and
// validates the result.
func loadConfig(args []string) (*config, error) {
	cfg := defaultConfig()

	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateConfig checks the parsed options and fills in the derived fields.
func validateConfig(cfg *config) error {
	var err error
	cfg.net, err = btcwire.ParseNetwork(cfg.Network)
	if err != nil {
		return err
	}

	cfg.Connect, err = normalizeAddr(cfg.Connect, cfg.net.Port())
	if err != nil {
		return err
	}

	switch {
	case cfg.MaxRetries < -1:
		return fmt.Errorf("invalid max retries: %d", cfg.MaxRetries)

	case cfg.RetryInterval <= 0:
		return errors.New("retry interval must be positive")

	case cfg.PollInterval <= 0:
		return errors.New("poll interval must be positive")
	}

	if err := cfg.Log.Validate(); err != nil {
		return err
	}

	// Append the network type to the log directory so it is "namespaced"
	// per network.
	cfg.LogDir = filepath.Join(cleanAndExpandPath(cfg.LogDir),
		cfg.net.String())

	// The peer config has to validate too, so bad timeouts are caught
	// before any logging is set up.
	return cfg.peerConfig().Validate()
}

// peerConfig builds the connection config from the parsed options.
func (c *config) peerConfig() *peer.Config {
	peerCfg := peer.DefaultConfig(c.net)
	peerCfg.HandshakeTimeout = c.HandshakeTimeout
	peerCfg.ReadTimeout = c.ReadTimeout
	peerCfg.PingInterval = c.PingInterval
	peerCfg.UserAgent = c.UserAgent
	peerCfg.StartHeight = c.StartHeight

	// Keep the ping timeout below a short custom interval.
	if c.PingInterval > 0 && peerCfg.PingTimeout >= c.PingInterval {
		peerCfg.PingTimeout = c.PingInterval / 2
	}

	return peerCfg
}

// logFile returns the path of the log file.
func (c *config) logFile() string {
	return filepath.Join(c.LogDir, defaultLogFilename)
}

// normalizeAddr adds the default port to addr if it has none. An empty addr
// means the local host.
func normalizeAddr(addr string, defaultPort uint16) (string, error) {
	if addr == "" {
		addr = defaultConnectHost
	}

	port := strconv.Itoa(int(defaultPort))

	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		// SplitHostPort fails when there is no port. Bare IPv6
		// addresses may still be wrapped in brackets.
		host = strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")

		return net.JoinHostPort(host, port), nil
	}

	if _, err := strconv.ParseUint(p, 10, 16); err != nil {
		return "", fmt.Errorf("invalid port in %q", addr)
	}

	return net.JoinHostPort(host, p), nil
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	return filepath.Clean(os.ExpandEnv(path))
}
