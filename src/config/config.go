package config

import (
	"crypto/ecdsa"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/olachain/ola/src/common"
	"github.com/olachain/ola/src/node"
	"github.com/olachain/ola/src/txpool"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the validator's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultGenesisFile is the default name of the genesis document
	DefaultGenesisFile = "genesis.json"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"
)

// Default configuration values.
const (
	DefaultLogLevel         = "debug"
	DefaultNodeIP           = "127.0.0.1"
	DefaultNodePort         = 9999
	DefaultServiceAddr      = "127.0.0.1:8000"
	DefaultHeartbeatTimeout = 5 * time.Second
	DefaultLivenessTimeout  = 30 * time.Second
	DefaultBlockInterval    = 2 * time.Second
	DefaultTCPTimeout       = 1000 * time.Millisecond
	DefaultSyncTimeout      = 10 * time.Second
	DefaultCacheSize        = 10000
	DefaultSyncLimit        = 500
	DefaultMaxBlockTxs      = 500
	DefaultMaxBlockBytes    = 1 << 20
	DefaultTxPoolSize       = txpool.DefaultMaxSize
	DefaultMaxPool          = 2
	DefaultStore            = false
)

// Config contains all the configuration properties of an Ola node.
type Config struct {
	// DataDir is the top-level directory containing the node's key, genesis
	// file, known peers and database.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, receives a copy of every log line.
	LogFile string `mapstructure:"log-file"`

	// NodeIP and NodePort form the address the node listens on for peers.
	NodeIP   string `mapstructure:"node-ip"`
	NodePort int    `mapstructure:"node-port"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes. It defaults to the bind address, with an unspecified NodeIP
	// replaced by an interface address.
	AdvertiseAddr string `mapstructure:"advertise"`

	// Nodes is a comma separated list of host:port seed peers.
	Nodes string `mapstructure:"nodes"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// MaxPool controls how many connections are pooled per peer.
	MaxPool int `mapstructure:"max-pool"`

	// TCPTimeout is the I/O deadline of peer connections.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// SyncTimeout replaces TCPTimeout for block range requests.
	SyncTimeout time.Duration `mapstructure:"sync-timeout"`

	// LivenessTimeout is how long a silent peer stays registered.
	LivenessTimeout time.Duration `mapstructure:"liveness-timeout"`

	// HeartbeatTimeout is the period of peer maintenance.
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat"`

	// BlockInterval is the period of the block production timer.
	BlockInterval time.Duration `mapstructure:"block-interval"`

	// MaxBlockTxs and MaxBlockBytes bound the blocks this node produces.
	MaxBlockTxs   int `mapstructure:"max-block-txs"`
	MaxBlockBytes int `mapstructure:"max-block-bytes"`

	// TxPoolSize is the capacity of the transaction pool.
	TxPoolSize int `mapstructure:"txpool-size"`

	// SyncLimit is the max number of blocks served in one SyncResponse.
	SyncLimit int `mapstructure:"sync-limit"`

	// Store activates persistant storage.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// CacheSize is the max number of items in in-memory caches.
	CacheSize int `mapstructure:"cache-size"`

	// GenesisFile is the path of the genesis document. It defaults to
	// genesis.json in DataDir.
	GenesisFile string `mapstructure:"genesis"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// Key is the private key of the validator. It is read from Keyfile when
	// not set.
	Key *ecdsa.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:          DefaultDataDir(),
		LogLevel:         DefaultLogLevel,
		NodeIP:           DefaultNodeIP,
		NodePort:         DefaultNodePort,
		ServiceAddr:      DefaultServiceAddr,
		HeartbeatTimeout: DefaultHeartbeatTimeout,
		LivenessTimeout:  DefaultLivenessTimeout,
		BlockInterval:    DefaultBlockInterval,
		TCPTimeout:       DefaultTCPTimeout,
		SyncTimeout:      DefaultSyncTimeout,
		CacheSize:        DefaultCacheSize,
		SyncLimit:        DefaultSyncLimit,
		MaxBlockTxs:      DefaultMaxBlockTxs,
		MaxBlockBytes:    DefaultMaxBlockBytes,
		TxPoolSize:       DefaultTxPoolSize,
		MaxPool:          DefaultMaxPool,
		Store:            DefaultStore,
		DatabaseDir:      DefaultDatabaseDir(),
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level directory, and updates the database directory
// if it is currently set to the default value. If the database directory is not
// currently the default, it means the user has explicitely set it to something
// else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// BindAddr returns the host:port the node listens on.
func (c *Config) BindAddr() string {
	return net.JoinHostPort(c.NodeIP, strconv.Itoa(c.NodePort))
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// GenesisPath returns the full path of the genesis document.
func (c *Config) GenesisPath() string {
	if c.GenesisFile != "" {
		return c.GenesisFile
	}
	return filepath.Join(c.DataDir, DefaultGenesisFile)
}

// NodeConfig extracts the settings of the node loop.
func (c *Config) NodeConfig() *node.Config {
	conf := node.NewConfig(
		c.HeartbeatTimeout,
		c.LivenessTimeout,
		c.BlockInterval,
		c.SyncLimit,
		c.MaxBlockTxs,
		c.MaxBlockBytes,
		c.baseLogger(),
	)
	conf.Moniker = c.Moniker
	return conf
}

// Logger returns a formatted logrus Entry, with prefix set to "ola".
func (c *Config) Logger() *logrus.Entry {
	return c.baseLogger().WithField("prefix", "ola")
}

func (c *Config) baseLogger() *logrus.Logger {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			pathMap := lfshook.PathMap{}
			for _, level := range logrus.AllLevels {
				pathMap[level] = c.LogFile
			}
			c.logger.Hooks.Add(lfshook.NewHook(
				pathMap,
				&logrus.TextFormatter{},
			))
		}
	}
	return c.logger
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level Ola config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Ola")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Ola")
		} else {
			return filepath.Join(home, ".ola")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
