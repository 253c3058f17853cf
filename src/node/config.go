package node

import (
	"testing"
	"time"

	"github.com/olachain/ola/src/common"
	"github.com/sirupsen/logrus"
)

// Config contains the settings of the node loop.
type Config struct {
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat"`
	LivenessTimeout  time.Duration `mapstructure:"liveness-timeout"`
	BlockInterval    time.Duration `mapstructure:"block-interval"`
	SyncLimit        int           `mapstructure:"sync-limit"`
	MaxBlockTxs      int           `mapstructure:"max-block-txs"`
	MaxBlockBytes    int           `mapstructure:"max-block-bytes"`
	Moniker          string        `mapstructure:"moniker"`
	Logger           *logrus.Logger
}

// NewConfig ...
func NewConfig(heartbeat time.Duration,
	liveness time.Duration,
	blockInterval time.Duration,
	syncLimit int,
	maxBlockTxs int,
	maxBlockBytes int,
	logger *logrus.Logger) *Config {

	return &Config{
		HeartbeatTimeout: heartbeat,
		LivenessTimeout:  liveness,
		BlockInterval:    blockInterval,
		SyncLimit:        syncLimit,
		MaxBlockTxs:      maxBlockTxs,
		MaxBlockBytes:    maxBlockBytes,
		Logger:           logger,
	}
}

// DefaultConfig ...
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		HeartbeatTimeout: 5 * time.Second,
		LivenessTimeout:  30 * time.Second,
		BlockInterval:    2 * time.Second,
		SyncLimit:        500,
		MaxBlockTxs:      500,
		MaxBlockBytes:    1 << 20,
		Logger:           logger,
	}
}

// TestConfig returns a configuration with short timeouts that logs to t.
func TestConfig(t testing.TB) *Config {
	config := DefaultConfig()
	config.HeartbeatTimeout = 50 * time.Millisecond
	config.LivenessTimeout = time.Second
	config.BlockInterval = 20 * time.Millisecond
	config.SyncLimit = 10
	config.Logger = common.NewTestLogger(t, common.TestLogLevel)
	return config
}
