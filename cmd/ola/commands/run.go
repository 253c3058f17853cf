package commands

import (
	"github.com/olachain/ola/src/ola"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Environment variables read by the run command, keyed by flag name.
var envBindings = map[string]string{
	"node-ip":   "NODE_IP",
	"node-port": "NODE_PORT",
	"nodes":     "NODES",
	"datadir":   "BLOCKCHAIN_DATA_PATH",
}

// NewRunCmd returns the command that starts an Ola node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runOla,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runOla(cmd *cobra.Command, args []string) error {
	engine := ola.NewOla(_config)

	if err := engine.Init(); err != nil {
		_config.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	engine.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

// AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Also write logs to this file")
	cmd.Flags().String("moniker", _config.Moniker, "Optional name")

	// Network
	cmd.Flags().String("node-ip", _config.NodeIP, "Listen IP for peer connections")
	cmd.Flags().Int("node-port", _config.NodePort, "Listen port for peer connections")
	cmd.Flags().StringP("advertise", "a", _config.AdvertiseAddr, "Advertise IP:Port for this node")
	cmd.Flags().String("nodes", _config.Nodes, "Comma separated IP:Port list of seed peers")
	cmd.Flags().DurationP("timeout", "t", _config.TCPTimeout, "TCP Timeout")
	cmd.Flags().Duration("sync-timeout", _config.SyncTimeout, "Timeout of block range requests")
	cmd.Flags().Int("max-pool", _config.MaxPool, "Connection pool size max")

	// Service
	cmd.Flags().Bool("no-service", _config.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.DatabaseDir, "Dabatabase directory")
	cmd.Flags().Int("cache-size", _config.CacheSize, "Number of items in LRU caches")
	cmd.Flags().String("genesis", _config.GenesisFile, "Genesis file (defaults to genesis.json in datadir)")

	// Node configuration
	cmd.Flags().Duration("heartbeat", _config.HeartbeatTimeout, "Time between peer maintenance rounds")
	cmd.Flags().Duration("liveness-timeout", _config.LivenessTimeout, "Time after which a silent peer is dropped")
	cmd.Flags().Duration("block-interval", _config.BlockInterval, "Time between block proposals")
	cmd.Flags().Int("max-block-txs", _config.MaxBlockTxs, "Max number of transactions per block")
	cmd.Flags().Int("max-block-bytes", _config.MaxBlockBytes, "Max encoded size of a block's transactions")
	cmd.Flags().Int("txpool-size", _config.TxPoolSize, "Max number of pending transactions")
	cmd.Flags().Int("sync-limit", _config.SyncLimit, "Max number of blocks per sync response")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	logFields := logrus.Fields{
		"DataDir":          _config.DataDir,
		"BindAddr":         _config.BindAddr(),
		"AdvertiseAddr":    _config.AdvertiseAddr,
		"Nodes":            _config.Nodes,
		"ServiceAddr":      _config.ServiceAddr,
		"NoService":        _config.NoService,
		"MaxPool":          _config.MaxPool,
		"Store":            _config.Store,
		"LogLevel":         _config.LogLevel,
		"Moniker":          _config.Moniker,
		"HeartbeatTimeout": _config.HeartbeatTimeout,
		"LivenessTimeout":  _config.LivenessTimeout,
		"BlockInterval":    _config.BlockInterval,
		"TCPTimeout":       _config.TCPTimeout,
		"SyncTimeout":      _config.SyncTimeout,
		"CacheSize":        _config.CacheSize,
		"SyncLimit":        _config.SyncLimit,
		"TxPoolSize":       _config.TxPoolSize,
		"Genesis":          _config.GenesisPath(),
	}

	if _config.Store {
		logFields["DatabaseDir"] = _config.DatabaseDir
	}

	_config.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and environment variables, and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}

	// first unmarshal to read from CLI flags and environment
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/ola.toml (.json, .yaml also work)
	viper.SetConfigName("ola")           // name of config file (without extension)
	viper.AddConfigPath(_config.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
