// Package config defines the configuration for an Ola node.
//
// Whether the node is started from Go code or from the command line, the
// options travel in the Config object defined in this package. On top of these
// options, the node relies on a data directory, defined by Config.DataDir,
// where it expects to find a few additional files:
//
//	priv_key // a plain text file containing the raw private key (cf. ola keygen).
//	genesis.json // the genesis document (a single-validator one is created if missing).
//	peers.json // a JSON file containing the last known list of peers.
//	ola.toml // (optional) configuration file read by the ola command.
package config
