package ola

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"sync"

	"github.com/olachain/ola/src/chain"
	"github.com/olachain/ola/src/config"
	"github.com/olachain/ola/src/crypto/keys"
	"github.com/olachain/ola/src/ledger"
	"github.com/olachain/ola/src/net"
	"github.com/olachain/ola/src/node"
	"github.com/olachain/ola/src/peers"
	"github.com/olachain/ola/src/service"
	"github.com/olachain/ola/src/store"
	"github.com/olachain/ola/src/txpool"
	"github.com/olachain/ola/src/validation"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Ola is a struct containing the key parts of an Ola node.
type Ola struct {
	Config    *config.Config
	Node      *node.Node
	Transport net.Transport
	Store     store.Store
	Genesis   *chain.Genesis
	Ledger    *ledger.Ledger
	Pool      *txpool.Pool
	Peers     *peers.Registry
	PeerStore *peers.JSONPeers
	Service   *service.Service

	seeds        []string
	logger       *logrus.Entry
	shutdownOnce sync.Once
}

// NewOla is a factory method to produce an Ola instance.
func NewOla(c *config.Config) *Ola {
	engine := &Ola{
		Config: c,
		logger: c.Logger(),
	}

	return engine
}

// Init initialises the engine: key, genesis, store, ledger, transport, peers,
// node and service.
func (o *Ola) Init() error {
	o.logger.Debug("Initialising engine")

	if err := o.initKey(); err != nil {
		o.logger.WithError(err).Error("ola.go:Init() initKey")
		return err
	}

	if err := o.initGenesis(); err != nil {
		o.logger.WithError(err).Error("ola.go:Init() initGenesis")
		return err
	}

	if err := o.initStore(); err != nil {
		o.logger.WithError(err).Error("ola.go:Init() initStore")
		return err
	}

	if err := o.initLedger(); err != nil {
		o.logger.WithError(err).Error("ola.go:Init() initLedger")
		o.Store.Close()
		return err
	}

	if err := o.initTransport(); err != nil {
		o.logger.WithError(err).Error("ola.go:Init() initTransport")
		o.Store.Close()
		return err
	}

	if err := o.initPeers(); err != nil {
		o.logger.WithError(err).Error("ola.go:Init() initPeers")
		o.Transport.Close()
		o.Store.Close()
		return err
	}

	if err := o.initNode(); err != nil {
		o.logger.WithError(err).Error("ola.go:Init() initNode")
		o.Transport.Close()
		o.Store.Close()
		return err
	}

	o.initService()

	return nil
}

// Run starts the HTTP service, if any, and the node. It blocks until the node
// shuts down.
func (o *Ola) Run() {
	if o.Service != nil {
		go o.Service.Serve()
	}

	o.Node.Run()

	o.Shutdown()
}

// RunAsync calls Run in a separate goroutine.
func (o *Ola) RunAsync() {
	go o.Run()
}

// Shutdown stops the node, records the known peers, and closes the service and
// the store.
func (o *Ola) Shutdown() {
	o.shutdownOnce.Do(func() {
		o.logger.Debug("Shutting down")

		o.Node.Shutdown()

		if err := o.PeerStore.Write(o.Peers.List()); err != nil {
			o.logger.WithError(err).Warn("Failed to write peers file")
		}

		if o.Service != nil {
			o.Service.Close()
		}

		if err := o.Store.Close(); err != nil {
			o.logger.WithError(err).Error("Failed to close store")
		}
	})
}

func (o *Ola) initKey() error {
	if o.Config.Key != nil {
		return nil
	}

	keyfile := keys.NewSimpleKeyfile(o.Config.Keyfile())

	privKey, err := keyfile.ReadKey()
	if os.IsNotExist(errors.Cause(err)) {
		o.logger.WithField("path", o.Config.Keyfile()).Warn("No key file, generating a new key")

		privKey, err = Keygen(o.Config.Keyfile())
		if err != nil {
			return err
		}

		o.logger.WithField("address", keys.NewKeySigner(privKey).Address()).Info("Created a new key")
	}
	if err != nil {
		return errors.Wrap(err, "reading key file")
	}

	o.Config.Key = privKey

	return nil
}

func (o *Ola) initGenesis() error {
	path := o.Config.GenesisPath()

	genesis, err := chain.LoadGenesis(path)
	if os.IsNotExist(err) {
		self := chain.AddressFromPublicKey(&o.Config.Key.PublicKey)

		genesis = chain.NewDevGenesis(self)
		if err := genesis.Validate(); err != nil {
			return err
		}

		if err := genesis.WriteFile(path); err != nil {
			return errors.Wrap(err, "writing genesis file")
		}

		o.logger.WithFields(logrus.Fields{
			"path":      path,
			"validator": self,
		}).Info("Created a single-validator genesis")

		err = nil
	}
	if err != nil {
		return err
	}

	o.Genesis = genesis

	return nil
}

func (o *Ola) initStore() error {
	if !o.Config.Store {
		o.Store = store.NewInmemStore(o.Config.CacheSize)

		o.logger.Debug("created new in-mem store")

		return nil
	}

	dbPath := o.Config.DatabaseDir

	o.logger.WithField("path", dbPath).Debug("Attempting to load or create database")

	bs, err := store.NewBadgerStore(o.Config.CacheSize, dbPath, o.logger.WithField("prefix", "store"))
	if err != nil {
		return errors.Wrapf(err, "opening database %s", dbPath)
	}

	o.Store = bs

	return nil
}

func (o *Ola) initLedger() error {
	l, err := ledger.New(validation.NewEngine(o.Genesis),
		o.Store,
		o.Config.CacheSize,
		o.logger.WithField("prefix", "ledger"),
	)
	if err != nil {
		return err
	}

	if err := l.Bootstrap(); err != nil {
		return errors.Wrap(err, "bootstrapping ledger")
	}

	head := l.CurrentHead()

	o.logger.WithFields(logrus.Fields{
		"chain_id":    o.Genesis.ChainID,
		"fork_choice": o.Genesis.ForkChoice,
		"height":      head.Height,
		"head":        head.Hash,
	}).Info("Ledger ready")

	o.Ledger = l
	o.Pool = txpool.NewPool(o.Config.TxPoolSize, o.logger.WithField("prefix", "txpool"))

	return nil
}

func (o *Ola) initTransport() error {
	transport, err := net.NewTCPTransport(
		o.Config.BindAddr(),
		o.Config.AdvertiseAddr,
		o.Config.MaxPool,
		o.Config.TCPTimeout,
		o.Config.SyncTimeout,
		o.logger.WithField("prefix", "transport"),
	)
	if err != nil {
		return err
	}

	o.Transport = transport

	return nil
}

// initPeers gathers the seed addresses from the configuration and from the
// peers file left by a previous run.
func (o *Ola) initPeers() error {
	o.Peers = peers.NewRegistry()
	o.PeerStore = peers.NewJSONPeers(o.Config.DataDir)

	seeds, invalid := peers.ParseNodes(o.Config.Nodes)
	for _, addr := range invalid {
		o.logger.WithField("node", addr).Warn("Skipping invalid seed address")
	}

	known, err := o.PeerStore.Addresses()
	if err != nil {
		return err
	}

	self := o.Transport.AdvertiseAddr()
	seen := make(map[string]bool)
	for _, addr := range append(seeds, known...) {
		if addr == self || seen[addr] {
			continue
		}
		seen[addr] = true
		o.seeds = append(o.seeds, addr)
	}

	o.logger.WithField("seeds", o.seeds).Debug("Seed peers")

	return nil
}

func (o *Ola) initNode() error {
	validator := node.NewValidator(o.Config.Key, o.Config.Moniker)

	if _, ok := o.Genesis.Weight(validator.Address()); !ok {
		o.logger.WithField("address", validator.Address()).Info("Not a validator, following the chain only")
	}

	o.Node = node.NewNode(
		o.Config.NodeConfig(),
		validator,
		o.Ledger,
		o.Pool,
		o.Peers,
		o.Transport,
		o.seeds,
	)

	if err := o.Node.Init(); err != nil {
		return fmt.Errorf("failed to initialize node: %s", err)
	}

	return nil
}

func (o *Ola) initService() {
	if !o.Config.NoService {
		o.Service = service.NewService(o.Config.ServiceAddr, o.Node, o.logger.WithField("prefix", "service"))
	}
}

// Keygen generates a new key and writes it to keyfile. It refuses to overwrite
// an existing key.
func Keygen(keyfile string) (*ecdsa.PrivateKey, error) {
	if _, err := os.Stat(keyfile); err == nil {
		return nil, fmt.Errorf("another key already lives at %s", keyfile)
	}

	privKey, err := keys.GenerateECDSAKey()
	if err != nil {
		return nil, err
	}

	if err := keys.NewSimpleKeyfile(keyfile).WriteKey(privKey); err != nil {
		return nil, err
	}

	return privKey, nil
}
