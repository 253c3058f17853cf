// Package ola assembles a complete node from a config.Config: it loads or
// creates the validator key and the genesis document, opens the store,
// bootstraps the ledger, binds the TCP transport, gathers seed peers, and runs
// the node with its optional HTTP service.
//
//	engine := ola.NewOla(config.NewDefaultConfig())
//	if err := engine.Init(); err != nil {
//		return err
//	}
//	engine.Run()
package ola
