package net

import (
	"errors"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

var errNotTCP = errors.New("local address is not a TCP address")

// NewTCPTransport returns a NetworkTransport that is built on top of
// a TCP streaming transport layer, with log output going to the supplied Logger
func NewTCPTransport(
	bindAddr string,
	advertise string,
	maxPool int,
	timeout time.Duration,
	syncTimeout time.Duration,
	logger *logrus.Entry,
) (*NetworkTransport, error) {
	trans, err := newTCPTransport(bindAddr, advertise, func(stream StreamLayer) *NetworkTransport {
		return NewNetworkTransport(stream, maxPool, timeout, syncTimeout, logger)
	})
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"bind":      trans.LocalAddr(),
		"advertise": trans.AdvertiseAddr(),
	}).Debug("TCP transport ready")

	return trans, nil
}

func newTCPTransport(bindAddr string,
	advertiseAddr string,
	transportCreator func(stream StreamLayer) *NetworkTransport) (*NetworkTransport, error) {

	// Try to bind
	list, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}

	tcpList, ok := list.(*net.TCPListener)
	if !ok {
		list.Close()
		return nil, errNotTCP
	}

	stream, err := newTCPStreamLayer(tcpList, advertiseAddr)
	if err != nil {
		list.Close()
		return nil, err
	}

	// Create the network transport
	trans := transportCreator(stream)
	return trans, nil
}
