package net

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// TCPStreamLayer implements StreamLayer for plain TCP. The node binds to
// NODE_IP:NODE_PORT and advertises either the configured address or one
// derived from the bind address.
type TCPStreamLayer struct {
	advertise string
	listener  *net.TCPListener
}

// newTCPStreamLayer wraps list. When advertise is empty and the listener is
// bound to an unspecified IP (0.0.0.0 or ::), the advertised host is the first
// IPv4 address of an interface that is up, or the loopback address.
func newTCPStreamLayer(list *net.TCPListener, advertise string) (*TCPStreamLayer, error) {
	if advertise != "" {
		addr, err := net.ResolveTCPAddr("tcp", advertise)
		if err != nil {
			return nil, fmt.Errorf("resolving advertise address %s: %v", advertise, err)
		}
		if addr.IP == nil || addr.IP.IsUnspecified() {
			return nil, fmt.Errorf("advertise address %s is not reachable by peers, set --advertise to a concrete host", advertise)
		}
		return &TCPStreamLayer{advertise: advertise, listener: list}, nil
	}

	bound := list.Addr().(*net.TCPAddr)
	if !bound.IP.IsUnspecified() {
		return &TCPStreamLayer{advertise: bound.String(), listener: list}, nil
	}

	host := interfaceIP()
	return &TCPStreamLayer{
		advertise: net.JoinHostPort(host.String(), strconv.Itoa(bound.Port)),
		listener:  list,
	}, nil
}

// interfaceIP returns the first global unicast IPv4 address of an interface
// that is up, or 127.0.0.1.
func interfaceIP() net.IP {
	ifaces, err := net.Interfaces()
	if err != nil {
		return net.IPv4(127, 0, 0, 1)
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ip := ipNet.IP.To4(); ip != nil && ip.IsGlobalUnicast() {
				return ip
			}
		}
	}

	return net.IPv4(127, 0, 0, 1)
}

// Dial implements the StreamLayer interface.
func (t *TCPStreamLayer) Dial(address string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, &PeerUnreachableError{Addr: address, Err: err}
	}
	return conn, nil
}

// Accept implements the net.Listener interface.
func (t *TCPStreamLayer) Accept() (net.Conn, error) {
	return t.listener.Accept()
}

// Close implements the net.Listener interface.
func (t *TCPStreamLayer) Close() error {
	return t.listener.Close()
}

// Addr implements the net.Listener interface.
func (t *TCPStreamLayer) Addr() net.Addr {
	return t.listener.Addr()
}

// AdvertiseAddr implements the StreamLayer interface.
func (t *TCPStreamLayer) AdvertiseAddr() string {
	return t.advertise
}
