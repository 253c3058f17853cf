package net

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"
)

// NewInmemAddr returns a new in-memory addr with
// a randomly generate UUID as the ID.
func NewInmemAddr() string {
	return generateUUID()
}

// generateUUID is used to generate a random UUID.
func generateUUID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Errorf("failed to read random bytes: %v", err))
	}

	return fmt.Sprintf("%08x-%04x-%04x-%04x-%12x",
		buf[0:4],
		buf[4:6],
		buf[6:8],
		buf[8:10],
		buf[10:16])
}

// InmemTransport Implements the Transport interface, to allow nodes to be
// tested in-memory without going over a network. Messages are still encoded
// and decoded, so receivers never share memory with senders.
type InmemTransport struct {
	sync.RWMutex
	consumerCh chan RPC
	localAddr  string
	peers      map[string]*InmemTransport
	timeout    time.Duration
	shutdownCh chan struct{}
	closeOnce  sync.Once
}

// NewInmemTransport is used to initialize a new transport
// and generates a random local address if none is specified
func NewInmemTransport(addr string) (string, *InmemTransport) {
	if addr == "" {
		addr = NewInmemAddr()
	}
	trans := &InmemTransport{
		consumerCh: make(chan RPC, 16),
		localAddr:  addr,
		peers:      make(map[string]*InmemTransport),
		timeout:    500 * time.Millisecond,
		shutdownCh: make(chan struct{}),
	}
	return addr, trans
}

// SetTimeout changes how long Send and Request wait for the peer.
func (i *InmemTransport) SetTimeout(timeout time.Duration) {
	i.Lock()
	defer i.Unlock()
	i.timeout = timeout
}

// Consumer implements the Transport interface.
func (i *InmemTransport) Consumer() <-chan RPC {
	return i.consumerCh
}

// LocalAddr implements the Transport interface.
func (i *InmemTransport) LocalAddr() string {
	return i.localAddr
}

// AdvertiseAddr implements the Transport interface.
func (i *InmemTransport) AdvertiseAddr() string {
	return i.localAddr
}

// Send implements the Transport interface.
func (i *InmemTransport) Send(target string, msg Message) error {
	if msg.Type().expectsReply() {
		_, err := i.Request(target, msg)
		return err
	}
	_, err := i.makeRPC(target, msg, false)
	return err
}

// Request implements the Transport interface.
func (i *InmemTransport) Request(target string, msg Message) (Message, error) {
	resp, err := i.makeRPC(target, msg, true)
	if err != nil {
		return nil, err
	}

	if rej, ok := resp.(*Reject); ok {
		return nil, &RejectedError{Addr: target, Reason: rej.Reason}
	}

	return resp, nil
}

// copyMessage passes a message through the codec.
func copyMessage(msg Message) (Message, error) {
	frame, err := Encode(msg)
	if err != nil {
		return nil, err
	}
	return Decode(frame)
}

func (i *InmemTransport) makeRPC(target string, msg Message, wait bool) (Message, error) {
	if i.isShutdown() {
		return nil, ErrTransportShutdown
	}

	i.RLock()
	peer, ok := i.peers[target]
	timeout := i.timeout
	i.RUnlock()

	if !ok || peer.isShutdown() {
		return nil, &PeerUnreachableError{Addr: target, Err: fmt.Errorf("no route")}
	}

	cmd, err := copyMessage(msg)
	if err != nil {
		return nil, err
	}

	rpc := RPC{
		From:    i.localAddr,
		Command: cmd,
	}

	var respCh chan RPCResponse
	if wait {
		respCh = make(chan RPCResponse, 1)
		rpc.RespChan = respCh
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// Send the RPC over
	select {
	case peer.consumerCh <- rpc:
	case <-peer.shutdownCh:
		return nil, &PeerUnreachableError{Addr: target, Err: ErrTransportShutdown}
	case <-timer.C:
		return nil, &PeerUnreachableError{Addr: target, Err: ErrTimeout}
	}

	if !wait {
		return nil, nil
	}

	// Wait for a response
	select {
	case resp := <-respCh:
		return copyMessage(replyFor(resp))
	case <-timer.C:
		return nil, &PeerUnreachableError{Addr: target, Err: ErrTimeout}
	}
}

// Connect is used to connect this transport to another transport for
// a given peer name. This allows for local routing.
func (i *InmemTransport) Connect(peer string, t Transport) {
	trans := t.(*InmemTransport)
	i.Lock()
	defer i.Unlock()
	i.peers[peer] = trans
}

// Disconnect is used to remove the ability to route to a given peer.
func (i *InmemTransport) Disconnect(peer string) {
	i.Lock()
	defer i.Unlock()
	delete(i.peers, peer)
}

// DisconnectAll is used to remove all routes to peers.
func (i *InmemTransport) DisconnectAll() {
	i.Lock()
	defer i.Unlock()
	i.peers = make(map[string]*InmemTransport)
}

// Close is used to permanently disable the transport
func (i *InmemTransport) Close() error {
	i.DisconnectAll()
	i.closeOnce.Do(func() {
		close(i.shutdownCh)
	})
	return nil
}

func (i *InmemTransport) isShutdown() bool {
	select {
	case <-i.shutdownCh:
		return true
	default:
		return false
	}
}

// Listen is an empty function as there is no need to defer
// initialisation of the InMem service
func (i *InmemTransport) Listen() {
}
