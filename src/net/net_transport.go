package net

import (
	"bufio"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	bufSize = 64 * 1024
)

/*
NetworkTransport provides a network based transport that can be
used to communicate with other nodes on remote machines. It requires
an underlying stream layer to provide a stream abstraction, which can
be simple TCP, TLS, etc.

Every message is a single frame (see Encode). Handshake and SyncRequest frames
are answered on the same connection with one frame; other messages are not
answered. Outbound connections are pooled per target and used by one caller at
a time. Inbound connections are served by one goroutine each; a frame that
cannot be read or decoded closes that connection only.
*/
type NetworkTransport struct {
	logger *logrus.Entry

	connPool     map[string][]*netConn
	connPoolLock sync.Mutex
	maxPool      int

	consumeCh chan RPC

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	stream StreamLayer

	timeout     time.Duration
	syncTimeout time.Duration
}

type netConn struct {
	target string
	conn   net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
}

// Release closes the underlying connection
func (n *netConn) Release() error {
	return n.conn.Close()
}

// NewNetworkTransport creates a new network transport with the given dialer
// and listener. The maxPool controls how many connections we will pool (per
// target). The timeout is used to apply I/O deadlines, and syncTimeout
// replaces it for SyncRequests.
func NewNetworkTransport(
	stream StreamLayer,
	maxPool int,
	timeout time.Duration,
	syncTimeout time.Duration,
	logger *logrus.Entry,
) *NetworkTransport {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	trans := &NetworkTransport{
		connPool:    make(map[string][]*netConn),
		consumeCh:   make(chan RPC),
		logger:      logger,
		maxPool:     maxPool,
		shutdownCh:  make(chan struct{}),
		stream:      stream,
		timeout:     timeout,
		syncTimeout: syncTimeout,
	}

	return trans
}

// Close is used to stop the network transport.
func (n *NetworkTransport) Close() error {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if !n.shutdown {
		close(n.shutdownCh)
		n.stream.Close()

		n.connPoolLock.Lock()
		for target, conns := range n.connPool {
			for _, c := range conns {
				c.Release()
			}
			delete(n.connPool, target)
		}
		n.connPoolLock.Unlock()

		n.shutdown = true
	}
	return nil
}

// Consumer implements the Transport interface.
func (n *NetworkTransport) Consumer() <-chan RPC {
	return n.consumeCh
}

// LocalAddr implements the Transport interface.
func (n *NetworkTransport) LocalAddr() string {
	addr := n.stream.Addr()

	if addr != nil {
		return addr.String()
	}

	return ""
}

// AdvertiseAddr implements the Transport interface.
func (n *NetworkTransport) AdvertiseAddr() string {
	return n.stream.AdvertiseAddr()
}

// IsShutdown is used to check if the transport is shutdown.
func (n *NetworkTransport) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

// getPooledConn is used to grab a pooled connection.
func (n *NetworkTransport) getPooledConn(target string) *netConn {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	conns, ok := n.connPool[target]
	if !ok || len(conns) == 0 {
		return nil
	}

	var conn *netConn
	num := len(conns)
	conn, conns[num-1] = conns[num-1], nil
	n.connPool[target] = conns[:num-1]
	return conn
}

// dial opens a new connection to target.
func (n *NetworkTransport) dial(target string, timeout time.Duration) (*netConn, error) {
	conn, err := n.stream.Dial(target, timeout)
	if err != nil {
		if !IsPeerUnreachable(err) {
			err = &PeerUnreachableError{Addr: target, Err: err}
		}
		return nil, err
	}

	return &netConn{
		target: target,
		conn:   conn,
		r:      bufio.NewReaderSize(conn, bufSize),
		w:      bufio.NewWriterSize(conn, bufSize),
	}, nil
}

// returnConn returns a connection back to the pool.
func (n *NetworkTransport) returnConn(conn *netConn) {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	key := conn.target
	conns := n.connPool[key]

	if !n.IsShutdown() && len(conns) < n.maxPool {
		n.connPool[key] = append(conns, conn)
	} else {
		conn.Release()
	}
}

// Connect dials target and keeps the connection in the pool.
func (n *NetworkTransport) Connect(target string) error {
	if n.IsShutdown() {
		return ErrTransportShutdown
	}

	if conn := n.getPooledConn(target); conn != nil {
		n.returnConn(conn)
		return nil
	}

	conn, err := n.dial(target, n.timeout)
	if err != nil {
		return err
	}
	n.returnConn(conn)

	return nil
}

// Send implements the Transport interface.
func (n *NetworkTransport) Send(target string, msg Message) error {
	if msg.Type().expectsReply() {
		_, err := n.Request(target, msg)
		return err
	}

	_, err := n.roundTrip(target, msg, n.timeout, false)
	return err
}

// Request implements the Transport interface.
func (n *NetworkTransport) Request(target string, msg Message) (Message, error) {
	timeout := n.timeout
	if msg.Type() == SyncRequestMsg && n.syncTimeout > 0 {
		timeout = n.syncTimeout
	}

	resp, err := n.roundTrip(target, msg, timeout, msg.Type().expectsReply())
	if err != nil {
		return nil, err
	}

	if rej, ok := resp.(*Reject); ok {
		return nil, &RejectedError{Addr: target, Reason: rej.Reason}
	}

	return resp, nil
}

// roundTrip writes msg and, if wait is set, reads the answer. A pooled
// connection may have been closed by the peer since it was last used, in
// which case the exchange is attempted once more on a fresh connection.
func (n *NetworkTransport) roundTrip(target string, msg Message, timeout time.Duration, wait bool) (Message, error) {
	if n.IsShutdown() {
		return nil, ErrTransportShutdown
	}

	frame, err := Encode(msg)
	if err != nil {
		return nil, err
	}

	if conn := n.getPooledConn(target); conn != nil {
		resp, err := n.exchange(conn, frame, timeout, wait)
		if err == nil {
			return resp, nil
		}
		if !IsPeerUnreachable(err) {
			return nil, err
		}
		n.logger.WithFields(logrus.Fields{
			"target": target,
			"error":  err,
		}).Debug("Pooled connection failed, redialing")
	}

	conn, err := n.dial(target, timeout)
	if err != nil {
		return nil, err
	}

	return n.exchange(conn, frame, timeout, wait)
}

// exchange performs one request on conn and returns it to the pool if it is
// still usable.
func (n *NetworkTransport) exchange(conn *netConn, frame []byte, timeout time.Duration, wait bool) (Message, error) {
	if timeout > 0 {
		conn.conn.SetDeadline(time.Now().Add(timeout))
	}

	if _, err := conn.w.Write(frame); err != nil {
		conn.Release()
		return nil, &PeerUnreachableError{Addr: conn.target, Err: err}
	}

	if err := conn.w.Flush(); err != nil {
		conn.Release()
		return nil, &PeerUnreachableError{Addr: conn.target, Err: err}
	}

	if !wait {
		n.returnConn(conn)
		return nil, nil
	}

	resp, err := ReadMessage(conn.r)
	if err != nil {
		conn.Release()
		if err == io.EOF {
			return nil, &PeerUnreachableError{Addr: conn.target, Err: err}
		}
		if ferr, ok := err.(*FramingError); ok {
			if _, isNet := ferr.Err.(net.Error); isNet || ferr.Err == io.ErrUnexpectedEOF {
				return nil, &PeerUnreachableError{Addr: conn.target, Err: ferr.Err}
			}
		}
		return nil, err
	}

	n.returnConn(conn)

	return resp, nil
}

// Listen opens the stream and handles incoming connections.
func (n *NetworkTransport) Listen() {
	for {
		// Accept incoming connections
		conn, err := n.stream.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			n.logger.WithField("error", err).Error("Failed to accept connection")
			continue
		}
		n.logger.WithFields(logrus.Fields{
			"node": conn.LocalAddr(),
			"from": conn.RemoteAddr(),
		}).Debug("accepted connection")

		// Handle the connection in dedicated routine
		go n.handleConn(conn)
	}
}

// handleConn is used to handle an inbound connection for its lifespan.
func (n *NetworkTransport) handleConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReaderSize(conn, bufSize)
	w := bufio.NewWriterSize(conn, bufSize)
	from := conn.RemoteAddr().String()

	for {
		if err := n.handleCommand(from, r, w); err != nil {
			switch err.(type) {
			case *FramingError, *MalformedMessageError:
				n.logger.WithFields(logrus.Fields{
					"from":  from,
					"error": err,
				}).Warn("Dropping connection")
			default:
				if err != io.EOF && err != ErrTransportShutdown {
					n.logger.WithField("error", err).Error("Failed to handle incoming command")
				}
			}
			return
		}
		if err := w.Flush(); err != nil {
			n.logger.WithField("error", err).Error("Failed to flush response")
			return
		}
	}
}

// handleCommand is used to decode and dispatch a single command.
func (n *NetworkTransport) handleCommand(from string, r io.Reader, w io.Writer) error {
	msg, err := ReadMessage(r)
	if err != nil {
		return err
	}

	rpc := RPC{
		From:    from,
		Command: msg,
	}

	var respCh chan RPCResponse
	if msg.Type().expectsReply() {
		respCh = make(chan RPCResponse, 1)
		rpc.RespChan = respCh
	}

	// Dispatch the RPC
	select {
	case n.consumeCh <- rpc:
	case <-n.shutdownCh:
		return ErrTransportShutdown
	}

	if respCh == nil {
		return nil
	}

	// Wait for response
	select {
	case resp := <-respCh:
		return WriteMessage(w, replyFor(resp))
	case <-n.shutdownCh:
		return ErrTransportShutdown
	}
}
