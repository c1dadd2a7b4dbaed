// Package stream owns the process's network edge: a listening endpoint
// that accepts inbound frames into a shared in-buffer, and one Node per
// known remote holding that remote's outbound queue. Register-marked
// nodes carry only control traffic toward the root; everything else is
// a data link.
package stream

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/go-treecast/treecast/internal/metrics"
	"github.com/go-treecast/treecast/packet"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrLinkDead is returned by flush when the outbound transport fails.
// The Stream evicts the Node from its map in response.
var ErrLinkDead = errors.New("stream: link dead")

// dialTimeout bounds how long a Node waits to establish its outbound
// connection before giving up and reporting ErrLinkDead.
var dialTimeout = 3 * time.Second

// Node is one outbound peer link: an ordered queue of encoded packets
// pending transmission to a single remote address, flushed in order
// over a persistent TCP connection.
type Node struct {
	mu       sync.Mutex
	addr     packet.Address
	register bool
	conn     net.Conn
	outBuf   [][]byte
}

// NewNode constructs a Node for addr. The connection itself is
// established lazily on first flush.
func NewNode(addr packet.Address, register bool) *Node {
	return &Node{addr: addr, register: register}
}

// Address returns the remote address this Node links to.
func (n *Node) Address() packet.Address {
	return n.addr
}

// Register reports whether this is a register-link.
func (n *Node) Register() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.register
}

// SetRegister updates the register flag in place. A client whose
// assigned tree parent is the same address it registered with reuses
// the one Node for both phases, so the flag has to follow the link's
// current use rather than stay fixed at construction.
func (n *Node) SetRegister(register bool) {
	n.mu.Lock()
	n.register = register
	n.mu.Unlock()
}

// Enqueue appends p's encoded bytes to the outbound queue.
func (n *Node) Enqueue(p packet.Packet) error {
	buf, err := p.Encode()
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.outBuf = append(n.outBuf, buf)
	n.mu.Unlock()
	return nil
}

// Flush transmits queued frames in order, dialing the connection on
// first use and waiting for the remote's ACK after each frame. The
// ACK ping-pong is what keeps one send one frame on the wire. On
// transport failure it clears the queue, closes the connection, and
// returns ErrLinkDead so the Stream can evict the node.
func (n *Node) Flush() error {
	n.mu.Lock()
	pending := n.outBuf
	n.outBuf = nil
	conn := n.conn
	n.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	if conn == nil {
		var err error
		conn, err = net.DialTimeout("tcp", n.addr.DialAddr(), dialTimeout)
		if err != nil {
			return n.kill()
		}
		n.mu.Lock()
		n.conn = conn
		n.mu.Unlock()
	}

	ack := make([]byte, len(ackBytes))
	for _, frame := range pending {
		if _, err := conn.Write(frame); err != nil {
			return n.kill()
		}
		if _, err := io.ReadFull(conn, ack); err != nil {
			return n.kill()
		}
		metrics.SendCount.Inc()
	}
	return nil
}

// kill tears down the connection and reports ErrLinkDead. Whatever
// remains queued is dropped; the reunion protocol, not the transport,
// owns recovery.
func (n *Node) kill() error {
	n.mu.Lock()
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
	n.outBuf = nil
	n.mu.Unlock()
	metrics.ErrorCount.With(prometheus.Labels{"type": "link_dead"}).Inc()
	return ErrLinkDead
}

// Close shuts down the Node's connection, if any.
func (n *Node) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}
}
