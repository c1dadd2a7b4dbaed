package stream

import (
	"net"
	"sync"

	"github.com/go-treecast/treecast/internal/logging"
	"github.com/go-treecast/treecast/internal/metrics"
	"github.com/go-treecast/treecast/packet"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/tomb.v2"
)

// ackBytes is the fixed reply the listener sends for every accepted
// frame.
var ackBytes = []byte("ACK")

// maxFrame bounds a single read off an accepted connection. Senders
// wait for the ACK before writing the next frame, so one read is one
// frame.
const maxFrame = 64 * 1024

// Stream owns the local listening endpoint: a background accept loop
// appends every received frame to a shared in-buffer and replies ACK,
// while a map of Nodes holds the outbound side of each known remote.
type Stream struct {
	t  tomb.Tomb
	ln net.Listener

	mu    sync.Mutex
	inBuf [][]byte
	nodes map[packet.Address]*Node
	conns map[net.Conn]struct{}
}

// Listen starts a Stream bound to local, accepting connections in the
// background until Close is called.
func Listen(local packet.Address) (*Stream, error) {
	ln, err := net.Listen("tcp", local.DialAddr())
	if err != nil {
		return nil, err
	}
	s := &Stream{
		ln:    ln,
		nodes: make(map[packet.Address]*Node),
		conns: make(map[net.Conn]struct{}),
	}
	s.t.Go(s.acceptLoop)
	return s, nil
}

func (s *Stream) acceptLoop() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.t.Dying():
				return nil
			default:
				logging.Warnf("stream: accept: %v", err)
				continue
			}
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.t.Go(func() error {
			s.serveConn(conn)
			return nil
		})
	}
}

func (s *Stream) serveConn(conn net.Conn) {
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	buf := make([]byte, maxFrame)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])

		s.mu.Lock()
		s.inBuf = append(s.inBuf, frame)
		s.mu.Unlock()
		metrics.FrameCount.Inc()

		if _, err := conn.Write(ackBytes); err != nil {
			return
		}
	}
}

// ReadInBuf returns a snapshot of the frames received since the last
// ClearInBuf.
func (s *Stream) ReadInBuf() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.inBuf))
	copy(out, s.inBuf)
	return out
}

// ClearInBuf drops everything accumulated in the in-buffer so far.
func (s *Stream) ClearInBuf() {
	s.mu.Lock()
	s.inBuf = nil
	s.mu.Unlock()
}

// AddNode is idempotent: it returns the existing Node for addr if one
// is already tracked, otherwise creates and stores a new one. Calling
// it again on a known address with a different register value
// reconfigures that Node's flag in place rather than creating a second
// link; the node map is keyed by address alone.
func (s *Stream) AddNode(addr packet.Address, register bool) *Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.nodes[addr]; ok {
		if n.Register() != register {
			n.SetRegister(register)
		}
		return n
	}
	n := NewNode(addr, register)
	s.nodes[addr] = n
	return n
}

// RemoveNode closes and drops the Node for addr, if tracked.
func (s *Stream) RemoveNode(addr packet.Address) {
	s.mu.Lock()
	n, ok := s.nodes[addr]
	if ok {
		delete(s.nodes, addr)
	}
	s.mu.Unlock()
	if ok {
		n.Close()
	}
}

// Enqueue queues p for addr. An address absent from the node map is
// logged and dropped.
func (s *Stream) Enqueue(addr packet.Address, p packet.Packet) {
	s.mu.Lock()
	n, ok := s.nodes[addr]
	s.mu.Unlock()
	if !ok {
		metrics.ErrorCount.With(prometheus.Labels{"type": "unknown_destination"}).Inc()
		logging.WithField("dest", addr.String()).Warnf("stream: enqueue: unknown destination, dropping %s", p.Type)
		return
	}
	if err := n.Enqueue(p); err != nil {
		logging.Warnf("stream: enqueue: encode %s for %s: %v", p.Type, addr, err)
	}
}

// Flush calls Flush on each tracked Node (or only register-marked ones
// when onlyRegister is set), evicting any whose flush reports
// ErrLinkDead. It returns the addresses evicted this call.
func (s *Stream) Flush(onlyRegister bool) []packet.Address {
	s.mu.Lock()
	targets := make([]*Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		if onlyRegister && !n.Register() {
			continue
		}
		targets = append(targets, n)
	}
	s.mu.Unlock()

	var evicted []packet.Address
	for _, n := range targets {
		if err := n.Flush(); err != nil {
			logging.WithField("peer", n.Address().String()).Warnf("stream: flush: %v, evicting node", err)
			evicted = append(evicted, n.Address())
		}
	}

	if len(evicted) > 0 {
		s.mu.Lock()
		for _, addr := range evicted {
			delete(s.nodes, addr)
		}
		s.mu.Unlock()
	}
	return evicted
}

// Addr returns the actual listening address, useful when Listen was
// called with an ephemeral port ("0").
func (s *Stream) Addr() net.Addr {
	return s.ln.Addr()
}

// Close stops the accept loop, tears down every accepted connection
// and outbound Node, and waits for all goroutines to exit.
func (s *Stream) Close() {
	s.t.Kill(nil)
	s.ln.Close()

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	nodes := make([]*Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		nodes = append(nodes, n)
	}
	s.mu.Unlock()
	for _, n := range nodes {
		n.Close()
	}

	s.t.Wait()
}
