// Package peer implements the overlay participant itself: the
// root/client state machine, the periodic main loop that drains and
// dispatches inbound frames, the reunion keep-alive daemon, and the
// broadcast shaping that keeps control traffic on register-links and
// data traffic on tree links.
package peer

import (
	"sync"
	"time"

	"github.com/go-treecast/treecast/graph"
	"github.com/go-treecast/treecast/internal/logging"
	"github.com/go-treecast/treecast/packet"
	"github.com/go-treecast/treecast/stream"
	"github.com/go-treecast/treecast/ui"
	"gopkg.in/tomb.v2"
)

// Role distinguishes root and client behavior.
type Role int

const (
	// RoleRoot is the distinguished admitting peer.
	RoleRoot Role = iota
	// RoleClient is any other participant.
	RoleClient
)

var (
	cfgMx sync.Mutex
	// mainInterval is the main loop's cadence.
	mainInterval = 2 * time.Second
	// reunionInterval is the reunion daemon's cadence.
	reunionInterval = 4 * time.Second
	// reunionAcceptance is the deadline after which a client declares
	// reunion failure and the root prunes a silent subtree.
	reunionAcceptance = 20 * time.Second
)

// SetMainInterval overrides the main loop's cadence. Intended for tests
// that want faster convergence than the default.
func SetMainInterval(d time.Duration) {
	cfgMx.Lock()
	defer cfgMx.Unlock()
	mainInterval = d
}

// SetReunionInterval overrides the reunion daemon's cadence.
func SetReunionInterval(d time.Duration) {
	cfgMx.Lock()
	defer cfgMx.Unlock()
	reunionInterval = d
}

// SetReunionAcceptance overrides the reunion deadline.
func SetReunionAcceptance(d time.Duration) {
	cfgMx.Lock()
	defer cfgMx.Unlock()
	reunionAcceptance = d
}

func intervals() (main, reunion, acceptance time.Duration) {
	cfgMx.Lock()
	defer cfgMx.Unlock()
	return mainInterval, reunionInterval, reunionAcceptance
}

// Peer is the state machine and dispatcher: it decodes inbound frames,
// consults the UI buffer, updates the NetworkGraph when acting as root,
// and shapes outbound packets into the Stream's per-neighbor queues.
type Peer struct {
	self packet.Address
	role Role
	srv  *stream.Stream
	ui   *ui.Buffer

	t tomb.Tomb

	mu                sync.Mutex
	rootAddr          packet.Address // client only: the register-link target
	parentAddr        packet.Address // client only: zero value means "no parent yet"
	children          []packet.Address
	connected         bool // client only
	awaitingHelloback bool // client only
	lastHelloSentAt   time.Time
	reunionStarted    bool // root: set by Run; client: daemon starts on first successful advertise

	graph         *graph.NetworkGraph          // root only
	nodesLastSeen map[packet.Address]time.Time // root only
}

// NewRoot builds a Peer that admits clients at self and owns a fresh
// NetworkGraph rooted at self.
func NewRoot(self packet.Address, srv *stream.Stream, cmdBuf *ui.Buffer) *Peer {
	return &Peer{
		self:          self,
		role:          RoleRoot,
		srv:           srv,
		ui:            cmdBuf,
		graph:         graph.New(self),
		nodesLastSeen: make(map[packet.Address]time.Time),
	}
}

// NewClient builds a Peer that joins the tree rooted at rootAddr.
func NewClient(self, rootAddr packet.Address, srv *stream.Stream, cmdBuf *ui.Buffer) *Peer {
	return &Peer{
		self:     self,
		role:     RoleClient,
		srv:      srv,
		ui:       cmdBuf,
		rootAddr: rootAddr,
	}
}

// IsRoot reports whether this Peer plays the root role.
func (p *Peer) IsRoot() bool {
	return p.role == RoleRoot
}

// Run starts the main loop and, on the root, the reunion daemon. A
// client's reunion daemon starts later, on its first ADVERTISE
// response, since there is nothing to keep alive before a parent
// exists.
func (p *Peer) Run() {
	p.t.Go(p.runMain)

	if p.role == RoleRoot {
		p.mu.Lock()
		p.reunionStarted = true
		p.mu.Unlock()
		p.t.Go(p.runReunion)
	}
}

// Stop cancels both daemons and waits for them to exit.
func (p *Peer) Stop() {
	p.t.Kill(nil)
	p.t.Wait()
}

// Self returns the peer's own address.
func (p *Peer) Self() packet.Address {
	return p.self
}

// Children returns a snapshot of the known child addresses.
func (p *Peer) Children() []packet.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]packet.Address, len(p.children))
	copy(out, p.children)
	return out
}

// Connected reports whether a client has completed its JOIN handshake.
func (p *Peer) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Graph exposes the root's NetworkGraph, for tests and diagnostics.
func (p *Peer) Graph() *graph.NetworkGraph {
	return p.graph
}

// send rewrites pkt's header to the peer's own address, so hop-by-hop
// identification reflects the emitter while the body alone carries any
// end-to-end path, and enqueues it to addr.
func (p *Peer) send(addr packet.Address, pkt packet.Packet) {
	rewritten := pkt.WithSource(p.self)
	p.srv.Enqueue(addr, rewritten)
}

func (p *Peer) startReunionDaemonOnce() {
	p.mu.Lock()
	already := p.reunionStarted
	p.reunionStarted = true
	p.mu.Unlock()
	if already {
		return
	}
	p.t.Go(p.runReunion)
}

func logDrop(kind string, t packet.Type, addr packet.Address) {
	logging.WithField("from", addr.String()).Warnf("peer: dropping %s %s packet", kind, t)
}
