package peer

import (
	"time"

	"github.com/go-treecast/treecast/internal/logging"
	"github.com/go-treecast/treecast/internal/metrics"
	"github.com/go-treecast/treecast/packet"
)

// handleRegister admits a first-time sender at the root: it gets a
// tracked Node and a last-seen entry. Re-registrations and non-root
// receipt are no-ops.
func (p *Peer) handleRegister(pkt packet.Packet) {
	if p.role != RoleRoot {
		logDrop("misrouted", pkt.Type, pkt.SourceAddr)
		return
	}

	sender := pkt.SourceAddr
	p.mu.Lock()
	_, known := p.nodesLastSeen[sender]
	if !known {
		p.nodesLastSeen[sender] = time.Now()
	}
	p.mu.Unlock()

	if !known {
		p.srv.AddNode(sender, false)
		logging.WithField("peer", sender.String()).Infof("peer: registered")
	}
}

// handleAdvertise is role-split: the root resolves a parent via the
// graph and replies; the client records the assigned parent and joins
// it.
func (p *Peer) handleAdvertise(pkt packet.Packet) {
	if p.role == RoleRoot {
		if !packet.IsAdvertiseRequest(pkt) {
			return
		}
		sender := pkt.SourceAddr

		p.mu.Lock()
		_, registered := p.nodesLastSeen[sender]
		p.mu.Unlock()
		if !registered {
			// Unregistered senders get no parent and no reply.
			return
		}

		neighbor := p.graph.FindLiveParent(sender)
		if neighbor == nil {
			logging.Warnf("peer: no live parent available for %s", sender)
			return
		}
		if !p.graph.AddNode(sender, neighbor.Address) {
			logging.Warnf("peer: failed to attach %s under %s", sender, neighbor.Address)
			return
		}
		p.send(sender, packet.NewAdvertiseResponse(p.self, neighbor.Address))
		return
	}

	// Client: ignore requests (only the root answers them); parse the
	// parent address out of a response.
	if packet.IsAdvertiseRequest(pkt) {
		return
	}
	parentAddr, err := packet.ParseAdvertiseResponse(pkt)
	if err != nil {
		logging.Warnf("peer: %v", err)
		return
	}

	p.mu.Lock()
	p.parentAddr = parentAddr
	p.connected = true
	p.mu.Unlock()

	p.srv.AddNode(parentAddr, false)
	p.startReunionDaemonOnce()
	p.send(parentAddr, packet.NewJoin(p.self))
}

// handleJoin appends the sender to the child list and ensures a Node
// exists to reach it. No response.
func (p *Peer) handleJoin(pkt packet.Packet) {
	sender := pkt.SourceAddr
	p.mu.Lock()
	p.children = append(p.children, sender)
	p.mu.Unlock()
	p.srv.AddNode(sender, false)
}

// handleMessage re-broadcasts every MESSAGE it sees, including ones it
// did not originate. The flood is blind — no per-recipient exclusion of
// the arrival direction — and terminates because the tree is acyclic
// and leaves have no children.
func (p *Peer) handleMessage(pkt packet.Packet) {
	p.broadcastMessage(pkt)
}

// handleReunion dispatches rising hellos and falling hellobacks.
func (p *Peer) handleReunion(pkt packet.Packet) {
	switch {
	case packet.IsReunionHello(pkt):
		p.handleReunionHello(pkt)
	case packet.IsReunionHelloback(pkt):
		p.handleReunionHelloback(pkt)
	}
}

func (p *Peer) handleReunionHello(pkt packet.Packet) {
	if p.role == RoleRoot {
		path, err := packet.ParseReunionPath(pkt)
		if err != nil || len(path) == 0 {
			logging.Warnf("peer: malformed reunion hello: %v", err)
			return
		}
		originator := path[0]

		p.mu.Lock()
		p.nodesLastSeen[originator] = time.Now()
		p.mu.Unlock()
		p.graph.TurnOnNode(originator)

		reversed := reverseAddresses(path)
		back := packet.NewReunionHelloback(p.self, reversed)
		p.send(reversed[0], back)
		return
	}

	// Client: append our own address and forward rising, upstream only.
	advanced, err := packet.AppendReunionHop(pkt, p.self)
	if err != nil {
		logging.Warnf("peer: %v", err)
		return
	}
	p.mu.Lock()
	parent := p.parentAddr
	p.mu.Unlock()
	if parent.Zero() {
		return
	}
	p.send(parent, advanced)
}

func (p *Peer) handleReunionHelloback(pkt packet.Packet) {
	terminal, err := packet.ReunionHellobackIsTerminal(pkt, p.self)
	if err != nil {
		logging.Warnf("peer: %v", err)
		return
	}
	if terminal {
		p.mu.Lock()
		p.awaitingHelloback = false
		p.mu.Unlock()
		metrics.ReunionSuccessCount.Inc()
		return
	}

	advanced, nextHop, err := packet.AdvanceReunionHelloback(pkt)
	if err != nil {
		logging.Warnf("peer: %v", err)
		return
	}
	p.send(nextHop, advanced)
}

func reverseAddresses(in []packet.Address) []packet.Address {
	out := make([]packet.Address, len(in))
	for i, a := range in {
		out[len(in)-1-i] = a
	}
	return out
}
