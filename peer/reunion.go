package peer

import (
	"time"

	"github.com/go-treecast/treecast/internal/logging"
	"github.com/go-treecast/treecast/internal/metrics"
	"github.com/go-treecast/treecast/packet"
)

// runReunion is the keep-alive daemon. The root sweeps for silent
// subtrees; a client issues path-echo hellos and watches its own
// deadline.
func (p *Peer) runReunion() error {
	_, reunion, _ := intervals()
	ticker := time.NewTicker(reunion)
	defer ticker.Stop()

	for {
		select {
		case <-p.t.Dying():
			return nil
		case <-ticker.C:
			if p.role == RoleRoot {
				p.reunionCycleRoot()
			} else {
				p.reunionCycleClient()
			}
		}
	}
}

func (p *Peer) reunionCycleRoot() {
	_, _, acceptance := intervals()
	now := time.Now()

	p.mu.Lock()
	var stale []packet.Address
	for addr, lastSeen := range p.nodesLastSeen {
		if now.Sub(lastSeen) > acceptance {
			stale = append(stale, addr)
		}
	}
	for _, addr := range stale {
		delete(p.nodesLastSeen, addr)
	}
	p.mu.Unlock()

	for _, addr := range stale {
		p.graph.TurnOffSubtree(addr)
		p.graph.RemoveNode(addr)
		metrics.PruneCount.Inc()
		logging.WithField("peer", addr.String()).Infof("peer: pruned after missing the reunion deadline")
	}
}

func (p *Peer) reunionCycleClient() {
	_, _, acceptance := intervals()

	p.mu.Lock()
	waiting := p.awaitingHelloback
	parent := p.parentAddr
	sentAt := p.lastHelloSentAt
	p.mu.Unlock()

	if !waiting {
		if parent.Zero() {
			return
		}
		hello := packet.NewReunionHello(p.self, []packet.Address{p.self})
		p.send(parent, hello)

		p.mu.Lock()
		p.awaitingHelloback = true
		p.lastHelloSentAt = time.Now()
		p.mu.Unlock()
		return
	}

	if time.Since(sentAt) >= acceptance {
		// Reunion failure: the main loop suspends data-path work while
		// disconnected, so the re-advertise must be emitted here
		// rather than waiting for the next main cycle.
		p.mu.Lock()
		p.connected = false
		p.parentAddr = packet.Address{}
		p.awaitingHelloback = false
		p.mu.Unlock()

		p.sendAdvertiseRequest()
	}
}
