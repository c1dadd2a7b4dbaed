package peer

import (
	"time"

	"github.com/go-treecast/treecast/internal/logging"
	"github.com/go-treecast/treecast/internal/metrics"
	"github.com/go-treecast/treecast/packet"
	"github.com/go-treecast/treecast/ui"
	"github.com/prometheus/client_golang/prometheus"
)

// runMain drives the peer: every cycle it drains inbound frames,
// dispatches them, drains the UI buffer, and flushes outbound queues.
func (p *Peer) runMain() error {
	main, _, _ := intervals()
	ticker := time.NewTicker(main)
	defer ticker.Stop()

	for {
		select {
		case <-p.t.Dying():
			return nil
		case <-ticker.C:
			p.mainCycle()
		}
	}
}

func (p *Peer) mainCycle() {
	frames := p.srv.ReadInBuf()
	connected := p.Connected()

	for _, raw := range frames {
		pkt, err := packet.Decode(raw)
		if err != nil {
			metrics.ErrorCount.With(prometheus.Labels{"type": "bad_packet"}).Inc()
			logging.Warnf("peer: %v", err)
			continue
		}

		if p.role == RoleClient && !connected {
			// The tree link has not yet been bootstrapped: only
			// ADVERTISE packets get through.
			if pkt.Type == packet.ADVERTISE {
				p.handleAdvertise(pkt)
			}
			continue
		}

		p.dispatch(pkt)
	}
	p.srv.ClearInBuf()

	for _, cmd := range p.ui.Drain() {
		p.handleUICommand(cmd)
	}

	p.srv.Flush(false)
}

func (p *Peer) dispatch(pkt packet.Packet) {
	switch pkt.Type {
	case packet.REGISTER:
		p.handleRegister(pkt)
	case packet.ADVERTISE:
		p.handleAdvertise(pkt)
	case packet.JOIN:
		p.handleJoin(pkt)
	case packet.MESSAGE:
		p.handleMessage(pkt)
	case packet.REUNION:
		p.handleReunion(pkt)
	}
}

// handleUICommand applies the effects of one buffered UI command.
func (p *Peer) handleUICommand(cmd ui.Command) {
	switch cmd.Kind {
	case ui.Register:
		if p.role != RoleClient {
			return
		}
		registerAddr := p.registerLinkTarget()
		p.srv.AddNode(registerAddr, true)
		p.send(registerAddr, packet.NewRegisterRequest(p.self, p.self))
		p.srv.Flush(true)
	case ui.Advertise:
		if p.role != RoleClient {
			return
		}
		p.sendAdvertiseRequest()
	case ui.SendMessage:
		p.broadcastMessage(packet.NewMessage(p.self, cmd.Text))
	}
}

// registerLinkTarget is the address a client sends REGISTER/ADVERTISE
// control traffic to: always the root, regardless of the current
// parent assignment.
func (p *Peer) registerLinkTarget() packet.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rootAddr
}

func (p *Peer) sendAdvertiseRequest() {
	registerAddr := p.registerLinkTarget()
	p.srv.AddNode(registerAddr, true)
	p.send(registerAddr, packet.NewAdvertiseRequest(p.self))
	p.srv.Flush(true)
}
