package peer

import "github.com/go-treecast/treecast/packet"

// broadcastMessage fans a MESSAGE out over data links: at the root, to
// every child; at a non-root peer, to the parent as well. There is no
// per-recipient exclusion of the packet's arrival direction; the tree's
// acyclicity and childless leaves are what terminate the flood.
func (p *Peer) broadcastMessage(pkt packet.Packet) {
	for _, addr := range p.fanOutTargets() {
		p.send(addr, pkt)
	}
}

func (p *Peer) fanOutTargets() []packet.Address {
	p.mu.Lock()
	defer p.mu.Unlock()

	targets := make([]packet.Address, 0, len(p.children)+1)
	if p.role == RoleClient && !p.parentAddr.Zero() {
		targets = append(targets, p.parentAddr)
	}
	targets = append(targets, p.children...)
	return targets
}
