package packet

import (
	"fmt"
	"strconv"
	"strings"
)

// Body grammars: ASCII, fixed-width fields, no delimiters.

const (
	regReqTag  = "REQ"
	regResTag  = "RESACK"
	advReqTag  = "REQ"
	advResTag  = "RES"
	joinTag    = "JOIN"
	reunReqTag = "REQ"
	reunResTag = "RES"
)

// NewRegisterRequest builds a REGISTER-REQ body: "REQ" + ip(15) + port(5).
func NewRegisterRequest(source Address, self Address) Packet {
	body := regReqTag + self.IP + self.Port
	return New(REGISTER, source, body)
}

// NewRegisterResponse builds a REGISTER-RES body: "RESACK".
func NewRegisterResponse(source Address) Packet {
	return New(REGISTER, source, regResTag)
}

// ParseRegisterRequest extracts the registering address from a
// REGISTER-REQ body.
func ParseRegisterRequest(p Packet) (Address, error) {
	if p.Type != REGISTER || !strings.HasPrefix(p.Body, regReqTag) {
		return Address{}, fmt.Errorf("%w: not a register request", ErrBadPacket)
	}
	rest := p.Body[len(regReqTag):]
	if len(rest) != 20 {
		return Address{}, fmt.Errorf("%w: register request body width %d", ErrBadPacket, len(rest))
	}
	return Address{IP: rest[:15], Port: rest[15:20]}, nil
}

// IsRegisterResponse reports whether p is a REGISTER-RES ("RESACK").
func IsRegisterResponse(p Packet) bool {
	return p.Type == REGISTER && p.Body == regResTag
}

// NewAdvertiseRequest builds an ADVERTISE-REQ body: "REQ".
func NewAdvertiseRequest(source Address) Packet {
	return New(ADVERTISE, source, advReqTag)
}

// NewAdvertiseResponse builds an ADVERTISE-RES body:
// "RES" + neighbor_ip(15) + neighbor_port(5).
func NewAdvertiseResponse(source, neighbor Address) Packet {
	return New(ADVERTISE, source, advResTag+neighbor.IP+neighbor.Port)
}

// IsAdvertiseRequest reports whether p is an ADVERTISE-REQ.
func IsAdvertiseRequest(p Packet) bool {
	return p.Type == ADVERTISE && p.Body == advReqTag
}

// ParseAdvertiseResponse extracts the assigned parent's address from an
// ADVERTISE-RES body.
func ParseAdvertiseResponse(p Packet) (Address, error) {
	if p.Type != ADVERTISE || !strings.HasPrefix(p.Body, advResTag) {
		return Address{}, fmt.Errorf("%w: not an advertise response", ErrBadPacket)
	}
	rest := p.Body[len(advResTag):]
	if len(rest) != 20 {
		return Address{}, fmt.Errorf("%w: advertise response body width %d", ErrBadPacket, len(rest))
	}
	return Address{IP: rest[:15], Port: rest[15:20]}, nil
}

// NewJoin builds a JOIN body: "JOIN".
func NewJoin(source Address) Packet {
	return New(JOIN, source, joinTag)
}

// NewMessage builds a MESSAGE packet carrying raw UTF-8 text.
func NewMessage(source Address, text string) Packet {
	return New(MESSAGE, source, text)
}

// NewReunionHello builds a REUNION-REQ body:
// "REQ" + n(2) + (ip(15)+port(5)) x n, path from originator onward.
func NewReunionHello(source Address, path []Address) Packet {
	return New(REUNION, source, encodeReunionBody(reunReqTag, path))
}

// NewReunionHelloback builds a REUNION-RES body from a path already
// reversed by the root and stripped of the root's own entry (the root's
// identity lives in the packet header, not the body). The body reads
// [P2, P1, C] for a hello that rose C -> P1 -> P2 -> root; the root
// sends the packet directly to path[0] and each hop afterward consumes
// its own front entry via AdvanceReunionHelloback.
func NewReunionHelloback(source Address, reversedPath []Address) Packet {
	return New(REUNION, source, encodeReunionBody(reunResTag, reversedPath))
}

// IsReunionHello reports whether p is a REUNION-REQ (hello, rising).
func IsReunionHello(p Packet) bool {
	return p.Type == REUNION && strings.HasPrefix(p.Body, reunReqTag)
}

// IsReunionHelloback reports whether p is a REUNION-RES (helloback, falling).
func IsReunionHelloback(p Packet) bool {
	return p.Type == REUNION && strings.HasPrefix(p.Body, reunResTag)
}

// ParseReunionPath extracts the (ip,port) list from a REUNION body,
// validating that the declared count agrees with the body width.
func ParseReunionPath(p Packet) ([]Address, error) {
	if p.Type != REUNION || len(p.Body) < 5 {
		return nil, fmt.Errorf("%w: not a reunion body", ErrBadPacket)
	}
	countStr := p.Body[3:5]
	n, err := strconv.Atoi(countStr)
	if err != nil {
		return nil, fmt.Errorf("%w: reunion count %q unparseable", ErrBadPacket, countStr)
	}
	rest := p.Body[5:]
	if len(rest) != n*20 {
		return nil, fmt.Errorf("%w: reunion body declares %d entries but carries %d bytes", ErrBadPacket, n, len(rest))
	}
	addrs := make([]Address, 0, n)
	for i := 0; i < n; i++ {
		chunk := rest[i*20 : (i+1)*20]
		addrs = append(addrs, Address{IP: chunk[:15], Port: chunk[15:20]})
	}
	return addrs, nil
}

func encodeReunionBody(tag string, path []Address) string {
	var sb strings.Builder
	sb.WriteString(tag)
	sb.WriteString(fmt.Sprintf("%02d", len(path)))
	for _, a := range path {
		sb.WriteString(a.IP)
		sb.WriteString(a.Port)
	}
	return sb.String()
}

// AppendReunionHop returns a new REUNION-REQ body with addr appended
// to the path and the entry count incremented, the append-on-forward
// step every intermediate client performs on a rising hello.
func AppendReunionHop(p Packet, addr Address) (Packet, error) {
	path, err := ParseReunionPath(p)
	if err != nil {
		return Packet{}, err
	}
	path = append(path, addr)
	return New(REUNION, p.SourceAddr, encodeReunionBody(reunReqTag, path)), nil
}

// ReunionHellobackIsTerminal reports whether a falling REUNION-RES has
// reached its originator: exactly one hop remains in the path and it is
// self. An intermediate hop still has entries after its own, so it can
// never mistake a mid-path entry for the terminus.
func ReunionHellobackIsTerminal(p Packet, self Address) (bool, error) {
	path, err := ParseReunionPath(p)
	if err != nil {
		return false, err
	}
	return len(path) == 1 && path[0] == self, nil
}

// AdvanceReunionHelloback consumes the current hop's own entry (the
// path's front, not its tail — see ReunionHellobackIsTerminal) from a
// non-terminal falling REUNION-RES and reports the next hop to forward
// it to, which is the new front of the shortened path.
func AdvanceReunionHelloback(p Packet) (next Packet, nextHop Address, err error) {
	path, err := ParseReunionPath(p)
	if err != nil {
		return Packet{}, Address{}, err
	}
	if len(path) < 2 {
		return Packet{}, Address{}, fmt.Errorf("%w: reunion helloback has no further hop", ErrBadPacket)
	}
	remaining := path[1:]
	return New(REUNION, p.SourceAddr, encodeReunionBody(reunResTag, remaining)), remaining[0], nil
}
