// Package packet implements the wire codec: the fixed big-endian
// header plus the type-specific ASCII body grammar of each packet
// kind.
package packet

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Type is the packet's discriminant.
type Type uint16

const (
	REGISTER  Type = 1
	ADVERTISE Type = 2
	JOIN      Type = 3
	MESSAGE   Type = 4
	REUNION   Type = 5
)

func (t Type) String() string {
	switch t {
	case REGISTER:
		return "REGISTER"
	case ADVERTISE:
		return "ADVERTISE"
	case JOIN:
		return "JOIN"
	case MESSAGE:
		return "MESSAGE"
	case REUNION:
		return "REUNION"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint16(t))
	}
}

// Version is the only wire version treecast speaks.
const Version uint16 = 1

// ErrBadPacket is returned whenever a header/body field disagrees with
// the bytes actually present.
var ErrBadPacket = errors.New("packet: malformed frame")

// Packet is the fixed-header, variable-body wire frame.
type Packet struct {
	Version    uint16
	Type       Type
	SourceAddr Address
	Body       string
}

// New builds a packet. Packet stores no separate length field; Length
// derives it from len(Body), so length == len(body) always holds.
func New(t Type, source Address, body string) Packet {
	return Packet{Version: Version, Type: t, SourceAddr: source, Body: body}
}

// Length is the body byte count carried on the wire.
func (p Packet) Length() int {
	return len(p.Body)
}

// Encode serializes p into the fixed big-endian header:
//
//	2B version | 2B type | 4B length | 4x2B ip octets | 4B port | body
func (p Packet) Encode() ([]byte, error) {
	octets, err := ipOctets(p.SourceAddr.IP)
	if err != nil {
		return nil, fmt.Errorf("packet: encode: %w", err)
	}
	port, err := portNumber(p.SourceAddr.Port)
	if err != nil {
		return nil, fmt.Errorf("packet: encode: %w", err)
	}

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.BigEndian, p.Version)
	binary.Write(buf, binary.BigEndian, uint16(p.Type))
	binary.Write(buf, binary.BigEndian, uint32(len(p.Body)))
	for _, o := range octets {
		binary.Write(buf, binary.BigEndian, uint16(o))
	}
	binary.Write(buf, binary.BigEndian, uint32(port))
	buf.WriteString(p.Body)

	return buf.Bytes(), nil
}

// headerSize is the fixed portion of every frame: version, type,
// length, 4 ip words, 1 port word.
const headerSize = 2 + 2 + 4 + 4*2 + 4

// Decode parses buf into a Packet. It rejects frames whose length field
// disagrees with the remaining bytes and frames carrying an unknown
// type.
func Decode(buf []byte) (Packet, error) {
	if len(buf) < headerSize {
		return Packet{}, fmt.Errorf("%w: short header (%d bytes)", ErrBadPacket, len(buf))
	}

	r := bytes.NewReader(buf)
	var version, typ uint16
	var length uint32
	binary.Read(r, binary.BigEndian, &version)
	binary.Read(r, binary.BigEndian, &typ)
	binary.Read(r, binary.BigEndian, &length)

	var octets [4]uint16
	for i := range octets {
		binary.Read(r, binary.BigEndian, &octets[i])
	}
	var port uint32
	binary.Read(r, binary.BigEndian, &port)

	body := buf[headerSize:]
	if uint32(len(body)) != length {
		return Packet{}, fmt.Errorf("%w: length field %d disagrees with body of %d bytes", ErrBadPacket, length, len(body))
	}

	t := Type(typ)
	switch t {
	case REGISTER, ADVERTISE, JOIN, MESSAGE, REUNION:
	default:
		return Packet{}, fmt.Errorf("%w: unknown type %d", ErrBadPacket, typ)
	}

	ip := fmt.Sprintf("%03d.%03d.%03d.%03d", octets[0], octets[1], octets[2], octets[3])
	return Packet{
		Version:    version,
		Type:       t,
		SourceAddr: Address{IP: ip, Port: fmt.Sprintf("%05d", port)},
		Body:       string(body),
	}, nil
}

// WithSource returns a copy of p whose source address has been
// rewritten, used by the relay's header-rewrite-on-send rule. The body
// is left untouched.
func (p Packet) WithSource(addr Address) Packet {
	p.SourceAddr = addr
	return p
}

func ipOctets(ip string) ([4]int, error) {
	var out [4]int
	var a, b, c, d int
	n, err := fmt.Sscanf(ip, "%d.%d.%d.%d", &a, &b, &c, &d)
	if err != nil || n != 4 {
		return out, fmt.Errorf("invalid ip %q", ip)
	}
	out = [4]int{a, b, c, d}
	return out, nil
}

func portNumber(port string) (int, error) {
	var p int
	n, err := fmt.Sscanf(port, "%d", &p)
	if err != nil || n != 1 {
		return 0, fmt.Errorf("invalid port %q", port)
	}
	return p, nil
}
