package packet

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-treecast/treecast/internal/addrfmt"
)

// Address is the canonical (ip, port) identity used for routing,
// equality, and as map keys throughout treecast. IP is always rendered
// as four zero-padded 3-digit octets ("192.168.001.001") and Port as a
// zero-padded 5-digit decimal ("00001").
type Address struct {
	IP   string
	Port string
}

// NewAddress canonicalizes ip/port into an Address, zero-padding each
// field to its wire width.
func NewAddress(ip, port string) (Address, error) {
	nip, err := addrfmt.NormalizeIP(ip)
	if err != nil {
		return Address{}, err
	}
	nport, err := addrfmt.NormalizePort(port)
	if err != nil {
		return Address{}, err
	}
	return Address{IP: nip, Port: nport}, nil
}

// String renders "ip:port", handy for logging and dial targets.
func (a Address) String() string {
	return fmt.Sprintf("%s:%s", a.IP, a.Port)
}

// DialAddr renders the host:port pair net.Dial expects (the zero-padded
// wire form is stripped back down to plain decimal).
func (a Address) DialAddr() string {
	parts := strings.Split(a.IP, ".")
	octets := make([]string, len(parts))
	for i, p := range parts {
		n, _ := strconv.Atoi(p)
		octets[i] = strconv.Itoa(n)
	}
	port, _ := strconv.Atoi(a.Port)
	return fmt.Sprintf("%s:%d", strings.Join(octets, "."), port)
}

// Zero reports whether this is the unset Address value.
func (a Address) Zero() bool {
	return a.IP == "" && a.Port == ""
}
