// Command treecast is the interactive bootstrapper: it reads one
// startup line naming this process's role and address, brings up the
// listening Stream and the Peer state machine, and then feeds every
// following stdin line into the UI command buffer.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/go-treecast/treecast/internal/addrfmt"
	"github.com/go-treecast/treecast/packet"
	"github.com/go-treecast/treecast/peer"
	"github.com/go-treecast/treecast/stream"
	"github.com/go-treecast/treecast/ui"
	"github.com/m-lab/go/rtx"
	"github.com/pkg/errors"
)

func main() {
	fmt.Println("Type   add client/root IP-address port <Root-Ip-address> <Root-port>")

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		wrongCommand()
	}

	boot, err := parseStartup(scanner.Text())
	if err != nil {
		wrongCommand()
	}

	srv, err := stream.Listen(boot.self)
	rtx.Must(err, "Could not listen on %s", boot.self)

	cmdBuf := ui.NewBuffer()
	var p *peer.Peer
	if boot.isRoot {
		p = peer.NewRoot(boot.self, srv, cmdBuf)
	} else {
		p = peer.NewClient(boot.self, boot.rootAddr, srv, cmdBuf)
	}
	p.Run()
	defer p.Stop()

	for scanner.Scan() {
		cmdBuf.Push(scanner.Text())
	}
}

func wrongCommand() {
	fmt.Println("WRONG_COMMAND")
	os.Exit(1)
}

type startup struct {
	isRoot   bool
	self     packet.Address
	rootAddr packet.Address
}

// parseStartup validates the single boot line. IP and port tokens must
// be exactly 15 and 5 characters respectively before int-parsing them.
func parseStartup(line string) (*startup, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 || parts[0] != "add" {
		return nil, errors.New("first token must be \"add\"")
	}
	if len(parts) != 4 && len(parts) != 6 {
		return nil, errors.Errorf("expected 4 or 6 tokens, got %d", len(parts))
	}

	kind := parts[1]
	ip, port := parts[2], parts[3]
	if !addrfmt.IsWellFormedIP(ip) || !addrfmt.IsWellFormedPort(port) {
		return nil, errors.Errorf("malformed ip/port %q/%q", ip, port)
	}

	self, err := packet.NewAddress(ip, port)
	if err != nil {
		return nil, errors.Wrap(err, "self address")
	}

	switch kind {
	case "root":
		if len(parts) != 4 {
			return nil, errors.Errorf("root takes exactly 4 tokens, got %d", len(parts))
		}
		return &startup{isRoot: true, self: self}, nil

	case "client":
		if len(parts) != 6 {
			return nil, errors.Errorf("client takes exactly 6 tokens, got %d", len(parts))
		}
		rootIP, rootPort := parts[4], parts[5]
		if !addrfmt.IsWellFormedIP(rootIP) || !addrfmt.IsWellFormedPort(rootPort) {
			return nil, errors.Errorf("malformed root ip/port %q/%q", rootIP, rootPort)
		}
		rootAddr, err := packet.NewAddress(rootIP, rootPort)
		if err != nil {
			return nil, errors.Wrap(err, "root address")
		}
		return &startup{self: self, rootAddr: rootAddr}, nil

	default:
		return nil, errors.Errorf("unknown role %q", kind)
	}
}
