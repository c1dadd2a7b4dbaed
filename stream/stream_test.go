package stream

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/go-treecast/treecast/packet"
)

func addr(t *testing.T, ip, port string) packet.Address {
	t.Helper()
	a, err := packet.NewAddress(ip, port)
	if err != nil {
		t.Fatalf("NewAddress(%q, %q): %v", ip, port, err)
	}
	return a
}

func portOf(t *testing.T, s *Stream) string {
	t.Helper()
	_, p, err := net.SplitHostPort(s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := strconv.Atoi(p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestStreamAcceptsAndAcks(t *testing.T) {
	local := addr(t, "127.0.0.1", "0")
	srv, err := Listen(local)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	realAddr, err := packet.NewAddress("127.0.0.1", portOf(t, srv))
	if err != nil {
		t.Fatal(err)
	}

	client := addr(t, "127.0.0.1", "2")
	p := packet.NewMessage(client, "HELLO")
	sender := NewNode(realAddr, false)
	if err := sender.Enqueue(p); err != nil {
		t.Fatal(err)
	}
	if err := sender.Flush(); err != nil {
		t.Fatalf("flush against a live listener should succeed: %v", err)
	}
	defer sender.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(srv.ReadInBuf()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	frames := srv.ReadInBuf()
	if len(frames) != 1 {
		t.Fatalf("expected 1 inbound frame, got %d", len(frames))
	}
	got, err := packet.Decode(frames[0])
	if err != nil {
		t.Fatal(err)
	}
	if got.Body != "HELLO" {
		t.Fatalf("got body %q, want HELLO", got.Body)
	}

	srv.ClearInBuf()
	if len(srv.ReadInBuf()) != 0 {
		t.Fatal("ClearInBuf should empty the inbound buffer")
	}
}

func TestStreamAddNodeIdempotent(t *testing.T) {
	local := addr(t, "127.0.0.1", "0")
	srv, err := Listen(local)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	target := addr(t, "127.0.0.1", "9999")
	n1 := srv.AddNode(target, true)
	n2 := srv.AddNode(target, false)
	if n1 != n2 {
		t.Fatal("AddNode should return the existing Node for a known address")
	}
	if n1.Register() {
		t.Fatal("a later AddNode call should reconfigure the existing Node's register flag")
	}
}

func TestStreamEnqueueUnknownDestinationDropped(t *testing.T) {
	local := addr(t, "127.0.0.1", "0")
	srv, err := Listen(local)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	unknown := addr(t, "127.0.0.1", "55555")
	srv.Enqueue(unknown, packet.NewMessage(unknown, "ignored"))
	// Nothing to assert beyond "does not panic": unknown destinations
	// are logged and dropped.
}

func TestFlushReportsLinkDeadForUnreachablePeer(t *testing.T) {
	dialTimeout = 200 * time.Millisecond
	defer func() { dialTimeout = 3 * time.Second }()

	dead := addr(t, "127.0.0.1", "1")
	n := NewNode(dead, false)
	n.Enqueue(packet.NewMessage(dead, "x"))
	if err := n.Flush(); err != ErrLinkDead {
		t.Fatalf("expected ErrLinkDead against an address nothing listens on, got %v", err)
	}
}
