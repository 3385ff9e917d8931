package netif

import (
	"encoding/binary"
	"net"
	"testing"
)

func mustMAC(s string) net.HardwareAddr {
	mac, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return mac
}

// buildPeerARPReply constructs a reply as a third-party peer (peerMAC,
// peerIP) would send it to n, addressed back at n. n.buildARPReply can't
// be reused here since it always stamps the sender fields with n's own
// identity; this is the peer's perspective instead.
func buildPeerARPReply(n *NetworkInterface, peerMAC net.HardwareAddr, peerIP net.IP) []byte {
	payload := make([]byte, arpPacketLen)
	binary.BigEndian.PutUint16(payload[0:2], arpHardwareEthernet)
	binary.BigEndian.PutUint16(payload[2:4], arpProtoIPv4)
	payload[4] = 6
	payload[5] = 4
	binary.BigEndian.PutUint16(payload[6:8], arpOpReply)
	copy(payload[8:14], peerMAC)
	copy(payload[14:18], peerIP.To4())
	copy(payload[18:24], n.ethAddr)
	copy(payload[24:28], n.ipAddr.To4())

	frame := make([]byte, ethernetHeaderLen+len(payload))
	copy(frame[0:6], n.ethAddr)
	copy(frame[6:12], peerMAC)
	binary.BigEndian.PutUint16(frame[12:14], uint16(EtherTypeARP))
	copy(frame[ethernetHeaderLen:], payload)
	return frame
}

func TestARPRequestCoalescedAcrossQueuedDatagrams(t *testing.T) {
	n := New(mustMAC("02:00:00:00:00:01"), net.IPv4(192, 0, 2, 1), nil)
	nextHop := net.IPv4(192, 0, 2, 2)

	n.SendDatagram([]byte("one"), nextHop)
	n.SendDatagram([]byte("two"), nextHop)
	n.SendDatagram([]byte("three"), nextHop)

	frames := n.PopOutgoing()
	if len(frames) != 1 {
		t.Fatalf("expected exactly 1 ARP request for 3 queued datagrams to the same next hop, got %d", len(frames))
	}
	gotType := EtherType(uint16(frames[0][12])<<8 | uint16(frames[0][13]))
	if gotType != EtherTypeARP {
		t.Fatalf("expected an ARP frame, got ethertype 0x%04x", gotType)
	}

	peerMAC := mustMAC("02:00:00:00:00:02")
	reply := buildPeerARPReply(n, peerMAC, nextHop)

	if _, ok := n.RecvFrame(reply); ok {
		t.Fatalf("ARP reply should not be surfaced as a datagram")
	}

	flushed := n.PopOutgoing()
	if len(flushed) != 3 {
		t.Fatalf("expected all 3 queued datagrams flushed after ARP resolves, got %d", len(flushed))
	}
	for i, want := range []string{"one", "two", "three"} {
		if got := string(flushed[i][ethernetHeaderLen:]); got != want {
			t.Fatalf("flushed[%d] = %q, want %q", i, got, want)
		}
	}

	// A later send to the same next hop should use the cache, no new ARP request.
	n.SendDatagram([]byte("four"), nextHop)
	frames = n.PopOutgoing()
	if len(frames) != 1 {
		t.Fatalf("expected cached send to produce exactly 1 IPv4 frame, got %d", len(frames))
	}
	gotType = EtherType(uint16(frames[0][12])<<8 | uint16(frames[0][13]))
	if gotType != EtherTypeIPv4 {
		t.Fatalf("expected cached send to be an IPv4 frame, got 0x%04x", gotType)
	}
}

func TestARPCacheExpiresAfterTTL(t *testing.T) {
	n := New(mustMAC("02:00:00:00:00:01"), net.IPv4(192, 0, 2, 1), nil)
	nextHop := net.IPv4(192, 0, 2, 2)
	n.learn(nextHop, mustMAC("02:00:00:00:00:02"))

	n.Tick(DefaultArpCacheTTLMs - 1)
	if _, ok := n.arpCache[ipKey(nextHop)]; !ok {
		t.Fatalf("cache entry should still be valid just before TTL")
	}
	n.Tick(2)
	if _, ok := n.arpCache[ipKey(nextHop)]; ok {
		t.Fatalf("cache entry should have expired after TTL elapsed")
	}
}

func TestRecvFrameIgnoresForeignDestination(t *testing.T) {
	n := New(mustMAC("02:00:00:00:00:01"), net.IPv4(192, 0, 2, 1), nil)
	frame := n.buildEthernetFrame(mustMAC("02:00:00:00:00:ff"), EtherTypeIPv4, []byte("payload"))
	if _, ok := n.RecvFrame(frame); ok {
		t.Fatalf("expected frame addressed to a different MAC to be ignored")
	}
}
