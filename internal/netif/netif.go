// Package netif implements the Ethernet/ARP glue that sits below the IPv4
// framing layer: translating outbound IPv4 datagrams into Ethernet frames
// addressed to the correct next hop (resolving that hop's MAC address via
// ARP when necessary) and translating inbound Ethernet frames back into
// IPv4 datagrams for the layer above.
package netif

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
)

const (
	ethernetHeaderLen = 14
	arpPacketLen      = 28

	arpHardwareEthernet = 1
	arpProtoIPv4        = 0x0800

	arpOpRequest = 1
	arpOpReply   = 2
)

// EtherType identifies the payload carried by an Ethernet frame.
type EtherType uint16

const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
)

// Default cache lifetimes, matching the reference network interface: a
// resolved mapping is trusted for 30s, and we don't re-send an ARP request
// for the same unresolved address more than once every 5s.
const (
	DefaultArpCacheTTLMs   = 30000
	DefaultArpPendingTTLMs = 5000
)

type arpCacheEntry struct {
	mac       net.HardwareAddr
	remaining int64
}

type pendingEntry struct {
	datagrams [][]byte
	remaining int64
}

// NetworkInterface converts between the IPv4 layer's datagrams and the
// Ethernet frames carrying them, resolving next-hop MAC addresses with ARP
// and caching the results.
type NetworkInterface struct {
	log *slog.Logger

	ethAddr net.HardwareAddr
	ipAddr  net.IP

	arpCacheTTLMs   int64
	arpPendingTTLMs int64

	arpCache map[uint32]arpCacheEntry
	pending  map[uint32]*pendingEntry

	outgoing [][]byte
}

// New constructs a network interface with its own Ethernet and IPv4
// address; frames destined elsewhere are ignored by RecvFrame.
func New(ethAddr net.HardwareAddr, ipAddr net.IP, log *slog.Logger) *NetworkInterface {
	if log == nil {
		log = slog.Default()
	}
	return &NetworkInterface{
		log:             log,
		ethAddr:         append(net.HardwareAddr(nil), ethAddr...),
		ipAddr:          ipAddr.To4(),
		arpCacheTTLMs:   DefaultArpCacheTTLMs,
		arpPendingTTLMs: DefaultArpPendingTTLMs,
		arpCache:        make(map[uint32]arpCacheEntry),
		pending:         make(map[uint32]*pendingEntry),
	}
}

func ipKey(ip net.IP) uint32 {
	v4 := ip.To4()
	return binary.BigEndian.Uint32(v4)
}

// PopOutgoing drains and returns all Ethernet frames queued for
// transmission since the last call.
func (n *NetworkInterface) PopOutgoing() [][]byte {
	out := n.outgoing
	n.outgoing = nil
	return out
}

func (n *NetworkInterface) queueFrame(frame []byte) {
	n.outgoing = append(n.outgoing, frame)
}

// SendDatagram arranges for dgram (an IPv4 payload) to be sent addressed
// to nextHop. If nextHop's Ethernet address is already cached, the frame
// is queued immediately; otherwise the datagram is held until an ARP
// reply resolves the address, sending at most one request per pending
// TTL window.
func (n *NetworkInterface) SendDatagram(dgram []byte, nextHop net.IP) {
	key := ipKey(nextHop)

	if entry, ok := n.arpCache[key]; ok {
		n.queueFrame(n.buildEthernetFrame(entry.mac, EtherTypeIPv4, dgram))
		return
	}

	if p, ok := n.pending[key]; ok {
		p.datagrams = append(p.datagrams, dgram)
		return
	}

	n.pending[key] = &pendingEntry{
		datagrams: [][]byte{dgram},
		remaining: n.arpPendingTTLMs,
	}
	n.queueFrame(n.buildARPRequest(nextHop))
	n.log.Debug("netif: sent arp request", "next_hop", nextHop.String())
}

// RecvFrame processes an inbound Ethernet frame. If it carries an IPv4
// datagram addressed to this interface, the datagram is returned with ok
// set. ARP requests addressed to our IP are answered in place; ARP
// replies that resolve a pending next hop flush any datagrams queued for
// it.
func (n *NetworkInterface) RecvFrame(frame []byte) (dgram []byte, ok bool) {
	if len(frame) < ethernetHeaderLen {
		return nil, false
	}
	dst := net.HardwareAddr(frame[0:6])
	src := net.HardwareAddr(append(net.HardwareAddr(nil), frame[6:12]...))
	etherType := EtherType(binary.BigEndian.Uint16(frame[12:14]))
	payload := frame[ethernetHeaderLen:]

	if !isBroadcast(dst) && !macEqual(dst, n.ethAddr) {
		return nil, false
	}

	switch etherType {
	case EtherTypeIPv4:
		return payload, true
	case EtherTypeARP:
		n.handleARP(src, payload)
		return nil, false
	default:
		n.log.Debug("netif: dropping frame with unknown ethertype", "frame", frameSummary(frame))
		return nil, false
	}
}

func (n *NetworkInterface) handleARP(srcMAC net.HardwareAddr, payload []byte) {
	if len(payload) < arpPacketLen {
		return
	}
	hwType := binary.BigEndian.Uint16(payload[0:2])
	protoType := binary.BigEndian.Uint16(payload[2:4])
	hwSize := payload[4]
	protoSize := payload[5]
	op := binary.BigEndian.Uint16(payload[6:8])
	if hwType != arpHardwareEthernet || protoType != arpProtoIPv4 || hwSize != 6 || protoSize != 4 {
		return
	}

	senderMAC := net.HardwareAddr(append(net.HardwareAddr(nil), payload[8:14]...))
	senderIP := net.IP(append(net.IP(nil), payload[14:18]...))
	targetIP := net.IP(append(net.IP(nil), payload[24:28]...))

	if !targetIP.Equal(n.ipAddr) {
		return
	}

	n.learn(senderIP, senderMAC)

	switch op {
	case arpOpRequest:
		n.queueFrame(n.buildARPReply(srcMAC, senderMAC, senderIP))
	case arpOpReply:
		// learn() above already recorded the mapping; nothing further to do.
	}
}

// learn records or refreshes a next-hop MAC mapping and flushes any
// datagrams that were waiting on it.
func (n *NetworkInterface) learn(ip net.IP, mac net.HardwareAddr) {
	key := ipKey(ip)
	n.arpCache[key] = arpCacheEntry{mac: append(net.HardwareAddr(nil), mac...), remaining: n.arpCacheTTLMs}

	p, waiting := n.pending[key]
	if !waiting {
		return
	}
	for _, dgram := range p.datagrams {
		n.queueFrame(n.buildEthernetFrame(mac, EtherTypeIPv4, dgram))
	}
	delete(n.pending, key)
}

// Tick advances cache and pending-request timers by dtMs, expiring stale
// entries. An expired pending entry simply vanishes along with its queued
// datagrams: the caller is expected to retry SendDatagram for any traffic
// that still matters, which re-arms a fresh ARP request.
func (n *NetworkInterface) Tick(dtMs uint64) {
	d := int64(dtMs)
	for k, e := range n.arpCache {
		e.remaining -= d
		if e.remaining <= 0 {
			delete(n.arpCache, k)
			continue
		}
		n.arpCache[k] = e
	}
	for k, p := range n.pending {
		p.remaining -= d
		if p.remaining <= 0 {
			delete(n.pending, k)
		}
	}
}

func (n *NetworkInterface) buildEthernetFrame(dstMAC net.HardwareAddr, etherType EtherType, payload []byte) []byte {
	frame := make([]byte, ethernetHeaderLen+len(payload))
	copy(frame[0:6], dstMAC)
	copy(frame[6:12], n.ethAddr)
	binary.BigEndian.PutUint16(frame[12:14], uint16(etherType))
	copy(frame[ethernetHeaderLen:], payload)
	return frame
}

func (n *NetworkInterface) buildARPRequest(targetIP net.IP) []byte {
	payload := make([]byte, arpPacketLen)
	binary.BigEndian.PutUint16(payload[0:2], arpHardwareEthernet)
	binary.BigEndian.PutUint16(payload[2:4], arpProtoIPv4)
	payload[4] = 6
	payload[5] = 4
	binary.BigEndian.PutUint16(payload[6:8], arpOpRequest)
	copy(payload[8:14], n.ethAddr)
	copy(payload[14:18], n.ipAddr)
	// target MAC left zeroed; target IP filled below.
	copy(payload[24:28], targetIP.To4())

	broadcast := net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	return n.buildEthernetFrame(broadcast, EtherTypeARP, payload)
}

func (n *NetworkInterface) buildARPReply(dstMAC, queriedBySenderMAC net.HardwareAddr, senderIP net.IP) []byte {
	payload := make([]byte, arpPacketLen)
	binary.BigEndian.PutUint16(payload[0:2], arpHardwareEthernet)
	binary.BigEndian.PutUint16(payload[2:4], arpProtoIPv4)
	payload[4] = 6
	payload[5] = 4
	binary.BigEndian.PutUint16(payload[6:8], arpOpReply)
	copy(payload[8:14], n.ethAddr)
	copy(payload[14:18], n.ipAddr)
	copy(payload[18:24], queriedBySenderMAC)
	copy(payload[24:28], senderIP.To4())
	return n.buildEthernetFrame(dstMAC, EtherTypeARP, payload)
}

func isBroadcast(addr net.HardwareAddr) bool {
	for _, b := range addr {
		if b != 0xff {
			return false
		}
	}
	return len(addr) == 6
}

func macEqual(a, b net.HardwareAddr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// frameSummary renders a frame's source/dest/type for debug logging.
func frameSummary(frame []byte) string {
	if len(frame) < ethernetHeaderLen {
		return "short frame"
	}
	return fmt.Sprintf("dst=%s src=%s type=0x%04x",
		net.HardwareAddr(frame[0:6]), net.HardwareAddr(frame[6:12]),
		binary.BigEndian.Uint16(frame[12:14]))
}
