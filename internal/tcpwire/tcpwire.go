// Package tcpwire serializes tcpcore.Segment values to and from the
// on-the-wire TCP header format, the glue a CLI entry point needs to turn
// connection-level segments into bytes an IPv4 datagram can carry.
package tcpwire

import (
	"encoding/binary"
	"fmt"

	"github.com/tinyrange/minnet/internal/tcpcore"
)

// HeaderLen is the fixed (no-options) TCP header length in bytes.
const HeaderLen = 20

const (
	flagFIN = 1 << 0
	flagSYN = 1 << 1
	flagRST = 1 << 2
	flagACK = 1 << 4
)

// Encode serializes seg as a TCP segment between srcPort and dstPort.
// Checksum computation is left to the caller (it depends on the IPv4
// pseudo-header and is therefore out of this package's scope).
func Encode(seg tcpcore.Segment, srcPort, dstPort uint16) []byte {
	buf := make([]byte, HeaderLen+len(seg.Payload))
	binary.BigEndian.PutUint16(buf[0:2], srcPort)
	binary.BigEndian.PutUint16(buf[2:4], dstPort)
	binary.BigEndian.PutUint32(buf[4:8], seg.Seqno)
	binary.BigEndian.PutUint32(buf[8:12], seg.Ackno)
	buf[12] = (HeaderLen / 4) << 4

	var flags uint8
	if seg.FIN {
		flags |= flagFIN
	}
	if seg.SYN {
		flags |= flagSYN
	}
	if seg.RST {
		flags |= flagRST
	}
	if seg.ACK {
		flags |= flagACK
	}
	buf[13] = flags

	binary.BigEndian.PutUint16(buf[14:16], seg.Win)
	copy(buf[HeaderLen:], seg.Payload)
	return buf
}

// Ports carries the source/destination port extracted from a decoded
// segment, kept separate from tcpcore.Segment since the core state machine
// has no notion of ports.
type Ports struct {
	Src, Dst uint16
}

// Decode parses a wire-format TCP segment.
func Decode(data []byte) (tcpcore.Segment, Ports, error) {
	if len(data) < HeaderLen {
		return tcpcore.Segment{}, Ports{}, fmt.Errorf("tcpwire: segment too short: %d", len(data))
	}
	hdrLen := int(data[12]>>4) * 4
	if len(data) < hdrLen {
		return tcpcore.Segment{}, Ports{}, fmt.Errorf("tcpwire: header length mismatch: %d", hdrLen)
	}

	flags := data[13]
	seg := tcpcore.Segment{
		Seqno:   binary.BigEndian.Uint32(data[4:8]),
		Ackno:   binary.BigEndian.Uint32(data[8:12]),
		Win:     binary.BigEndian.Uint16(data[14:16]),
		SYN:     flags&flagSYN != 0,
		ACK:     flags&flagACK != 0,
		FIN:     flags&flagFIN != 0,
		RST:     flags&flagRST != 0,
		Payload: append([]byte(nil), data[hdrLen:]...),
	}
	ports := Ports{
		Src: binary.BigEndian.Uint16(data[0:2]),
		Dst: binary.BigEndian.Uint16(data[2:4]),
	}
	return seg, ports, nil
}
