package tcpcore

import (
	"github.com/tinyrange/minnet/internal/bytestream"
	"github.com/tinyrange/minnet/internal/tcpseq"
)

// MaxPayloadSize bounds how many bytes of application data a single
// outbound segment carries, independent of the receiver's advertised
// window.
const MaxPayloadSize = 1000

// maxSegmentPayload is the absolute ceiling imposed by a 16-bit IP total
// length field, after subtracting a conservative 40 bytes for the IPv4 and
// TCP headers (65535 - 40 = 65495).
const maxSegmentPayload = 65495

// Sender implements segmentation, the retransmission queue, and the
// exponential-backoff retransmit timer.
type Sender struct {
	isn uint32

	nextSeqno     uint64 // absolute
	receiverWin   uint16
	bytesInFlight uint64

	outbound []Segment
	retx     []retxSegment

	stream *bytestream.ByteStream

	synSent bool
	finSent bool
	oldSyn  bool // some valid ACK has retired the SYN

	initialRTO     uint64
	rto            uint64
	elapsedMs      uint64
	consecutiveRtx int

	greatestRetiredAckno uint64
	haveRetiredAckno     bool
}

type retxSegment struct {
	seg       Segment
	absSeqno  uint64
	lengthSeq uint64
}

// NewSender creates a Sender with the given ISN, outbound stream capacity,
// and initial RTO in milliseconds.
func NewSender(isn uint32, capacity int, initialRTOms uint64) *Sender {
	return &Sender{
		isn:        isn,
		stream:     bytestream.New(capacity),
		initialRTO: initialRTOms,
		rto:        initialRTOms,
		receiverWin: 1,
	}
}

// Stream returns the sender's owned outbound byte stream (the application
// writes here).
func (s *Sender) Stream() *bytestream.ByteStream { return s.stream }

// NextSeqnoAbsolute returns the absolute send position.
func (s *Sender) NextSeqnoAbsolute() uint64 { return s.nextSeqno }

// BytesInFlight returns the number of bytes sent but not yet acknowledged.
func (s *Sender) BytesInFlight() uint64 { return s.bytesInFlight }

// FinSent reports whether a FIN has been emitted.
func (s *Sender) FinSent() bool { return s.finSent }

// ConsecutiveRetransmissions returns the current backoff count.
func (s *Sender) ConsecutiveRetransmissions() int { return s.consecutiveRtx }

// RTO returns the current retransmission timeout in milliseconds.
func (s *Sender) RTO() uint64 { return s.rto }

// DequeueOutbound drains and returns all segments queued for the
// connection to ship, in production order.
func (s *Sender) DequeueOutbound() []Segment {
	out := s.outbound
	s.outbound = nil
	return out
}

func (s *Sender) nextSeg(syn, fin bool, payload []byte) Segment {
	return Segment{
		Seqno:   tcpseq.Wrap(s.nextSeqno, s.isn),
		SYN:     syn,
		FIN:     fin,
		Payload: payload,
	}
}

func (s *Sender) enqueue(seg Segment) {
	length := seg.LengthInSequenceSpace()
	s.outbound = append(s.outbound, seg)
	s.retx = append(s.retx, retxSegment{seg: seg, absSeqno: s.nextSeqno, lengthSeq: length})
	s.bytesInFlight += length
	s.nextSeqno += length
}

// FillWindow produces as many outbound segments as possible until the
// outbound stream is exhausted or the sender has no permission to send.
func (s *Sender) FillWindow() {
	if !s.synSent {
		s.synSent = true
		s.enqueue(s.nextSeg(true, false, nil))
		return
	}
	if !s.oldSyn {
		return
	}

	window := uint64(s.receiverWin)
	if window == 0 {
		window = 1 // window-probing
	}

	for {
		if s.bytesInFlight >= window {
			return
		}
		avail := window - s.bytesInFlight
		n := avail
		if n > MaxPayloadSize {
			n = MaxPayloadSize
		}
		if n > maxSegmentPayload {
			n = maxSegmentPayload
		}

		payload := make([]byte, n)
		read := uint64(s.stream.Read(payload))
		payload = payload[:read]

		fin := false
		if s.stream.EOF() && !s.finSent && s.bytesInFlight+read < window {
			fin = true
		}

		seg := s.nextSeg(false, fin, payload)
		if seg.LengthInSequenceSpace() == 0 {
			return
		}
		if fin {
			s.finSent = true
		}
		s.enqueue(seg)
	}
}

// AckReceived processes an incoming ACK. Returns false for a future ACK
// (acknowledging data not yet sent).
func (s *Sender) AckReceived(ackno uint32, windowSize uint16) bool {
	absAckno := tcpseq.Unwrap(ackno, s.isn, s.nextSeqno)
	if absAckno > s.nextSeqno {
		return false
	}

	s.receiverWin = windowSize

	if s.haveRetiredAckno && absAckno <= s.greatestRetiredAckno {
		return true
	}

	s.oldSyn = true

	kept := s.retx[:0]
	for _, r := range s.retx {
		if r.absSeqno+r.lengthSeq <= absAckno {
			s.bytesInFlight -= r.lengthSeq
		} else {
			kept = append(kept, r)
		}
	}
	s.retx = kept

	s.greatestRetiredAckno = absAckno
	s.haveRetiredAckno = true

	s.FillWindow()

	s.elapsedMs = 0
	s.consecutiveRtx = 0
	s.rto = s.initialRTO

	return true
}

// Tick advances the retransmission timer by dt milliseconds. When the
// timer fires, the oldest outstanding segment is re-queued for output
// (without re-entering the retransmission queue or advancing next-seqno),
// the backoff count increments, and the RTO doubles.
func (s *Sender) Tick(dtMs uint64) {
	s.elapsedMs += dtMs
	if s.elapsedMs < s.rto || len(s.retx) == 0 {
		return
	}
	s.outbound = append(s.outbound, s.retx[0].seg)
	s.consecutiveRtx++
	s.rto *= 2
	s.elapsedMs = 0
}

// SendEmptySegment enqueues a zero-length, zero-flag segment at the
// current send position (used by the connection to generate bare ACKs).
func (s *Sender) SendEmptySegment() {
	s.outbound = append(s.outbound, s.nextSeg(false, false, nil))
}
