package tcpcore

import (
	"github.com/tinyrange/minnet/internal/reassembler"
	"github.com/tinyrange/minnet/internal/tcpseq"
)

// Receiver implements inbound sequence-number validation, ackno
// computation, and window advertisement, pushing accepted
// payload through a Reassembler into the inbound byte stream.
type Receiver struct {
	reasm *reassembler.Reassembler

	isn         uint32
	synReceived bool
	finReceived bool
	ackno       uint32
	checkpoint  uint64 // last accepted absolute seqno, used for unwrap
}

// NewReceiver creates a Receiver with the given inbound stream capacity.
func NewReceiver(capacity int) *Receiver {
	return &Receiver{reasm: reassembler.New(capacity)}
}

// Reassembler exposes the owned reassembler (whose output stream is the
// application-facing inbound byte stream).
func (r *Receiver) Reassembler() *reassembler.Reassembler { return r.reasm }

// Ackno returns the wrapped ack number. ok is false until a SYN has been
// received.
func (r *Receiver) Ackno() (ackno uint32, ok bool) {
	if !r.synReceived {
		return 0, false
	}
	return r.ackno, true
}

// WindowSize returns the inbound stream's remaining capacity.
func (r *Receiver) WindowSize() uint16 {
	room := r.reasm.Output().RemainingCapacity()
	if room > 0xFFFF {
		room = 0xFFFF
	}
	return uint16(room)
}

// SynReceived reports whether the initial SYN has been accepted.
func (r *Receiver) SynReceived() bool { return r.synReceived }

// FinReceived reports whether FIN has been accepted.
func (r *Receiver) FinReceived() bool { return r.finReceived }

// SegmentReceived validates and ingests an inbound segment, following the
// ordered acceptance rules below. It returns true iff the segment occupies any
// sequence space within the current receive window or carries a SYN/FIN
// never seen before.
func (r *Receiver) SegmentReceived(seg Segment) bool {
	// Rule 1.
	if !seg.SYN && !r.synReceived {
		return false
	}

	firstSyn := false

	// Rule 2.
	if seg.SYN {
		if r.synReceived {
			return false
		}
		r.isn = seg.Seqno
		r.synReceived = true
		firstSyn = true
	}

	// Rule 3: window in absolute seqnos.
	var winStart uint64
	if firstSyn {
		winStart = 0
	} else {
		winStart = tcpseq.Unwrap(r.ackno, r.isn, r.checkpoint)
	}
	winSize := uint64(r.reasm.Output().RemainingCapacity())
	if winSize == 0 {
		winSize = 1
	}
	winEnd := winStart + winSize - 1

	// Rule 4: the segment's absolute seqno range.
	segAbsSeqno := tcpseq.Unwrap(seg.Seqno, r.isn, r.checkpoint)
	segLen := seg.LengthInSequenceSpace()
	segFirst := segAbsSeqno
	segLast := segAbsSeqno
	if segLen > 0 {
		segLast = segAbsSeqno + segLen - 1
	}
	inbound := (segFirst >= winStart && segFirst <= winEnd) ||
		(segLast >= winStart && segLast <= winEnd)

	if inbound {
		r.checkpoint = segAbsSeqno

		// Rule 5: push payload at (seg_abs_seqno - 1), or at seg_abs_seqno
		// if this segment itself carries the SYN (which consumes the
		// sequence number immediately before the first payload byte).
		index := segAbsSeqno
		if !seg.SYN {
			index = segAbsSeqno - 1
		}
		r.reasm.PushSubstring(seg.Payload, index, seg.FIN)
	}

	// Rule 6.
	if seg.FIN && !r.finReceived {
		r.finReceived = true
	}

	// Rule 7: recompute ackno.
	fin := uint64(0)
	if r.finReceived && r.reasm.Empty() {
		fin = 1
	}
	r.ackno = tcpseq.Wrap(r.reasm.FirstUnassembledByte()+1+fin, r.isn)

	return firstSyn || inbound
}
