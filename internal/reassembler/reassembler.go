// Package reassembler merges possibly overlapping, possibly out-of-order
// byte substrings carrying 64-bit stream indices into a contiguous prefix
// written to an output byte stream, subject to a bounded reassembly window.
//
// The pending set is kept as a small ordered slice rather than a tree: the
// number of truly concurrent gaps in practice is tiny, and a slice keeps the
// coalescing logic (merge-with-neighbors-on-insert) simple, in the same
// spirit as the teacher's tcpRecvBuffer.
package reassembler

import (
	"sort"

	"github.com/tinyrange/minnet/internal/bytestream"
)

// segment is a pending, disjoint, non-empty byte range keyed by its
// starting absolute index.
type segment struct {
	index   uint64
	payload []byte
}

func (s segment) end() uint64 { return s.index + uint64(len(s.payload)) }

// Reassembler owns an output ByteStream and merges pushed substrings into
// it in order.
type Reassembler struct {
	output *bytestream.ByteStream

	pending          []segment // sorted by index, pairwise disjoint
	firstUnassembled uint64
	pendingBytes     int
	stickyEOF        bool
}

// New creates a Reassembler writing into a freshly allocated output stream
// of the given capacity.
func New(capacity int) *Reassembler {
	return &Reassembler{output: bytestream.New(capacity)}
}

// NewWithOutput creates a Reassembler writing into an existing output
// stream (used when the receiver owns the stream's lifetime separately).
func NewWithOutput(output *bytestream.ByteStream) *Reassembler {
	return &Reassembler{output: output}
}

// Output returns the owned output byte stream.
func (r *Reassembler) Output() *bytestream.ByteStream { return r.output }

// FirstUnassembledByte returns the index of the first byte not yet written
// to the output stream.
func (r *Reassembler) FirstUnassembledByte() uint64 { return r.firstUnassembled }

// UnassembledBytes returns the total number of bytes held in pending
// segments, each counted once.
func (r *Reassembler) UnassembledBytes() int { return r.pendingBytes }

// Empty reports whether there are no pending segments.
func (r *Reassembler) Empty() bool { return len(r.pending) == 0 }

// EOF reports whether the sticky eof flag has been asserted.
func (r *Reassembler) EOF() bool { return r.stickyEOF }

// PushSubstring clips data to the acceptance window, merges it with
// overlapping/adjacent pending segments, writes a fragment starting exactly
// at firstUnassembled into the output stream, and re-inserts any leftover.
func (r *Reassembler) PushSubstring(data []byte, index uint64, eof bool) {
	remainingCapacity := r.output.Capacity() - r.output.BufferSize()
	if remainingCapacity < 0 {
		remainingCapacity = 0
	}
	windowStart := r.firstUnassembled
	windowEnd := windowStart + uint64(remainingCapacity) // exclusive

	clipped, clippedEOF := clip(data, index, eof, windowStart, windowEnd)
	if len(clipped) == 0 {
		if clippedEOF && r.Empty() {
			r.stickyEOF = true
			r.maybeSignalEOF()
		}
		return
	}
	startIdx := index
	if startIdx < windowStart {
		startIdx = windowStart
	}

	merged, mergedEOF := r.mergeWithPending(segment{index: startIdx, payload: clipped}, clippedEOF)

	if merged.index == r.firstUnassembled {
		r.writeToOutput(merged)
	} else {
		r.insertPending(merged)
	}

	if mergedEOF {
		r.stickyEOF = true
	}
	r.maybeSignalEOF()
}

// clip truncates data to the half-open window [windowStart, windowEnd),
// dropping bytes below the window (already assembled) and bytes at or
// above it (exceeding capacity — eof must be disregarded when that happens).
func clip(data []byte, index uint64, eof bool, windowStart, windowEnd uint64) ([]byte, bool) {
	start := index
	end := index + uint64(len(data))

	if end <= windowStart {
		return nil, eof // every byte is already assembled; eof still applies
	}
	if windowEnd <= windowStart {
		return nil, false
	}
	if start < windowStart {
		data = data[windowStart-start:]
		start = windowStart
	}
	if start >= windowEnd {
		return nil, false
	}
	if end > windowEnd {
		data = data[:windowEnd-start]
		eof = false // trailing bytes were dropped, eof no longer applies
	}
	return data, eof
}

// mergeWithPending unions the incoming segment with every pending segment
// it overlaps or touches, removing them from pending, and returns the
// coalesced segment together with the incoming eof flag unchanged (pending
// segments carry no eof of their own; the caller applies stickyEOF after
// the merge).
func (r *Reassembler) mergeWithPending(in segment, eof bool) (segment, bool) {
	merged := in
	var kept []segment
	for _, p := range r.pending {
		if touches(merged, p) {
			merged = union(merged, p)
			r.pendingBytes -= len(p.payload)
		} else {
			kept = append(kept, p)
		}
	}
	r.pending = kept
	return merged, eof
}

// touches reports whether segments a and b overlap or are adjacent (so
// concatenating them leaves no gap).
func touches(a, b segment) bool {
	return a.index <= b.end() && b.index <= a.end()
}

// union merges two touching segments into one spanning their combined
// range. Overlapping bytes are assumed identical, per spec.
func union(a, b segment) segment {
	start := a.index
	if b.index < start {
		start = b.index
	}
	end := a.end()
	if b.end() > end {
		end = b.end()
	}
	out := make([]byte, end-start)
	copy(out[a.index-start:], a.payload)
	copy(out[b.index-start:], b.payload)
	return segment{index: start, payload: out}
}

// insertPending inserts seg into the sorted pending slice and accounts for
// its bytes.
func (r *Reassembler) insertPending(seg segment) {
	if len(seg.payload) == 0 {
		return
	}
	i := sort.Search(len(r.pending), func(i int) bool { return r.pending[i].index >= seg.index })
	r.pending = append(r.pending, segment{})
	copy(r.pending[i+1:], r.pending[i:])
	r.pending[i] = seg
	r.pendingBytes += len(seg.payload)
}

// writeToOutput writes a fragment that begins exactly at firstUnassembled.
// If the output stream accepts fewer bytes than the fragment holds, the
// leftover is reinserted into pending.
func (r *Reassembler) writeToOutput(seg segment) {
	n := r.output.Write(seg.payload)
	r.firstUnassembled += uint64(n)
	if n < len(seg.payload) {
		r.insertPending(segment{index: r.firstUnassembled, payload: seg.payload[n:]})
	}
}

// maybeSignalEOF ends the output stream's input once pending is empty and
// sticky eof has been asserted.
func (r *Reassembler) maybeSignalEOF() {
	if r.stickyEOF && r.Empty() {
		r.output.EndInput()
	}
}
