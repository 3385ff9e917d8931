// Package tcpseq converts between 64-bit absolute stream indices and the
// 32-bit wrapped sequence numbers that travel on the wire.
package tcpseq

// Wrap converts an absolute 64-bit index n to the 32-bit wire sequence
// number relative to isn: wrap(n, isn) = (n as u32) + isn, with modular
// wraparound.
func Wrap(n uint64, isn uint32) uint32 {
	return uint32(n) + isn
}

// Unwrap converts a 32-bit wire sequence number x back to the absolute
// 64-bit index whose low 32 bits equal x and which is closest to
// checkpoint, breaking ties toward the larger candidate.
func Unwrap(x uint32, isn uint32, checkpoint uint64) uint64 {
	offset := uint64(x - isn) // mod 2^32, since both are uint32 arithmetic widened
	const wrapSize = uint64(1) << 32

	if checkpoint < offset {
		return offset
	}

	// k = number of wraps such that k*2^32 + offset is the largest candidate
	// not above checkpoint.
	k := (checkpoint - offset) / wrapSize
	candidate := k*wrapSize + offset

	// Consider candidate and the next wrap up; pick whichever is closer to
	// checkpoint, ties toward the larger.
	next := candidate + wrapSize

	distCandidate := absDiff(candidate, checkpoint)
	distNext := absDiff(next, checkpoint)

	if distNext <= distCandidate {
		return next
	}
	return candidate
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
