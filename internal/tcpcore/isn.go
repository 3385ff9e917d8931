package tcpcore

import "math/rand"

// randomISN picks a random initial sequence number, matching the teacher's
// use of math/rand for non-security-sensitive randomness elsewhere in the
// stack (MAC/ISN selection is not a security boundary here).
func randomISN() uint32 {
	return rand.Uint32()
}
