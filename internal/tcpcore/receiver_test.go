package tcpcore

import "testing"

func TestReceiverRejectsNonSYNBeforeHandshake(t *testing.T) {
	r := NewReceiver(4000)
	ok := r.SegmentReceived(Segment{Seqno: 5, Payload: []byte("x")})
	if ok {
		t.Fatalf("expected rejection before SYN")
	}
	if _, ok := r.Ackno(); ok {
		t.Fatalf("expected no ackno before SYN")
	}
}

func TestReceiverAcceptsSYNAndAcks(t *testing.T) {
	r := NewReceiver(4000)
	ok := r.SegmentReceived(Segment{Seqno: 100, SYN: true})
	if !ok {
		t.Fatalf("expected SYN accepted")
	}
	ackno, have := r.Ackno()
	if !have || ackno != 101 {
		t.Fatalf("ackno = %d (have=%v), want 101", ackno, have)
	}
}

func TestReceiverAcceptsInOrderPayload(t *testing.T) {
	r := NewReceiver(4000)
	r.SegmentReceived(Segment{Seqno: 100, SYN: true})
	r.SegmentReceived(Segment{Seqno: 101, Payload: []byte("hi")})

	ackno, _ := r.Ackno()
	if ackno != 103 {
		t.Fatalf("ackno = %d, want 103", ackno)
	}
	if got := string(r.Reassembler().Output().PeekOutput(10)); got != "hi" {
		t.Fatalf("output = %q, want %q", got, "hi")
	}
}

func TestReceiverDuplicateSYNDropped(t *testing.T) {
	r := NewReceiver(4000)
	r.SegmentReceived(Segment{Seqno: 100, SYN: true})
	if ok := r.SegmentReceived(Segment{Seqno: 100, SYN: true}); ok {
		t.Fatalf("expected duplicate SYN rejected")
	}
}

func TestReceiverFinSetsEOFWhenAssembled(t *testing.T) {
	r := NewReceiver(4000)
	r.SegmentReceived(Segment{Seqno: 100, SYN: true})
	r.SegmentReceived(Segment{Seqno: 101, Payload: []byte("hi"), FIN: true})

	if !r.FinReceived() {
		t.Fatalf("expected fin received")
	}
	if !r.Reassembler().Output().InputEnded() {
		t.Fatalf("expected output input ended")
	}
	r.Reassembler().Output().PopOutput(2)
	if !r.Reassembler().Output().EOF() {
		t.Fatalf("expected output EOF after drain")
	}
	ackno, _ := r.Ackno()
	if ackno != 104 { // +1 for SYN, +2 payload, +1 for FIN
		t.Fatalf("ackno = %d, want 104", ackno)
	}
}
