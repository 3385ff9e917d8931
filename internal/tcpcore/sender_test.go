package tcpcore

import "testing"

func TestSenderEmitsSYNFirst(t *testing.T) {
	s := NewSender(100, 4000, 1000)
	s.FillWindow()
	segs := s.DequeueOutbound()
	if len(segs) != 1 || !segs[0].SYN {
		t.Fatalf("expected single SYN segment, got %+v", segs)
	}
	if segs[0].Seqno != 100 {
		t.Fatalf("seqno = %d, want 100 (ISN)", segs[0].Seqno)
	}
	if s.BytesInFlight() != 1 {
		t.Fatalf("bytes in flight = %d, want 1", s.BytesInFlight())
	}
}

func TestSenderWithholdsDataUntilSYNAcked(t *testing.T) {
	s := NewSender(0, 4000, 1000)
	s.Stream().Write([]byte("hello"))
	s.FillWindow()
	s.DequeueOutbound() // SYN

	s.FillWindow() // no ack yet: should not send data
	if segs := s.DequeueOutbound(); len(segs) != 0 {
		t.Fatalf("expected no segments before SYN acked, got %+v", segs)
	}
}

func TestSenderFillsWindowAfterSYNAck(t *testing.T) {
	s := NewSender(0, 4000, 1000)
	s.FillWindow()
	s.DequeueOutbound()

	if ok := s.AckReceived(1, 4000); !ok {
		t.Fatalf("ack_received failed")
	}

	s.Stream().Write([]byte("hi"))
	s.FillWindow()
	segs := s.DequeueOutbound()
	if len(segs) != 1 || string(segs[0].Payload) != "hi" {
		t.Fatalf("unexpected segments: %+v", segs)
	}
	if segs[0].Seqno != 1 {
		t.Fatalf("seqno = %d, want 1", segs[0].Seqno)
	}
}

func TestSenderRetransmitBackoff(t *testing.T) {
	s := NewSender(0, 4000, 1000)
	s.FillWindow()
	s.DequeueOutbound()
	s.AckReceived(1, 4000)

	s.Stream().Write([]byte("x"))
	s.FillWindow()
	s.DequeueOutbound()

	s.Tick(999)
	if segs := s.DequeueOutbound(); len(segs) != 0 {
		t.Fatalf("unexpected retransmit before RTO elapsed: %+v", segs)
	}
	s.Tick(1)
	if segs := s.DequeueOutbound(); len(segs) != 1 {
		t.Fatalf("expected one retransmit, got %+v", segs)
	}
	if s.RTO() != 2000 {
		t.Fatalf("RTO after first retransmit = %d, want 2000", s.RTO())
	}
	s.Tick(2000)
	if segs := s.DequeueOutbound(); len(segs) != 1 {
		t.Fatalf("expected second retransmit, got %+v", segs)
	}
	if s.RTO() != 4000 {
		t.Fatalf("RTO after second retransmit = %d, want 4000", s.RTO())
	}
}

func TestSenderDuplicateAckIsNoop(t *testing.T) {
	s := NewSender(0, 4000, 1000)
	s.FillWindow()
	s.DequeueOutbound()
	s.AckReceived(1, 4000)

	s.Stream().Write([]byte("ab"))
	s.FillWindow()
	s.DequeueOutbound()

	before := s.BytesInFlight()
	if ok := s.AckReceived(1, 4000); !ok { // duplicate of the SYN ack
		t.Fatalf("ack_received failed on duplicate")
	}
	if s.BytesInFlight() != before {
		t.Fatalf("bytes in flight changed on duplicate ack: %d -> %d", before, s.BytesInFlight())
	}
}

func TestSenderFutureAckRejected(t *testing.T) {
	s := NewSender(0, 4000, 1000)
	s.FillWindow()
	s.DequeueOutbound()
	if ok := s.AckReceived(100, 4000); ok {
		t.Fatalf("expected future ack to be rejected")
	}
}
