package reassembler

import "testing"

func TestOutOfOrderMerge(t *testing.T) {
	r := New(1000)
	r.PushSubstring([]byte("cd"), 2, false)
	r.PushSubstring([]byte("ab"), 0, false)

	if got := string(r.Output().PeekOutput(10)); got != "abcd" {
		t.Fatalf("output = %q, want %q", got, "abcd")
	}
	if !r.Empty() {
		t.Fatalf("expected pending empty")
	}
	if r.FirstUnassembledByte() != 4 {
		t.Fatalf("first unassembled = %d, want 4", r.FirstUnassembledByte())
	}
}

func TestCapacityClamp(t *testing.T) {
	r := New(4)
	r.PushSubstring([]byte("abcdef"), 0, true)

	if got := string(r.Output().PeekOutput(10)); got != "abcd" {
		t.Fatalf("output = %q, want %q", got, "abcd")
	}
	if !r.Empty() {
		t.Fatalf("expected pending empty")
	}
	if r.EOF() {
		t.Fatalf("sticky eof should remain false: trailing bytes were dropped")
	}
	if r.Output().InputEnded() {
		t.Fatalf("output should not be ended")
	}
}

func TestOverlappingSubstringsCoalesce(t *testing.T) {
	r := New(1000)
	r.PushSubstring([]byte("bcd"), 1, false)
	r.PushSubstring([]byte("ab"), 0, false) // overlaps at index 1
	if got := string(r.Output().PeekOutput(10)); got != "abcd" {
		t.Fatalf("output = %q, want %q", got, "abcd")
	}
}

func TestEOFSetsInputEndedOnlyWhenFullyAccepted(t *testing.T) {
	r := New(1000)
	r.PushSubstring([]byte("abc"), 0, true)
	if !r.EOF() {
		t.Fatalf("expected sticky eof")
	}
	if !r.Output().InputEnded() {
		t.Fatalf("expected output input ended")
	}
	r.Output().PopOutput(3)
	if !r.Output().EOF() {
		t.Fatalf("expected output EOF after drain")
	}
}

func TestBelowWindowBytesDropped(t *testing.T) {
	r := New(1000)
	r.PushSubstring([]byte("ab"), 0, false)
	r.PushSubstring([]byte("ab"), 0, false) // duplicate, already assembled
	if r.FirstUnassembledByte() != 2 {
		t.Fatalf("first unassembled = %d, want 2", r.FirstUnassembledByte())
	}
	if !r.Empty() {
		t.Fatalf("expected pending empty")
	}
}

func TestEOFWaitsForGapToClose(t *testing.T) {
	r := New(1000)
	r.PushSubstring([]byte("b"), 1, true) // gap at index 0, eof asserted once fully accepted
	if !r.EOF() {
		t.Fatalf("expected sticky eof asserted (fragment fully accepted)")
	}
	if r.Output().InputEnded() {
		t.Fatalf("output should not be ended until gap closes")
	}
	r.PushSubstring([]byte("a"), 0, false)
	if !r.Output().InputEnded() {
		t.Fatalf("expected output ended once pending drains")
	}
}

func TestUnassembledBytesCounting(t *testing.T) {
	r := New(1000)
	r.PushSubstring([]byte("b"), 1, false)
	r.PushSubstring([]byte("d"), 3, false)
	if r.UnassembledBytes() != 2 {
		t.Fatalf("unassembled bytes = %d, want 2", r.UnassembledBytes())
	}
}
