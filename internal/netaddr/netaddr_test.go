package netaddr

import "testing"

func TestFromLiteralIPv4Numeric(t *testing.T) {
	a, err := FromLiteral("18.71.0.151", 53)
	if err != nil {
		t.Fatalf("FromLiteral: %v", err)
	}
	if a.Port() != 53 {
		t.Fatalf("port = %d, want 53", a.Port())
	}
	const want = 0x12470097
	if got := a.IPv4Numeric(); got != want {
		t.Fatalf("IPv4Numeric = 0x%08x, want 0x%08x", got, want)
	}
}

func TestFromLiteralRejectsBadInput(t *testing.T) {
	if _, err := FromLiteral("not-an-ip", 80); err == nil {
		t.Fatalf("expected error for invalid literal")
	}
	if _, err := FromLiteral("2001:db8::1", 80); err == nil {
		t.Fatalf("expected error for IPv6 literal")
	}
}

func TestAddressString(t *testing.T) {
	a, err := FromLiteral("127.0.0.1", 8080)
	if err != nil {
		t.Fatalf("FromLiteral: %v", err)
	}
	if got, want := a.String(), "127.0.0.1:8080"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}
