package reactor

import "testing"

func TestNewWildcardAddressString(t *testing.T) {
	a := NewWildcardAddress(8080)
	if got, want := a.String(), "0.0.0.0:8080"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
	if a.Port() != 8080 {
		t.Fatalf("Port() = %d, want 8080", a.Port())
	}
}

func TestNewAddressDottedQuad(t *testing.T) {
	a, err := NewAddress("127.0.0.1", 9090)
	if err != nil {
		t.Fatalf("NewAddress: %v", err)
	}
	if got, want := a.String(), "127.0.0.1:9090"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestNewAddressRejectsIPv6(t *testing.T) {
	if _, err := NewAddress("::1", 80); err == nil {
		t.Fatalf("expected an error for an IPv6 literal")
	}
}

func TestAddressSockaddrRoundTrip(t *testing.T) {
	a, err := NewAddress("10.0.0.5", 4242)
	if err != nil {
		t.Fatalf("NewAddress: %v", err)
	}
	sa := a.toSockaddrInet4()
	back := addressFromSockaddrInet4(&sa)
	if back != a {
		t.Fatalf("round trip = %+v, want %+v", back, a)
	}
}
