package reactor

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Address is an immutable IPv4 endpoint: a 32-bit network address plus a
// host-order port.
type Address struct {
	ip   [4]byte
	port uint16
}

// NewWildcardAddress builds an Address that binds every local interface on
// the given port.
func NewWildcardAddress(port uint16) Address {
	return Address{port: port}
}

// NewAddress resolves host (a dotted-quad literal or a hostname) and
// constructs the Address for host:port. Only IPv4 is supported.
func NewAddress(host string, port uint16) (Address, error) {
	ip := net.ParseIP(host)
	if ip == nil {
		addrs, err := net.LookupIP(host)
		if err != nil || len(addrs) == 0 {
			return Address{}, fmt.Errorf("resolve %q: %w", host, err)
		}
		ip = addrs[0]
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return Address{}, fmt.Errorf("address %q is not an IPv4 address", host)
	}
	var a Address
	copy(a.ip[:], ip4)
	a.port = port
	return a, nil
}

// String renders the address as dotted-quad:port.
func (a Address) String() string {
	return fmt.Sprintf("%d.%d.%d.%d:%d", a.ip[0], a.ip[1], a.ip[2], a.ip[3], a.port)
}

// Port returns the address's port in host order.
func (a Address) Port() uint16 { return a.port }

func (a Address) toSockaddrInet4() unix.SockaddrInet4 {
	return unix.SockaddrInet4{Port: int(a.port), Addr: a.ip}
}

func addressFromSockaddrInet4(sa *unix.SockaddrInet4) Address {
	return Address{ip: sa.Addr, port: uint16(sa.Port)}
}
