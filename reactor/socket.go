package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Socket is a scoped owner of a single non-blocking stream socket
// descriptor. It never retries across EAGAIN itself — that policy lives
// in the Channel/EventLoop layer that drives it.
type Socket struct {
	fd int
}

// NewNonblockingSocket creates a non-blocking, close-on-exec IPv4 TCP
// socket.
func NewNonblockingSocket() (*Socket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, newError(CategorySetupFatal, "socket", err)
	}
	return &Socket{fd: fd}, nil
}

// FD returns the underlying descriptor. Callers must not close it
// directly; use Close.
func (s *Socket) FD() int { return s.fd }

// Close releases the descriptor.
func (s *Socket) Close() error { return unix.Close(s.fd) }

// SetReuseAddr toggles SO_REUSEADDR, required before Bind on a restarted
// listener.
func (s *Socket) SetReuseAddr(on bool) error {
	if err := unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolToInt(on)); err != nil {
		return newError(CategorySetupFatal, "setsockopt(SO_REUSEADDR)", err)
	}
	return nil
}

// SetTCPNoDelay toggles Nagle's algorithm.
func (s *Socket) SetTCPNoDelay(on bool) error {
	if err := unix.SetsockoptInt(s.fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolToInt(on)); err != nil {
		return newError(CategoryConnNonFatal, "setsockopt(TCP_NODELAY)", err)
	}
	return nil
}

// BindAddress binds the socket to addr.
func (s *Socket) BindAddress(addr Address) error {
	sa := addr.toSockaddrInet4()
	if err := unix.Bind(s.fd, &sa); err != nil {
		return newError(CategorySetupFatal, "bind", err)
	}
	return nil
}

// Listen marks the socket as a listening socket with a kernel backlog of
// SOMAXCONN.
func (s *Socket) Listen() error {
	if err := unix.Listen(s.fd, unix.SOMAXCONN); err != nil {
		return newError(CategorySetupFatal, "listen", err)
	}
	return nil
}

// Accept accepts one pending connection, returning a non-blocking,
// close-on-exec descriptor for it and the peer's address.
func (s *Socket) Accept() (int, Address, error) {
	nfd, sa, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, Address{}, err
	}
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		unix.Close(nfd)
		return -1, Address{}, fmt.Errorf("accept: unexpected sockaddr type %T", sa)
	}
	return nfd, addressFromSockaddrInet4(in4), nil
}

// ShutdownWrite half-closes the write side of the connection, leaving the
// read side open so any unread bytes the peer sent can still be drained.
func (s *Socket) ShutdownWrite() error {
	return unix.Shutdown(s.fd, unix.SHUT_WR)
}

// LocalAddress returns the local endpoint bound to fd.
func LocalAddress(fd int) (Address, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return Address{}, err
	}
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return Address{}, fmt.Errorf("getsockname: unexpected sockaddr type %T", sa)
	}
	return addressFromSockaddrInet4(in4), nil
}

// socketError reads and clears the pending SO_ERROR on fd, the canonical
// way to learn why a channel's error callback fired.
func socketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno == 0 {
		return nil
	}
	return unix.Errno(errno)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
