package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// NewConnectionCallback is invoked with a freshly accepted descriptor and
// its peer address. The callee takes ownership of fd.
type NewConnectionCallback func(fd int, peer Address)

// Acceptor owns a listening socket and turns its readability into
// accept(2) calls, exactly one per readiness notification.
type Acceptor struct {
	loop   *EventLoop
	socket *Socket

	channel   *Channel
	listening bool

	newConnectionCallback NewConnectionCallback
}

// NewAcceptor binds and prepares (but does not yet Listen on) a socket for
// listenAddr.
func NewAcceptor(loop *EventLoop, listenAddr Address) (*Acceptor, error) {
	sock, err := NewNonblockingSocket()
	if err != nil {
		return nil, err
	}
	if err := sock.SetReuseAddr(true); err != nil {
		sock.Close()
		return nil, err
	}
	if err := sock.BindAddress(listenAddr); err != nil {
		sock.Close()
		return nil, err
	}

	a := &Acceptor{loop: loop, socket: sock}
	a.channel = newChannel(loop, sock.FD())
	a.channel.SetReadCallback(func(time.Time) { a.handleRead() })
	return a, nil
}

// SetNewConnectionCallback installs the handler for accepted connections.
func (a *Acceptor) SetNewConnectionCallback(cb NewConnectionCallback) { a.newConnectionCallback = cb }

// Listening reports whether Listen has been called.
func (a *Acceptor) Listening() bool { return a.listening }

// LocalAddr returns the address the acceptor's socket is bound to, useful
// for discovering the actual port after binding to port 0.
func (a *Acceptor) LocalAddr() (Address, error) { return LocalAddress(a.socket.FD()) }

// Listen puts the socket into the listening state and starts watching it
// for readability. Must run on the acceptor's loop.
func (a *Acceptor) Listen() {
	a.loop.assertInLoopThread()
	a.listening = true
	if err := a.socket.Listen(); err != nil {
		defaultLogger.Fatalf("Acceptor.Listen: %v", err)
	}
	a.channel.EnableReading()
}

func (a *Acceptor) handleRead() {
	a.loop.assertInLoopThread()
	fd, peer, err := a.socket.Accept()
	if err != nil {
		if isAcceptTransient(err) {
			defaultLogger.Debugf("Acceptor: transient accept error: %v", err)
			return
		}
		defaultLogger.Fatalf("Acceptor: fatal accept error: %v", err)
		return
	}

	if a.newConnectionCallback != nil {
		a.newConnectionCallback(fd, peer)
	} else {
		unix.Close(fd)
	}
}

// Close removes the acceptor's channel and releases its socket.
func (a *Acceptor) Close() error {
	a.channel.DisableAll()
	a.channel.Remove()
	return a.socket.Close()
}
