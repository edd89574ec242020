package reactor

import (
	"net"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestAcceptorInvokesCallbackWithPeerAddress(t *testing.T) {
	loop := newTestLoop(t)
	done := runLoopInBackground(t, loop)

	var acc *Acceptor
	accReady := make(chan struct{})
	loop.RunInLoop(func() {
		var err error
		acc, err = NewAcceptor(loop, NewWildcardAddress(0))
		if err != nil {
			t.Fatalf("NewAcceptor: %v", err)
		}
		close(accReady)
	})
	<-accReady

	type accepted struct {
		fd   int
		peer Address
	}
	acceptedCh := make(chan accepted, 1)
	loop.RunInLoop(func() {
		acc.SetNewConnectionCallback(func(fd int, peer Address) {
			acceptedCh <- accepted{fd: fd, peer: peer}
		})
		acc.Listen()
	})

	var addr Address
	deadline := time.Now().Add(2 * time.Second)
	for {
		a, err := acc.LocalAddr()
		if err == nil && a.Port() != 0 {
			addr = a
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("acceptor never bound a port")
		}
		time.Sleep(time.Millisecond)
	}

	client, err := net.DialTimeout("tcp", addr.String(), 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	select {
	case got := <-acceptedCh:
		if got.fd <= 0 {
			t.Fatalf("accepted fd = %d, want > 0", got.fd)
		}
		if got.peer.Port() == 0 {
			t.Fatalf("peer address has zero port: %v", got.peer)
		}
		unix.Close(got.fd)
	case <-time.After(2 * time.Second):
		t.Fatalf("acceptor never invoked new-connection callback")
	}

	loop.RunInLoop(func() { acc.Close() })
	loop.Quit()
	<-done
	loop.Close()
}

func TestAcceptorClosesDescriptorWithoutCallback(t *testing.T) {
	loop := newTestLoop(t)
	done := runLoopInBackground(t, loop)

	var acc *Acceptor
	accReady := make(chan struct{})
	loop.RunInLoop(func() {
		var err error
		acc, err = NewAcceptor(loop, NewWildcardAddress(0))
		if err != nil {
			t.Fatalf("NewAcceptor: %v", err)
		}
		acc.Listen()
		close(accReady)
	})
	<-accReady

	var addr Address
	deadline := time.Now().Add(2 * time.Second)
	for {
		a, err := acc.LocalAddr()
		if err == nil && a.Port() != 0 {
			addr = a
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("acceptor never bound a port")
		}
		time.Sleep(time.Millisecond)
	}

	client, err := net.DialTimeout("tcp", addr.String(), 2*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	// With no new-connection callback installed, the acceptor must close
	// the accepted descriptor immediately; the peer should observe EOF.
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if n, err := client.Read(buf); n != 0 || err == nil {
		t.Fatalf("expected immediate EOF from uncallbacked acceptor, got n=%d err=%v", n, err)
	}
	client.Close()

	loop.RunInLoop(func() { acc.Close() })
	loop.Quit()
	<-done
	loop.Close()
}
