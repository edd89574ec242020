package reactor

import (
	"net"
	"sync"
	"testing"
	"time"
)

// newConnectedPair spins up a one-shot server loop and dials it, handing
// back the accepted TcpConnection (once connectEstablished has run) plus
// the raw client side for driving reads/writes from the test goroutine.
func newConnectedPair(t *testing.T) (*EventLoop, *TcpConnection, net.Conn, <-chan struct{}) {
	t.Helper()
	srv, loop, done := startTestServer(t, 0, nil)

	connCh := make(chan *TcpConnection, 1)
	srv.SetConnectionCallback(func(c *TcpConnection) {
		if c.Connected() {
			select {
			case connCh <- c:
			default:
			}
		}
	})

	client := dialTestServer(t, srv)

	var conn *TcpConnection
	select {
	case conn = <-connCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("server never observed connection")
	}

	return loop, conn, client, done
}

func TestConnectionSendZeroBytesIsNoop(t *testing.T) {
	loop, conn, client, done := newConnectedPair(t)
	defer client.Close()

	before := conn.outputBuffer.ReadableBytes()
	conn.Send(nil)
	conn.Send([]byte{})

	// Give the loop a chance to misbehave if it were going to.
	idle := make(chan struct{})
	loop.RunInLoop(func() { close(idle) })
	<-idle

	if got := conn.outputBuffer.ReadableBytes(); got != before {
		t.Fatalf("Send of zero bytes mutated output buffer: before=%d after=%d", before, got)
	}

	loop.Quit()
	<-done
	loop.Close()
}

func TestConnectionHighWaterMarkRisingEdge(t *testing.T) {
	loop, conn, client, done := newConnectedPair(t)
	defer client.Close()

	const mark = 1024
	var mu sync.Mutex
	fires := 0
	fired := make(chan struct{}, 8)

	payload := make([]byte, mark)
	done1 := make(chan struct{})
	loop.RunInLoop(func() {
		conn.SetHighWaterMarkCallback(func(c *TcpConnection, size int) {
			mu.Lock()
			fires++
			mu.Unlock()
			select {
			case fired <- struct{}{}:
			default:
			}
		}, mark)
		// Force the fast path to stash into the output buffer instead of
		// draining it immediately, by pretending the channel is already
		// writing — done in the same task as the send so no poll() can
		// intervene and drain the buffer out from under the test.
		conn.channel.EnableWriting()
		conn.sendInLoop(payload)
		close(done1)
	})
	<-done1

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("high-water callback never fired on rising edge")
	}

	// A further send that keeps the buffer above the mark must not refire.
	// handleWrite may have drained the first payload in the meantime, so
	// the buffer is topped back up to the mark directly (bypassing
	// sendInLoop) before the send.
	done2 := make(chan struct{})
	loop.RunInLoop(func() {
		conn.channel.EnableWriting()
		if conn.outputBuffer.ReadableBytes() < mark {
			conn.outputBuffer.Append(payload)
		}
		conn.sendInLoop([]byte("more"))
		close(done2)
	})
	<-done2

	settle := make(chan struct{})
	loop.RunInLoop(func() { close(settle) })
	<-settle

	mu.Lock()
	got := fires
	mu.Unlock()
	if got != 1 {
		t.Fatalf("high-water callback fired %d times, want exactly 1", got)
	}

	loop.Quit()
	<-done
	loop.Close()
}

func TestConnectionShutdownDefersUntilOutputDrains(t *testing.T) {
	loop, conn, client, done := newConnectedPair(t)
	defer client.Close()

	// Stuff the output buffer directly and mark the channel writing so
	// the fast path in sendInLoop is bypassed, simulating a slow
	// consumer with data still queued.
	queued := make(chan struct{})
	loop.RunInLoop(func() {
		conn.channel.EnableWriting()
		conn.outputBuffer.Append([]byte("pending"))
		close(queued)
	})
	<-queued

	conn.Shutdown()

	settle := make(chan struct{})
	loop.RunInLoop(func() { close(settle) })
	<-settle

	if conn.getState() != stateDisconnecting {
		t.Fatalf("state = %v, want Disconnecting while output is still pending", conn.getState())
	}

	// Drain the queued bytes; the client must still be able to read them
	// before the connection closes its write half.
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, len("pending"))
	if _, err := readFull(client, buf); err != nil {
		t.Fatalf("read pending bytes: %v", err)
	}
	if string(buf) != "pending" {
		t.Fatalf("got %q, want %q", buf, "pending")
	}

	loop.Quit()
	<-done
	loop.Close()
}
