package reactor

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// ConnectionCallback is invoked once when a connection is established and
// again when it is about to be torn down; inspect Connected() to tell the
// two apart.
type ConnectionCallback func(conn *TcpConnection)

// MessageCallback is invoked whenever new bytes have been read into a
// connection's input buffer.
type MessageCallback func(conn *TcpConnection, buf *Buffer, receiveTime time.Time)

// WriteCompleteCallback is invoked once a connection's entire output
// buffer has been flushed to the kernel.
type WriteCompleteCallback func(conn *TcpConnection)

// HighWaterMarkCallback is invoked on the strict rising edge of a
// connection's output buffer crossing its high-water mark.
type HighWaterMarkCallback func(conn *TcpConnection, currentSize int)

type connCloseCallback func(conn *TcpConnection)

type connState int32

const (
	stateConnecting connState = iota
	stateConnected
	stateDisconnecting
	stateDisconnected
)

// defaultHighWaterMark is the output-buffer size above which
// HighWaterMarkCallback fires if none is configured explicitly.
const defaultHighWaterMark = 64 * 1024 * 1024

// TcpConnection represents one established, non-blocking TCP socket: its
// state machine, input/output buffers, and read/write/close dispatch. It
// is confined to the EventLoop it was created on; Send may be called from
// any goroutine and marshals onto that loop as needed.
type TcpConnection struct {
	loop *EventLoop
	name string
	state int32

	socket  *Socket
	channel *Channel

	localAddr, peerAddr Address

	connectionCallback    ConnectionCallback
	messageCallback       MessageCallback
	writeCompleteCallback WriteCompleteCallback
	highWaterMarkCallback HighWaterMarkCallback
	highWaterMark         int
	onClose               connCloseCallback

	inputBuffer  *Buffer
	outputBuffer *Buffer

	stats *ServerStats
}

func newTcpConnection(loop *EventLoop, name string, fd int, local, peer Address) *TcpConnection {
	c := &TcpConnection{
		loop:          loop,
		name:          name,
		state:         int32(stateConnecting),
		socket:        &Socket{fd: fd},
		localAddr:     local,
		peerAddr:      peer,
		highWaterMark: defaultHighWaterMark,
		inputBuffer:   NewBuffer(),
		outputBuffer:  NewBuffer(),
	}
	c.channel = newChannel(loop, fd)
	c.channel.SetReadCallback(c.handleRead)
	c.channel.SetWriteCallback(c.handleWrite)
	c.channel.SetCloseCallback(c.handleClose)
	c.channel.SetErrorCallback(c.handleError)
	return c
}

func (c *TcpConnection) Loop() *EventLoop   { return c.loop }
func (c *TcpConnection) Name() string       { return c.name }
func (c *TcpConnection) LocalAddr() Address { return c.localAddr }
func (c *TcpConnection) PeerAddr() Address  { return c.peerAddr }

// Connected reports whether the connection is currently in the Connected
// state. Safe to call from any goroutine.
func (c *TcpConnection) Connected() bool { return c.getState() == stateConnected }

func (c *TcpConnection) setState(s connState) { atomic.StoreInt32(&c.state, int32(s)) }
func (c *TcpConnection) getState() connState  { return connState(atomic.LoadInt32(&c.state)) }

func (c *TcpConnection) SetConnectionCallback(cb ConnectionCallback)       { c.connectionCallback = cb }
func (c *TcpConnection) SetMessageCallback(cb MessageCallback)             { c.messageCallback = cb }
func (c *TcpConnection) SetWriteCompleteCallback(cb WriteCompleteCallback) { c.writeCompleteCallback = cb }

// SetHighWaterMarkCallback installs cb, fired the first time the output
// buffer's size reaches or exceeds mark after having been below it (a
// strict rising edge — repeated sends while already over mark do not
// refire it).
func (c *TcpConnection) SetHighWaterMarkCallback(cb HighWaterMarkCallback, mark int) {
	c.highWaterMarkCallback = cb
	c.highWaterMark = mark
}

func (c *TcpConnection) setCloseCallback(cb connCloseCallback) { c.onClose = cb }

// SetHighWaterMark updates the connection's high-water-mark threshold in
// place, leaving its callback untouched. Thread-safe; marshals onto the
// owning loop like every other mutation of connection state. Used by
// TcpServer.SetHighWaterMark to push a live config reload to connections
// that already exist.
func (c *TcpConnection) SetHighWaterMark(mark int) {
	c.loop.RunInLoop(func() { c.highWaterMark = mark })
}

// SetTCPNoDelay toggles Nagle's algorithm on the underlying socket.
func (c *TcpConnection) SetTCPNoDelay(on bool) {
	if err := c.socket.SetTCPNoDelay(on); err != nil {
		defaultLogger.Warnf("TcpConnection[%s].SetTCPNoDelay: %v", c.name, err)
	}
}

// Send queues data for delivery to the peer. A direct write is attempted
// immediately when the output buffer is empty and nothing is pending;
// otherwise data is appended to the output buffer and flushed as the
// socket becomes writable. No-op once the connection is no longer
// Connected.
func (c *TcpConnection) Send(data []byte) {
	if c.getState() != stateConnected || len(data) == 0 {
		return
	}
	if c.loop.IsInLoopThread() {
		c.sendInLoop(data)
	} else {
		cp := append([]byte(nil), data...)
		c.loop.RunInLoop(func() { c.sendInLoop(cp) })
	}
}

func (c *TcpConnection) sendInLoop(data []byte) {
	c.loop.assertInLoopThread()

	var nwrote int
	var fatal bool
	remaining := len(data)

	if !c.channel.IsWriting() && c.outputBuffer.ReadableBytes() == 0 {
		n, err := unix.Write(c.socket.fd, data)
		if err != nil {
			if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
				fatal = true
				defaultLogger.Errorf("TcpConnection[%s].sendInLoop: write: %v", c.name, err)
			}
		} else {
			nwrote = n
			if c.stats != nil {
				c.stats.addBytesWritten(int64(n))
			}
			if nwrote == len(data) && c.writeCompleteCallback != nil {
				cb := c.writeCompleteCallback
				c.loop.QueueInLoop(func() { cb(c) })
			}
		}
		remaining = len(data) - nwrote
	}

	if fatal || remaining <= 0 {
		return
	}

	oldLen := c.outputBuffer.ReadableBytes()
	newLen := oldLen + remaining
	if newLen >= c.highWaterMark && oldLen < c.highWaterMark && c.highWaterMarkCallback != nil {
		cb := c.highWaterMarkCallback
		c.loop.QueueInLoop(func() { cb(c, newLen) })
	}
	c.outputBuffer.Append(data[nwrote:])
	if !c.channel.IsWriting() {
		c.channel.EnableWriting()
	}
}

// Shutdown half-closes the connection's write side once any pending
// output has drained.
func (c *TcpConnection) Shutdown() {
	if c.getState() == stateConnected {
		c.setState(stateDisconnecting)
		c.loop.RunInLoop(c.shutdownInLoop)
	}
}

func (c *TcpConnection) shutdownInLoop() {
	c.loop.assertInLoopThread()
	if !c.channel.IsWriting() {
		if err := c.socket.ShutdownWrite(); err != nil {
			defaultLogger.Debugf("TcpConnection[%s].shutdownInLoop: %v", c.name, err)
		}
	}
}

func (c *TcpConnection) connectEstablished() {
	c.loop.assertInLoopThread()
	if c.getState() != stateConnecting {
		defaultLogger.Fatalf("TcpConnection[%s].connectEstablished: unexpected state", c.name)
	}
	c.setState(stateConnected)
	c.channel.EnableReading()
	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
}

// connectDestroyed finalizes the connection: it must be called on the
// connection's own loop, after being queued there (never called inline
// from handleClose) so the Channel it removes is never removed out from
// under a call still unwinding through Channel.HandleEvent.
func (c *TcpConnection) connectDestroyed() {
	c.loop.assertInLoopThread()
	if s := c.getState(); s != stateConnected && s != stateDisconnecting {
		defaultLogger.Fatalf("TcpConnection[%s].connectDestroyed: unexpected state", c.name)
	}
	c.setState(stateDisconnected)
	c.channel.DisableAll()
	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
	c.loop.removeChannel(c.channel)
	c.socket.Close()
}

func (c *TcpConnection) handleRead(receiveTime time.Time) {
	n, err := c.inputBuffer.ReadFromFD(c.socket.fd)
	switch {
	case n > 0:
		if c.stats != nil {
			c.stats.addBytesRead(int64(n))
		}
		if c.messageCallback != nil {
			c.messageCallback(c, c.inputBuffer, receiveTime)
		}
	case n == 0 && err == nil:
		c.handleClose()
	default:
		defaultLogger.Errorf("TcpConnection[%s].handleRead: %v", c.name, err)
		c.handleError()
	}
}

func (c *TcpConnection) handleWrite() {
	c.loop.assertInLoopThread()
	if !c.channel.IsWriting() {
		defaultLogger.Debugf("TcpConnection[%s]: spurious writable event, nothing pending", c.name)
		return
	}
	n, err := unix.Write(c.socket.fd, c.outputBuffer.Peek())
	if err != nil {
		if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			defaultLogger.Errorf("TcpConnection[%s].handleWrite: %v", c.name, err)
		}
		return
	}
	if c.stats != nil {
		c.stats.addBytesWritten(int64(n))
	}
	c.outputBuffer.Retrieve(n)
	if c.outputBuffer.ReadableBytes() == 0 {
		c.channel.DisableWriting()
		if c.writeCompleteCallback != nil {
			cb := c.writeCompleteCallback
			c.loop.QueueInLoop(func() { cb(c) })
		}
		if c.getState() == stateDisconnecting {
			c.shutdownInLoop()
		}
	}
}

func (c *TcpConnection) handleClose() {
	c.loop.assertInLoopThread()
	if s := c.getState(); s != stateConnected && s != stateDisconnecting {
		defaultLogger.Fatalf("TcpConnection[%s].handleClose: unexpected state", c.name)
	}
	c.channel.DisableAll()
	if c.onClose != nil {
		c.onClose(c)
	}
}

func (c *TcpConnection) handleError() {
	err := socketError(c.socket.fd)
	defaultLogger.Errorf("TcpConnection[%s].handleError: SO_ERROR=%v", c.name, err)
}
