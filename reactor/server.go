package reactor

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// TcpServer owns a listening Acceptor on a base loop and a pool of I/O
// loops connections are handed off to. It is the top-level object an
// application constructs; everything else in this package exists to
// support it.
type TcpServer struct {
	loop       *EventLoop
	name       string
	acceptor   *Acceptor
	threadPool *LoopThreadPool

	connectionCallback    ConnectionCallback
	messageCallback       MessageCallback
	writeCompleteCallback WriteCompleteCallback
	highWaterMarkCallback HighWaterMarkCallback
	highWaterMark         int64 // atomic; 0 means each connection keeps defaultHighWaterMark

	mu          sync.Mutex
	started     bool
	nextConnID  int
	connections map[string]*TcpConnection

	stats *ServerStats
}

// NewTcpServer constructs a server that will listen on listenAddr once
// Start is called. loop is the base loop; it must not be shared with
// another TcpServer.
func NewTcpServer(loop *EventLoop, listenAddr Address) (*TcpServer, error) {
	acceptor, err := NewAcceptor(loop, listenAddr)
	if err != nil {
		return nil, err
	}
	s := &TcpServer{
		loop:        loop,
		name:        listenAddr.String(),
		acceptor:    acceptor,
		threadPool:  NewLoopThreadPool(loop),
		nextConnID:  1,
		connections: make(map[string]*TcpConnection),
		stats:       &ServerStats{},
	}
	acceptor.SetNewConnectionCallback(s.newConnection)
	return s, nil
}

// SetThreadNum configures the number of I/O loops new connections are
// round-robin assigned to. Must be called before Start.
func (s *TcpServer) SetThreadNum(n int) { s.threadPool.SetThreadNum(n) }

func (s *TcpServer) SetConnectionCallback(cb ConnectionCallback) { s.connectionCallback = cb }
func (s *TcpServer) SetMessageCallback(cb MessageCallback)       { s.messageCallback = cb }
func (s *TcpServer) SetWriteCompleteCallback(cb WriteCompleteCallback) {
	s.writeCompleteCallback = cb
}

// SetHighWaterMarkCallback installs cb and mark as the high-water-mark
// configuration applied to every connection accepted from now on.
func (s *TcpServer) SetHighWaterMarkCallback(cb HighWaterMarkCallback, mark int) {
	s.highWaterMarkCallback = cb
	atomic.StoreInt64(&s.highWaterMark, int64(mark))
}

// SetHighWaterMark updates the high-water-mark threshold applied to
// connections accepted from now on and pushes the new threshold to every
// currently live connection. Safe to call from any goroutine; this is
// the one TcpServer tunable config.Watch applies to a running server,
// since changing it never requires rebuilding a Channel or Socket.
func (s *TcpServer) SetHighWaterMark(mark int) {
	if mark <= 0 {
		mark = defaultHighWaterMark
	}
	atomic.StoreInt64(&s.highWaterMark, int64(mark))

	s.mu.Lock()
	live := make([]*TcpConnection, 0, len(s.connections))
	for _, conn := range s.connections {
		live = append(live, conn)
	}
	s.mu.Unlock()

	for _, conn := range live {
		conn.SetHighWaterMark(mark)
	}
}

// Stats returns a consistent snapshot of the server's live counters.
func (s *TcpServer) Stats() ServerStats { return s.stats.snapshot() }

// LocalAddr returns the address the server's acceptor is bound to, useful
// for discovering the actual port after binding to port 0.
func (s *TcpServer) LocalAddr() (Address, error) { return s.acceptor.LocalAddr() }

// Start spins up the I/O thread pool (once) and begins listening (once).
// Safe to call more than once; subsequent calls are no-ops.
func (s *TcpServer) Start() {
	s.mu.Lock()
	alreadyStarted := s.started
	s.started = true
	s.mu.Unlock()

	if !alreadyStarted {
		s.threadPool.Start()
	}
	if !s.acceptor.Listening() {
		s.loop.RunInLoop(s.acceptor.Listen)
	}
}

func (s *TcpServer) newConnection(fd int, peer Address) {
	s.loop.assertInLoopThread()

	connName := fmt.Sprintf("%s#%d", s.name, s.nextConnID)
	s.nextConnID++

	defaultLogger.Infof("TcpServer[%s]: new connection [%s] from %s", s.name, connName, peer)

	local, err := LocalAddress(fd)
	if err != nil {
		defaultLogger.Warnf("TcpServer[%s]: getsockname for [%s]: %v", s.name, connName, err)
	}

	ioLoop := s.threadPool.GetNextLoop()
	conn := newTcpConnection(ioLoop, connName, fd, local, peer)
	conn.stats = s.stats

	s.mu.Lock()
	s.connections[connName] = conn
	s.mu.Unlock()
	s.stats.addConnection()

	conn.SetConnectionCallback(s.connectionCallback)
	conn.SetMessageCallback(s.messageCallback)
	conn.SetWriteCompleteCallback(s.writeCompleteCallback)
	conn.setCloseCallback(s.removeConnection)
	if mark := atomic.LoadInt64(&s.highWaterMark); mark > 0 {
		conn.SetHighWaterMarkCallback(s.highWaterMarkCallback, int(mark))
	} else if s.highWaterMarkCallback != nil {
		conn.SetHighWaterMarkCallback(s.highWaterMarkCallback, defaultHighWaterMark)
	}

	ioLoop.RunInLoop(conn.connectEstablished)
}

// removeConnection is the connection's close callback; it always
// marshals onto the base loop, because the server's connection registry
// is confined there, not to whichever I/O loop ran the connection.
func (s *TcpServer) removeConnection(conn *TcpConnection) {
	s.loop.RunInLoop(func() { s.removeConnectionInLoop(conn) })
}

func (s *TcpServer) removeConnectionInLoop(conn *TcpConnection) {
	s.loop.assertInLoopThread()
	defaultLogger.Infof("TcpServer[%s]: removing connection [%s]", s.name, conn.Name())

	s.mu.Lock()
	delete(s.connections, conn.Name())
	s.mu.Unlock()
	s.stats.removeConnection()

	// Queued rather than called inline: connectDestroyed removes and
	// disables the connection's Channel, which must not happen while a
	// Channel.HandleEvent call for it might still be unwinding on its own
	// I/O loop's call stack.
	ioLoop := conn.Loop()
	ioLoop.QueueInLoop(conn.connectDestroyed)
}

// Stop stops accepting new connections and tears down the I/O thread
// pool. Existing connections are not forcibly closed; callers that need
// a clean shutdown should Shutdown() them first.
func (s *TcpServer) Stop() {
	s.loop.RunInLoop(func() {
		if err := s.acceptor.Close(); err != nil {
			defaultLogger.Warnf("TcpServer[%s]: closing acceptor: %v", s.name, err)
		}
	})
	s.threadPool.Stop()
}
