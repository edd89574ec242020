package reactor

import "sync/atomic"

// ServerStats holds the atomically-updated counters a TcpServer publishes
// and an admin/status plane can read without ever touching loop-confined
// state.
type ServerStats struct {
	connectionsAccepted int64
	connectionsLive     int64
	bytesRead           int64
	bytesWritten        int64
}

func (s *ServerStats) addConnection() {
	atomic.AddInt64(&s.connectionsAccepted, 1)
	atomic.AddInt64(&s.connectionsLive, 1)
}

func (s *ServerStats) removeConnection()       { atomic.AddInt64(&s.connectionsLive, -1) }
func (s *ServerStats) addBytesRead(n int64)    { atomic.AddInt64(&s.bytesRead, n) }
func (s *ServerStats) addBytesWritten(n int64) { atomic.AddInt64(&s.bytesWritten, n) }

func (s *ServerStats) snapshot() ServerStats {
	return ServerStats{
		connectionsAccepted: atomic.LoadInt64(&s.connectionsAccepted),
		connectionsLive:     atomic.LoadInt64(&s.connectionsLive),
		bytesRead:           atomic.LoadInt64(&s.bytesRead),
		bytesWritten:        atomic.LoadInt64(&s.bytesWritten),
	}
}

func (s ServerStats) ConnectionsAccepted() int64 { return s.connectionsAccepted }
func (s ServerStats) ConnectionsLive() int64     { return s.connectionsLive }
func (s ServerStats) BytesRead() int64           { return s.bytesRead }
func (s ServerStats) BytesWritten() int64        { return s.bytesWritten }
