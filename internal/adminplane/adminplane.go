// Package adminplane serves a single JSON status endpoint over HTTP/3,
// wrapping quic-go's http3.Server, with a self-signed certificate helper
// in certutil.go. It is deliberately outside the
// reactor core's object graph: it never touches a Channel, Buffer, or
// TcpConnection, and only reads a ServerStats snapshot through
// sync/atomic.
package adminplane

import (
	"crypto/tls"
	"encoding/json"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	quic "github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	"github.com/jiebaomaster/reactor/reactor"
)

// StatsSource is the minimal view of a TcpServer the admin plane needs.
type StatsSource interface {
	Stats() reactor.ServerStats
}

// Server wraps http3.Server lifecycle for the status endpoint.
type Server struct {
	pc    net.PacketConn
	srv   *http3.Server
	close func() error
	errC  chan error
	addr  string
	cert  atomic.Value // tls.Certificate
}

// Options configures the underlying QUIC transport.
type Options struct {
	MaxIdleTimeout  time.Duration
	KeepAlivePeriod time.Duration
}

// New builds a status server bound to addr, reporting src's stats as
// JSON from GET /status. If tlsCfg is nil, a self-signed certificate
// valid for "localhost" and the bind host is generated in memory.
func New(addr string, tlsCfg *tls.Config, src StatsSource, opts Options) (*Server, error) {
	if tlsCfg == nil {
		hosts := []string{"localhost"}
		if h, _, err := net.SplitHostPort(addr); err == nil && h != "" && h != "localhost" {
			hosts = append(hosts, h)
		}
		generated, err := GenerateSelfSignedTLS(hosts, 24*time.Hour)
		if err != nil {
			return nil, err
		}
		tlsCfg = generated
	} else if tlsCfg.MinVersion == 0 || tlsCfg.MinVersion < tls.VersionTLS13 {
		c := tlsCfg.Clone()
		c.MinVersion = tls.VersionTLS13
		if len(c.NextProtos) == 0 {
			c.NextProtos = []string{"h3"}
		}
		tlsCfg = c
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		stats := src.Stats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			ConnectionsAccepted int64 `json:"connections_accepted"`
			ConnectionsLive     int64 `json:"connections_live"`
			BytesRead           int64 `json:"bytes_read"`
			BytesWritten        int64 `json:"bytes_written"`
		}{
			ConnectionsAccepted: stats.ConnectionsAccepted(),
			ConnectionsLive:     stats.ConnectionsLive(),
			BytesRead:           stats.BytesRead(),
			BytesWritten:        stats.BytesWritten(),
		})
	})

	qc := &quic.Config{}
	if opts.MaxIdleTimeout > 0 {
		qc.MaxIdleTimeout = opts.MaxIdleTimeout
	}
	if opts.KeepAlivePeriod > 0 {
		qc.KeepAlivePeriod = opts.KeepAlivePeriod
	}

	s := &Server{addr: addr, errC: make(chan error, 1)}

	// Route the handshake through s.cert instead of a static
	// tls.Config.Certificates list so SetCertificate can rotate the
	// serving certificate without tearing down the QUIC listener —
	// the live-reload path config.Watch drives for tls_cert_file/
	// tls_key_file changes.
	if len(tlsCfg.Certificates) > 0 {
		s.cert.Store(tlsCfg.Certificates[0])
		served := tlsCfg.Clone()
		served.Certificates = nil
		served.GetCertificate = func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			cert := s.cert.Load().(tls.Certificate)
			return &cert, nil
		}
		tlsCfg = served
	}

	s.srv = &http3.Server{Addr: addr, TLSConfig: tlsCfg, Handler: mux, QUICConfig: qc}
	return s, nil
}

// SetCertificate hot-swaps the certificate presented to new connections;
// connections already established keep the certificate they handshook
// with. Safe to call concurrently with Serve.
func (s *Server) SetCertificate(certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return err
	}
	s.cert.Store(cert)
	return nil
}

// Start begins serving and returns the address actually bound (useful
// when addr ends in ":0").
func (s *Server) Start() (string, error) {
	pc, err := net.ListenPacket("udp", s.addr)
	if err != nil {
		return "", err
	}
	s.pc = pc
	realAddr := pc.LocalAddr().String()

	done := make(chan struct{})
	go func() {
		if err := s.srv.Serve(pc); err != nil {
			select {
			case s.errC <- err:
			default:
			}
		}
		close(done)
	}()

	s.close = func() error {
		_ = s.pc.Close()
		select {
		case <-done:
		case <-time.After(time.Second):
		}
		return nil
	}

	return realAddr, nil
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	if s.close != nil {
		return s.close()
	}
	return nil
}

// Error returns a channel that receives the first serve error, if any.
func (s *Server) Error() <-chan error { return s.errC }
