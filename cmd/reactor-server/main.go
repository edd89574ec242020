// Command reactor-server is a demonstration host for the reactor
// library: it wires up discard, echo, and chargen protocol handlers on
// three listeners, each with its own pool of -io-threads I/O loops and all
// sharing one base loop, plus an optional HTTP/3
// admin/status endpoint, coordinated with golang.org/x/sync/errgroup the
// way a small multi-listener service typically is.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jiebaomaster/reactor/internal/adminplane"
	"github.com/jiebaomaster/reactor/internal/config"
	"github.com/jiebaomaster/reactor/reactor"
)

const chargenLine = "abcdefghijklmnopqrstuvwxyz0123456789\r\n"

func main() {
	configPath := flag.String("config", "", "path to a JSON ServerConfig file")
	discardPort := flag.Int("discard-port", 9001, "discard protocol listen port")
	echoPort := flag.Int("echo-port", 9002, "echo protocol listen port")
	chargenPort := flag.Int("chargen-port", 9003, "chargen protocol listen port")
	ioThreads := flag.Int("io-threads", 4, "I/O thread count of each listener's pool")
	flag.Parse()

	log := reactor.DefaultLogger()

	var cfg *config.ServerConfig
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}

	// NewEventLoop binds the loop to whichever goroutine calls it, so the
	// base loop is constructed here, on main's own goroutine, and Loop
	// below runs on that same goroutine — exactly the shape LoopThread
	// gives every I/O thread, just without the channel handshake since
	// nothing else needs a handle to this goroutine before it exists.
	baseLoop, err := reactor.NewEventLoop()
	if err != nil {
		log.Fatalf("NewEventLoop: %v", err)
	}
	if cfg != nil && cfg.IdlePollTimeout > 0 {
		baseLoop.SetPollTimeout(cfg.IdlePollTimeout)
	}

	chargenServer := mustServer(baseLoop, uint16(*chargenPort), *ioThreads, discardHandler)
	chargenServer.SetConnectionCallback(chargenConnectionEstablished)
	chargenServer.SetWriteCompleteCallback(chargenWriteComplete)

	servers := []*reactor.TcpServer{
		mustServer(baseLoop, uint16(*discardPort), *ioThreads, discardHandler),
		mustServer(baseLoop, uint16(*echoPort), *ioThreads, echoHandler),
		chargenServer,
	}

	if cfg != nil && cfg.HighWaterMark > 0 {
		for _, s := range servers {
			s.SetHighWaterMarkCallback(logHighWaterMark, cfg.HighWaterMark)
		}
	}

	for _, s := range servers {
		s.Start()
	}

	var admin *adminplane.Server
	if cfg != nil && cfg.AdminAddr != "" {
		var tlsCfg *tls.Config
		if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
			loaded, err := adminplane.LoadTLSConfig(cfg.TLSCertFile, cfg.TLSKeyFile)
			if err != nil {
				log.Fatalf("load admin TLS material: %v", err)
			}
			tlsCfg = loaded
		}
		admin, err = adminplane.New(cfg.AdminAddr, tlsCfg, servers[1], adminplane.Options{})
		if err != nil {
			log.Fatalf("adminplane.New: %v", err)
		}
		addr, err := admin.Start()
		if err != nil {
			log.Fatalf("adminplane.Start: %v", err)
		}
		log.Infof("admin plane listening on %s", addr)
	}

	// config.Watch only reloads the knobs that are safe to apply without
	// rebuilding a Channel or Socket: TLS material, the high-water mark,
	// and the idle poll timeout. listen_addr/io_threads changes are
	// logged and ignored by Watch itself.
	var watcher io.Closer
	if cfg != nil && *configPath != "" {
		w, err := config.Watch(*configPath, func(updated *config.ServerConfig) {
			baseLoop.SetPollTimeout(updated.IdlePollTimeout)
			for _, s := range servers {
				s.SetHighWaterMark(updated.HighWaterMark)
			}
			if admin != nil && updated.TLSCertFile != "" && updated.TLSKeyFile != "" {
				if err := admin.SetCertificate(updated.TLSCertFile, updated.TLSKeyFile); err != nil {
					log.Warnf("config: reload admin TLS material: %v", err)
				} else {
					log.Infof("config: admin plane TLS material reloaded")
				}
			}
		})
		if err != nil {
			log.Fatalf("config.Watch: %v", err)
		}
		watcher = w
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This goroutine is outside the base loop's own goroutine, so it only
	// reaches the loop through calls that marshal onto it: each server's
	// Stop queues its acceptor teardown with RunInLoop, and Quit wakes the
	// loop. The watcher and admin plane teardown have no loop affinity.
	var group errgroup.Group
	group.Go(func() error {
		<-ctx.Done()
		log.Infof("shutting down")
		if watcher != nil {
			watcher.Close()
		}
		if admin != nil {
			admin.Stop()
		}
		for _, s := range servers {
			s.Stop()
		}
		baseLoop.Quit()
		return nil
	})

	baseLoop.Loop()
	if err := group.Wait(); err != nil {
		log.Errorf("shutdown: %v", err)
	}
	if err := baseLoop.Close(); err != nil {
		log.Errorf("EventLoop.Close: %v", err)
	}
}

func mustServer(loop *reactor.EventLoop, port uint16, ioThreads int, onMessage reactor.MessageCallback) *reactor.TcpServer {
	srv, err := reactor.NewTcpServer(loop, reactor.NewWildcardAddress(port))
	if err != nil {
		reactor.DefaultLogger().Fatalf("NewTcpServer(port=%d): %v", port, err)
	}
	srv.SetThreadNum(ioThreads)
	srv.SetMessageCallback(onMessage)
	return srv
}

// discardHandler implements the discard protocol (RFC 863): read and drop
// everything a peer sends.
func discardHandler(conn *reactor.TcpConnection, buf *reactor.Buffer, _ time.Time) {
	buf.RetrieveAll()
}

// echoHandler implements the echo protocol (RFC 862): send back exactly
// what was received.
func echoHandler(conn *reactor.TcpConnection, buf *reactor.Buffer, _ time.Time) {
	conn.Send([]byte(buf.RetrieveAsString()))
}

// chargenConnectionEstablished implements a simplified character
// generator (RFC 864): on connect it starts streaming a fixed line
// repeatedly; chargenWriteComplete keeps the stream going each time the
// output buffer fully drains, so a slow reader's TCP window — not an
// unbounded application buffer — is what paces the sender.
func chargenConnectionEstablished(conn *reactor.TcpConnection) {
	if conn.Connected() {
		conn.Send([]byte(chargenLine))
	}
}

func chargenWriteComplete(conn *reactor.TcpConnection) {
	if conn.Connected() {
		conn.Send([]byte(chargenLine))
	}
}

// logHighWaterMark is the demo's high-water-mark callback: it only logs,
// leaving actual throttling (pausing reads on some other connection,
// shedding load) to a real application.
func logHighWaterMark(conn *reactor.TcpConnection, size int) {
	reactor.DefaultLogger().Warnf("TcpConnection[%s]: output buffer crossed high-water mark at %d bytes", conn.Name(), size)
}
