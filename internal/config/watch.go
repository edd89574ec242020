package config

import (
	"github.com/jiebaomaster/reactor/internal/watch"
	"github.com/jiebaomaster/reactor/reactor"
)

// OnChange receives a freshly reloaded config after a watched file is
// written. It is responsible for applying the subset of fields that are
// safe to change live (TLS material, high-water mark, idle poll
// timeout); Watch itself only warns about fields that require a restart.
type OnChange func(cfg *ServerConfig)

// Watch reloads the config at path whenever it is written and invokes
// onChange with the result. Listen address and I/O thread count changes
// are logged and otherwise ignored by this package — applying them
// safely requires rebuilding the TcpServer, which is outside Watch's
// scope.
func Watch(path string, onChange OnChange) (io interface{ Close() error }, err error) {
	fw, err := watch.New()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}

	previous, err := Load(path)
	if err != nil {
		fw.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case ev, ok := <-fw.Events():
				if !ok {
					return
				}
				if ev.Op&watch.OpWrite == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					reactor.DefaultLogger().Warnf("config: reload %s: %v", path, err)
					continue
				}
				if cfg.ListenAddr != previous.ListenAddr {
					reactor.DefaultLogger().Warnf("config: listen_addr changed (%q -> %q); restart required, ignoring", previous.ListenAddr, cfg.ListenAddr)
				}
				if cfg.IOThreads != previous.IOThreads {
					reactor.DefaultLogger().Warnf("config: io_threads changed (%d -> %d); restart required, ignoring", previous.IOThreads, cfg.IOThreads)
				}
				previous = cfg
				onChange(cfg)
			case err, ok := <-fw.Errors():
				if !ok {
					return
				}
				reactor.DefaultLogger().Warnf("config: watch %s: %v", path, err)
			}
		}
	}()

	return fw, nil
}
