// Package config loads and validates a TcpServer's tunables from a JSON
// file: plain encoding/json, with a semver-gated schema version
// so an operator can tell at a glance whether a config file predates a
// breaking change.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
)

// supportedSchema is the range of ServerConfig.ConfigVersion values this
// build understands. Bumped only on a breaking change to the fields
// below.
var supportedSchema = mustConstraint(">=1.0.0, <2.0.0")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ServerConfig holds every operator-tunable knob of a reactor TcpServer
// plus its optional admin/status plane.
type ServerConfig struct {
	ConfigVersion string `json:"config_version"`

	ListenAddr string `json:"listen_addr"`
	IOThreads  int    `json:"io_threads"`

	HighWaterMark   int           `json:"high_water_mark_bytes"`
	IdlePollTimeout time.Duration `json:"idle_poll_timeout"`

	AdminAddr   string `json:"admin_addr,omitempty"`
	TLSCertFile string `json:"tls_cert_file,omitempty"`
	TLSKeyFile  string `json:"tls_key_file,omitempty"`
}

// Load reads and validates a ServerConfig from path.
func Load(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg ServerConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *ServerConfig) validate() error {
	if cfg.ConfigVersion == "" {
		return fmt.Errorf("config: config_version is required")
	}
	v, err := semver.NewVersion(cfg.ConfigVersion)
	if err != nil {
		return fmt.Errorf("config: config_version %q is not valid semver: %w", cfg.ConfigVersion, err)
	}
	if !supportedSchema.Check(v) {
		return fmt.Errorf("config: config_version %q does not satisfy %s", cfg.ConfigVersion, supportedSchema.String())
	}
	if cfg.ListenAddr == "" {
		return fmt.Errorf("config: listen_addr is required")
	}
	if cfg.IOThreads < 0 {
		return fmt.Errorf("config: io_threads must be non-negative, got %d", cfg.IOThreads)
	}
	if cfg.HighWaterMark < 0 {
		return fmt.Errorf("config: high_water_mark_bytes must be non-negative, got %d", cfg.HighWaterMark)
	}
	return nil
}
