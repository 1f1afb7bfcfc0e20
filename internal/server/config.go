package server

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/wesleygoyette/facetime-v4/internal/protocol"
)

// Config is the server configuration, read from WESFU_* environment
// variables and overridable by flags in the binary.
type Config struct {
	TCPAddr         string        `envconfig:"TCP_ADDR"`
	UDPAddr         string        `envconfig:"UDP_ADDR"`
	APIAddr         string        `envconfig:"API_ADDR"` // empty disables the ops API
	MetricsInterval time.Duration `envconfig:"METRICS_INTERVAL" default:"30s"`
}

// LoadConfig reads WESFU_* environment variables and fills in the
// protocol's default ports for unset addresses.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("wesfu", &cfg); err != nil {
		return Config{}, fmt.Errorf("reading environment: %w", err)
	}
	if cfg.TCPAddr == "" {
		cfg.TCPAddr = fmt.Sprintf(":%d", protocol.TCPPort)
	}
	if cfg.UDPAddr == "" {
		cfg.UDPAddr = fmt.Sprintf(":%d", protocol.UDPPort)
	}
	if cfg.MetricsInterval <= 0 {
		cfg.MetricsInterval = 30 * time.Second
	}
	return cfg, nil
}
