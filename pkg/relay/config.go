// Package relay implements the Cepa per-connection relay engine: reading
// an inbound onion packet, peeling one layer, and either delivering it
// locally or forwarding the remainder to the next hop.
package relay

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all node configuration.
type Config struct {
	Node      NodeConfig      `yaml:"node"`
	Directory DirectoryConfig `yaml:"directory"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// NodeConfig holds the relay engine's own listening and resource-bound
// settings.
type NodeConfig struct {
	// RouterPort is the TCP port this node listens on for onion packets.
	RouterPort int `yaml:"router_port"`

	// MaxPacketSize bounds how many bytes are read from one inbound
	// connection before the packet is considered malformed.
	MaxPacketSize int64 `yaml:"max_packet_size"`

	// MaxWorkers bounds the number of inbound connections processed
	// concurrently.
	MaxWorkers int `yaml:"max_workers"`

	// ConnReadTimeout is the read deadline applied to each inbound
	// connection.
	ConnReadTimeout time.Duration `yaml:"conn_read_timeout"`

	// ForwardDialTimeout bounds how long a forward-to-next-hop dial may
	// take before it is considered a forward failure.
	ForwardDialTimeout time.Duration `yaml:"forward_dial_timeout"`
}

// DirectoryConfig holds the directory client's polling settings.
type DirectoryConfig struct {
	// URL is the base URL of the directory service.
	URL string `yaml:"url"`

	// AutoRefreshRate is how often the directory client pulls a fresh
	// snapshot.
	AutoRefreshRate time.Duration `yaml:"auto_refresh_rate"`

	// PathLength is K, the number of intermediate hops chosen per
	// originated message.
	PathLength int `yaml:"path_length"`
}

// MetricsConfig holds metrics/health HTTP settings. This endpoint is
// deliberately separate from the onion router's own TCP port and from
// the directory service's HTTP port.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	Path       string `yaml:"path"`
	HealthPath string `yaml:"health_path"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			RouterPort:         55505,
			MaxPacketSize:      64 * 1024,
			MaxWorkers:         256,
			ConnReadTimeout:    30 * time.Second,
			ForwardDialTimeout: 10 * time.Second,
		},
		Directory: DirectoryConfig{
			URL:             "http://127.0.0.1:8888",
			AutoRefreshRate: 5 * time.Second,
			PathLength:      3,
		},
		Metrics: MetricsConfig{
			Enabled:    true,
			Addr:       ":9090",
			Path:       "/metrics",
			HealthPath: "/health",
		},
	}
}

// LoadConfig loads configuration from a YAML file, falling back to
// DefaultConfig for any field the file doesn't set.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvironment overrides config values from environment variables.
func (c *Config) ApplyEnvironment() {
	if v := os.Getenv("CEPA_ROUTER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Node.RouterPort = port
		}
	}
	if v := os.Getenv("CEPA_MAX_PACKET_SIZE"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Node.MaxPacketSize = size
		}
	}
	if v := os.Getenv("CEPA_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Node.MaxWorkers = n
		}
	}
	if v := os.Getenv("CEPA_CONN_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Node.ConnReadTimeout = d
		}
	}

	if v := os.Getenv("CEPA_DIRECTORY_URL"); v != "" {
		c.Directory.URL = v
	}
	if v := os.Getenv("CEPA_AUTO_REFRESH_RATE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Directory.AutoRefreshRate = d
		}
	}
	if v := os.Getenv("CEPA_PATH_LENGTH"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			c.Directory.PathLength = k
		}
	}

	if v := os.Getenv("CEPA_METRICS_ENABLED"); v != "" {
		c.Metrics.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("CEPA_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
}
