package config

import "time"

// Config holds runtime settings for the ClientKeeper client.
//
// Fields:
//   - ServerEndpointAddr: host:port of the backup server gRPC endpoint.
//   - OnlineCheckInterval: how often the client checks server reachability.
//   - DatabasePath: SQLite file holding clients, reminders and sync flags.
//   - LogFile, LogLevel: rotating log file; stdout belongs to the prompt.
//   - SyncDebounce: quiet period after the last local change before a push.
//   - SnapshotRetention: how many cloud snapshots are kept per owner.
//   - TelemetryEndpoint: OTLP gRPC collector; empty disables export.
type Config struct {
	ServerEndpointAddr  string
	OnlineCheckInterval time.Duration
	DatabasePath        string
	LogFile             string
	LogLevel            string
	SyncDebounce        time.Duration
	SnapshotRetention   int
	TelemetryEndpoint   string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.OnlineCheckInterval = 3 * time.Second
	c.DatabasePath = "clientkeeper.db"
	c.LogFile = "clientkeeper.log"
	c.LogLevel = "info"
	c.SyncDebounce = 3 * time.Second
	c.SnapshotRetention = 3
	c.TelemetryEndpoint = ""
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// a config file (if present) and command-line flags (if present). Later
// sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg)
	parseFlags(cfg)
	return cfg
}
