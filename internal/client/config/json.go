package config

import (
	"github.com/dmitrijs2005/clientkeeper/internal/flagx"
	"github.com/dmitrijs2005/clientkeeper/internal/timex"
)

// FileConfig is a DTO used exclusively for config file decoding. Pointer
// fields tell an absent key apart from a zero value.
type FileConfig struct {
	ServerEndpointAddr  *string         `json:"server_endpoint_addr" yaml:"server_endpoint_addr"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval" yaml:"online_check_interval"`
	DatabasePath        *string         `json:"database_path" yaml:"database_path"`
	LogFile             *string         `json:"log_file" yaml:"log_file"`
	LogLevel            *string         `json:"log_level" yaml:"log_level"`
	SyncDebounce        *timex.Duration `json:"sync_debounce" yaml:"sync_debounce"`
	SnapshotRetention   *int            `json:"snapshot_retention" yaml:"snapshot_retention"`
	TelemetryEndpoint   *string         `json:"telemetry_endpoint" yaml:"telemetry_endpoint"`
}

// parseFile overlays Config with values loaded from a JSON or YAML file
// named by -c/-config. Without the flag it does nothing. Read or decode
// errors panic; configuration problems stop the program at start.
func parseFile(cfg *Config) {
	path := flagx.ConfigFileFlags()
	if path == "" {
		return
	}

	var fc FileConfig
	if err := flagx.DecodeConfigFile(path, &fc); err != nil {
		panic(err)
	}
	fc.apply(cfg)
}

func (fc FileConfig) apply(cfg *Config) {
	if fc.ServerEndpointAddr != nil {
		cfg.ServerEndpointAddr = *fc.ServerEndpointAddr
	}
	if fc.OnlineCheckInterval != nil {
		cfg.OnlineCheckInterval = fc.OnlineCheckInterval.Duration
	}
	if fc.DatabasePath != nil {
		cfg.DatabasePath = *fc.DatabasePath
	}
	if fc.LogFile != nil {
		cfg.LogFile = *fc.LogFile
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}
	if fc.SyncDebounce != nil {
		cfg.SyncDebounce = fc.SyncDebounce.Duration
	}
	if fc.SnapshotRetention != nil {
		cfg.SnapshotRetention = *fc.SnapshotRetention
	}
	if fc.TelemetryEndpoint != nil {
		cfg.TelemetryEndpoint = *fc.TelemetryEndpoint
	}
}
