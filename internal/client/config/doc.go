// Package config loads runtime configuration for the ClientKeeper client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional config file (see parseFile) selected via flags: -c or -config.
//     Files ending in .yaml/.yml are read as YAML, anything else as JSON.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   address:port of the backup server gRPC endpoint
//	-i int      online status check interval (seconds)
//	-d string   path of the local SQLite database
//	-l string   log file path
//
// # File schema
//
// Intervals use timex.Duration, so values can be either strings like "3s" or
// integer nanoseconds. Keys left out keep their earlier value:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "online_check_interval": "3s",
//	  "database_path": "clientkeeper.db",
//	  "log_file": "clientkeeper.log",
//	  "log_level": "info",
//	  "sync_debounce": "3s",
//	  "snapshot_retention": 3,
//	  "telemetry_endpoint": ""
//	}
//
// Note: This package does not read environment variables directly; use the
// config file or flags to configure values.
package config
