// Package config loads server configuration from the environment with
// sensible defaults, following the CAMPUSKV_ prefix convention.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the runtime configuration for the CampusKV server.
type Config struct {
	ListenAddr     string
	DataDir        string
	MaxTableSize   int64
	WALMaxFileSize int64
	WALMaxFiles    int
	WALRotation    time.Duration
	JaegerEndpoint string
	TracingEnabled bool
	AuthEnabled    bool
	LogFile        string
	LogMaxSizeMB   int
	LogMaxBackups  int
}

// Load reads configuration from environment variables, applying defaults
// for anything unset.
func Load() *Config {
	v := viper.New()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("data_dir", "data")
	v.SetDefault("max_table_size", int64(64*1024*1024)) // 64MB
	v.SetDefault("wal_max_file_size", int64(10*1024*1024))
	v.SetDefault("wal_max_files", 5)
	v.SetDefault("wal_rotation", time.Hour)
	v.SetDefault("jaeger_endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("tracing_enabled", false)
	v.SetDefault("auth_enabled", false)
	v.SetDefault("log_file", "") // empty means stderr
	v.SetDefault("log_max_size_mb", 50)
	v.SetDefault("log_max_backups", 3)

	v.SetEnvPrefix("CAMPUSKV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Config{
		ListenAddr:     v.GetString("listen_addr"),
		DataDir:        v.GetString("data_dir"),
		MaxTableSize:   v.GetInt64("max_table_size"),
		WALMaxFileSize: v.GetInt64("wal_max_file_size"),
		WALMaxFiles:    v.GetInt("wal_max_files"),
		WALRotation:    v.GetDuration("wal_rotation"),
		JaegerEndpoint: v.GetString("jaeger_endpoint"),
		TracingEnabled: v.GetBool("tracing_enabled"),
		AuthEnabled:    v.GetBool("auth_enabled"),
		LogFile:        v.GetString("log_file"),
		LogMaxSizeMB:   v.GetInt("log_max_size_mb"),
		LogMaxBackups:  v.GetInt("log_max_backups"),
	}
}
