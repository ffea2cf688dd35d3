package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tinytelemetry/sigex/internal/backup"
	"github.com/tinytelemetry/sigex/internal/duckdb"
	"github.com/tinytelemetry/sigex/internal/engine"
	"github.com/tinytelemetry/sigex/internal/httpserver"
	"github.com/tinytelemetry/sigex/internal/tcpserver"
)

const (
	defaultLogLevel     = "info"
	defaultTCPProfile   = "log4j"
	defaultRetention    = 30 * 24 * time.Hour
	defaultJournalName  = "samples.journal"
	defaultSnapshotDirs = "backups"
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	LogLevel  string `mapstructure:"log-level"`
	LogFile   string `mapstructure:"log-file"`
	LogStderr bool   `mapstructure:"log-stderr"`

	Profiles    string `mapstructure:"profiles"`
	Parallelism int    `mapstructure:"parallelism"`

	DBPath              string        `mapstructure:"db-path"`
	QueryTimeout        time.Duration `mapstructure:"query-timeout"`
	InsertBatchSize     int           `mapstructure:"insert-batch-size"`
	InsertFlushInterval time.Duration `mapstructure:"insert-flush-interval"`
	InsertFlushQueue    int           `mapstructure:"insert-flush-queue-size"`
	JournalEnabled      bool          `mapstructure:"journal-enabled"`
	JournalPath         string        `mapstructure:"journal-path"`
	Retention           time.Duration `mapstructure:"retention"`

	APIEnabled     bool          `mapstructure:"api-enabled"`
	APIAddr        string        `mapstructure:"api-addr"`
	MaxUploadBytes int64         `mapstructure:"max-upload-bytes"`
	TCPEnabled     bool          `mapstructure:"tcp-enabled"`
	TCPAddr        string        `mapstructure:"tcp-addr"`
	TCPProfile     string        `mapstructure:"tcp-profile"`
	TCPMaxConns    int64         `mapstructure:"tcp-max-conns"`
	TCPIdleTimeout time.Duration `mapstructure:"tcp-idle-timeout"`

	Backup backup.Config `mapstructure:"backup"`

	ConfigPath string `mapstructure:"-"` // not from config file
}

// newViper registers every default. Keys use dashes; the environment
// form is SIGEX_ plus the key upper-cased with dashes and dots as
// underscores, e.g. SIGEX_BACKUP_LOCAL_DIR.
func newViper(home string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("SIGEX")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	dataDir := filepath.Join(home, ".local", "share", "sigex")
	v.SetDefault("log-level", defaultLogLevel)
	v.SetDefault("log-file", filepath.Join(home, ".local", "state", "sigex", "sigex.log"))
	v.SetDefault("log-stderr", false)
	v.SetDefault("profiles", "")
	v.SetDefault("parallelism", engine.DefaultParallelism)
	v.SetDefault("db-path", filepath.Join(dataDir, "sigex.duckdb"))
	v.SetDefault("query-timeout", duckdb.DefaultQueryTimeout)
	v.SetDefault("insert-batch-size", duckdb.DefaultBatchSize)
	v.SetDefault("insert-flush-interval", duckdb.DefaultFlushInterval)
	v.SetDefault("insert-flush-queue-size", duckdb.DefaultFlushQueueSize)
	v.SetDefault("journal-enabled", false)
	v.SetDefault("journal-path", filepath.Join(dataDir, defaultJournalName))
	v.SetDefault("retention", defaultRetention)
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-addr", "127.0.0.1:3000")
	v.SetDefault("max-upload-bytes", httpserver.DefaultMaxUploadBytes)
	v.SetDefault("tcp-enabled", false)
	v.SetDefault("tcp-addr", tcpserver.DefaultAddr)
	v.SetDefault("tcp-profile", defaultTCPProfile)
	v.SetDefault("tcp-max-conns", tcpserver.DefaultMaxConns)
	v.SetDefault("tcp-idle-timeout", tcpserver.DefaultIdleTimeout)
	v.SetDefault("backup.enabled", false)
	v.SetDefault("backup.interval", 6*time.Hour)
	v.SetDefault("backup.local-dir", filepath.Join(dataDir, defaultSnapshotDirs))
	v.SetDefault("backup.keep-last", 24)
	v.SetDefault("backup.prefix", "sigex")
	v.SetDefault("backup.bucket-url", "")
	v.SetDefault("backup.s3-endpoint", "")
	v.SetDefault("backup.s3-region", "")
	v.SetDefault("backup.s3-access-key", "")
	v.SetDefault("backup.s3-secret-key", "")
	v.SetDefault("backup.s3-session-token", "")
	v.SetDefault("backup.s3-use-ssl", true)
	return v
}

// loadConfig reads configPath, or ~/.config/sigex/config.yml when empty.
// A missing default file is not an error.
func loadConfig(v *viper.Viper, home, configPath string) (appConfig, error) {
	var cfg appConfig

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "sigex", "config.yml"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || (!errors.As(err, &notFound) && !os.IsNotExist(err)) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if _, err := os.Stat(v.ConfigFileUsed()); err == nil {
		cfg.ConfigPath = v.ConfigFileUsed()
	}
	if cfg.Parallelism <= 0 {
		return cfg, fmt.Errorf("invalid parallelism: %d", cfg.Parallelism)
	}
	if cfg.Retention < 0 {
		return cfg, fmt.Errorf("invalid retention: %s", cfg.Retention)
	}

	for _, p := range []*string{&cfg.DBPath, &cfg.JournalPath, &cfg.LogFile, &cfg.Profiles, &cfg.Backup.LocalDir} {
		*p = expandHome(home, *p)
	}
	return cfg, nil
}

func expandHome(home, path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
