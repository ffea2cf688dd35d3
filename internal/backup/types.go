// Package backup takes periodic snapshots of the sample store and
// optionally ships them to S3.
package backup

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Config controls periodic store snapshots.
type Config struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	LocalDir string        `mapstructure:"local-dir"`
	KeepLast int           `mapstructure:"keep-last"`
	// Prefix names snapshot files <prefix>-<utc stamp>.duckdb.
	Prefix string `mapstructure:"prefix"`

	BucketURL      string `mapstructure:"bucket-url"`
	S3Endpoint     string `mapstructure:"s3-endpoint"`
	S3Region       string `mapstructure:"s3-region"`
	S3AccessKey    string `mapstructure:"s3-access-key"`
	S3SecretKey    string `mapstructure:"s3-secret-key"`
	S3SessionToken string `mapstructure:"s3-session-token"`
	S3UseSSL       bool   `mapstructure:"s3-use-ssl"`

	Logger *zap.Logger `mapstructure:"-"`
}

// Snapshotter is the store side of a snapshot.
type Snapshotter interface {
	DBPath() string
	SnapshotTo(dstPath string) error
}

// Uploader ships one snapshot file.
type Uploader interface {
	UploadFile(ctx context.Context, localPath string) error
}
