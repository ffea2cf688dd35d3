package backup

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

const snapshotContentType = "application/vnd.duckdb"

// S3Config holds the parameters of an S3 uploader.
type S3Config struct {
	// BucketURL has the form s3://bucket[/prefix].
	BucketURL    string
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	SessionToken string
	UseSSL       bool
}

// S3Uploader ships snapshots with the AWS SDK multipart uploader.
type S3Uploader struct {
	bucket    string
	keyPrefix string
	uploader  *s3manager.Uploader
}

// NewS3Uploader builds an uploader with static credentials. A custom
// endpoint switches to path-style addressing for S3-compatible stores.
func NewS3Uploader(cfg S3Config) (*S3Uploader, error) {
	bucket, prefix, err := parseS3BucketURL(cfg.BucketURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, fmt.Errorf("s3: access key and secret key are required")
	}
	if strings.TrimSpace(cfg.Region) == "" {
		cfg.Region = "us-east-1"
	}

	awsCfg := &aws.Config{
		Region:      aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
	}
	if endpoint := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL); endpoint != "" {
		awsCfg.Endpoint = aws.String(endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("s3: create session: %w", err)
	}
	return &S3Uploader{
		bucket:    bucket,
		keyPrefix: prefix,
		uploader:  s3manager.NewUploader(sess),
	}, nil
}

// objectKey maps a local file onto its key under the bucket prefix.
func (u *S3Uploader) objectKey(localPath string) string {
	key := path.Base(localPath)
	if u.keyPrefix != "" {
		key = path.Join(u.keyPrefix, key)
	}
	return key
}

// UploadFile uploads localPath under the configured prefix.
func (u *S3Uploader) UploadFile(ctx context.Context, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = u.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(u.objectKey(localPath)),
		Body:        f,
		ContentType: aws.String(snapshotContentType),
	})
	if err != nil {
		return fmt.Errorf("s3 upload s3://%s/%s: %w", u.bucket, u.objectKey(localPath), err)
	}
	return nil
}

func normalizeEndpoint(endpoint string, useSSL bool) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ""
	}
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

func parseS3BucketURL(raw string) (bucket, prefix string, err error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("s3: parse bucket-url: %w", err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("s3: bucket-url must use s3:// scheme")
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", "", fmt.Errorf("s3: bucket-url missing bucket name")
	}
	return u.Host, strings.Trim(strings.TrimSpace(u.Path), "/"), nil
}
