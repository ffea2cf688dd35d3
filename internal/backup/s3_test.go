package backup

import (
	"strings"
	"testing"
)

func TestParseS3BucketURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		wantErr   bool
		wantBkt   string
		wantPre   string
		errSubstr string
	}{
		{name: "bucket only", raw: "s3://my-bucket", wantBkt: "my-bucket"},
		{name: "bucket with prefix", raw: "s3://my-bucket/sigex/snapshots/", wantBkt: "my-bucket", wantPre: "sigex/snapshots"},
		{name: "invalid scheme", raw: "https://my-bucket/sigex", wantErr: true, errSubstr: "s3:// scheme"},
		{name: "missing bucket", raw: "s3:///sigex", wantErr: true, errSubstr: "missing bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gotBkt, gotPre, err := parseS3BucketURL(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errSubstr) {
					t.Fatalf("err = %q, want substring %q", err.Error(), tt.errSubstr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseS3BucketURL error: %v", err)
			}
			if gotBkt != tt.wantBkt || gotPre != tt.wantPre {
				t.Fatalf("got %q/%q, want %q/%q", gotBkt, gotPre, tt.wantBkt, tt.wantPre)
			}
		})
	}
}

func TestNewS3Uploader_MissingCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewS3Uploader(S3Config{BucketURL: "s3://my-bucket/sigex", Endpoint: "s3.amazonaws.com", UseSSL: true})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestNewS3Uploader_ObjectKey(t *testing.T) {
	t.Parallel()

	u, err := NewS3Uploader(S3Config{
		BucketURL: "s3://my-bucket/nightly",
		Endpoint:  "localhost:9000",
		AccessKey: "ak",
		SecretKey: "sk",
	})
	if err != nil {
		t.Fatalf("NewS3Uploader: %v", err)
	}
	if got := u.objectKey("/var/backups/sigex-20260102-030405.duckdb"); got != "nightly/sigex-20260102-030405.duckdb" {
		t.Errorf("objectKey = %q", got)
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		in   string
		ssl  bool
		want string
	}{
		"empty":         {"", true, ""},
		"scheme kept":   {"http://minio:9000", true, "http://minio:9000"},
		"ssl default":   {"s3.example.com", true, "https://s3.example.com"},
		"plain default": {"minio:9000", false, "http://minio:9000"},
	}
	for name, c := range cases {
		if got := normalizeEndpoint(c.in, c.ssl); got != c.want {
			t.Errorf("%s: normalizeEndpoint(%q) = %q, want %q", name, c.in, got, c.want)
		}
	}
}
