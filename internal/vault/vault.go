// Package vault stores prompt and response bodies in S3-compatible object
// storage. AIR records and traces carry only vault references and checksums,
// never raw content.
package vault

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Config holds S3-compatible storage configuration.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Client wraps an S3-compatible object store.
type Client struct {
	mc     *minio.Client
	bucket string
	logger *zap.Logger
}

// Ref is returned after storing content.
type Ref struct {
	URI      string // vault://bucket/key
	Checksum string // sha256:hex
	Size     int64
}

// New creates a vault client and ensures the bucket exists.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("vault: connect: %w", err)
	}

	exists, err := mc.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("vault: check bucket: %w", err)
	}
	if !exists {
		if err := mc.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("vault: create bucket: %w", err)
		}
	}

	logger.Info("vault client initialized",
		zap.String("endpoint", cfg.Endpoint),
		zap.String("bucket", cfg.Bucket),
		zap.Bool("use_ssl", cfg.UseSSL),
	)

	return &Client{mc: mc, bucket: cfg.Bucket, logger: logger}, nil
}

// Store writes data to the vault and returns a reference with checksum.
func (c *Client) Store(ctx context.Context, key string, data []byte) (Ref, error) {
	checksum := Checksum(data)

	info, err := c.mc.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return Ref{}, fmt.Errorf("vault: store %s: %w", key, err)
	}

	return Ref{
		URI:      fmt.Sprintf("vault://%s/%s", c.bucket, key),
		Checksum: checksum,
		Size:     info.Size,
	}, nil
}

// Fetch retrieves content from the vault by key.
func (c *Client) Fetch(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.mc.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("vault: fetch %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("vault: read %s: %w", key, err)
	}
	return data, nil
}

// Checksum computes the sha256:<hex> digest used throughout the gateway.
func Checksum(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("sha256:%x", h)
}

// VerifyChecksum re-computes the digest of data and compares against expected.
func VerifyChecksum(data []byte, expected string) bool {
	return Checksum(data) == expected
}

// KeyFromURI converts "vault://bucket/run_id/file.json" to "run_id/file.json".
// Returns an empty string for malformed URIs.
func KeyFromURI(uri string) string {
	if uri == "" {
		return ""
	}
	parts := strings.SplitN(uri, "//", 2)
	if len(parts) != 2 {
		return ""
	}
	idx := strings.Index(parts[1], "/")
	if idx < 0 {
		return ""
	}
	return parts[1][idx+1:]
}
