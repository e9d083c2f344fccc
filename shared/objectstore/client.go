package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds S3-compatible object store configuration
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	PageSize  int
}

// Object is one entry of a listing page
type Object struct {
	Key  string
	Size int64
}

// Page is one page of a bucket listing
type Page struct {
	Objects          []Object
	NextContinuation string
	Truncated        bool
}

// Client wraps minio for the operations the workers need: paginated
// listing, presigned GET, put and remove.
type Client struct {
	client   *minio.Client
	core     minio.Core
	pageSize int
	logger   *slog.Logger
}

// NewClient creates a new object store client
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	pageSize := config.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}

	logger.Info("Object store client initialized",
		slog.String("endpoint", config.Endpoint),
		slog.Bool("ssl", config.UseSSL),
	)

	return &Client{
		client:   client,
		core:     minio.Core{Client: client},
		pageSize: pageSize,
		logger:   logger,
	}, nil
}

// ListPage returns one page of keys in bucket starting at continuation
func (c *Client) ListPage(ctx context.Context, bucket, continuation string) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	result, err := c.core.ListObjectsV2(bucket, "", "", continuation, "", c.pageSize)
	if err != nil {
		return Page{}, fmt.Errorf("failed to list bucket %s: %w", bucket, err)
	}

	page := Page{
		Objects:          make([]Object, 0, len(result.Contents)),
		NextContinuation: result.NextContinuationToken,
		Truncated:        result.IsTruncated,
	}
	for _, obj := range result.Contents {
		page.Objects = append(page.Objects, Object{Key: obj.Key, Size: obj.Size})
	}

	return page, nil
}

// PresignGet returns a time-limited GET URL for key
func (c *Client) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	u, err := c.client.PresignedGetObject(ctx, bucket, key, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s/%s: %w", bucket, key, err)
	}
	return u.String(), nil
}

// Put uploads data under key
func (c *Client) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	info, err := c.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", bucket, key, err)
	}

	c.logger.Debug("Object stored",
		slog.String("bucket", bucket),
		slog.String("key", key),
		slog.Int64("size", info.Size),
	)

	return nil
}

// Remove deletes key; a missing key is not an error
func (c *Client) Remove(ctx context.Context, bucket, key string) error {
	if err := c.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove %s/%s: %w", bucket, key, err)
	}
	return nil
}

// HealthCheck verifies the bucket exists and credentials work
func (c *Client) HealthCheck(ctx context.Context, bucket string) error {
	ok, err := c.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("object store health check failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("object store bucket %s does not exist", bucket)
	}
	return nil
}
