// Package objectstore talks to an S3-compatible bucket (Cloudflare R2, MinIO
// or S3 itself).
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"vendfleet-backend/internal/config"
)

// Client wraps an S3 client bound to one bucket.
type Client struct {
	s3     *s3.Client
	bucket string
	prefix string
}

// New builds a client from the object_store config section.
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	oc := cfg.ObjectStore
	if oc.Bucket == "" {
		return nil, fmt.Errorf("object store bucket not configured")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			oc.AccessKey,
			oc.SecretKey,
			"",
		)),
		awsconfig.WithRegion(oc.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to configure object store client: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if oc.Endpoint != "" {
			o.BaseEndpoint = aws.String(oc.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Client{s3: client, bucket: oc.Bucket, prefix: strings.Trim(oc.ArchivePrefix, "/")}, nil
}

// Put uploads data under key.
func (c *Client) Put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// Get downloads the object at key.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// ArchiveOrderSheet stores a rendered order sheet and returns its key.
func (c *Client) ArchiveOrderSheet(ctx context.Context, orgID, requestNumber string, pdf []byte) (string, error) {
	key := OrderSheetKey(c.prefix, orgID, requestNumber)
	if err := c.Put(ctx, key, "application/pdf", pdf); err != nil {
		return "", err
	}
	return key, nil
}

// OrderSheetKey is the bucket key of an archived order sheet.
func OrderSheetKey(prefix, orgID, requestNumber string) string {
	key := orgID + "/" + requestNumber + ".pdf"
	if prefix != "" {
		key = prefix + "/" + key
	}
	return key
}

// FetchJWTSecret reads the signing secret kept in the bucket for disaster
// recovery, used when JWT_SECRET is not set.
func FetchJWTSecret(ctx context.Context, cfg *config.Config) (string, error) {
	c, err := New(ctx, cfg)
	if err != nil {
		return "", err
	}
	raw, err := c.Get(ctx, cfg.ObjectStore.JWTSecretKey)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}
