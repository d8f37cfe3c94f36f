// Package s3blob backs the audit segment archiver with an S3-compatible
// object store (AWS S3, MinIO, Cloudflare R2).
package s3blob

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Options configures the connection to the archive bucket.
type Options struct {
	// Endpoint overrides the S3 endpoint for compatible providers. Leave
	// empty for standard AWS S3. A scheme-less endpoint gets https:// (or
	// http:// when UseSSL is false) prepended.
	Endpoint string

	Region string

	// Bucket receives archived audit segments.
	Bucket string

	AccessKey string
	SecretKey string

	UseSSL bool

	// ForcePathStyle selects path-style addressing (bucket in the path
	// rather than the subdomain). Required by many compatible providers.
	ForcePathStyle bool
}

// Client holds the SDK client bound to the archive bucket.
type Client struct {
	api    *s3.Client
	bucket string
}

// New connects to the archive bucket and verifies it is reachable, so a
// misconfigured bucket fails at startup rather than at the first sweep.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3blob: bucket name is required")
	}
	if opts.Region == "" {
		return nil, fmt.Errorf("s3blob: region is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(withScheme(opts.Endpoint, opts.UseSSL))
		}
		o.UsePathStyle = opts.ForcePathStyle
	})

	c := &Client{api: api, bucket: opts.Bucket}
	if _, err := api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(opts.Bucket)}); err != nil {
		return nil, fmt.Errorf("s3blob: bucket %s unreachable: %w", opts.Bucket, err)
	}
	return c, nil
}

// Close is a no-op. The underlying SDK HTTP client needs no teardown; it
// exists so the composition root can treat every dependency uniformly.
func (c *Client) Close() error {
	return nil
}

func withScheme(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
