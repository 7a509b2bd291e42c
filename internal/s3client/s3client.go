// Package s3client implements the object-storage collaborator the s3 driver
// delegates to, on top of the AWS SDK. It also works against S3-compatible
// services (MinIO, Hetzner, Ceph) via a custom endpoint with path-style URLs.
package s3client

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"crosscopy/internal/drivers"
)

// Options configures the S3 client.
type Options struct {
	Region   string
	KeyID    string
	Secret   string
	Endpoint string // optional custom endpoint, e.g. "https://s3.example.com"
}

// Client lists, reads, and writes individual S3 objects.
type Client struct {
	s3 *s3.Client
}

var _ drivers.ObjectStore = (*Client)(nil)

// New builds a client from static credentials. No network I/O happens here;
// credentials are only exercised on the first call.
func New(opts Options) *Client {
	s3Opts := s3.Options{
		Region: opts.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			opts.KeyID, opts.Secret, "",
		),
	}
	if opts.Endpoint != "" {
		s3Opts.BaseEndpoint = aws.String(opts.Endpoint)
		s3Opts.UsePathStyle = true // S3-compatible services require path-style URLs
	}
	return &Client{s3: s3.New(s3Opts)}
}

// List returns the keys of all objects under prefix, across pages.
func (c *Client) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(c.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// Get opens the object at key for reading. The caller owns the closer.
func (c *Client) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

// Put writes body as the object at key, replacing any existing object.
func (c *Client) Put(ctx context.Context, bucket, key string, body io.Reader) error {
	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}
