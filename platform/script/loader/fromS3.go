package loader

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultS3Region = "us-east-1"

// S3Options locates an S3 compatible object store.
type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// Configured reports whether enough is set to build a client.
func (o *S3Options) Configured() bool {
	return o != nil && strings.TrimSpace(o.Endpoint) != "" &&
		strings.TrimSpace(o.AccessKey) != "" && strings.TrimSpace(o.SecretKey) != ""
}

// FromS3 downloads s3://bucket/key objects.
type FromS3 struct {
	bucket    string
	key       string
	sourceURL *url.URL
	client    *minio.Client
}

// NewFromS3 parses an s3://bucket/key URL and builds a client from options.
func NewFromS3(rawURL string, options *S3Options) (*FromS3, error) {
	sourceURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse URL: %w", err)
	}
	if sourceURL.Scheme != "s3" {
		return nil, fmt.Errorf("%w: %s", ErrSchemeUnsupported, rawURL)
	}
	bucket := sourceURL.Host
	key := strings.TrimPrefix(sourceURL.Path, "/")
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("%w: s3 URL needs a bucket and a key: %s", ErrSourceNotAvailable, rawURL)
	}
	if !options.Configured() {
		return nil, ErrS3NotConfigured
	}

	region := strings.TrimSpace(options.Region)
	if region == "" {
		region = defaultS3Region
	}
	client, err := minio.New(strings.TrimSpace(options.Endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(options.AccessKey), strings.TrimSpace(options.SecretKey), ""),
		Secure: options.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	return &FromS3{
		bucket:    bucket,
		key:       key,
		sourceURL: sourceURL,
		client:    client,
	}, nil
}

// GetReader stats the object before returning it, so missing keys fail here rather
// than on the first read.
func (l *FromS3) GetReader(ctx context.Context) (io.ReadCloser, error) {
	obj, err := l.client.GetObject(ctx, l.bucket, l.key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceNotAvailable, err)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return nil, fmt.Errorf("%w: s3://%s/%s: %s", ErrSourceNotAvailable, l.bucket, l.key, resp.Code)
		}
		return nil, fmt.Errorf("%w: %w", ErrSourceNotAvailable, err)
	}
	return obj, nil
}

func (l *FromS3) GetSourceURL() *url.URL {
	return l.sourceURL
}

func (l *FromS3) String() string {
	return fmt.Sprintf("loader.FromS3{Bucket: %s, Key: %s}", l.bucket, l.key)
}
