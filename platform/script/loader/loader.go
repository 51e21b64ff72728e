// Package loader fetches classpath archives from local disk, HTTP(S) servers and S3
// compatible object stores.
package loader

import (
	"context"
	"io"
	"net/url"
)

// Loader opens the bytes behind a classpath entry.
type Loader interface {
	// GetReader opens the content. The caller closes the returned reader.
	GetReader(ctx context.Context) (io.ReadCloser, error)

	// GetSourceURL identifies the content; it is also the cache key.
	GetSourceURL() *url.URL
}
