package loader

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Sources carries the per-scheme settings InferLoader needs.
type Sources struct {
	HTTP *HTTPOptions
	S3   *S3Options
}

// IsRemote reports whether entry names a remote source rather than a local path.
func IsRemote(entry string) bool {
	u, err := url.Parse(strings.TrimSpace(entry))
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https", "s3":
		return true
	default:
		return false
	}
}

// InferLoader picks a loader from the entry's URL scheme:
//   - http, https: FromHTTP with src.HTTP
//   - s3: FromS3 with src.S3
//   - file or a bare path: FromDisk, relative paths resolved against the working directory
func InferLoader(entry string, src Sources) (Loader, error) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return nil, ErrInputEmpty
	}

	parsed, err := url.Parse(entry)
	if err == nil && len(parsed.Scheme) > 1 {
		switch parsed.Scheme {
		case "http", "https":
			opts := src.HTTP
			if opts != nil {
				opts = opts.Clone()
			}
			return NewFromHTTPWithOptions(entry, opts)
		case "s3":
			return NewFromS3(entry, src.S3)
		case "file":
			return fromLocalPath(parsed.Path)
		default:
			return nil, fmt.Errorf("%w: %s", ErrSchemeUnsupported, parsed.Scheme)
		}
	}
	return fromLocalPath(entry)
}

func fromLocalPath(path string) (*FromDisk, error) {
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve relative path %q: %w", path, err)
		}
		path = abs
	}
	return NewFromDisk(path)
}
