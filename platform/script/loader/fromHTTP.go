package loader

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"time"

	"github.com/robbyt/go-replkit/platform/script/loader/httpauth"
)

const userAgent = "go-replkit/http-loader"

// HTTPOptions configures FromHTTP. Start from DefaultHTTPOptions.
type HTTPOptions struct {
	// Timeout bounds a whole request. Default 30 seconds.
	Timeout time.Duration

	// TLSConfig overrides the transport's TLS configuration.
	TLSConfig *tls.Config

	// InsecureSkipVerify disables certificate checks. Test servers only.
	InsecureSkipVerify bool

	// Authenticator applies credentials. Default httpauth.NoAuth.
	Authenticator httpauth.Authenticator

	// Headers are set on every request before authentication runs.
	Headers map[string]string
}

// HTTPOption mutates HTTPOptions.
type HTTPOption func(*HTTPOptions) error

// DefaultHTTPOptions returns a 30 second timeout, verified TLS and no authentication.
func DefaultHTTPOptions() *HTTPOptions {
	return &HTTPOptions{
		Timeout:       30 * time.Second,
		Authenticator: httpauth.NewNoAuth(),
		Headers:       make(map[string]string),
	}
}

// Clone returns a deep enough copy for independent modification.
func (o *HTTPOptions) Clone() *HTTPOptions {
	c := *o
	c.Headers = maps.Clone(o.Headers)
	return &c
}

// Apply runs opts against o in order.
func (o *HTTPOptions) Apply(opts ...HTTPOption) error {
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return err
		}
	}
	return nil
}

func WithTimeout(d time.Duration) HTTPOption {
	return func(o *HTTPOptions) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		o.Timeout = d
		return nil
	}
}

func WithBasicAuth(username, password string) HTTPOption {
	return func(o *HTTPOptions) error {
		o.Authenticator = httpauth.NewBasicAuth(username, password)
		return nil
	}
}

func WithBearerAuth(token string) HTTPOption {
	return func(o *HTTPOptions) error {
		if token == "" {
			return fmt.Errorf("bearer token cannot be empty")
		}
		o.Authenticator = httpauth.NewBearerAuth(token)
		return nil
	}
}

func WithHeaders(headers map[string]string) HTTPOption {
	return func(o *HTTPOptions) error {
		if o.Headers == nil {
			o.Headers = make(map[string]string, len(headers))
		}
		maps.Copy(o.Headers, headers)
		return nil
	}
}

func WithInsecureSkipVerify() HTTPOption {
	return func(o *HTTPOptions) error {
		o.InsecureSkipVerify = true
		return nil
	}
}

// FromHTTP downloads an HTTP or HTTPS URL.
type FromHTTP struct {
	url       string
	sourceURL *url.URL
	options   *HTTPOptions
	client    *http.Client
}

// NewFromHTTP creates an HTTP loader with DefaultHTTPOptions.
func NewFromHTTP(rawURL string) (*FromHTTP, error) {
	return NewFromHTTPWithOptions(rawURL, DefaultHTTPOptions())
}

// NewFromHTTPWithOptions creates an HTTP loader with custom options. A nil options value
// means DefaultHTTPOptions.
func NewFromHTTPWithOptions(rawURL string, options *HTTPOptions) (*FromHTTP, error) {
	sourceURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse URL: %w", err)
	}
	if sourceURL.Scheme != "http" && sourceURL.Scheme != "https" {
		return nil, fmt.Errorf("%w: %s", ErrSchemeUnsupported, rawURL)
	}

	if options == nil {
		options = DefaultHTTPOptions()
	}
	if options.Authenticator == nil {
		options.Authenticator = httpauth.NewNoAuth()
	}

	client := &http.Client{Timeout: options.Timeout}
	if options.InsecureSkipVerify || options.TLSConfig != nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if options.TLSConfig != nil {
			transport.TLSClientConfig = options.TLSConfig
		} else {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		client.Transport = transport
	}

	return &FromHTTP{
		url:       rawURL,
		sourceURL: sourceURL,
		options:   options,
		client:    client,
	}, nil
}

func (l *FromHTTP) GetReader(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range l.options.Headers {
		req.Header.Set(key, value)
	}
	if err := l.options.Authenticator.AuthenticateWithContext(ctx, req); err != nil {
		return nil, fmt.Errorf("%s authentication failed: %w", l.options.Authenticator.Name(), err)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: HTTP %d - %s", ErrSourceNotAvailable, resp.StatusCode, resp.Status)
	}
	return resp.Body, nil
}

func (l *FromHTTP) GetSourceURL() *url.URL {
	return l.sourceURL
}

func (l *FromHTTP) String() string {
	return fmt.Sprintf("loader.FromHTTP{URL: %s, Auth: %s}", l.url, l.options.Authenticator.Name())
}
