// Package httpauth holds the authentication strategies applied to classpath downloads.
package httpauth

import (
	"context"
	"maps"
	"net/http"
)

// Authenticator applies credentials to an outgoing request.
type Authenticator interface {
	// Authenticate modifies req in place.
	Authenticate(req *http.Request) error

	// AuthenticateWithContext is Authenticate that first honors ctx cancellation.
	AuthenticateWithContext(ctx context.Context, req *http.Request) error

	// Name returns a short label for logs.
	Name() string
}

func applyAuthWithContext(ctx context.Context, req *http.Request, authFn func(*http.Request) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return authFn(req)
}

// NoAuth sends requests unchanged.
type NoAuth struct{}

func NewNoAuth() *NoAuth { return &NoAuth{} }

func (n *NoAuth) Authenticate(*http.Request) error { return nil }

func (n *NoAuth) AuthenticateWithContext(ctx context.Context, req *http.Request) error {
	return applyAuthWithContext(ctx, req, n.Authenticate)
}

func (n *NoAuth) Name() string { return "None" }

// BasicAuth sets RFC 7617 credentials. An empty username leaves the request unchanged.
type BasicAuth struct {
	Username string
	Password string
}

func NewBasicAuth(username, password string) *BasicAuth {
	return &BasicAuth{Username: username, Password: password}
}

func (b *BasicAuth) Authenticate(req *http.Request) error {
	if b.Username != "" {
		req.SetBasicAuth(b.Username, b.Password)
	}
	return nil
}

func (b *BasicAuth) AuthenticateWithContext(ctx context.Context, req *http.Request) error {
	return applyAuthWithContext(ctx, req, b.Authenticate)
}

func (b *BasicAuth) Name() string { return "Basic" }

// HeaderAuth sets arbitrary headers, e.g. API keys or bearer tokens.
type HeaderAuth struct {
	Headers map[string]string
}

// NewHeaderAuth copies headers so later changes by the caller have no effect.
func NewHeaderAuth(headers map[string]string) *HeaderAuth {
	return &HeaderAuth{Headers: maps.Clone(headers)}
}

// NewBearerAuth sets "Authorization: Bearer <token>".
func NewBearerAuth(token string) *HeaderAuth {
	return &HeaderAuth{Headers: map[string]string{"Authorization": "Bearer " + token}}
}

func (h *HeaderAuth) Authenticate(req *http.Request) error {
	for key, value := range h.Headers {
		req.Header.Set(key, value)
	}
	return nil
}

func (h *HeaderAuth) AuthenticateWithContext(ctx context.Context, req *http.Request) error {
	return applyAuthWithContext(ctx, req, h.Authenticate)
}

func (h *HeaderAuth) Name() string { return "Header" }
