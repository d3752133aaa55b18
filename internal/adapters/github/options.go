package github

import (
	"net/http"
	"time"

	"github.com/okian/picup/pkg/logger"
)

type clientOptions struct {
	baseURL string
	timeout time.Duration
	base    http.RoundTripper
	logger  logger.Logger
}

// Option configures a Client.
type Option func(*clientOptions)

// WithBaseURL points the client at another API root, e.g. GitHub Enterprise.
func WithBaseURL(u string) Option {
	return func(o *clientOptions) {
		if u != "" {
			o.baseURL = u
		}
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithTransport sets the transport beneath the token authentication.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) {
		if rt != nil {
			o.base = rt
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *clientOptions) {
		if l != nil {
			o.logger = l
		}
	}
}
