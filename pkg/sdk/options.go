package sdk

import (
	"maps"
	"time"
)

type requestOptions struct {
	timeout   time.Duration
	blocking  bool
	sslVerify bool
	headers   map[string]string
}

// RequestOption overrides a transport default for one request.
type RequestOption func(*requestOptions)

func (c *Client) defaultOptions() requestOptions {
	return requestOptions{
		timeout:   c.timeout,
		blocking:  true,
		sslVerify: !c.insecure,
	}
}

// WithTimeout bounds the whole request, including reading the response.
func WithTimeout(timeout time.Duration) RequestOption {
	return func(o *requestOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// NonBlocking dispatches the request and returns without waiting for the
// collector. The result is discarded.
func NonBlocking() RequestOption {
	return func(o *requestOptions) {
		o.blocking = false
	}
}

// WithoutSSLVerify skips certificate verification for this request.
func WithoutSSLVerify() RequestOption {
	return func(o *requestOptions) {
		o.sslVerify = false
	}
}

// WithHeaders sets extra headers. They are applied after the protocol
// headers and replace them on conflict.
func WithHeaders(headers map[string]string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = map[string]string{}
		}
		maps.Copy(o.headers, headers)
	}
}
