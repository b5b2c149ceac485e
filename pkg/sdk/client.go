// Package sdk is the signed HTTP client the agent uses to talk to the
// remote collector.
package sdk

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-agent/pkg/schema"
	"github.com/celerix-dev/celerix-agent/pkg/signature"
)

// Routes on the collector.
const (
	RoutePing        = "ping"
	RouteActivityLog = "site/activity/log"
)

const (
	defaultVersion    = "v1"
	defaultTimeout    = 15 * time.Second
	defaultLogTimeout = 2 * time.Second
	maxResponseBytes  = 4 << 20
)

// Config configures a Client.
type Config struct {
	// Host is the collector base URL, e.g. "https://collector.example.com/".
	Host string
	// Version is the API version segment. Defaults to "v1".
	Version string
	// Credentials provides the API key pair. Required.
	Credentials CredentialSource
	// Insecure permits http and skips TLS verification. Only accepted
	// for local development hosts.
	Insecure bool
	// Timeout bounds a blocking request. Defaults to 15s.
	Timeout time.Duration
	// LogTimeout bounds a single activity log delivery. Defaults to 2s.
	LogTimeout time.Duration
	// Transport overrides the HTTP round tripper, mostly for tests.
	Transport http.RoundTripper
	Logger    *slog.Logger
	// Now overrides the signing clock.
	Now func() time.Time
}

// Response is a successful (HTTP 200) collector answer.
type Response struct {
	StatusCode int
	// Data is the decoded JSON body, or the raw text when it is not JSON.
	Data any
	Raw  []byte
}

// Client signs and sends requests to the collector.
type Client struct {
	host       string
	version    string
	creds      CredentialSource
	insecure   bool
	timeout    time.Duration
	logTimeout time.Duration
	secure     http.RoundTripper
	unverified http.RoundTripper
	logger     *slog.Logger
	now        func() time.Time
	wg         sync.WaitGroup // Tracks detached deliveries
}

// NewClient validates cfg and returns a client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("sdk: credentials are required")
	}
	host, err := resolveHost(cfg.Host, cfg.Insecure)
	if err != nil {
		return nil, err
	}

	c := &Client{
		host:       host,
		version:    strings.Trim(cfg.Version, "/"),
		creds:      cfg.Credentials,
		insecure:   cfg.Insecure,
		timeout:    cfg.Timeout,
		logTimeout: cfg.LogTimeout,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
	if c.version == "" {
		c.version = defaultVersion
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.logTimeout <= 0 {
		c.logTimeout = defaultLogTimeout
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}

	if cfg.Transport != nil {
		c.secure, c.unverified = cfg.Transport, cfg.Transport
	} else {
		base := http.DefaultTransport.(*http.Transport)
		c.secure = base.Clone()
		unverified := base.Clone()
		// Local development collectors use self-signed certificates.
		unverified.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		c.unverified = unverified
	}
	return c, nil
}

// Host returns the normalized collector base URL.
func (c *Client) Host() string {
	return c.host
}

// Ping checks that the collector is reachable and accepts our signature.
func (c *Client) Ping(ctx context.Context) (*Response, error) {
	resp, err := c.Request(ctx, RoutePing, nil, http.MethodGet)
	if err != nil {
		return nil, err
	}
	if s, ok := resp.Data.(string); !ok || s != "pong" {
		return resp, fmt.Errorf("%w: got %s", ErrUnexpectedPong, truncate(string(resp.Raw), 64))
	}
	return resp, nil
}

// SendLog posts an activity record without waiting for the collector.
// Only a missing credential pair or an unencodable record is reported;
// delivery failures are logged and dropped.
func (c *Client) SendLog(ctx context.Context, record schema.LogRecord) error {
	_, err := c.Request(ctx, RouteActivityLog, record, http.MethodPost,
		NonBlocking(),
		WithTimeout(c.logTimeout),
	)
	return err
}

// Wait blocks until every detached delivery has finished.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Request performs a signed call to route. For GET, data is sent as
// query parameters and the signature covers an empty body; for other
// methods it is the JSON body. A non-blocking request returns (nil, nil)
// once dispatched.
func (c *Client) Request(ctx context.Context, route string, data any, method string, opts ...RequestOption) (*Response, error) {
	// One snapshot, so a concurrent Reload cannot pair an old key with a new secret.
	key, secret := c.creds.Credentials()
	if key == "" || secret == "" {
		return nil, ErrMissingCredentials
	}
	o := c.defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	method = strings.ToUpper(method)
	if method == "" {
		method = http.MethodGet
	}

	req, err := c.newRequest(method, route, data, key, secret, o)
	if err != nil {
		return nil, err
	}

	if !o.blocking {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
			defer cancel()
			if _, err := c.do(dctx, req, o); err != nil {
				c.logger.Debug("collector delivery dropped", "route", route, "error", err)
			}
		}()
		return nil, nil
	}

	rctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	return c.do(rctx, req, o)
}

// newRequest builds the signed request. The signature covers exactly the
// bytes sent as the body, so a GET, whose data travels in the query
// string, is signed over an empty body.
func (c *Client) newRequest(method, route string, data any, key, secret string, o requestOptions) (*http.Request, error) {
	target := c.host + "api/" + c.version + "/" + strings.TrimLeft(route, "/")
	var body []byte
	var payload io.Reader
	if method == http.MethodGet {
		query, err := queryValues(data)
		if err != nil {
			return nil, err
		}
		if len(query) > 0 {
			target += "?" + query.Encode()
		}
	} else {
		var err error
		body, err = signature.Canonical(data)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		if len(body) > 0 {
			payload = bytes.NewReader(body)
		}
	}

	req, err := http.NewRequest(method, target, payload)
	if err != nil {
		return nil, err
	}

	sig := signature.Sign(key, secret, method, body, c.now().Unix())

	req.Header.Set(signature.HeaderKey, key)
	req.Header.Set(signature.HeaderAlgorithm, sig.Algorithm)
	req.Header.Set(signature.HeaderSignature, sig.Value)
	req.Header.Set(signature.HeaderTimestamp, strconv.FormatInt(sig.Timestamp, 10))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range o.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, req *http.Request, o requestOptions) (*Response, error) {
	transport := c.secure
	if !o.sslVerify {
		transport = c.unverified
	}
	client := &http.Client{Transport: transport}

	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL.Redacted(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.URL.Redacted(), Err: err}
	}

	data := decodeBody(raw)
	if resp.StatusCode != http.StatusOK {
		return nil, remoteError(resp, data, raw)
	}
	return &Response{StatusCode: resp.StatusCode, Data: data, Raw: raw}, nil
}

// decodeBody parses raw as JSON, keeping numbers exact. Anything that
// is not a single JSON value is returned as text.
func decodeBody(raw []byte) any {
	if !json.Valid(raw) {
		return string(raw)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return string(raw)
	}
	return v
}

func remoteError(resp *http.Response, data any, raw []byte) *RemoteError {
	e := &RemoteError{
		StatusCode: resp.StatusCode,
		Code:       strconv.Itoa(resp.StatusCode),
		Data:       data,
		Body:       raw,
	}

	obj, _ := data.(map[string]any)
	if code, ok := obj["code"]; ok && code != nil && fmt.Sprint(code) != "" {
		e.Code = fmt.Sprint(code)
	}

	switch msg, _ := obj["message"].(string); {
	case msg != "":
		e.Message = msg
	case len(bytes.TrimSpace(raw)) > 0:
		e.Message = string(bytes.TrimSpace(raw))
	case resp.Status != "":
		e.Message = resp.Status
	case http.StatusText(resp.StatusCode) != "":
		e.Message = strconv.Itoa(resp.StatusCode) + " " + http.StatusText(resp.StatusCode)
	default:
		e.Message = genericMessage
	}
	return e
}

// queryValues flattens GET data into query parameters.
func queryValues(data any) (url.Values, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case url.Values:
		return v, nil
	case map[string]string:
		q := url.Values{}
		for k, s := range v {
			q.Set(k, s)
		}
		return q, nil
	}

	raw, err := signature.EncodeBody(data)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("query data must be an object: %w", err)
	}
	q := url.Values{}
	for k, val := range fields {
		switch vv := val.(type) {
		case []any:
			for _, item := range vv {
				q.Add(k, fmt.Sprint(item))
			}
		case nil:
			q.Set(k, "")
		default:
			q.Set(k, fmt.Sprint(vv))
		}
	}
	return q, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
