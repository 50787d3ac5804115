package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

const maxResponseBodySize = 1 << 20 // 1MB

const (
	defaultRequestTimeout = 10 * time.Second
	defaultUserAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36"
)

// connection pooling limits; a pass fetches one page at a time so these stay small
const (
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 2
	defaultIdleConnTimeout     = 60 * time.Second
)

// Response holds the result of a page fetch made by [Client].
type Response struct {
	// Body contains the response body, limited to 1MB.
	Body []byte

	// StatusCode is the HTTP status code. Zero if no response was received.
	StatusCode int

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Error contains any transport error that occurred.
	Error error
}

// ClientOptions configures a [Client].
type ClientOptions struct {
	// UserAgent is sent with every request. Retailers tend to reject the Go default.
	UserAgent string

	// RequestTimeout bounds a single request, including reading the body.
	RequestTimeout time.Duration

	// RespectRobotsTxt makes the client honour robots.txt.
	RespectRobotsTxt bool
}

// Client fetches retailer pages using a colly collector.
//
// Every [Client.Fetch] runs on a clone of a base collector so callbacks never
// leak between concurrent fetches; clones share the HTTP backend and its
// connection pool.
type Client struct {
	base      *colly.Collector
	transport *http.Transport
}

// NewClient creates a page fetching [Client].
func NewClient(opts ClientOptions) *Client {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}

	collector := colly.NewCollector(
		colly.UserAgent(opts.UserAgent),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(maxResponseBodySize),
		colly.ParseHTTPErrorResponse(),
	)
	collector.IgnoreRobotsTxt = !opts.RespectRobotsTxt
	collector.SetRequestTimeout(opts.RequestTimeout)
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   opts.RequestTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
		TLSHandshakeTimeout: opts.RequestTimeout,
	}
	collector.WithTransport(transport)

	return &Client{base: collector, transport: transport}
}

// WithTransport replaces the HTTP transport. Used by tests to plug in mocks.
func (c *Client) WithTransport(rt http.RoundTripper) {
	c.base.WithTransport(rt)
}

// Close releases idle connections held by the default transport.
// Close is safe to call on a nil Client.
func (c *Client) Close() {
	if c == nil || c.transport == nil {
		return
	}
	c.transport.CloseIdleConnections()
}

// Fetch performs a GET request and returns a structured [Response].
//
// Fetch always returns a Response; errors are captured in the Error field
// rather than returned separately. Non-2xx responses are not errors here: the
// caller decides what a status code means.
func (c *Client) Fetch(ctx context.Context, rawURL string) Response {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Response{Error: err}
	}

	var resp Response
	collector := c.base.Clone()
	collector.OnResponse(func(r *colly.Response) {
		resp.StatusCode = r.StatusCode
		resp.Body = r.Body
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			resp.StatusCode = r.StatusCode
		}
		resp.Error = err
	})

	if err := collector.Visit(rawURL); err != nil && resp.Error == nil {
		resp.Error = fmt.Errorf("request failed: %w", err)
	}
	resp.Latency = time.Since(start)
	return resp
}
