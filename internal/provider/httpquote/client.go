package httpquote

import (
	"net/http"
	"net/url"
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=httpquote_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches single-symbol quotes from a JSON quote API.
type Client struct {
	// name identifies the upstream in logs and errors.
	name string
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient is the HTTP client.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// query contains additional query parameters to be sent with each request.
	query url.Values
}

// Option is a configuration option for the quote API client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithQuery sets additional query parameters to be sent with each request,
// e.g. an api_key for upstreams that do not take bearer tokens.
func WithQuery(query url.Values) Option {
	return func(c *Client) {
		for key, values := range query {
			for _, value := range values {
				c.query.Add(key, value)
			}
		}
	}
}

// WithName sets the upstream name used in error messages.
func WithName(name string) Option {
	return func(c *Client) {
		c.name = name
	}
}

// New creates a quote API client. A non-empty key is sent as a bearer token.
func New(key string, options ...Option) *Client {
	var client = &Client{
		name:       "quotes",
		httpClient: http.DefaultClient,
		header:     http.Header{},
		query:      url.Values{},
	}
	if key != "" {
		client.header.Set("Authorization", "Bearer "+key)
	}
	for _, option := range options {
		option(client)
	}
	return client
}

// Name returns the upstream name.
func (c *Client) Name() string { return c.name }
