// Package transport is the HTTP client for the GVFS object protocol: single
// loose object downloads and cache server discovery.
//
// Every round-trip goes through a circuit breaker. Responses are mapped to
// platform errors so callers can tell a definitive 404 (NOT_FOUND) from a
// transient failure (NETWORK_ERROR, SERVICE_UNAVAILABLE, RATE_LIMIT_EXCEEDED,
// TIMEOUT). The client does not retry; retries belong to the caller.
package transport

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/2thetop/scalar/errors"
)

const (
	objectsPath = "/gvfs/objects/"
	configPath  = "/gvfs/config"

	defaultUserAgent = "scalar-maintenance"
	defaultTimeout   = 30 * time.Second
)

// Client downloads objects from the cache server, or the origin when no
// cache server is configured.
type Client struct {
	httpClient     *http.Client
	breaker        *gobreaker.CircuitBreaker[*http.Response]
	originURL      string
	cacheServerURL string
	authToken      string
	userAgent      string
	logger         *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithCacheServer sets the cache server objects are downloaded from.
func WithCacheServer(url string) Option {
	return func(c *Client) {
		c.cacheServerURL = url
	}
}

// WithAuthToken sets a bearer token sent with every request.
func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.authToken = token
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithBreakerSettings replaces the default circuit breaker settings.
func WithBreakerSettings(st gobreaker.Settings) Option {
	return func(c *Client) {
		c.breaker = gobreaker.NewCircuitBreaker[*http.Response](st)
	}
}

// New creates a Client for the enlistment whose origin is originURL.
func New(originURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		originURL:  strings.TrimRight(originURL, "/"),
		userAgent:  defaultUserAgent,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cacheServerURL = strings.TrimRight(c.cacheServerURL, "/")

	if c.breaker == nil {
		c.breaker = gobreaker.NewCircuitBreaker[*http.Response](DefaultBreakerSettings("gvfs-objects"))
	}
	return c
}

// DefaultBreakerSettings opens the breaker after more than five consecutive
// transport failures and tries again after 30 seconds. Caller cancellation
// does not count against the remote.
func DefaultBreakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsExcluded: func(err error) bool {
			return stderrors.Is(err, context.Canceled)
		},
	}
}

// ObjectsURL returns the base URL objects are requested from.
func (c *Client) ObjectsURL() string {
	if c.cacheServerURL != "" {
		return c.cacheServerURL
	}
	return c.originURL
}

// DownloadLooseObject requests the compressed loose object id. The caller
// must close the returned body.
//
// Returns NOT_FOUND when the server answers 404.
func (c *Client) DownloadLooseObject(ctx context.Context, id string) (io.ReadCloser, error) {
	url := c.ObjectsURL() + objectsPath + id

	resp, err := c.do(ctx, http.MethodGet, url, "application/x-git-loose-object")
	if err != nil {
		return nil, errors.WithContext(err, "object_id", id)
	}
	return resp.Body, nil
}

// do performs one request through the breaker and maps failures. On success
// the response status is 2xx.
func (c *Client) do(ctx context.Context, method, url, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidInput, "failed to build request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		r, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
			return r, fmt.Errorf("upstream returned %d", r.StatusCode)
		}
		return r, nil
	})

	c.logger.Debug("gvfs request",
		"method", method,
		"url", url,
		"status", statusOf(resp),
		"duration", time.Since(start),
		"error", err)

	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return nil, mapError(ctx, resp, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, statusError(resp.StatusCode, url)
	}

	return resp, nil
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}
