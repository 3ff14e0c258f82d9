package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const (
	maxBodySize  = 10 << 20
	feedAccept   = "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5"
	defaultAgent = "lazyfeed"
)

type ClientOptions struct {
	Timeout        time.Duration
	ConnectTimeout time.Duration
	UserAgent      string
	Headers        map[string]string
}

// Client performs conditional GETs against feed sources. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	userAgent  string
	headers    map[string]string
}

func NewClient(opts ClientOptions) *Client {
	dialer := &net.Dialer{
		Timeout:   opts.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultAgent
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		userAgent: userAgent,
		headers:   opts.Headers,
	}
}

// Fetch retrieves url. A non-empty cacheToken is sent as If-None-Match and a 304
// reply yields an Unchanged result carrying the same token.
func (c *Client) Fetch(ctx context.Context, url, cacheToken string) (*FetchResult, error) {
	req, err := c.newRequest(ctx, url, feedAccept)
	if err != nil {
		return nil, err
	}
	if cacheToken != "" {
		req.Header.Set("If-None-Match", cacheToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		slog.Debug("Feed not modified", "url", url)
		return &FetchResult{Status: Unchanged, CacheToken: cacheToken}, nil
	}

	body, err := readBody(url, resp)
	if err != nil {
		return nil, err
	}

	return &FetchResult{
		Status:      Fetched,
		Body:        body,
		CacheToken:  resp.Header.Get("ETag"),
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// Get performs a plain GET and returns the body and its content type.
func (c *Client) Get(ctx context.Context, url, accept string) ([]byte, string, error) {
	req, err := c.newRequest(ctx, url, accept)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", &FetchError{URL: url, cause: err}
	}
	defer resp.Body.Close()

	body, err := readBody(url, resp)
	if err != nil {
		return nil, "", err
	}

	return body, resp.Header.Get("Content-Type"), nil
}

func (c *Client) newRequest(ctx context.Context, url, accept string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, cause: fmt.Errorf("failed to create request: %w", err)}
	}

	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	return req, nil
}

func readBody(url string, resp *http.Response) ([]byte, error) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, cause: fmt.Errorf("failed to read response body: %w", err)}
	}
	if len(body) > maxBodySize {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode, cause: errors.New("response body too large")}
	}

	return body, nil
}
