package net

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

const (
	maxIdleConns     = 10
	timeoutInSeconds = 60
	maxBodyBytes     = 10 << 20
	clientAgent      = "combo"
)

var (
	reqTransport = &http.Transport{
		MaxIdleConns:          maxIdleConns,
		IdleConnTimeout:       timeoutInSeconds * time.Second,
		DisableCompression:    true,
		DisableKeepAlives:     false,
		ResponseHeaderTimeout: time.Duration(timeoutInSeconds) * time.Second,
	}

	ErrNotFound    = errors.New("URL not found")
	ErrBodyTooBig  = fmt.Errorf("response body exceeds %d bytes", maxBodyBytes)
	ErrUnsupported = errors.New("only http and https URLs are supported")
)

// IsURL reports whether s is an absolute http or https URL.
func IsURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// GetHTTPClient returns a client using the shared transport.
// When token is set, requests carry it as a bearer token.
func GetHTTPClient(ctx context.Context, token string) *http.Client {
	c := &http.Client{
		Timeout:   time.Duration(timeoutInSeconds) * time.Second,
		Transport: reqTransport,
	}
	if token == "" {
		return c
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{
			TokenType:   "Bearer",
			AccessToken: token,
		},
	)
	tc := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, c), ts)
	tc.Timeout = c.Timeout
	return tc
}

// Fetch retrieves the content at rawURL.
func Fetch(ctx context.Context, rawURL, token string) ([]byte, error) {
	if !IsURL(rawURL) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP Get request: %w", err)
	}
	req.Header.Set("User-Agent", clientAgent)

	resp, err := GetHTTPClient(ctx, token).Do(req) //nolint:gosec // URL is validated above
	if err != nil {
		return nil, fmt.Errorf("error executing HTTP Get request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("error fetching content (status: %d - %s): %s", resp.StatusCode, resp.Status, rawURL)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	if len(b) > maxBodyBytes {
		return nil, ErrBodyTooBig
	}
	return b, nil
}
