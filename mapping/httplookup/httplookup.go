// Package httplookup asks a remote directory service for the LID of a PN identifier, over HTTP.
package httplookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/bluesky-social/lidmap/mapping"
	"github.com/bluesky-social/lidmap/pkg/robusthttp"

	"github.com/carlmjohnson/versioninfo"
)

// Does HTTP requests to a lookup service. A lidmap daemon is itself a valid lookup service.
type Client struct {
	Client *http.Client
	// API service to make queries to. Includes schema, hostname, and port, but no path or trailing slash. Eg: "http://localhost:6680"
	Host      string
	UserAgent string
}

// Response body of the lookup endpoint.
type LookupResponse struct {
	Results []mapping.LookupResult `json:"results"`
}

type errorBody struct {
	Name    string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Uses a retrying HTTP client (connection errors and 5xx responses are retried).
func NewClient(host string, options ...robusthttp.Option) *Client {
	return &Client{
		Client:    robusthttp.NewClient(options...),
		Host:      host,
		UserAgent: "lidmap-httplookup/" + versioninfo.Short(),
	}
}

// Implements [mapping.LookupFunc]. A 404 response means the service has no account for the identifier, and is returned as no results (not an error).
func (c *Client) Lookup(ctx context.Context, pn string) ([]mapping.LookupResult, error) {
	u := c.Host + "/v1/lookup?jid=" + url.QueryEscape(pn)
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("constructing HTTP request: %w", err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup service HTTP: %w", mapping.ErrLookupFailed, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup service HTTP: %w", mapping.ErrLookupFailed, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		var eb errorBody
		if json.Unmarshal(b, &eb) == nil && eb.Name != "" {
			return nil, fmt.Errorf("%w: lookup service HTTP %d: %s: %s", mapping.ErrLookupFailed, resp.StatusCode, eb.Name, eb.Message)
		}
		return nil, fmt.Errorf("%w: lookup service HTTP: %d", mapping.ErrLookupFailed, resp.StatusCode)
	}

	var body LookupResponse
	if err := json.Unmarshal(b, &body); err != nil {
		return nil, fmt.Errorf("%w: lookup service HTTP: %w", mapping.ErrLookupFailed, err)
	}
	return body.Results, nil
}
