// Package client provides a Go client for the toolgate registry server API.
package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const apiPathPrefix = "/api/v0"

// Client talks to a toolgate registry server.
type Client struct {
	baseURL     string
	bearerToken string
	httpClient  *http.Client
}

// NewClient creates a client for the registry server at baseURL.
// bearerToken is forwarded on every request when non-empty.
func NewClient(baseURL, bearerToken string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		bearerToken: bearerToken,
		httpClient:  httpClient,
	}
}

// constructAPIEndpoint returns the full URL for an API endpoint path.
func (c *Client) constructAPIEndpoint(path string) (string, error) {
	u, err := url.JoinPath(c.baseURL, apiPathPrefix, path)
	if err != nil {
		return "", fmt.Errorf("failed to construct API endpoint for %s: %w", path, err)
	}
	return u, nil
}

// newRequest creates an HTTP request with the client's auth header set.
func (c *Client) newRequest(method, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, u, body)
	if err != nil {
		return nil, err
	}
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
	return req, nil
}

// parseErrorResponse extracts the error message from a non-success response.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, errResp.Error)
}
