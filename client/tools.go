package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/toolgate/toolgate/pkg/types"
)

// ListTools fetches the tool schema of a registered server.
// refresh bypasses the server-side cache.
func (c *Client) ListTools(serverID string, refresh bool) (*types.ToolList, error) {
	u, _ := c.constructAPIEndpoint("/servers/" + serverID + "/tools")
	if refresh {
		u += "?refresh=true"
	}

	req, err := c.newRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var list types.ToolList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &list, nil
}

// Handshake performs the streaming initialization exchange with a server
// and returns the tools it advertises.
func (c *Client) Handshake(serverID string) (*types.ToolList, error) {
	u, _ := c.constructAPIEndpoint("/servers/" + serverID + "/handshake")

	req, err := c.newRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var list types.ToolList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &list, nil
}

// InvokeTool delivers a tool invocation through the registry and returns
// its normalized result.
func (c *Client) InvokeTool(req *types.InvocationRequest) (*types.InvocationResult, error) {
	u, _ := c.constructAPIEndpoint("/tools/invoke")

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal invocation request: %w", err)
	}

	httpReq, err := c.newRequest(http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var result types.InvocationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}
