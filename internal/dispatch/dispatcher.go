// Package dispatch sends validated tool invocations to capability servers
// and normalizes their responses.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/toolgate/toolgate/internal/model"
	"github.com/toolgate/toolgate/internal/telemetry"
	"github.com/toolgate/toolgate/internal/validate"
	"github.com/toolgate/toolgate/pkg/types"
)

// DefaultTimeout bounds a single invocation when the request carries no
// timeout of its own.
const DefaultTimeout = 30 * time.Second

// Payload dialects understood by capability servers. The wire shape is
// {"<name key>": ..., "<params key>": ...}.
const (
	// PayloadStyleName is the canonical {"name","parameters"} dialect.
	PayloadStyleName = "name"
	// PayloadStyleTool is the {"tool","parameters"} dialect.
	PayloadStyleTool = "tool"
	// PayloadStyleAction is the {"action","params"} dialect.
	PayloadStyleAction = "action"
)

// ServerSource resolves a server id to its registered record.
type ServerSource interface {
	Get(id string) (*model.ServerRecord, bool)
}

// ToolSource provides the tool descriptors used for pre-flight validation.
type ToolSource interface {
	GetTools(ctx context.Context, serverID string, forceRefresh bool) ([]model.ToolDescriptor, error)
}

// Config holds the construction parameters for a Dispatcher.
type Config struct {
	Registry  ServerSource
	Catalog   ToolSource
	Validator *validate.Validator

	// Handshaker enables the streaming Handshake entry point when set.
	Handshaker HandshakeSource

	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    telemetry.CustomMetrics

	// Timeout is the per-call default; requests may override it.
	Timeout time.Duration

	// PayloadStyle is the dialect used for servers that don't declare one.
	PayloadStyle string
}

// Dispatcher delivers tool invocations. Every call is at-most-once: there
// are no retries, and any failure is reported as a tagged result rather
// than retried or masked.
type Dispatcher struct {
	registry     ServerSource
	catalog      ToolSource
	validator    *validate.Validator
	handshaker   HandshakeSource
	httpClient   *http.Client
	logger       *zap.Logger
	metrics      telemetry.CustomMetrics
	timeout      time.Duration
	payloadStyle string
}

// NewDispatcher creates a Dispatcher from the given config.
func NewDispatcher(c *Config) (*Dispatcher, error) {
	if c.Registry == nil {
		return nil, fmt.Errorf("dispatcher requires a server registry")
	}
	if c.Catalog == nil {
		return nil, fmt.Errorf("dispatcher requires a tool catalog")
	}
	d := &Dispatcher{
		registry:     c.Registry,
		catalog:      c.Catalog,
		validator:    c.Validator,
		handshaker:   c.Handshaker,
		httpClient:   c.HTTPClient,
		logger:       c.Logger,
		metrics:      c.Metrics,
		timeout:      c.Timeout,
		payloadStyle: c.PayloadStyle,
	}
	if d.validator == nil {
		d.validator = &validate.Validator{}
	}
	if d.httpClient == nil {
		d.httpClient = http.DefaultClient
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.metrics == nil {
		d.metrics = telemetry.NewNoopCustomMetrics()
	}
	if d.timeout <= 0 {
		d.timeout = DefaultTimeout
	}
	if d.payloadStyle == "" {
		d.payloadStyle = PayloadStyleName
	}
	return d, nil
}

// Invoke delivers a single tool invocation and returns its normalized
// outcome. A request that fails validation never reaches the network.
func (d *Dispatcher) Invoke(ctx context.Context, req *types.InvocationRequest) *types.InvocationResult {
	started := time.Now()
	outcome := telemetry.OutcomeError
	defer func() {
		d.metrics.RecordToolInvocation(ctx, req.ServerID, req.Tool, outcome, time.Since(started))
	}()

	server, ok := d.registry.Get(req.ServerID)
	if !ok {
		return types.TransportFailed(0, fmt.Sprintf("server %q is not registered", req.ServerID))
	}

	var warnings []types.ValidationReason
	tools, err := d.catalog.GetTools(ctx, req.ServerID, false)
	if err != nil {
		// without a schema there is nothing to validate against; the server
		// itself remains the authority on whether the call is acceptable
		d.logger.Warn("invoking without schema validation",
			zap.String("server", req.ServerID), zap.Error(err))
	} else {
		reasons := d.validator.Validate(req.Tool, req.Params, tools)
		if validate.HasErrors(reasons) {
			outcome = telemetry.OutcomeRejected
			return types.ValidationFailed(reasons)
		}
		warnings = validate.Warnings(reasons)
	}

	body, err := json.Marshal(d.buildPayload(server, req))
	if err != nil {
		return types.ProtocolFailed(fmt.Sprintf("parameters are not JSON-serializable: %v", err))
	}

	timeout := req.Timeout()
	if timeout <= 0 {
		timeout = d.timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, server.InvokeURL(), bytes.NewReader(body))
	if err != nil {
		return types.TransportFailed(0, err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if req.BearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.BearerToken)
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return types.TransportFailed(0, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.TransportFailed(resp.StatusCode, err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.TransportFailed(resp.StatusCode, extractErrorMessage(respBody, resp.StatusCode))
	}

	value, ok := parseResultValue(respBody)
	if !ok {
		return types.ProtocolFailed("response body is not valid JSON")
	}
	outcome = telemetry.OutcomeSuccess
	return types.Success(value, warnings)
}

// buildPayload shapes the wire body in the dialect the server expects.
func (d *Dispatcher) buildPayload(server *model.ServerRecord, req *types.InvocationRequest) map[string]any {
	style := server.PayloadStyle()
	if style == "" {
		style = d.payloadStyle
	}
	params := req.Params
	if params == nil {
		params = map[string]any{}
	}
	switch style {
	case PayloadStyleTool:
		return map[string]any{"tool": req.Tool, "parameters": params}
	case PayloadStyleAction:
		return map[string]any{"action": req.Tool, "params": params}
	default:
		return map[string]any{"name": req.Tool, "parameters": params}
	}
}

// parseResultValue decodes a 2xx body: an object carrying a "result" key
// yields that key's value, any other valid JSON document is returned whole.
func parseResultValue(body []byte) (any, bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, true
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, false
	}
	if obj, ok := decoded.(map[string]any); ok {
		if result, exists := obj["result"]; exists {
			return result, true
		}
	}
	return decoded, true
}

// extractErrorMessage pulls a human-readable message out of an error body,
// preferring "detail", then "error", then "message".
func extractErrorMessage(body []byte, statusCode int) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err == nil {
		for _, key := range []string{"detail", "error", "message"} {
			value, exists := obj[key]
			if !exists {
				continue
			}
			if s, ok := value.(string); ok && s != "" {
				return s
			}
			if raw, err := json.Marshal(value); err == nil {
				return string(raw)
			}
		}
	}
	if trimmed := strings.TrimSpace(string(body)); trimmed != "" && len(trimmed) <= 512 {
		return trimmed
	}
	return http.StatusText(statusCode)
}
