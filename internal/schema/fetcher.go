// Package schema fetches and normalizes the tool schemas advertised by capability servers.
package schema

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/toolgate/toolgate/internal/model"
	"github.com/toolgate/toolgate/internal/stream"
	"github.com/toolgate/toolgate/pkg/version"
)

// DefaultTimeout bounds a single schema fetch when the caller's context
// carries no deadline of its own.
const DefaultTimeout = 10 * time.Second

// FetchErrorKind classifies a schema fetch failure.
type FetchErrorKind string

const (
	// Unreachable covers connection errors and timeouts.
	Unreachable FetchErrorKind = "unreachable"
	// BadStatus means the server answered with a non-2xx status.
	BadStatus FetchErrorKind = "bad_status"
	// Malformed means the response body is not valid structured data.
	Malformed FetchErrorKind = "malformed"
)

// FetchError describes a failed schema fetch.
type FetchError struct {
	Kind       FetchErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case BadStatus:
		return fmt.Sprintf("schema fetch failed with HTTP status %d", e.StatusCode)
	case Malformed:
		return fmt.Sprintf("schema response is malformed: %v", e.Err)
	default:
		return fmt.Sprintf("capability server unreachable: %v", e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

func unreachable(err error) *FetchError {
	return &FetchError{Kind: Unreachable, Err: err}
}

func badStatus(code int) *FetchError {
	return &FetchError{Kind: BadStatus, StatusCode: code}
}

func malformed(err error) *FetchError {
	return &FetchError{Kind: Malformed, Err: err}
}

// FetcherConfig holds the construction parameters for a Fetcher.
type FetcherConfig struct {
	HTTPClient *http.Client
	Logger     *zap.Logger

	// Timeout is applied per fetch when the incoming context has no deadline.
	Timeout time.Duration
}

// Fetcher retrieves tool schemas from capability servers. It understands the
// plain /schema endpoint (both the "tools" and legacy "functions" shapes) as
// well as the streaming initialization handshake some servers use instead.
// A fetch is a single attempt; retry policy belongs to the caller.
type Fetcher struct {
	httpClient *http.Client
	logger     *zap.Logger
	timeout    time.Duration
}

// NewFetcher creates a Fetcher from the given config. Zero values get
// sensible defaults.
func NewFetcher(c *FetcherConfig) *Fetcher {
	if c == nil {
		c = &FetcherConfig{}
	}
	f := &Fetcher{
		httpClient: c.HTTPClient,
		logger:     c.Logger,
		timeout:    c.Timeout,
	}
	if f.httpClient == nil {
		f.httpClient = http.DefaultClient
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	if f.timeout <= 0 {
		f.timeout = DefaultTimeout
	}
	return f
}

// Fetch retrieves the tool descriptors advertised by the server.
// It asks the /schema endpoint first; servers that don't expose one
// (404/405) are probed once via the streaming handshake instead, mirroring
// the discovery order used by existing registry clients. All failures are
// reported as *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, server *model.ServerRecord) ([]model.ToolDescriptor, error) {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.SchemaURL(), nil)
	if err != nil {
		return nil, unreachable(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, unreachable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed {
		f.logger.Debug("server has no schema endpoint, trying handshake",
			zap.String("server", server.ID), zap.Int("status", resp.StatusCode))
		return f.FetchHandshake(ctx, server)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, badStatus(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unreachable(err)
	}

	tools, ferr := parseDocument(body)
	if ferr != nil {
		return nil, ferr
	}
	return f.normalizeTools(server.ID, tools), nil
}

// FetchHandshake retrieves tool descriptors via the streaming initialization
// handshake: an init message is posted to the invocation endpoint and the
// newline-delimited event stream is read until a "tools" or "close" event.
func (f *Fetcher) FetchHandshake(ctx context.Context, server *model.ServerRecord) ([]model.ToolDescriptor, error) {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	u, err := stream.HandshakeURL(server.InvokeURL(), stream.HandshakeConfig{
		ClientID:      "toolgate",
		ClientVersion: version.GetVersion(),
	})
	if err != nil {
		return nil, malformed(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(stream.InitMessage()))
	if err != nil {
		return nil, unreachable(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, unreachable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, badStatus(resp.StatusCode)
	}

	reader := stream.NewReader(resp.Body, f.logger)
	event, err := reader.ReadUntilTerminal()
	if err != nil {
		return nil, malformed(err)
	}
	if event.Type == stream.EventClose {
		// the server ended the handshake without advertising tools
		return []model.ToolDescriptor{}, nil
	}

	var tools []rawTool
	if err := json.Unmarshal(event.Body, &tools); err != nil {
		return nil, malformed(fmt.Errorf("tools event body: %w", err))
	}
	return f.normalizeTools(server.ID, tools), nil
}

func (f *Fetcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.timeout)
}

// schemaDocument is the raw top-level shape of a /schema response.
// "functions" is a legacy alias for "tools" with identical item shape.
type schemaDocument struct {
	Tools     []rawTool `json:"tools" yaml:"tools"`
	Functions []rawTool `json:"functions" yaml:"functions"`
}

type rawTool struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Parameters  *rawParameters `json:"parameters" yaml:"parameters"`
}

type rawParameters struct {
	Type       string                 `json:"type" yaml:"type"`
	Properties map[string]rawProperty `json:"properties" yaml:"properties"`
	Required   []string               `json:"required" yaml:"required"`
}

type rawProperty struct {
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
	Default     any    `json:"default" yaml:"default"`
}

// parseDocument decodes a schema response body. JSON is tried first, then
// YAML; a body that is neither is Malformed. A document that contains
// neither "tools" nor "functions" yields an empty list, not an error.
func parseDocument(body []byte) ([]rawTool, *FetchError) {
	var doc schemaDocument
	jsonErr := json.Unmarshal(body, &doc)
	if jsonErr != nil {
		if yamlErr := yaml.Unmarshal(body, &doc); yamlErr != nil {
			return nil, malformed(errors.Join(jsonErr, yamlErr))
		}
	}
	if doc.Tools != nil {
		return doc.Tools, nil
	}
	if doc.Functions != nil {
		return doc.Functions, nil
	}
	return []rawTool{}, nil
}

// normalizeTools resolves the raw duck-typed tool objects into canonical
// ToolDescriptors so nothing downstream ever branches on schema shape.
// Tool names are unique per server; a duplicate keeps its first occurrence.
func (f *Fetcher) normalizeTools(serverID string, tools []rawTool) []model.ToolDescriptor {
	descriptors := make([]model.ToolDescriptor, 0, len(tools))
	seen := make(map[string]bool, len(tools))
	for _, tool := range tools {
		if tool.Name == "" {
			f.logger.Warn("skipping tool without a name", zap.String("server", serverID))
			continue
		}
		if seen[tool.Name] {
			f.logger.Warn("skipping duplicate tool name",
				zap.String("server", serverID), zap.String("tool", tool.Name))
			continue
		}
		seen[tool.Name] = true
		descriptors = append(descriptors, model.ToolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			Params:      normalizeParams(tool.Parameters),
		})
	}
	return descriptors
}

// normalizeParams flattens a JSON-Schema-like parameters object into an
// ordered list of ParamSpecs: required parameters first, in the schema's
// declared order, then optional ones sorted by name for determinism.
func normalizeParams(params *rawParameters) []model.ParamSpec {
	if params == nil || len(params.Properties) == 0 {
		return nil
	}

	required := make(map[string]bool, len(params.Required))
	var specs []model.ParamSpec
	for _, name := range params.Required {
		required[name] = true
		prop := params.Properties[name]
		specs = append(specs, model.ParamSpec{
			Name:        name,
			Type:        prop.Type,
			Required:    true,
			Description: prop.Description,
			// a required parameter never carries a default
		})
	}

	var optional []string
	for name := range params.Properties {
		if !required[name] {
			optional = append(optional, name)
		}
	}
	sort.Strings(optional)
	for _, name := range optional {
		prop := params.Properties[name]
		specs = append(specs, model.ParamSpec{
			Name:        name,
			Type:        prop.Type,
			Required:    false,
			Description: prop.Description,
			Default:     prop.Default,
		})
	}
	return specs
}
