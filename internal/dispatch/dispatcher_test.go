package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolgate/toolgate/internal/model"
	"github.com/toolgate/toolgate/internal/stream"
	"github.com/toolgate/toolgate/internal/validate"
	"github.com/toolgate/toolgate/pkg/types"
)

type fakeRegistry struct {
	records map[string]*model.ServerRecord
}

func (f *fakeRegistry) Get(id string) (*model.ServerRecord, bool) {
	r, ok := f.records[id]
	return r, ok
}

type fakeCatalog struct {
	tools map[string][]model.ToolDescriptor
	err   error
}

func (f *fakeCatalog) GetTools(_ context.Context, serverID string, _ bool) ([]model.ToolDescriptor, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tools[serverID], nil
}

func weatherDescriptors() []model.ToolDescriptor {
	return []model.ToolDescriptor{
		{
			Name: "get_weather",
			Params: []model.ParamSpec{
				{Name: "ville", Type: "string", Required: true},
				{Name: "units", Type: "string"},
			},
		},
	}
}

func newTestDispatcher(t *testing.T, serverURL string, tools []model.ToolDescriptor, opts ...func(*Config)) *Dispatcher {
	t.Helper()
	record, err := model.NewServerRecord("weather", "weather", "", serverURL, "/run", nil, true)
	require.NoError(t, err)
	cfg := &Config{
		Registry: &fakeRegistry{records: map[string]*model.ServerRecord{"weather": record}},
		Catalog:  &fakeCatalog{tools: map[string][]model.ToolDescriptor{"weather": tools}},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	d, err := NewDispatcher(cfg)
	require.NoError(t, err)
	return d
}

func TestInvokeSuccess(t *testing.T) {
	var captured map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/run", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"result": {"temperature": 18, "conditions": "partly cloudy"}}`))
	}))
	defer ts.Close()

	d := newTestDispatcher(t, ts.URL, weatherDescriptors())
	result := d.Invoke(context.Background(), &types.InvocationRequest{
		ServerID: "weather",
		Tool:     "get_weather",
		Params:   map[string]any{"ville": "Paris"},
	})

	require.Equal(t, types.ResultSuccess, result.Kind)
	value, ok := result.Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "partly cloudy", value["conditions"])

	// canonical payload dialect
	assert.Equal(t, "get_weather", captured["name"])
	params, ok := captured["parameters"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Paris", params["ville"])
}

func TestInvokeUnknownServer(t *testing.T) {
	d := newTestDispatcher(t, "http://localhost:9", nil)
	result := d.Invoke(context.Background(), &types.InvocationRequest{
		ServerID: "missing",
		Tool:     "get_weather",
	})

	assert.Equal(t, types.ResultTransportFailure, result.Kind)
	assert.Zero(t, result.StatusCode)
	assert.Contains(t, result.Message, "missing")
}

func TestInvokeValidationFailureShortCircuits(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the network on a hard validation failure")
	}))
	defer ts.Close()

	d := newTestDispatcher(t, ts.URL, weatherDescriptors())

	tests := []struct {
		name   string
		tool   string
		params map[string]any
	}{
		{"unknown tool", "get_wather", map[string]any{"ville": "Paris"}},
		{"missing required param", "get_weather", map[string]any{"units": "celsius"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := d.Invoke(context.Background(), &types.InvocationRequest{
				ServerID: "weather",
				Tool:     tt.tool,
				Params:   tt.params,
			})
			require.Equal(t, types.ResultValidationFailure, result.Kind)
			assert.True(t, validate.HasErrors(result.Reasons))
		})
	}
}

func TestInvokeTypeMismatchWarningRidesAlong(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result": "ok"}`))
	}))
	defer ts.Close()

	d := newTestDispatcher(t, ts.URL, weatherDescriptors())
	result := d.Invoke(context.Background(), &types.InvocationRequest{
		ServerID: "weather",
		Tool:     "get_weather",
		Params:   map[string]any{"ville": 42},
	})

	require.Equal(t, types.ResultSuccess, result.Kind)
	require.Len(t, result.Reasons, 1)
	assert.Equal(t, types.SeverityWarning, result.Reasons[0].Severity)
}

func TestInvokeStrictModeRejectsTypeMismatch(t *testing.T) {
	d := newTestDispatcher(t, "http://localhost:9", weatherDescriptors(), func(c *Config) {
		c.Validator = &validate.Validator{Strict: true}
	})
	result := d.Invoke(context.Background(), &types.InvocationRequest{
		ServerID: "weather",
		Tool:     "get_weather",
		Params:   map[string]any{"ville": 42},
	})

	assert.Equal(t, types.ResultValidationFailure, result.Kind)
}

func TestInvokeBearerToken(t *testing.T) {
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"result": null}`))
	}))
	defer ts.Close()

	d := newTestDispatcher(t, ts.URL, weatherDescriptors())
	result := d.Invoke(context.Background(), &types.InvocationRequest{
		ServerID:    "weather",
		Tool:        "get_weather",
		Params:      map[string]any{"ville": "Paris"},
		BearerToken: "s3cret",
	})

	require.Equal(t, types.ResultSuccess, result.Kind)
	assert.Equal(t, "Bearer s3cret", auth)
}

func TestInvokePayloadDialects(t *testing.T) {
	tests := []struct {
		style     string
		nameKey   string
		paramsKey string
	}{
		{PayloadStyleName, "name", "parameters"},
		{PayloadStyleTool, "tool", "parameters"},
		{PayloadStyleAction, "action", "params"},
	}
	for _, tt := range tests {
		t.Run(tt.style, func(t *testing.T) {
			var captured map[string]any
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
				_, _ = w.Write([]byte(`{"result": "ok"}`))
			}))
			defer ts.Close()

			record, err := model.NewServerRecord("weather", "weather", "", ts.URL, "/run", nil, true)
			require.NoError(t, err)
			record.Metadata[model.MetaKeyPayloadStyle] = tt.style

			d, err := NewDispatcher(&Config{
				Registry: &fakeRegistry{records: map[string]*model.ServerRecord{"weather": record}},
				Catalog:  &fakeCatalog{tools: map[string][]model.ToolDescriptor{"weather": weatherDescriptors()}},
			})
			require.NoError(t, err)

			result := d.Invoke(context.Background(), &types.InvocationRequest{
				ServerID: "weather",
				Tool:     "get_weather",
				Params:   map[string]any{"ville": "Paris"},
			})
			require.Equal(t, types.ResultSuccess, result.Kind)
			assert.Equal(t, "get_weather", captured[tt.nameKey])
			assert.Contains(t, captured, tt.paramsKey)
		})
	}
}

func TestInvokeNon2xxMessagePriority(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"detail wins", `{"detail":"city not found","error":"e","message":"m"}`, 404, "city not found"},
		{"error next", `{"error":"upstream broke","message":"m"}`, 502, "upstream broke"},
		{"message last", `{"message":"slow down"}`, 429, "slow down"},
		{"structured detail", `{"detail":{"code":7}}`, 400, `{"code":7}`},
		{"plain text body", `service unavailable`, 503, "service unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			d := newTestDispatcher(t, ts.URL, weatherDescriptors())
			result := d.Invoke(context.Background(), &types.InvocationRequest{
				ServerID: "weather",
				Tool:     "get_weather",
				Params:   map[string]any{"ville": "Paris"},
			})

			require.Equal(t, types.ResultTransportFailure, result.Kind)
			assert.Equal(t, tt.status, result.StatusCode)
			assert.Equal(t, tt.message, result.Message)
		})
	}
}

func TestInvokeRawJSONValueResult(t *testing.T) {
	// a 2xx body without a "result" wrapper is the result value itself
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`["a","b","c"]`))
	}))
	defer ts.Close()

	d := newTestDispatcher(t, ts.URL, weatherDescriptors())
	result := d.Invoke(context.Background(), &types.InvocationRequest{
		ServerID: "weather",
		Tool:     "get_weather",
		Params:   map[string]any{"ville": "Paris"},
	})

	require.Equal(t, types.ResultSuccess, result.Kind)
	assert.Equal(t, []any{"a", "b", "c"}, result.Value)
}

func TestInvokeUnparseableSuccessBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))
	defer ts.Close()

	d := newTestDispatcher(t, ts.URL, weatherDescriptors())
	result := d.Invoke(context.Background(), &types.InvocationRequest{
		ServerID: "weather",
		Tool:     "get_weather",
		Params:   map[string]any{"ville": "Paris"},
	})

	assert.Equal(t, types.ResultProtocolFailure, result.Kind)
}

func TestInvokeRequestTimeoutOverridesDefault(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(`{"result": "ok"}`))
	}))
	defer ts.Close()

	// the default would cancel the call long before the server answers, so
	// the call only succeeds if the per-request timeout is honored
	d := newTestDispatcher(t, ts.URL, weatherDescriptors(), func(c *Config) {
		c.Timeout = 100 * time.Millisecond
	})
	result := d.Invoke(context.Background(), &types.InvocationRequest{
		ServerID:   "weather",
		Tool:       "get_weather",
		Params:     map[string]any{"ville": "Paris"},
		TimeoutSec: 2,
	})

	assert.Equal(t, types.ResultSuccess, result.Kind)
}

func TestInvokeConnectionError(t *testing.T) {
	d := newTestDispatcher(t, "http://127.0.0.1:9", weatherDescriptors(), func(c *Config) {
		c.Timeout = 500 * time.Millisecond
	})
	result := d.Invoke(context.Background(), &types.InvocationRequest{
		ServerID: "weather",
		Tool:     "get_weather",
		Params:   map[string]any{"ville": "Paris"},
	})

	assert.Equal(t, types.ResultTransportFailure, result.Kind)
	assert.Zero(t, result.StatusCode)
}

func TestInvokeProceedsWhenSchemaUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result": "ok"}`))
	}))
	defer ts.Close()

	record, err := model.NewServerRecord("weather", "weather", "", ts.URL, "/run", nil, true)
	require.NoError(t, err)
	d, err := NewDispatcher(&Config{
		Registry: &fakeRegistry{records: map[string]*model.ServerRecord{"weather": record}},
		Catalog:  &fakeCatalog{err: errors.New("schema fetch failed")},
	})
	require.NoError(t, err)

	result := d.Invoke(context.Background(), &types.InvocationRequest{
		ServerID: "weather",
		Tool:     "get_weather",
		Params:   map[string]any{"ville": "Paris"},
	})
	assert.Equal(t, types.ResultSuccess, result.Kind)
}

func TestHandshakeRequiresConfiguration(t *testing.T) {
	d := newTestDispatcher(t, "http://localhost:9", nil)
	_, err := d.Handshake(context.Background(), "weather")
	assert.Error(t, err)
}

type fakeHandshaker struct {
	tools []model.ToolDescriptor
	err   error
}

func (f *fakeHandshaker) FetchHandshake(_ context.Context, _ *model.ServerRecord) ([]model.ToolDescriptor, error) {
	return f.tools, f.err
}

func TestHandshakeClassifiesBrokenStream(t *testing.T) {
	d := newTestDispatcher(t, "http://localhost:9", nil, func(c *Config) {
		c.Handshaker = &fakeHandshaker{err: fmt.Errorf("reading events: %w", stream.ErrNoTerminalEvent)}
	})
	_, err := d.Handshake(context.Background(), "weather")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocol)

	// transport-level failures keep their own cause
	d = newTestDispatcher(t, "http://localhost:9", nil, func(c *Config) {
		c.Handshaker = &fakeHandshaker{err: errors.New("connection refused")}
	})
	_, err = d.Handshake(context.Background(), "weather")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrProtocol))
}

func TestHandshakeReturnsAdvertisedTools(t *testing.T) {
	d := newTestDispatcher(t, "http://localhost:9", nil, func(c *Config) {
		c.Handshaker = &fakeHandshaker{tools: weatherDescriptors()}
	})

	tools, err := d.Handshake(context.Background(), "weather")
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "get_weather", tools[0].Name)

	_, err = d.Handshake(context.Background(), "missing")
	assert.Error(t, err)
}
