package registry

import (
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolgate/toolgate/internal/model"
)

func newTestStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := NewStore(fs, "conf/servers.json", nil)
	require.NoError(t, err)
	return s, fs
}

func testRecord(t *testing.T, id string) *model.ServerRecord {
	t.Helper()
	r, err := model.NewServerRecord(id, id, "a test server", "http://localhost:9", "/run", []string{"get_weather"}, true)
	require.NoError(t, err)
	return r
}

func TestStoreRegisterAndGet(t *testing.T) {
	s, _ := newTestStore(t)

	record := testRecord(t, "weather")
	require.NoError(t, s.Register(record, false))

	got, ok := s.Get("weather")
	require.True(t, ok)
	assert.Equal(t, record.Name, got.Name)
	assert.Equal(t, record.URL, got.URL)
	assert.Equal(t, record.Endpoint, got.Endpoint)
	assert.Equal(t, record.Capabilities, got.Capabilities)
}

func TestStoreRegisterConflict(t *testing.T) {
	s, _ := newTestStore(t)

	original := testRecord(t, "weather")
	require.NoError(t, s.Register(original, false))

	replacement := testRecord(t, "weather")
	replacement.URL = "http://other-host:9"

	err := s.Register(replacement, false)
	require.ErrorIs(t, err, ErrConflict)

	// the stored record must be unchanged after a rejected registration
	got, ok := s.Get("weather")
	require.True(t, ok)
	assert.Equal(t, original.URL, got.URL)
}

func TestStoreRegisterForceReplaces(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.Register(testRecord(t, "weather"), false))

	replacement := testRecord(t, "weather")
	replacement.URL = "http://other-host:9"
	require.NoError(t, s.Register(replacement, true))

	got, ok := s.Get("weather")
	require.True(t, ok)
	assert.Equal(t, "http://other-host:9", got.URL)

	// replacing must not duplicate the entry in the listing
	assert.Len(t, s.List(), 1)
}

func TestStoreDeregister(t *testing.T) {
	s, _ := newTestStore(t)

	require.NoError(t, s.Register(testRecord(t, "weather"), false))
	require.NoError(t, s.Deregister("weather"))

	_, ok := s.Get("weather")
	assert.False(t, ok)

	err := s.Deregister("weather")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreListInsertionOrder(t *testing.T) {
	s, _ := newTestStore(t)

	for _, id := range []string{"zulu", "alpha", "mike"} {
		require.NoError(t, s.Register(testRecord(t, id), false))
	}

	var ids []string
	for _, r := range s.List() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"zulu", "alpha", "mike"}, ids)
}

func TestStorePersistsAcrossReload(t *testing.T) {
	s, fs := newTestStore(t)

	require.NoError(t, s.Register(testRecord(t, "weather"), false))
	require.NoError(t, s.Register(testRecord(t, "grist"), false))

	reloaded, err := NewStore(fs, "conf/servers.json", nil)
	require.NoError(t, err)

	got, ok := reloaded.Get("weather")
	require.True(t, ok)
	assert.Equal(t, "http://localhost:9", got.URL)
	assert.Len(t, reloaded.List(), 2)
}

func TestStorePersistedFileShape(t *testing.T) {
	s, fs := newTestStore(t)
	require.NoError(t, s.Register(testRecord(t, "weather"), false))

	data, err := afero.ReadFile(fs, "conf/servers.json")
	require.NoError(t, err)

	// the persisted form is a plain JSON object keyed by server id
	var persisted map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &persisted))
	entry, ok := persisted["weather"]
	require.True(t, ok)
	assert.Equal(t, "http://localhost:9", entry["url"])
	assert.Equal(t, "/run", entry["mcp_endpoint"])
	meta, ok := entry["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, meta["manual_registration"])

	// no leftover temp file after a successful write
	exists, err := afero.Exists(fs, "conf/servers.json.tmp")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStoreChangeCallback(t *testing.T) {
	s, _ := newTestStore(t)

	var notified []string
	s.SetChangeCallback(func(id string) {
		notified = append(notified, id)
	})

	require.NoError(t, s.Register(testRecord(t, "weather"), false))
	require.NoError(t, s.Deregister("weather"))

	assert.Equal(t, []string{"weather", "weather"}, notified)
}

func TestStoreRejectsInvalidRecords(t *testing.T) {
	s, _ := newTestStore(t)

	tests := []struct {
		name   string
		record *model.ServerRecord
	}{
		{"empty id", &model.ServerRecord{ID: "", URL: "http://localhost:9"}},
		{"bad id chars", &model.ServerRecord{ID: "my server", URL: "http://localhost:9"}},
		{"missing url", &model.ServerRecord{ID: "ok"}},
		{"non-http url", &model.ServerRecord{ID: "ok", URL: "ftp://localhost:9"}},
		{"relative endpoint", &model.ServerRecord{ID: "ok", URL: "http://localhost:9", Endpoint: "run"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, s.Register(tt.record, false))
		})
	}
}

func TestStoreGetReturnsCopy(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Register(testRecord(t, "weather"), false))

	got, _ := s.Get("weather")
	got.Capabilities[0] = "mutated"
	got.Metadata["injected"] = true

	fresh, _ := s.Get("weather")
	assert.Equal(t, "get_weather", fresh.Capabilities[0])
	assert.NotContains(t, fresh.Metadata, "injected")
}
