// Package catalog caches the tool schemas of registered capability servers.
package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/toolgate/toolgate/internal/model"
	"github.com/toolgate/toolgate/internal/registry"
	"github.com/toolgate/toolgate/internal/telemetry"
)

// DefaultTTL is how long a cached schema is considered fresh.
const DefaultTTL = 5 * time.Minute

// Freshness describes the cache state for a server's schema.
type Freshness string

const (
	// Fresh means the cached schema is within its TTL.
	Fresh Freshness = "fresh"
	// Stale means a schema is cached but its TTL has expired.
	Stale Freshness = "stale"
	// Unknown means no schema has been cached for the server.
	Unknown Freshness = "unknown"
)

// ServerSource resolves a server id to its registered record.
// *registry.Store satisfies this.
type ServerSource interface {
	Get(id string) (*model.ServerRecord, bool)
}

// SchemaFetcher retrieves a server's tool schema.
// *schema.Fetcher satisfies this.
type SchemaFetcher interface {
	Fetch(ctx context.Context, server *model.ServerRecord) ([]model.ToolDescriptor, error)
}

// Config holds the construction parameters for a Catalog.
type Config struct {
	Registry ServerSource
	Fetcher  SchemaFetcher
	Logger   *zap.Logger
	Metrics  telemetry.CustomMetrics

	// TTL overrides DefaultTTL when positive.
	TTL time.Duration
}

type entry struct {
	tools     []model.ToolDescriptor
	fetchedAt time.Time
	stale     bool
}

// Catalog is a TTL cache of tool schemas keyed by server id. Concurrent
// refreshes of the same server are coalesced into a single fetch, and a
// failed refresh keeps the previous entry available.
type Catalog struct {
	registry ServerSource
	fetcher  SchemaFetcher
	logger   *zap.Logger
	metrics  telemetry.CustomMetrics
	ttl      time.Duration

	mu      sync.RWMutex
	entries map[string]*entry
	group   singleflight.Group

	now func() time.Time
}

// NewCatalog creates a Catalog from the given config.
func NewCatalog(c *Config) (*Catalog, error) {
	if c.Registry == nil {
		return nil, fmt.Errorf("catalog requires a server registry")
	}
	if c.Fetcher == nil {
		return nil, fmt.Errorf("catalog requires a schema fetcher")
	}
	cat := &Catalog{
		registry: c.Registry,
		fetcher:  c.Fetcher,
		logger:   c.Logger,
		metrics:  c.Metrics,
		ttl:      c.TTL,
		entries:  make(map[string]*entry),
		now:      time.Now,
	}
	if cat.logger == nil {
		cat.logger = zap.NewNop()
	}
	if cat.metrics == nil {
		cat.metrics = telemetry.NewNoopCustomMetrics()
	}
	if cat.ttl <= 0 {
		cat.ttl = DefaultTTL
	}
	return cat, nil
}

// GetTools returns the tool descriptors for the server. A fresh cache entry
// is served without any network I/O; otherwise the schema is fetched, with
// concurrent callers for the same server sharing a single fetch. When
// forceRefresh is set the cache is bypassed even if fresh.
func (c *Catalog) GetTools(ctx context.Context, serverID string, forceRefresh bool) ([]model.ToolDescriptor, error) {
	server, ok := c.registry.Get(serverID)
	if !ok {
		return nil, fmt.Errorf("server %q: %w", serverID, registry.ErrNotFound)
	}

	if !forceRefresh {
		if tools, ok := c.freshTools(serverID); ok {
			return tools, nil
		}
	}

	v, err, _ := c.group.Do(serverID, func() (any, error) {
		// a refresh that completed while we waited satisfies this caller too
		if !forceRefresh {
			if tools, ok := c.freshTools(serverID); ok {
				return tools, nil
			}
		}
		return c.refresh(ctx, server)
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.ToolDescriptor), nil
}

// Freshness reports the cache state for the server.
func (c *Catalog) Freshness(serverID string) Freshness {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[serverID]
	if !ok {
		return Unknown
	}
	if e.stale || c.now().Sub(e.fetchedAt) > c.ttl {
		return Stale
	}
	return Fresh
}

// Invalidate marks the server's cached schema stale without discarding it.
// The next GetTools triggers a refresh, but the old tools survive a failed one.
func (c *Catalog) Invalidate(serverID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[serverID]; ok {
		e.stale = true
	}
}

// Remove discards the server's cached schema entirely.
func (c *Catalog) Remove(serverID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, serverID)
}

// HandleServerChange discards the cache entry for a server whose registration
// changed. Wire this as the registry store's change callback.
func (c *Catalog) HandleServerChange(serverID string) {
	c.logger.Debug("discarding cached schema after registry change", zap.String("server", serverID))
	c.Remove(serverID)
}

func (c *Catalog) freshTools(serverID string) ([]model.ToolDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[serverID]
	if !ok || e.stale || c.now().Sub(e.fetchedAt) > c.ttl {
		return nil, false
	}
	return copyTools(e.tools), true
}

func (c *Catalog) refresh(ctx context.Context, server *model.ServerRecord) ([]model.ToolDescriptor, error) {
	started := c.now()
	outcome := telemetry.OutcomeError
	defer func() {
		c.metrics.RecordSchemaFetch(ctx, server.ID, outcome, c.now().Sub(started))
	}()

	tools, err := c.fetcher.Fetch(ctx, server)
	if err != nil {
		// keep whatever we had; the caller decides what to do with the error
		c.logger.Warn("schema refresh failed, keeping previous entry",
			zap.String("server", server.ID), zap.Error(err))
		return nil, err
	}
	outcome = telemetry.OutcomeSuccess

	c.mu.Lock()
	c.entries[server.ID] = &entry{tools: tools, fetchedAt: c.now()}
	c.mu.Unlock()

	c.logger.Debug("refreshed tool schema",
		zap.String("server", server.ID), zap.Int("tools", len(tools)))
	return copyTools(tools), nil
}

func copyTools(tools []model.ToolDescriptor) []model.ToolDescriptor {
	out := make([]model.ToolDescriptor, len(tools))
	copy(out, tools)
	return out
}
