// Package api provides the HTTP API of the toolgate registry server.
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/toolgate/toolgate/internal/catalog"
	"github.com/toolgate/toolgate/internal/dispatch"
	"github.com/toolgate/toolgate/internal/registry"
	"github.com/toolgate/toolgate/internal/schema"
	"github.com/toolgate/toolgate/internal/telemetry"
	"github.com/toolgate/toolgate/pkg/types"
	"github.com/toolgate/toolgate/pkg/version"
)

const (
	V0PathPrefix    = "/v0"
	V0ApiPathPrefix = "/api" + V0PathPrefix
)

type ServerOptions struct {
	// Port is the HTTP port to bind the server to
	Port string

	Registry   *registry.Store
	Catalog    *catalog.Catalog
	Fetcher    *schema.Fetcher
	Dispatcher *dispatch.Dispatcher

	Logger        *zap.Logger
	OtelProviders *telemetry.Providers
	Metrics       telemetry.CustomMetrics
}

// Server is the toolgate registry server that exposes server registration,
// tool discovery and tool invocation over HTTP.
type Server struct {
	port   string
	router *gin.Engine

	registry   *registry.Store
	catalog    *catalog.Catalog
	fetcher    *schema.Fetcher
	dispatcher *dispatch.Dispatcher

	logger        *zap.Logger
	otelProviders *telemetry.Providers
	metrics       telemetry.CustomMetrics
}

// NewServer initializes a new Gin server for the toolgate registry.
func NewServer(opts *ServerOptions) (*Server, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("api server requires a registry store")
	}
	if opts.Catalog == nil {
		return nil, fmt.Errorf("api server requires a tool catalog")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("api server requires a dispatcher")
	}
	s := &Server{
		port:          opts.Port,
		registry:      opts.Registry,
		catalog:       opts.Catalog,
		fetcher:       opts.Fetcher,
		dispatcher:    opts.Dispatcher,
		logger:        opts.Logger,
		otelProviders: opts.OtelProviders,
		metrics:       opts.Metrics,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = telemetry.NewNoopCustomMetrics()
	}

	// Set up the router after the server is fully initialized
	r, err := s.setupRouter()
	if err != nil {
		return nil, err
	}
	s.router = r

	return s, nil
}

// Start runs the Gin server (blocking call)
func (s *Server) Start() error {
	if err := s.router.Run(":" + s.port); err != nil {
		return fmt.Errorf("failed to run the server: %w", err)
	}
	return nil
}

// setupRouter sets up the Gin router with the registry API endpoints.
func (s *Server) setupRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	// if otel is enabled, setup prometheus metrics endpoint
	if s.otelProviders != nil && s.otelProviders.IsEnabled() {
		// instrument gin
		r.Use(otelgin.Middleware(s.otelProviders.ServiceName()))

		// expose prometheus metrics endpoint
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	r.GET(
		"/health",
		func(c *gin.Context) {
			c.JSON(200, gin.H{"status": "ok"})
		},
	)

	r.GET(
		"/metadata",
		func(c *gin.Context) {
			m := &types.ServerMetadata{
				Version: version.GetVersion(),
			}
			c.JSON(http.StatusOK, m)
		},
	)

	apiV0 := r.Group(V0ApiPathPrefix)
	{
		apiV0.GET("/registry", s.registryInfoHandler())

		apiV0.GET("/servers", s.listServersHandler())
		apiV0.POST("/servers", s.registerServerHandler())
		apiV0.GET("/servers/:id", s.getServerHandler())
		apiV0.DELETE("/servers/:id", s.deregisterServerHandler())

		apiV0.GET("/servers/:id/tools", s.listToolsHandler())
		apiV0.GET("/servers/:id/handshake", s.handshakeHandler())

		apiV0.POST("/tools/invoke", s.invokeToolHandler())
	}

	return r, nil
}
