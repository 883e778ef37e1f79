package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/toolgate/toolgate/internal/model"
	"github.com/toolgate/toolgate/internal/registry"
	"github.com/toolgate/toolgate/pkg/types"
)

func (s *Server) registerServerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input types.RegisterServerInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if input.Name == "" {
			input.Name = input.ID
		}

		record, err := model.NewServerRecord(
			input.ID,
			input.Name,
			input.Description,
			input.URL,
			input.Endpoint,
			input.Capabilities,
			true,
		)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if input.PayloadStyle != "" {
			record.Metadata[model.MetaKeyPayloadStyle] = input.PayloadStyle
		}

		// ?validate=true probes the server's schema before registering and
		// fills in the capabilities from the tools it advertises
		if c.Query("validate") == "true" {
			if s.fetcher == nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "server validation is not available"})
				return
			}
			tools, err := s.fetcher.Fetch(c.Request.Context(), record)
			if err != nil {
				c.JSON(
					http.StatusBadRequest,
					gin.H{"error": fmt.Sprintf("server validation failed: %v", err)},
				)
				return
			}
			if len(record.Capabilities) == 0 {
				for _, tool := range tools {
					record.Capabilities = append(record.Capabilities, tool.Name)
				}
			}
		}

		force := c.Query("force") == "true"
		if err := s.registry.Register(record, force); err != nil {
			if errors.Is(err, registry.ErrConflict) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		s.logger.Info("registered capability server",
			zap.String("id", record.ID), zap.String("url", record.URL), zap.Bool("force", force))
		c.JSON(http.StatusCreated, toServerDTO(record))
	}
}

func (s *Server) deregisterServerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		if err := s.registry.Deregister(id); err != nil {
			if errors.Is(err, registry.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		s.logger.Info("deregistered capability server", zap.String("id", id))
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) getServerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		record, ok := s.registry.Get(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("server %q is not registered", id)})
			return
		}

		c.JSON(http.StatusOK, toServerDTO(record))
	}
}

func (s *Server) listServersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		records := s.registry.List()

		servers := make([]*types.Server, len(records))
		for i, record := range records {
			servers[i] = toServerDTO(record)
		}

		c.JSON(http.StatusOK, servers)
	}
}

// registryInfoHandler summarizes the registry: how many servers are known
// and how many capability tags they carry in total.
func (s *Server) registryInfoHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		records := s.registry.List()
		capabilities := 0
		for _, record := range records {
			capabilities += len(record.Capabilities)
		}

		c.JSON(http.StatusOK, gin.H{
			"servers":      len(records),
			"capabilities": capabilities,
		})
	}
}

func toServerDTO(record *model.ServerRecord) *types.Server {
	return &types.Server{
		ID:           record.ID,
		Name:         record.Name,
		Description:  record.Description,
		URL:          record.URL,
		Endpoint:     record.Endpoint,
		Capabilities: record.Capabilities,
		Metadata:     record.Metadata,
	}
}
