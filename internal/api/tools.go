package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/toolgate/toolgate/internal/dispatch"
	"github.com/toolgate/toolgate/internal/registry"
	"github.com/toolgate/toolgate/pkg/types"
)

// listToolsHandler serves the cached tool schema of a server.
// ?refresh=true bypasses the cache and forces a fresh fetch.
func (s *Server) listToolsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		refresh := c.Query("refresh") == "true"

		tools, err := s.catalog.GetTools(c.Request.Context(), id, refresh)
		if err != nil {
			if errors.Is(err, registry.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"tools":     tools,
			"freshness": s.catalog.Freshness(id),
		})
	}
}

// handshakeHandler performs the streaming initialization exchange with a
// server and returns the tools it advertises.
func (s *Server) handshakeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		tools, err := s.dispatcher.Handshake(c.Request.Context(), id)
		if err != nil {
			kind := types.ResultTransportFailure
			if errors.Is(err, dispatch.ErrProtocol) {
				kind = types.ResultProtocolFailure
			}
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "kind": kind})
			return
		}

		c.JSON(http.StatusOK, gin.H{"tools": tools})
	}
}

// invokeToolHandler delivers a tool invocation and returns the normalized
// result. The HTTP status reflects the API call itself; the invocation's
// own outcome is carried in the result's kind.
func (s *Server) invokeToolHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.InvocationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if req.ServerID == "" || req.Tool == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "server_id and tool are required"})
			return
		}

		result := s.dispatcher.Invoke(c.Request.Context(), &req)
		c.JSON(http.StatusOK, result)
	}
}
