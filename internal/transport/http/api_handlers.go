package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// APIHandlers provides read-only HTTP handlers over the hub state.
type APIHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(hub *core.Hub, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		hub: hub,
		log: logger,
	}
}

// HistoryRequest represents the history query parameters.
type HistoryRequest struct {
	User string `form:"user" binding:"required"`
	With string `form:"with" binding:"required"`
}

// OnlineResponse represents the online users response body.
type OnlineResponse struct {
	Data []proto.User `json:"data"`
}

// HistoryResponse represents the history response body.
type HistoryResponse struct {
	Data []store.Message `json:"data"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Online returns the current online list.
// GET /api/online
func (h *APIHandlers) Online(c *gin.Context) {
	c.JSON(http.StatusOK, OnlineResponse{Data: proto.NewOnlineUsers(h.hub.OnlineUsers()).Data})
}

// History returns the conversation between two users in insertion order.
// GET /api/history?user=alice&with=bob
func (h *APIHandlers) History(c *gin.Context) {
	var req HistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid history request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "user and with are required"})
		return
	}

	c.JSON(http.StatusOK, HistoryResponse{Data: h.hub.History(c.Request.Context(), req.User, req.With)})
}
