package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-io-dm/conversation-service/internal/domain"
	"github.com/weiawesome/wes-io-dm/conversation-service/internal/service"
	"github.com/weiawesome/wes-io-dm/internal/chaterr"
	"github.com/weiawesome/wes-io-dm/pkg/log"
	"github.com/weiawesome/wes-io-dm/pkg/middleware"
	"github.com/weiawesome/wes-io-dm/pkg/response"
)

// Handler handles HTTP requests for the conversation query API.
type Handler struct {
	queries        service.QueryService
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler.
func NewHandler(queries service.QueryService, authMiddleware *middleware.AuthMiddleware) *Handler {
	return &Handler{
		queries:        queries,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) { response.Success(c, gin.H{"status": "ok"}) })

	api := r.Group("/api/v1")
	api.Use(h.authMiddleware.RequireAuth())
	{
		api.GET("/conversations", h.ListConversations)
		api.GET("/conversations/:target_user_id", h.GetConversation)
		api.POST("/messages/mark-seen", h.MarkAllSeen)
	}
}

// GetConversation returns the caller's conversation with target_user_id.
// Viewing it marks the target's messages as seen.
func (h *Handler) GetConversation(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.GetUserID(c)
	targetUserID := c.Param("target_user_id")
	ctx = log.WithStr(ctx, log.FieldTargetUserID, targetUserID)

	view, err := h.queries.GetConversation(ctx, userID, targetUserID)
	if err != nil {
		h.fail(c, err, "failed to get conversation")
		return
	}
	response.Success(c, view)
}

// ListConversations returns the caller's conversations, most recent first.
func (h *Handler) ListConversations(c *gin.Context) {
	summaries, err := h.queries.ListConversations(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err, "failed to list conversations")
		return
	}
	response.Success(c, summaries)
}

func (h *Handler) MarkAllSeen(c *gin.Context) {
	n, err := h.queries.MarkAllSeen(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err, "failed to mark messages seen")
		return
	}
	response.Success(c, domain.MarkAllSeenResponse{Updated: n})
}

func (h *Handler) fail(c *gin.Context, err error, msg string) {
	l := log.Ctx(c.Request.Context())
	switch {
	case errors.Is(err, chaterr.ErrValidation):
		l.Warn().Err(err).Msg(msg)
		response.BadRequest(c, err.Error())
	case errors.Is(err, chaterr.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, chaterr.ErrStoreUnavailable):
		l.Error().Err(err).Msg(msg)
		response.ServiceUnavailable(c, "conversation store unavailable, try again")
	default:
		l.Error().Err(err).Msg(msg)
		response.InternalError(c, msg)
	}
}
