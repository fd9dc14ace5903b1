// Package httpapi exposes the request/response surface the storefront
// consumes around the socket core: inbox listing, conversation bootstrap
// and history fetch.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"decormart/messaging-service/internal/auth"
	"decormart/messaging-service/internal/gateway"
	"decormart/messaging-service/internal/models"
	"decormart/messaging-service/internal/repository"
	"decormart/messaging-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const ctxUserKey = "user_id"

type Server struct {
	messaging service.Messaging
	sessions  *auth.Sessions
	gateway   *gateway.Gateway
	repo      repository.ConversationRepository
	logger    *logrus.Logger
}

func NewServer(messaging service.Messaging, sessions *auth.Sessions, gw *gateway.Gateway, repo repository.ConversationRepository, logger *logrus.Logger) *Server {
	return &Server{
		messaging: messaging,
		sessions:  sessions,
		gateway:   gw,
		repo:      repo,
		logger:    logger,
	}
}

func (s *Server) Routes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", s.handleHealth)
	if s.gateway != nil {
		router.GET("/ws", s.gateway.HandleWS)
	}

	api := router.Group("/api", s.requireSession)
	api.GET("/conversations", s.handleListConversations)
	api.POST("/conversations", s.handleStartConversation)
	api.GET("/conversations/:id/messages", s.handleConversationMessages)

	return router
}

// requireSession rejects requests without a valid session token and
// stores the caller's user id for the handlers.
func (s *Server) requireSession(c *gin.Context) {
	claims, err := s.sessions.Validate(auth.TokenFromRequest(c.Request))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	c.Set(ctxUserKey, claims.UserID)
	c.Next()
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if s.repo != nil {
		if err := s.repo.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListConversations(c *gin.Context) {
	userID := c.GetString(ctxUserKey)

	previews, err := s.messaging.ListConversations(c.Request.Context(), userID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list conversations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}
	if previews == nil {
		previews = []*models.ConversationPreview{}
	}

	c.JSON(http.StatusOK, gin.H{"conversations": previews})
}

type startConversationRequest struct {
	ReceiverID     string `json:"receiver_id" binding:"required"`
	InitialMessage string `json:"initial_message" binding:"required"`
}

func (s *Server) handleStartConversation(c *gin.Context) {
	userID := c.GetString(ctxUserKey)

	var req startConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "receiver_id and initial_message are required"})
		return
	}

	conv, msg, err := s.messaging.StartConversation(c.Request.Context(), userID, req.ReceiverID, req.InitialMessage)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSelfConversation), errors.Is(err, service.ErrEmptyMessage):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			s.logger.WithError(err).Error("Failed to start conversation")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start conversation"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"conversation": conv, "message": msg})
}

func (s *Server) handleConversationMessages(c *gin.Context) {
	userID := c.GetString(ctxUserKey)
	conversationID := c.Param("id")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	messages, err := s.messaging.ConversationMessages(c.Request.Context(), userID, conversationID, limit, c.Query("before"))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrConversationNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		case errors.Is(err, service.ErrNotParticipant):
			c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		default:
			s.logger.WithError(err).Error("Failed to get conversation messages")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get messages"})
		}
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}
