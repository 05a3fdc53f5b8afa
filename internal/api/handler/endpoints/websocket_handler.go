package endpoints

import (
	"context"
	"net/http"

	"autoflow"
	"autoflow/internal/api/handler/middleware"
	"autoflow/internal/api/handler/response"
	editor "autoflow/internal/api/handler/websocket"

	"github.com/gin-contrib/graceful"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// origins are enforced by the cors middleware
		return true
	},
}

type websocketHandler struct {
	hub       *editor.Hub
	processor *editor.MessageProcessor
	logger    zerolog.Logger
	config    autoflow.AppConfig
}

func newWebSocketHandler(hub *editor.Hub, processor *editor.MessageProcessor, cfg autoflow.AppConfig, logger zerolog.Logger) *websocketHandler {
	return &websocketHandler{
		hub:       hub,
		processor: processor,
		logger:    logger,
		config:    cfg,
	}
}

// WebSocketHandler sets up the collaborative editor routes.
func WebSocketHandler(router *graceful.Graceful, hub *editor.Hub, processor *editor.MessageProcessor) {
	h := newWebSocketHandler(hub, processor, autoflow.GetConfig(), autoflow.Logger)
	h.register(router.Group("/api/v1/ws"))
}

func (slf *websocketHandler) register(wsRoutes *gin.RouterGroup) {
	authed := wsRoutes.Group("")
	authed.Use(middleware.AuthMiddleware(slf.config))
	{
		authed.GET("/workflows/:workflowId", slf.handleWebSocket)
		authed.GET("/workflows/:workflowId/users", slf.getActiveUsers)
	}

	wsRoutes.GET("/stats", slf.getRoomStats)
}

// handleWebSocket joins the caller to the editing room of a workflow.
func (slf *websocketHandler) handleWebSocket(c *gin.Context) {
	workflowID := c.Param("workflowId")
	userID := middleware.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, response.APIError{Message: "User not authenticated"})
		return
	}

	username := c.GetString("userEmail")
	if username == "" {
		username = userID
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slf.logger.Error().Err(err).Msg("Failed to upgrade to WebSocket")
		return
	}

	clientID := uuid.New().String()
	client := editor.NewClient(clientID, userID, username, workflowID, slf.hub, conn, slf.processor, slf.logger)
	slf.hub.Register <- client

	slf.logger.Info().
		Str("clientId", clientID).
		Str("userId", userID).
		Str("workflowId", workflowID).
		Msg("WebSocket connection established")

	// the request context ends with this handler, the pumps outlive it
	client.Start(context.WithoutCancel(c.Request.Context()))
}

func (slf *websocketHandler) getActiveUsers(c *gin.Context) {
	workflowID := c.Param("workflowId")
	c.JSON(http.StatusOK, gin.H{
		"workflowId": workflowID,
		"users":      slf.hub.GetActiveUsersInRoom(workflowID),
	})
}

func (slf *websocketHandler) getRoomStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"rooms": slf.hub.GetRoomStats(),
	})
}
