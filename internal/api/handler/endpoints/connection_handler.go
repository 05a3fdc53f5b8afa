package endpoints

import (
	"errors"
	"net/http"

	"autoflow"
	"autoflow/internal/api/handler/middleware"
	"autoflow/internal/api/handler/request"
	"autoflow/internal/api/handler/response"
	"autoflow/internal/api/service"
	"autoflow/pkg"

	"github.com/gin-contrib/graceful"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type connectionHandler struct {
	connectionService *service.ConnectionService
	config            autoflow.AppConfig
	logger            zerolog.Logger
}

func newConnectionHandler(connectionService *service.ConnectionService, cfg autoflow.AppConfig, logger zerolog.Logger) *connectionHandler {
	return &connectionHandler{
		connectionService: connectionService,
		config:            cfg,
		logger:            logger,
	}
}

func ConnectionHandler(router *graceful.Graceful, connectionService *service.ConnectionService) {
	h := newConnectionHandler(connectionService, autoflow.GetConfig(), autoflow.Logger)
	h.register(router.Group("/api/v1/connections"))
}

func (slf *connectionHandler) register(routes *gin.RouterGroup) {
	routes.Use(middleware.AuthMiddleware(slf.config))
	{
		routes.GET("", slf.list)
		routes.POST("/api-key", slf.saveAPIKey)
	}
}

func (slf *connectionHandler) list(c *gin.Context) {
	userID := middleware.UserID(c)

	conns, err := slf.connectionService.ListForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.APIError{Message: "Failed to retrieve connections"})
		return
	}
	c.JSON(http.StatusOK, conns)
}

func (slf *connectionHandler) saveAPIKey(c *gin.Context) {
	var req request.SaveAPIKey
	if err := pkg.ParseAndValidate(c, &req); err != nil {
		slf.logger.Error().Err(err).Msg("Failed to parse api key request")
		c.JSON(http.StatusBadRequest, response.APIError{Message: err.Error()})
		return
	}

	conn, err := slf.connectionService.SaveAPIKey(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		if errors.Is(err, service.ErrPlatformMismatch) {
			c.JSON(http.StatusBadRequest, response.APIError{Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, response.APIError{Message: "Failed to save connection"})
		return
	}
	c.JSON(http.StatusCreated, conn)
}
