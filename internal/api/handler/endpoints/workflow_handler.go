package endpoints

import (
	"errors"
	"net/http"
	"strconv"

	"autoflow"
	"autoflow/internal/api/handler/middleware"
	"autoflow/internal/api/handler/request"
	"autoflow/internal/api/handler/response"
	"autoflow/internal/api/service"
	"autoflow/internal/workflow"
	"autoflow/pkg"

	"github.com/gin-contrib/graceful"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const defaultHistoryLimit = 20

type workflowHandler struct {
	workflowService *service.WorkflowService
	config          autoflow.AppConfig
	logger          zerolog.Logger
}

func newWorkflowHandler(workflowService *service.WorkflowService, cfg autoflow.AppConfig, logger zerolog.Logger) *workflowHandler {
	return &workflowHandler{
		workflowService: workflowService,
		config:          cfg,
		logger:          logger,
	}
}

func WorkflowHandler(router *graceful.Graceful, workflowService *service.WorkflowService) {
	h := newWorkflowHandler(workflowService, autoflow.GetConfig(), autoflow.Logger)
	h.register(router.Group("/api/v1/workflows"))
}

func (slf *workflowHandler) register(routes *gin.RouterGroup) {
	routes.Use(middleware.AuthMiddleware(slf.config))
	{
		// graph editing
		routes.POST("/sort", slf.sort)
		routes.POST("/reindex", slf.reindex)
		routes.POST("/insert", slf.insert)
		routes.POST("/connect", slf.connect)
		routes.POST("/template", slf.template)

		// saved workflows
		routes.PUT("/:workflowId", slf.save)
		routes.GET("/:workflowId", slf.get)

		routes.POST("/:workflowId/run", slf.run)
		routes.GET("/:workflowId/runs/latest", slf.latest)
		routes.GET("/:workflowId/runs", slf.history)
	}
}

func (slf *workflowHandler) sort(c *gin.Context) {
	var req request.Graph
	if err := pkg.ParseAndValidate(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, response.APIError{Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, slf.workflowService.Sort(req))
}

func (slf *workflowHandler) reindex(c *gin.Context) {
	var req request.Graph
	if err := pkg.ParseAndValidate(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, response.APIError{Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, slf.workflowService.Reindex(req))
}

func (slf *workflowHandler) insert(c *gin.Context) {
	var req request.InsertNode
	if err := pkg.ParseAndValidate(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, response.APIError{Message: err.Error()})
		return
	}
	if req.Node.Label == "" {
		c.JSON(http.StatusBadRequest, response.APIError{Message: "Node label is required"})
		return
	}
	c.JSON(http.StatusOK, slf.workflowService.Insert(req))
}

func (slf *workflowHandler) connect(c *gin.Context) {
	var req request.ConnectNodes
	if err := pkg.ParseAndValidate(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, response.APIError{Message: err.Error()})
		return
	}

	graph, err := slf.workflowService.Connect(req)
	if err != nil {
		if errors.Is(err, workflow.ErrDuplicateEdge) {
			c.JSON(http.StatusConflict, response.APIError{Message: "Edge already exists"})
			return
		}
		slf.logger.Error().Err(err).Str("source", req.Source).Str("target", req.Target).Msg("Failed to connect nodes")
		c.JSON(http.StatusBadRequest, response.APIError{Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, graph)
}

func (slf *workflowHandler) template(c *gin.Context) {
	var req request.BuildTemplate
	if err := pkg.ParseAndValidate(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, response.APIError{Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, slf.workflowService.Template(req))
}

func (slf *workflowHandler) save(c *gin.Context) {
	workflowID := c.Param("workflowId")

	var req request.SaveWorkflow
	if err := pkg.ParseAndValidate(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, response.APIError{Message: err.Error()})
		return
	}

	saved, err := slf.workflowService.Save(c.Request.Context(), middleware.UserID(c), workflowID, req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidSchedule) {
			c.JSON(http.StatusBadRequest, response.APIError{Message: err.Error()})
			return
		}
		if errors.Is(err, service.ErrWorkflowNotFound) {
			c.JSON(http.StatusNotFound, response.APIError{Message: "Workflow not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, response.APIError{Message: "Failed to save workflow"})
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (slf *workflowHandler) get(c *gin.Context) {
	workflowID := c.Param("workflowId")

	wf, err := slf.workflowService.Get(c.Request.Context(), middleware.UserID(c), workflowID)
	if err != nil {
		if errors.Is(err, service.ErrWorkflowNotFound) {
			c.JSON(http.StatusNotFound, response.APIError{Message: "Workflow not found"})
			return
		}
		slf.logger.Error().Err(err).Str("workflowId", workflowID).Msg("Failed to get workflow")
		c.JSON(http.StatusInternalServerError, response.APIError{Message: "Failed to retrieve workflow"})
		return
	}
	c.JSON(http.StatusOK, wf)
}

// run executes the posted graph. A failed step still answers 200 with the
// failure inside the summary.
func (slf *workflowHandler) run(c *gin.Context) {
	workflowID := c.Param("workflowId")

	var req request.RunWorkflow
	if err := pkg.ParseAndValidate(c, &req); err != nil {
		slf.logger.Error().Err(err).Str("workflowId", workflowID).Msg("Failed to parse run request")
		c.JSON(http.StatusBadRequest, response.APIError{Message: err.Error()})
		return
	}

	result, err := slf.workflowService.Run(c.Request.Context(), middleware.UserID(c), workflowID, req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.APIError{Message: "Failed to run workflow"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (slf *workflowHandler) latest(c *gin.Context) {
	workflowID := c.Param("workflowId")

	result, err := slf.workflowService.Latest(c.Request.Context(), middleware.UserID(c), workflowID)
	if err != nil {
		if errors.Is(err, service.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, response.APIError{Message: "No run found for this workflow"})
			return
		}
		slf.logger.Error().Err(err).Str("workflowId", workflowID).Msg("Failed to get latest run")
		c.JSON(http.StatusInternalServerError, response.APIError{Message: "Failed to retrieve run"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (slf *workflowHandler) history(c *gin.Context) {
	workflowID := c.Param("workflowId")

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, response.APIError{Message: "Invalid limit"})
			return
		}
		limit = parsed
	}

	runs, err := slf.workflowService.History(c.Request.Context(), middleware.UserID(c), workflowID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.APIError{Message: "Failed to retrieve runs"})
		return
	}
	c.JSON(http.StatusOK, runs)
}
