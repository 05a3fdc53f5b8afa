package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"autoflow"
	"autoflow/internal/api/handler/request"
	"autoflow/internal/api/handler/response"
	"autoflow/internal/api/models"
	"autoflow/internal/api/repo"
	"autoflow/internal/workflow"
	"autoflow/internal/workflow/nodes"
	"autoflow/pkg"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

var (
	ErrRunNotFound      = errors.New("no run recorded for this workflow")
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrInvalidSchedule  = errors.New("invalid schedule")
)

type WorkflowService struct {
	engine       *workflow.Engine
	runRepo      *repo.WorkflowRunRepository
	workflowRepo *repo.WorkflowRepository
	cache        *pkg.RedisStore
	cacheTTL     time.Duration
	logger       zerolog.Logger
	now          func() time.Time
}

func NewWorkflowService(engine *workflow.Engine) *WorkflowService {
	return NewWorkflowServiceWith(engine, repo.NewWorkflowRunRepository(), repo.NewWorkflowRepository(), pkg.NewRedisStore(autoflow.Redis), autoflow.GetConfig().RunCacheTTL, autoflow.Logger)
}

func NewWorkflowServiceWith(engine *workflow.Engine, runRepo *repo.WorkflowRunRepository, workflowRepo *repo.WorkflowRepository, cache *pkg.RedisStore, cacheTTL time.Duration, logger zerolog.Logger) *WorkflowService {
	return &WorkflowService{
		engine:       engine,
		runRepo:      runRepo,
		workflowRepo: workflowRepo,
		cache:        cache,
		cacheTTL:     cacheTTL,
		logger:       logger,
		now:          time.Now,
	}
}

func (slf *WorkflowService) Sort(dto request.Graph) response.Sort {
	ordering := workflow.TopologicalOrder(dto.Nodes, dto.Edges)
	fallback := ordering.Fallback
	if fallback == nil {
		fallback = []string{}
	}
	return response.Sort{Nodes: ordering.Nodes, HasCycle: ordering.HasCycle(), Fallback: fallback}
}

func (slf *WorkflowService) Reindex(dto request.Graph) response.Graph {
	return response.Graph{Nodes: workflow.Reindex(dto.Nodes, dto.Edges), Edges: dto.Edges}
}

// Insert drops dto.Node after the selected node and renumbers the chain.
func (slf *WorkflowService) Insert(dto request.InsertNode) response.Insert {
	node := dto.Node
	if node.ID == "" {
		node.ID = uuid.NewString()
	}
	g := workflow.Graph{Nodes: dto.Nodes, Edges: dto.Edges}
	stored := g.Drop(node, dto.SelectedID)
	return response.Insert{Graph: response.Graph{Nodes: g.Nodes, Edges: g.Edges}, Node: stored}
}

func (slf *WorkflowService) Connect(dto request.ConnectNodes) (response.Graph, error) {
	g := workflow.Graph{Nodes: dto.Nodes, Edges: dto.Edges}
	if err := g.Connect(workflow.Edge{Source: dto.Source, Target: dto.Target}); err != nil {
		return response.Graph{}, err
	}
	return response.Graph{Nodes: g.Nodes, Edges: g.Edges}, nil
}

func (slf *WorkflowService) Template(dto request.BuildTemplate) response.Graph {
	g := workflow.BuildInitialFlow(workflow.Template{Name: dto.Name, Steps: dto.Steps}, dto.Configured)
	return response.Graph{Nodes: g.Nodes, Edges: g.Edges}
}

// Run executes the graph, records the outcome and caches it as the latest
// run of the workflow. Step failures are part of the outcome, not errors.
func (slf *WorkflowService) Run(ctx context.Context, userID, workflowID string, dto request.RunWorkflow) (response.Run, error) {
	runID := uuid.NewString()
	ctx = workflow.WithRunInfo(ctx, workflow.RunInfo{WorkflowID: workflowID, RunID: runID, UserID: userID})

	started := time.Now().UTC()
	summary := slf.engine.Execute(ctx, dto.Nodes, dto.Edges, workflow.RunOptions{
		StopIfEmptyTriggerProviders: dto.StopIfEmptyTriggerProviders,
		Input:                       dto.Input,
	})
	finished := time.Now().UTC()

	result := response.Run{RunID: runID, WorkflowID: workflowID, Summary: summary}
	raw, err := json.Marshal(summary)
	if err != nil {
		slf.logger.Error().Err(err).Str("workflowId", workflowID).Msg("Failed to encode run summary")
		return response.Run{}, err
	}

	run := models.WorkflowRun{
		ID:           runID,
		WorkflowID:   workflowID,
		UserID:       userID,
		Status:       runStatus(summary),
		TriggerCount: summary.TriggerCount,
		Summary:      models.JSONDoc(raw),
		StartedAt:    started,
		FinishedAt:   finished,
	}
	if failed, ok := summary.Failed(); ok {
		run.Error = failed.Error
	}
	if err := slf.runRepo.Create(ctx, &run); err != nil {
		slf.logger.Error().Err(err).Str("workflowId", workflowID).Msg("Failed to record run")
		return response.Run{}, err
	}

	if err := slf.cache.Set(pkg.LatestRunKey(userID, workflowID), result, slf.cacheTTL); err != nil {
		slf.logger.Warn().Err(err).Str("workflowId", workflowID).Msg("Failed to cache latest run")
	}

	slf.logger.Info().
		Str("workflowId", workflowID).
		Str("runId", runID).
		Str("status", string(run.Status)).
		Int("steps", len(summary.Steps)).
		Msg("Workflow run finished")
	return result, nil
}

// Latest returns the last run userID made of a workflow, from the cache when
// possible.
func (slf *WorkflowService) Latest(ctx context.Context, userID, workflowID string) (response.Run, error) {
	var cached response.Run
	err := slf.cache.Get(pkg.LatestRunKey(userID, workflowID), &cached)
	if err == nil {
		return cached, nil
	}
	if !pkg.IsRedisNil(err) {
		slf.logger.Warn().Err(err).Str("workflowId", workflowID).Msg("Run cache unavailable")
	}

	run, err := slf.runRepo.FindLatest(ctx, userID, workflowID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.Run{}, ErrRunNotFound
		}
		return response.Run{}, err
	}
	out := response.Run{RunID: run.ID, WorkflowID: run.WorkflowID}
	if len(run.Summary) > 0 {
		if err := json.Unmarshal(run.Summary, &out.Summary); err != nil {
			return response.Run{}, err
		}
	}
	return out, nil
}

func (slf *WorkflowService) History(ctx context.Context, userID, workflowID string, limit int) ([]models.WorkflowRun, error) {
	runs, err := slf.runRepo.ListByWorkflow(ctx, userID, workflowID, limit)
	if err != nil {
		slf.logger.Error().Err(err).Str("workflowId", workflowID).Msg("Failed to list runs")
		return nil, err
	}
	return runs, nil
}

// Save stores the graph of a workflow. When the first step is a schedule
// trigger its expression is validated and, for an active workflow, the next
// activation is computed so the scheduler picks it up. An id already saved by
// another user gives ErrWorkflowNotFound.
func (slf *WorkflowService) Save(ctx context.Context, userID, workflowID string, dto request.SaveWorkflow) (response.Workflow, error) {
	schedule, err := scheduleOf(dto.Nodes, dto.Edges)
	if err != nil {
		return response.Workflow{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}

	raw, err := json.Marshal(workflow.Graph{Nodes: dto.Nodes, Edges: dto.Edges})
	if err != nil {
		return response.Workflow{}, err
	}

	now := slf.now().UTC()
	wf := models.Workflow{
		ID:        workflowID,
		UserID:    userID,
		Name:      dto.Name,
		Graph:     models.JSONDoc(raw),
		Schedule:  schedule,
		Active:    dto.Active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if schedule != "" && dto.Active {
		next, err := pkg.NextRun(schedule, now)
		if err != nil {
			return response.Workflow{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		wf.NextRunAt = pkg.ToPtr(next)
	}

	if err := slf.workflowRepo.Upsert(ctx, &wf); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.Workflow{}, ErrWorkflowNotFound
		}
		slf.logger.Error().Err(err).Str("workflowId", workflowID).Msg("Failed to save workflow")
		return response.Workflow{}, err
	}
	return toWorkflowResponse(wf, dto.Nodes, dto.Edges), nil
}

func (slf *WorkflowService) Get(ctx context.Context, userID, workflowID string) (response.Workflow, error) {
	wf, err := slf.workflowRepo.FindByID(ctx, userID, workflowID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.Workflow{}, ErrWorkflowNotFound
		}
		return response.Workflow{}, err
	}
	var g workflow.Graph
	if len(wf.Graph) > 0 {
		if err := json.Unmarshal(wf.Graph, &g); err != nil {
			return response.Workflow{}, fmt.Errorf("failed to decode graph: %w", err)
		}
	}
	return toWorkflowResponse(wf, g.Nodes, g.Edges), nil
}

// scheduleOf returns the cron expression of a graph whose first step is a
// schedule trigger, or "" for any other graph.
func scheduleOf(nodeList []workflow.Node, edges []workflow.Edge) (string, error) {
	ordered := workflow.Sort(nodeList, edges)
	if len(ordered) == 0 || workflow.ProviderOf(ordered[0]) != workflow.ProviderScheduleTrigger {
		return "", nil
	}
	expr, err := nodes.ScheduleOf(ordered[0].Config)
	if err != nil {
		return "", err
	}
	if _, err := pkg.ParseSchedule(expr); err != nil {
		return "", err
	}
	return expr, nil
}

func toWorkflowResponse(wf models.Workflow, nodeList []workflow.Node, edges []workflow.Edge) response.Workflow {
	if nodeList == nil {
		nodeList = []workflow.Node{}
	}
	if edges == nil {
		edges = []workflow.Edge{}
	}
	return response.Workflow{
		ID:        wf.ID,
		Name:      wf.Name,
		Nodes:     nodeList,
		Edges:     edges,
		Schedule:  wf.Schedule,
		Active:    wf.Active,
		NextRunAt: wf.NextRunAt,
		LastRunAt: wf.LastRunAt,
		UpdatedAt: wf.UpdatedAt,
	}
}

func runStatus(summary workflow.RunSummary) models.RunStatus {
	if _, failed := summary.Failed(); failed {
		return models.RunStatusFailed
	}
	if summary.Stopped() {
		return models.RunStatusStopped
	}
	return models.RunStatusSucceeded
}
