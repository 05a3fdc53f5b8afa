package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"autoflow"
	"autoflow/internal/api/handler/request"
	"autoflow/internal/api/handler/response"
	"autoflow/internal/api/models"
	"autoflow/internal/api/repo"
	"autoflow/internal/workflow"
	"autoflow/pkg"

	"github.com/rs/zerolog"
)

const dueBatchSize = 50

// WorkflowRunner executes a saved graph on behalf of its owner.
type WorkflowRunner interface {
	Run(ctx context.Context, userID, workflowID string, dto request.RunWorkflow) (response.Run, error)
}

// SchedulerService fires saved workflows whose first step is a schedule
// trigger once their next activation is due.
type SchedulerService struct {
	workflowRepo *repo.WorkflowRepository
	runner       WorkflowRunner
	logger       zerolog.Logger
	now          func() time.Time

	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	workerPool chan struct{}

	maxWorkers     int
	dispatchPeriod time.Duration
}

func NewSchedulerService(runner WorkflowRunner) *SchedulerService {
	cfg := autoflow.GetConfig()
	return NewSchedulerServiceWith(repo.NewWorkflowRepository(), runner, cfg.Scheduler.Workers, cfg.Scheduler.Period, autoflow.Logger)
}

func NewSchedulerServiceWith(workflowRepo *repo.WorkflowRepository, runner WorkflowRunner, maxWorkers int, period time.Duration, logger zerolog.Logger) *SchedulerService {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if period <= 0 {
		period = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SchedulerService{
		workflowRepo:   workflowRepo,
		runner:         runner,
		logger:         logger,
		now:            time.Now,
		ctx:            ctx,
		cancel:         cancel,
		workerPool:     make(chan struct{}, maxWorkers),
		maxWorkers:     maxWorkers,
		dispatchPeriod: period,
	}
}

func (slf *SchedulerService) Start() {
	slf.logger.Info().Int("maxWorkers", slf.maxWorkers).Dur("period", slf.dispatchPeriod).Msg("Starting workflow scheduler")
	slf.wg.Add(1)
	go slf.dispatcher()
}

// Stop cancels the dispatcher and waits for it and for running workflows.
// Runs already dispatched are not cancelled.
func (slf *SchedulerService) Stop() {
	slf.logger.Info().Msg("Stopping workflow scheduler")
	slf.cancel()
	slf.wg.Wait()
	slf.logger.Info().Msg("Workflow scheduler stopped")
}

func (slf *SchedulerService) dispatcher() {
	defer slf.wg.Done()
	for slf.dispatchLoop() {
		if slf.ctx.Err() != nil {
			return
		}
		slf.logger.Warn().Msg("Restarting scheduler dispatcher")
	}
}

// dispatchLoop reports whether it returned because of a panic.
func (slf *SchedulerService) dispatchLoop() (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			slf.logger.Error().Interface("panic", r).Msg("Scheduler dispatcher panicked")
			panicked = true
		}
	}()

	slf.dispatchWork()

	ticker := time.NewTicker(slf.dispatchPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-slf.ctx.Done():
			return false
		case <-ticker.C:
			slf.dispatchWork()
		}
	}
}

// dispatchWork fires every due workflow it can get a worker for. The next
// activation is stored before the run starts so a slow run is never picked
// up twice. Workflows skipped for lack of a worker stay due.
func (slf *SchedulerService) dispatchWork() int {
	now := slf.now().UTC()
	due, err := slf.workflowRepo.FindDue(slf.ctx, now, dueBatchSize)
	if err != nil {
		slf.logger.Error().Err(err).Msg("Error fetching due workflows")
		return 0
	}
	if len(due) == 0 {
		slf.logger.Debug().Msg("No scheduled workflow due")
		return 0
	}

	dispatched := 0
	for _, wf := range due {
		if slf.ctx.Err() != nil {
			break
		}
		select {
		case slf.workerPool <- struct{}{}:
		default:
			slf.logger.Warn().Str("workflowId", wf.ID).Msg("Workers busy, postponing workflow")
			continue
		}

		next := slf.nextRun(wf, now)
		if err := slf.workflowRepo.MarkFired(slf.ctx, wf.ID, now, next); err != nil {
			<-slf.workerPool
			slf.logger.Error().Err(err).Str("workflowId", wf.ID).Msg("Failed to reschedule workflow")
			continue
		}

		slf.logger.Info().Str("workflowId", wf.ID).Str("schedule", wf.Schedule).Msg("Dispatching scheduled workflow")
		slf.wg.Add(1)
		go slf.runWorkflow(wf)
		dispatched++
	}
	return dispatched
}

// nextRun returns nil when the stored expression no longer parses, which
// takes the workflow off the schedule.
func (slf *SchedulerService) nextRun(wf models.Workflow, now time.Time) *time.Time {
	next, err := pkg.NextRun(wf.Schedule, now)
	if err != nil {
		slf.logger.Error().Err(err).Str("workflowId", wf.ID).Msg("Unschedulable workflow")
		return nil
	}
	return &next
}

func (slf *SchedulerService) runWorkflow(wf models.Workflow) {
	defer func() {
		<-slf.workerPool
		slf.wg.Done()
	}()

	var g workflow.Graph
	if err := json.Unmarshal(wf.Graph, &g); err != nil {
		slf.logger.Error().Err(fmt.Errorf("failed to decode graph: %w", err)).Str("workflowId", wf.ID).Msg("Scheduled run skipped")
		return
	}

	run, err := slf.runner.Run(context.WithoutCancel(slf.ctx), wf.UserID, wf.ID, request.RunWorkflow{
		Graph: request.Graph{Nodes: g.Nodes, Edges: g.Edges},
	})
	if err != nil {
		slf.logger.Error().Err(err).Str("workflowId", wf.ID).Msg("Scheduled run failed")
		return
	}
	slf.logger.Debug().Str("workflowId", wf.ID).Str("runId", run.RunID).Msg("Scheduled run finished")
}
